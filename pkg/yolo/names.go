package yolo

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Class id to class name table
type Names map[int]string

func (n Names) Get(class_id int) string {
	if name, ok := n[class_id]; ok {
		return name
	}
	return fmt.Sprintf("class %d", class_id)
}

// ultralytics data yaml, names are either
// a list or an id -> name mapping
type dataFile struct {
	Names yaml.Node `yaml:"names"`
}

func ParseNames(data []byte) (Names, error) {
	var df dataFile
	if err := yaml.Unmarshal(data, &df); err != nil {
		return nil, fmt.Errorf("Can't parse names: %w", err)
	}
	names := Names{}
	switch df.Names.Kind {
	case yaml.SequenceNode:
		var list []string
		if err := df.Names.Decode(&list); err != nil {
			return nil, fmt.Errorf("Can't decode names list: %w", err)
		}
		for i, name := range list {
			names[i] = name
		}
	case yaml.MappingNode:
		var mapping map[int]string
		if err := df.Names.Decode(&mapping); err != nil {
			return nil, fmt.Errorf("Can't decode names mapping: %w", err)
		}
		for i, name := range mapping {
			names[i] = name
		}
	default:
		return nil, fmt.Errorf("No names section")
	}
	return names, nil
}

func LoadNames(path string) (Names, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("Can't read names file %s: %w", path, err)
	}
	return ParseNames(data)
}
