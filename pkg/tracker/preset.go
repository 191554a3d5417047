package tracker

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Robogera/detectdemo/pkg/enums"
	"gopkg.in/yaml.v3"
)

var (
	ERR_PRESET = errors.New("Bad tracker preset")
)

// Association parameters of an ultralytics tracker yaml.
// Camera motion compensation and re-identification fields are
// read but only their disabled values are accepted
type Preset struct {
	TrackerType      string  `yaml:"tracker_type"`
	TrackHighThresh  float64 `yaml:"track_high_thresh"`
	TrackLowThresh   float64 `yaml:"track_low_thresh"`
	NewTrackThresh   float64 `yaml:"new_track_thresh"`
	TrackBuffer      int     `yaml:"track_buffer"`
	MatchThresh      float64 `yaml:"match_thresh"`
	FuseScore        bool    `yaml:"fuse_score"`
	GMCMethod        string  `yaml:"gmc_method"`
	ProximityThresh  float64 `yaml:"proximity_thresh"`
	AppearanceThresh float64 `yaml:"appearance_thresh"`
	WithReID         bool    `yaml:"with_reid"`
}

func ParsePreset(data []byte) (Preset, error) {
	p := Preset{
		TrackHighThresh: 0.25,
		TrackLowThresh:  0.1,
		NewTrackThresh:  0.25,
		TrackBuffer:     30,
		MatchThresh:     0.8,
		FuseScore:       true,
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Preset{}, fmt.Errorf("%w: %w", ERR_PRESET, err)
	}
	return p, p.Validate()
}

func (p Preset) Validate() error {
	switch p.TrackerType {
	case "bytetrack", "botsort":
	default:
		return fmt.Errorf("%w: unknown tracker_type %q", ERR_PRESET, p.TrackerType)
	}
	if p.TrackLowThresh > p.TrackHighThresh {
		return fmt.Errorf("%w: track_low_thresh %v above track_high_thresh %v", ERR_PRESET, p.TrackLowThresh, p.TrackHighThresh)
	}
	if p.MatchThresh <= 0 || p.MatchThresh > 1 {
		return fmt.Errorf("%w: match_thresh %v", ERR_PRESET, p.MatchThresh)
	}
	if p.TrackBuffer < 0 {
		return fmt.Errorf("%w: negative track_buffer", ERR_PRESET)
	}
	if p.WithReID {
		return fmt.Errorf("%w: re-identification is not supported", ERR_PRESET)
	}
	if p.GMCMethod != "" && p.GMCMethod != "none" {
		return fmt.Errorf("%w: gmc_method %q is not supported", ERR_PRESET, p.GMCMethod)
	}
	return nil
}

// name is the preset file name as selected by the user
func LoadPreset(dir, name string) (Preset, error) {
	if enums.TrackerPresets.Parse(name) == nil {
		return Preset{}, fmt.Errorf("%w: unknown preset %q", ERR_PRESET, name)
	}
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return Preset{}, fmt.Errorf("%w: %w", ERR_PRESET, err)
	}
	p, err := ParsePreset(data)
	if err != nil {
		return Preset{}, fmt.Errorf("%s: %w", name, err)
	}
	return p, nil
}

// Every known preset from dir
func LoadPresets(dir string) (map[string]Preset, error) {
	presets := make(map[string]Preset, enums.TrackerPresets.Len())
	for _, member := range enums.TrackerPresets.Members() {
		p, err := LoadPreset(dir, member.Value)
		if err != nil {
			return nil, err
		}
		presets[member.Value] = p
	}
	return presets, nil
}
