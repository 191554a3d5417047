package aggregator

import (
	"slices"
	"strings"
	"sync"

	"github.com/Robogera/detectdemo/pkg/gset"
)

const (
	NoObjects      = "No objects detected"
	summary_prefix = "Detected Objects: "
)

// Duplicate free collection of the class ids seen during a run.
// The camera keeps one across runs, other sources start fresh
type Aggregator struct {
	mu  sync.Mutex
	ids gset.Set[int]
}

func New() *Aggregator {
	return &Aggregator{}
}

func (a *Aggregator) Record(class_ids ...int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ids.Add(class_ids...)
}

func (a *Aggregator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ids.Len()
}

// Names of the recorded ids, each name once, in ascending id order.
// Ids mapping to the same name collapse. With reset the collection
// is cleared in the same critical section, so an id recorded
// concurrently lands either in this batch or in the next one
func (a *Aggregator) Take(names func(int) string, reset bool) []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	resolved := resolve(&a.ids, names)
	if reset {
		a.ids.Clear()
	}
	return resolved
}

func Format(names []string) string {
	if len(names) == 0 {
		return NoObjects
	}
	return summary_prefix + strings.Join(names, ", ")
}

func resolve(ids *gset.Set[int], names func(int) string) []string {
	out := make([]string, 0, ids.Len())
	for id := range ids.All() {
		name := names(id)
		if !slices.Contains(out, name) {
			out = append(out, name)
		}
	}
	return out
}
