package orchestrator

import (
	"errors"

	"github.com/Robogera/detectdemo/pkg/enums"
)

var (
	ERR_BUSY      = errors.New("A detection is already running")
	ERR_NOT_BOUND = errors.New("No input provided")
)

type State int

const (
	Idle State = iota
	Ready
	Running
	Done
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Ready:
		return "ready"
	case Running:
		return "running"
	default:
		return "done"
	}
}

// How a source kind behaves around a run
type Policy struct {
	// Aggregation survives between runs, back to Ready after a run
	Resumable bool
	// Honours the quit flag between frames
	Cancellable bool
	// Emits per box details after the run
	Details bool
	// Has a default input when nothing is bound
	Fallback bool
}

var Policies = map[enums.Source]Policy{
	enums.SourceImage:   {Details: true, Fallback: true},
	enums.SourceVideo:   {Fallback: true},
	enums.SourceYouTube: {Fallback: true},
	enums.SourceWebcam:  {Resumable: true, Cancellable: true},
	enums.SourceStream:  {},
}

// Where a finished run leaves its orchestrator
func (p Policy) After() State {
	if p.Resumable {
		return Ready
	}
	return Idle
}
