package detection

import (
	"fmt"
	"time"

	"gocv.io/x/gocv"
)

// Per-run detector state. Carries the tracker between frames
// so one Adapter must not outlive its run
type Adapter struct {
	model      Model
	tracker    Tracker
	confidence float32
	width      int
	palette    *Palette
}

// tracker may be nil for stateless detection
func NewAdapter(model Model, confidence float32, tracker Tracker, width int) *Adapter {
	return &Adapter{
		model:      model,
		tracker:    tracker,
		confidence: confidence,
		width:      width,
		palette:    NewPalette(),
	}
}

// Resizes the frame to canonical size, runs the model on it and
// draws the surviving boxes onto the resized copy. frame is left untouched
func (a *Adapter) Process(frame gocv.Mat, t time.Time) (*Result, error) {
	resized := gocv.NewMat()
	gocv.Resize(frame, &resized, CanonicalSize(a.width), 0, 0, gocv.InterpolationLinear)

	boxes, err := a.model.Detect(resized, a.confidence)
	if err != nil {
		resized.Close()
		return nil, fmt.Errorf("Detection failed: %w", err)
	}
	boxes = KeepConfident(boxes, a.confidence)
	if a.tracker != nil {
		boxes = a.tracker.Update(boxes, t)
	}

	if err := Plot(&resized, boxes, a.model.Name, a.palette); err != nil {
		resized.Close()
		return nil, fmt.Errorf("Can't plot detections: %w", err)
	}
	return &Result{Boxes: boxes, Plotted: resized}, nil
}
