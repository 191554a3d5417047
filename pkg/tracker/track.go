package tracker

import (
	"fmt"
	"time"

	"github.com/Robogera/detectdemo/pkg/detection"
	"github.com/rosshemsley/kalman"
	"github.com/rosshemsley/kalman/models"
	"gonum.org/v1/gonum/mat"
)

const (
	// Smoothing factor of the box dimensions
	size_alpha = 0.7
	// px^2
	initial_variance     = 10.0
	process_variance     = 10.0
	measurement_variance = 1.0
)

// One identity followed across frames. Center is tracked
// by a constant velocity Kalman filter, dimensions by an EMA
type Track struct {
	id          int
	class_id    int
	confidence  float32
	model       *models.ConstantVelocityModel
	filter      *kalman.KalmanFilter
	w, h        float64
	last_update time.Time
	last_filter time.Time
	lost_frames int
	hits        int
}

func newTrack(id int, t time.Time, box detection.Box) *Track {
	model := models.NewConstantVelocityModel(
		t,
		pointToVec(box.X, box.Y),
		models.ConstantVelocityModelConfig{
			InitialVariance: initial_variance,
			ProcessVariance: process_variance,
		})
	return &Track{
		id:          id,
		class_id:    box.ClassId,
		confidence:  box.Confidence,
		model:       model,
		filter:      kalman.NewKalmanFilter(model),
		w:           box.W,
		h:           box.H,
		last_update: t,
		last_filter: t,
		hits:        1,
	}
}

func (tr *Track) Id() int      { return tr.id }
func (tr *Track) Lost() bool   { return tr.lost_frames > 0 }
func (tr *Track) Hits() int    { return tr.hits }
func (tr *Track) ClassId() int { return tr.class_id }

// Current estimate as a box
func (tr *Track) Box() detection.Box {
	x, y := vecToPoint(tr.model.Position(tr.filter.State()))
	return detection.Box{
		X: x, Y: y, W: tr.w, H: tr.h,
		ClassId:    tr.class_id,
		Confidence: tr.confidence,
		TrackId:    tr.id,
	}
}

// Moves the estimate to t. Timestamps that don't move forward are ignored
func (tr *Track) Predict(t time.Time) error {
	if !t.After(tr.last_filter) {
		return nil
	}
	if err := tr.filter.Predict(t); err != nil {
		return fmt.Errorf("Can't perform prediction for track %d. Error: %w", tr.id, err)
	}
	tr.last_filter = t
	return nil
}

func (tr *Track) Update(t time.Time, box detection.Box) error {
	if t.Before(tr.last_filter) {
		t = tr.last_filter
	}
	err := tr.filter.Update(t, tr.model.NewPositionMeasurement(pointToVec(box.X, box.Y), measurement_variance))
	if err != nil {
		return fmt.Errorf("Can't update track %d. Error: %w", tr.id, err)
	}
	tr.w = size_alpha*box.W + (1-size_alpha)*tr.w
	tr.h = size_alpha*box.H + (1-size_alpha)*tr.h
	tr.class_id = box.ClassId
	tr.confidence = box.Confidence
	tr.last_update = t
	tr.last_filter = t
	tr.lost_frames = 0
	tr.hits++
	return nil
}

func (tr *Track) markLost() {
	tr.lost_frames++
}

func pointToVec(x, y float64) mat.Vector {
	return mat.NewVecDense(2, []float64{x, y})
}

func vecToPoint(vec mat.Vector) (float64, float64) {
	return vec.AtVec(0), vec.AtVec(1)
}
