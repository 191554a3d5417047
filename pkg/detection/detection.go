package detection

import (
	"errors"
	"fmt"
	"image"
	"math"
	"time"

	"gocv.io/x/gocv"
)

var (
	ERR_CONFIDENCE = errors.New("Confidence out of range")
)

const (
	MinConfidencePercent = 25
	MaxConfidencePercent = 100
)

// One predicted object. Coordinates are the box center and
// dimensions in pixels of the frame the model saw
type Box struct {
	X, Y, W, H float64
	ClassId    int
	Confidence float32
	// 0 when no tracker is attached
	TrackId int
}

func (b Box) Rect() image.Rectangle {
	return image.Rect(
		int(math.Round(b.X-b.W/2)), int(math.Round(b.Y-b.H/2)),
		int(math.Round(b.X+b.W/2)), int(math.Round(b.Y+b.H/2)))
}

func BoxFromRect(r image.Rectangle, class_id int, confidence float32) Box {
	return Box{
		X:          float64(r.Min.X+r.Max.X) / 2,
		Y:          float64(r.Min.Y+r.Max.Y) / 2,
		W:          float64(r.Dx()),
		H:          float64(r.Dy()),
		ClassId:    class_id,
		Confidence: confidence,
	}
}

// Exported form shown in the image details section
func (b Box) XYWH() [4]float64 {
	return [4]float64{b.X, b.Y, b.W, b.H}
}

type Model interface {
	Detect(img gocv.Mat, confidence float32) ([]Box, error)
	Name(class_id int) string
}

type Tracker interface {
	Update(boxes []Box, t time.Time) []Box
}

// Output of one processed frame.
// Plotted is owned by the receiver of Result
type Result struct {
	Boxes   []Box
	Plotted gocv.Mat
}

func (r *Result) ClassIds() []int {
	ids := make([]int, len(r.Boxes))
	for i, b := range r.Boxes {
		ids[i] = b.ClassId
	}
	return ids
}

func (r *Result) Close() error {
	return r.Plotted.Close()
}

// Integer percent from the ui into a model threshold
func ConfidenceFromPercent(pct int) (float32, error) {
	if pct < MinConfidencePercent || pct > MaxConfidencePercent {
		return 0, fmt.Errorf("%w: %d not in [%d,%d]", ERR_CONFIDENCE, pct, MinConfidencePercent, MaxConfidencePercent)
	}
	return float32(pct) / 100, nil
}

// 16:9 frame of the given width, aspect ratio of
// the input is not preserved
func CanonicalSize(width int) image.Point {
	return image.Pt(width, int(math.Round(float64(width)*9/16)))
}

// Drops every box scoring under threshold. Reuses the backing array
func KeepConfident(boxes []Box, threshold float32) []Box {
	kept := boxes[:0]
	for _, b := range boxes {
		if b.Confidence >= threshold {
			kept = append(kept, b)
		}
	}
	return kept
}
