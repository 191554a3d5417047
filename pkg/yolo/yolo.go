package yolo

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"slices"
	"sync"

	"github.com/Robogera/detectdemo/pkg/config"
	"github.com/Robogera/detectdemo/pkg/detection"
	"github.com/Robogera/detectdemo/pkg/enums"
	gocvcommon "github.com/Robogera/detectdemo/pkg/gocv-common"
	"gocv.io/x/gocv"
)

var (
	ERR_BAD_MODEL = errors.New("Can't load model")
)

// YOLO network with its class names. Safe for use from
// multiple goroutines, inference is serialized
type Model struct {
	name               string
	net                gocv.Net
	output_layer_names []string
	params             gocv.ImageToBlobParams
	transpose          bool
	nms_threshold      float32
	names              Names
	mu                 sync.Mutex
}

func Load(cfg config.ModelConfig, parent_logger *slog.Logger) (*Model, error) {
	logger := parent_logger.With("model", cfg.Name)

	format := enums.ModelFormats.Parse(cfg.Format)
	if format == nil {
		return nil, fmt.Errorf("%w %s: unknown format %q", ERR_BAD_MODEL, cfg.Name, cfg.Format)
	}

	// opencv aborts the whole process on a missing file
	for _, path := range []string{cfg.Path, cfg.ConfigPath} {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("%w %s: %w", ERR_BAD_MODEL, cfg.Name, err)
		}
	}

	var net gocv.Net
	switch *format {
	case enums.ModelCaffe:
		net = gocv.ReadNetFromCaffe(cfg.ConfigPath, cfg.Path)
	case enums.ModelONNX:
		net = gocv.ReadNetFromONNX(cfg.Path)
	case enums.ModelOpenVINO:
		net = gocv.ReadNet(cfg.Path, cfg.ConfigPath)
	}
	if net.Empty() {
		net.Close()
		return nil, fmt.Errorf("%w %s: can't read %s", ERR_BAD_MODEL, cfg.Name, cfg.Path)
	}

	output_layer_names := gocvcommon.GetOutputLayerNames(&net)
	if len(output_layer_names) == 0 {
		net.Close()
		return nil, fmt.Errorf("%w %s: no output layers", ERR_BAD_MODEL, cfg.Name)
	}
	logger.Debug("Model info", "path", cfg.Path, "output layers", output_layer_names)

	if err := gocvcommon.SetPreferable(&net, cfg.Backend, cfg.Target); err != nil {
		net.Close()
		return nil, fmt.Errorf("%w %s: %w", ERR_BAD_MODEL, cfg.Name, err)
	}

	names := Names{}
	if cfg.NamesPath != "" {
		var err error
		names, err = LoadNames(cfg.NamesPath)
		if err != nil {
			net.Close()
			return nil, fmt.Errorf("%w %s: %w", ERR_BAD_MODEL, cfg.Name, err)
		}
	}

	size := int(cfg.InputSize)
	if size == 0 {
		size = 640
	}

	logger.Info("Model loaded", "classes", len(names), "backend", cfg.Backend, "target", cfg.Target)

	return &Model{
		name:               cfg.Name,
		net:                net,
		output_layer_names: output_layer_names,
		params: gocv.NewImageToBlobParams(
			1.0/255.0,
			image.Pt(size, size),
			gocv.NewScalar(0, 0, 0, 0),
			true,
			gocv.MatTypeCV32F,
			gocv.DataLayoutNCHW,
			gocv.PaddingModeLetterbox,
			gocv.NewScalar(114, 114, 114, 0),
		),
		transpose:     cfg.Transpose,
		nms_threshold: cfg.NMSThreshold,
		names:         names,
	}, nil
}

func (m *Model) Name(class_id int) string {
	return m.names.Get(class_id)
}

func (m *Model) Variant() string { return m.name }

func (m *Model) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.net.Close()
}

// Boxes come back in img coordinates
func (m *Model) Detect(img gocv.Mat, confidence float32) ([]detection.Box, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	blob := gocv.BlobFromImageWithParams(img, m.params)
	defer blob.Close()

	m.net.SetInput(blob, "")

	outputs := m.net.ForwardLayers(m.output_layer_names)
	defer func() {
		for _, output := range outputs {
			output.Close()
		}
	}()
	if len(outputs) == 0 {
		return nil, fmt.Errorf("Model %s returned no outputs", m.name)
	}

	// YOLO-models authored by ultralythics are transposed
	// (1, 4+classes, anchors) -> (1, anchors, 4+classes)
	if m.transpose {
		gocv.TransposeND(outputs[0], []int{0, 2, 1}, &outputs[0])
	}

	rects, confidences, class_ids := m.candidates(outputs[0], confidence)
	if len(rects) == 0 {
		return []detection.Box{}, nil
	}

	kept := classAwareNMS(rects, confidences, class_ids, confidence, m.nms_threshold)

	nms_rects := make([]image.Rectangle, len(kept))
	for i, j := range kept {
		nms_rects[i] = rects[j]
	}
	nms_rects = m.params.BlobRectsToImageRects(nms_rects, image.Pt(img.Cols(), img.Rows()))

	boxes := make([]detection.Box, len(kept))
	for i, j := range kept {
		boxes[i] = detection.BoxFromRect(nms_rects[i], class_ids[j], confidences[j])
	}
	return boxes, nil
}

// Every row whose best class scores at least confidence, in blob coordinates
func (m *Model) candidates(output gocv.Mat, confidence float32) ([]image.Rectangle, []float32, []int) {
	output_2d := output.Reshape(1, output.Size()[1])
	defer output_2d.Close()
	cols := output_2d.Cols()

	var rects []image.Rectangle
	var confidences []float32
	var class_ids []int
	for i := 0; i < output_2d.Rows(); i++ {
		func() {
			row := output_2d.RowRange(i, i+1)
			defer row.Close()
			// values at indexes 4:cols are the confidence scores of the
			// object classes
			scores := row.ColRange(4, cols)
			defer scores.Close()
			_, score, _, class_id := gocv.MinMaxLoc(scores)
			if score < confidence {
				return
			}
			// elements 0 and 1 correspond to the bounding box center coordinates
			x, y := int(row.GetFloatAt(0, 0)), int(row.GetFloatAt(0, 1))
			// and elements 2 and 3 are the box dimensions
			half_w, half_h := int(row.GetFloatAt(0, 2)/2.0), int(row.GetFloatAt(0, 3)/2.0)
			rects = append(rects, image.Rect(x-half_w, y-half_h, x+half_w, y+half_h))
			confidences = append(confidences, score)
			class_ids = append(class_ids, class_id.X)
		}()
	}
	return rects, confidences, class_ids
}

// Runs NMS separately for every class so overlapping objects
// of different classes both survive. Returns indices into rects
func classAwareNMS(rects []image.Rectangle, confidences []float32, class_ids []int, score_threshold, nms_threshold float32) []int {
	groups := make(map[int][]int)
	for i, class_id := range class_ids {
		groups[class_id] = append(groups[class_id], i)
	}
	kept := make([]int, 0, len(rects))
	for _, members := range groups {
		group_rects := make([]image.Rectangle, len(members))
		group_confidences := make([]float32, len(members))
		for i, j := range members {
			group_rects[i] = rects[j]
			group_confidences[i] = confidences[j]
		}
		for _, i := range gocv.NMSBoxes(group_rects, group_confidences, score_threshold, nms_threshold) {
			kept = append(kept, members[i])
		}
	}
	slices.Sort(kept)
	return kept
}
