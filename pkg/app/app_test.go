package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/Robogera/detectdemo/pkg/config"
	"github.com/Robogera/detectdemo/pkg/detection"
	"github.com/Robogera/detectdemo/pkg/enums"
	"github.com/Robogera/detectdemo/pkg/orchestrator"
	"github.com/Robogera/detectdemo/pkg/session"
	"github.com/Robogera/detectdemo/pkg/synapse"
	"github.com/Robogera/detectdemo/pkg/tracker"
	"github.com/Robogera/detectdemo/pkg/yolo"
	"gocv.io/x/gocv"
)

var logger = slog.New(slog.NewTextHandler(io.Discard, nil))

type personModel struct{}

func (personModel) Detect(img gocv.Mat, confidence float32) ([]detection.Box, error) {
	return []detection.Box{{X: 100, Y: 100, W: 50, H: 80, ClassId: 0, Confidence: 0.9}}, nil
}

func (personModel) Name(class_id int) string { return "person" }

type fakeModels struct {
	broken map[string]bool
}

func (f *fakeModels) Variants() []string { return []string{"TBM_SAFETY", "BEST"} }

func (f *fakeModels) Get(name string) (detection.Model, error) {
	if f.broken[name] {
		return nil, fmt.Errorf("%w: %s.onnx not found", yolo.ERR_BAD_MODEL, name)
	}
	return personModel{}, nil
}

type recordingPublisher struct {
	mu       sync.Mutex
	commands []*synapse.Command
}

func (p *recordingPublisher) Publish(ctx context.Context, c *synapse.Command) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.commands = append(p.commands, c)
	return nil
}

func newApp(t *testing.T, models *fakeModels) (*App, *recordingPublisher) {
	cfg := config.Default()
	dir := t.TempDir()
	cfg.Input.ImagesDir = dir
	cfg.Input.VideosDir = dir
	cfg.Input.DownloadDir = dir
	presets, err := tracker.LoadPresets("../../cfg/trackers")
	if err != nil {
		t.Fatalf("Can't load presets: %s", err)
	}
	publisher := &recordingPublisher{}
	return New(cfg, models, presets, nil, publisher, logger), publisher
}

func encodedImage(t *testing.T) []byte {
	img := gocv.NewMatWithSize(120, 160, gocv.MatTypeCV8UC3)
	defer img.Close()
	buf, err := gocv.IMEncode(gocv.JPEGFileExt, img)
	if err != nil {
		t.Fatalf("Can't encode: %s", err)
	}
	defer buf.Close()
	return append([]byte(nil), buf.GetBytes()...)
}

func texts(s *session.Session) []string {
	var out []string
	for _, m := range s.Messages() {
		out = append(out, m.Level+": "+m.Text)
	}
	return out
}

func TestImageRun(t *testing.T) {
	a, publisher := newApp(t, &fakeModels{})
	s := a.NewSession()
	if err := a.BindImage(s, "upload.jpg", encodedImage(t)); err != nil {
		t.Fatalf("Can't bind: %s", err)
	}
	if err := a.Detect(context.Background(), s, enums.SourceImage); err != nil {
		t.Fatalf("Detect refused: %s", err)
	}
	a.Wait()

	got := texts(s)
	if len(got) != 2 {
		t.Fatalf("Messages: %v", got)
	}
	if !strings.HasPrefix(got[0], "details: [") || !strings.Contains(got[0], `"class":0`) {
		t.Fatalf("Details: %s", got[0])
	}
	if got[1] != "success: Detected Objects: person" {
		t.Fatalf("Summary: %s", got[1])
	}
	if s.Display().Shown() != 1 {
		t.Fatalf("Frames shown: %d", s.Display().Shown())
	}
	if len(publisher.commands) != 1 || publisher.commands[0].Message.Classes[0] != "person" {
		t.Fatalf("Published: %+v", publisher.commands)
	}
	if state := s.Orchestrator(enums.SourceImage).State(); state != orchestrator.Idle {
		t.Fatalf("Image left in %s", state)
	}
}

func TestSettings(t *testing.T) {
	a, _ := newApp(t, &fakeModels{})
	s := a.NewSession()
	for _, settings := range []session.Settings{
		{Model: "BEST", ConfidencePct: 10},
		{Model: "BEST", ConfidencePct: 101},
		{Model: "BEST", ConfidencePct: 50, Tracker: "deepsort.yaml"},
		{Model: "YOLOX", ConfidencePct: 50},
	} {
		if err := a.Configure(s, settings); !errors.Is(err, ERR_SETTINGS) {
			t.Fatalf("%+v accepted: %v", settings, err)
		}
	}
	good := session.Settings{Model: "TBM_SAFETY", ConfidencePct: 25}
	if err := a.Configure(s, good); err != nil {
		t.Fatalf("Valid settings refused: %s", err)
	}
	if s.Settings() != good {
		t.Fatalf("Settings not stored: %+v", s.Settings())
	}
}

func TestModelLoadFailure(t *testing.T) {
	a, _ := newApp(t, &fakeModels{broken: map[string]bool{"TBM_SAFETY": true}})
	s := a.NewSession()
	err := a.Configure(s, session.Settings{Model: "TBM_SAFETY", ConfidencePct: 40})
	if !errors.Is(err, ERR_NO_MODEL) || !errors.Is(err, yolo.ERR_BAD_MODEL) {
		t.Fatalf("Expected model error, got %v", err)
	}
	if err := a.Detect(context.Background(), s, enums.SourceImage); !errors.Is(err, ERR_NO_MODEL) {
		t.Fatalf("Detect with a broken model: %v", err)
	}
	got := texts(s)
	if len(got) != 1 || !strings.HasPrefix(got[0], "error: Unable to load model") {
		t.Fatalf("Messages: %v", got)
	}
	if a.Status(s).ModelError == "" {
		t.Fatalf("Status hides the model error")
	}

	// picking a working variant clears the refusal
	if err := a.Configure(s, session.Settings{Model: "BEST", ConfidencePct: 40}); err != nil {
		t.Fatalf("Can't switch model: %s", err)
	}
	if s.ModelError() != nil {
		t.Fatalf("Model error survived")
	}
}

func TestDetectorIsExclusive(t *testing.T) {
	a, _ := newApp(t, &fakeModels{})
	a.runner.Lock()
	s := a.NewSession()
	err := a.Detect(context.Background(), s, enums.SourceImage)
	a.runner.Unlock()
	if !errors.Is(err, orchestrator.ERR_BUSY) {
		t.Fatalf("Expected busy, got %v", err)
	}
	if _, running := s.Running(); running {
		t.Fatalf("Refused session marked running")
	}
}

func TestStreamWithoutURL(t *testing.T) {
	a, _ := newApp(t, &fakeModels{})
	s := a.NewSession()
	if err := a.Detect(context.Background(), s, enums.SourceStream); err != nil {
		t.Fatalf("Detect refused synchronously: %s", err)
	}
	a.Wait()
	got := texts(s)
	if len(got) != 1 || !strings.HasPrefix(got[0], "warning: ") || !strings.Contains(got[0], "RTSP URL") {
		t.Fatalf("Messages: %v", got)
	}
	if err := a.BindStream(s, "ftp://camera"); !errors.Is(err, orchestrator.ERR_NOT_BOUND) {
		t.Fatalf("Bad stream URL bound: %v", err)
	}
}

func TestQuitWithoutCamera(t *testing.T) {
	a, publisher := newApp(t, &fakeModels{})
	s := a.NewSession()
	s.Camera().Record(0, 0)
	a.Quit(s)
	got := texts(s)
	if len(got) != 1 || got[0] != "success: Detected Objects: person" {
		t.Fatalf("Messages: %v", got)
	}
	if s.Camera().Len() != 0 {
		t.Fatalf("Camera collection not reset")
	}
	a.Quit(s)
	got = texts(s)
	if got[1] != "info: No objects detected" {
		t.Fatalf("Empty summary: %v", got)
	}
	if len(publisher.commands) != 2 || publisher.commands[0].Subject != "webcam" {
		t.Fatalf("Published: %+v", publisher.commands)
	}
}

func TestStatus(t *testing.T) {
	a, _ := newApp(t, &fakeModels{})
	s := a.NewSession()
	st := a.Status(s)
	if st.Models[0] != "BEST" || len(st.Models) != 2 {
		t.Fatalf("Models: %v", st.Models)
	}
	if len(st.Trackers) != 2 {
		t.Fatalf("Trackers: %v", st.Trackers)
	}
	if st.Sources["webcam"] != "ready" || st.Sources["video"] != "idle" {
		t.Fatalf("Sources: %v", st.Sources)
	}
	if st.YouTubeURL == "" || st.StreamExample == "" {
		t.Fatalf("Defaults missing: %+v", st)
	}
	if st.ConfidenceRange != [2]uint{25, 100} {
		t.Fatalf("Range: %v", st.ConfidenceRange)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close: %s", err)
	}
}
