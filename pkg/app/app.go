package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/Robogera/detectdemo/pkg/config"
	"github.com/Robogera/detectdemo/pkg/detection"
	"github.com/Robogera/detectdemo/pkg/enums"
	"github.com/Robogera/detectdemo/pkg/orchestrator"
	"github.com/Robogera/detectdemo/pkg/session"
	"github.com/Robogera/detectdemo/pkg/synapse"
	"github.com/Robogera/detectdemo/pkg/tracker"
	"github.com/Robogera/detectdemo/pkg/yolo"
	"github.com/google/uuid"
	"go.uber.org/multierr"
)

var (
	ERR_SETTINGS = errors.New("Invalid settings")
	ERR_NO_MODEL = errors.New("No model loaded")
)

const sender = "detectdemo"

type Models interface {
	Variants() []string
	Get(name string) (detection.Model, error)
}

// Host of every session. The detector is exclusive: one run at a
// time across all sessions
type App struct {
	cfg        *config.ConfigFile
	models     Models
	presets    map[string]tracker.Preset
	sessions   *session.Store
	downloader orchestrator.Downloader
	publisher  synapse.Publisher
	runner     sync.Mutex
	wg         sync.WaitGroup
	logger     *slog.Logger
}

func New(
	cfg *config.ConfigFile,
	models Models,
	presets map[string]tracker.Preset,
	downloader orchestrator.Downloader,
	publisher synapse.Publisher,
	parent_logger *slog.Logger,
) *App {
	a := &App{
		cfg:        cfg,
		models:     models,
		presets:    presets,
		downloader: downloader,
		publisher:  publisher,
		logger:     parent_logger.With("coroutine", "app"),
	}
	a.sessions = session.NewStore(
		a.newSession,
		time.Duration(cfg.Session.IdleTimeoutSec)*time.Second,
		parent_logger)
	return a
}

func (a *App) newSession(id uuid.UUID) *session.Session {
	in := a.cfg.Input
	return session.New(
		id,
		session.Inputs{
			Image:   orchestrator.NewImageInput(in.ImagesDir, in.DefaultImage, in.ImageExtensions),
			Video:   orchestrator.NewVideoInput(in.VideosDir, in.DefaultVideo, in.VideoExtensions, in.EmptyFrameLimit),
			YouTube: orchestrator.NewYouTubeInput(a.downloader, in.DefaultYouTubeURL, in.EmptyFrameLimit),
			Webcam:  orchestrator.NewWebcamInput(in.WebcamDevice, in.EmptyFrameLimit),
			Stream:  orchestrator.NewStreamInput(in.EmptyFrameLimit),
		},
		session.Options{
			Settings: session.Settings{
				Model:         a.cfg.Detector.DefaultModel,
				ConfidencePct: int(a.cfg.Detector.DefaultConfidence),
				Tracker:       a.cfg.Tracker.DefaultPreset,
			},
			JPEGQuality:    a.cfg.Detector.JPEGQuality,
			MessageHistory: int(a.cfg.Session.MessageHistory),
			StatPeriod:     time.Duration(a.cfg.Logging.StatPeriodSec) * time.Second,
		},
		a.logger)
}

func (a *App) Session(id string) (*session.Session, bool) { return a.sessions.Get(id) }
func (a *App) NewSession() *session.Session               { return a.sessions.Create() }

// Returns the ids of the reaped sessions
func (a *App) Reap(now time.Time) []string { return a.sessions.Reap(now) }

// Validates and stores the sidebar selection. A model that fails to
// load is remembered on the session and refuses every detect
func (a *App) Configure(s *session.Session, settings session.Settings) error {
	d := a.cfg.Detector
	if settings.ConfidencePct < int(d.MinConfidence) || settings.ConfidencePct > int(d.MaxConfidence) {
		return fmt.Errorf("%w: confidence %d is outside [%d,%d]", ERR_SETTINGS, settings.ConfidencePct, d.MinConfidence, d.MaxConfidence)
	}
	if settings.Tracker != "" {
		if _, ok := a.presets[settings.Tracker]; !ok {
			return fmt.Errorf("%w: unknown tracker %q", ERR_SETTINGS, settings.Tracker)
		}
	}
	if !slices.Contains(a.models.Variants(), settings.Model) {
		return fmt.Errorf("%w: unknown model %q", ERR_SETTINGS, settings.Model)
	}
	if _, running := s.Running(); running {
		return fmt.Errorf("%w: settings are locked while detecting", orchestrator.ERR_BUSY)
	}
	_, err := a.loadModel(s, settings)
	return err
}

func (a *App) loadModel(s *session.Session, settings session.Settings) (detection.Model, error) {
	model, err := a.models.Get(settings.Model)
	s.SetSettings(settings, err)
	if err != nil {
		s.Notify(enums.MessageError, "Unable to load model. Check the specified path: "+err.Error())
		return nil, fmt.Errorf("%w: %w", ERR_NO_MODEL, err)
	}
	return model, nil
}

func (a *App) BindImage(s *session.Session, name string, data []byte) error {
	return s.Orchestrator(enums.SourceImage).Bind(func() error {
		return s.Image.BindUpload(name, data)
	})
}

func (a *App) BindVideo(s *session.Session, name string, r io.Reader) error {
	return s.Orchestrator(enums.SourceVideo).Bind(func() error {
		return s.Video.BindUpload(name, r)
	})
}

func (a *App) BindYouTube(s *session.Session, video_url string) error {
	return s.Orchestrator(enums.SourceYouTube).Bind(func() error {
		return s.YouTube.BindURL(video_url)
	})
}

func (a *App) BindStream(s *session.Session, stream_url string) error {
	return s.Orchestrator(enums.SourceStream).Bind(func() error {
		return s.Stream.BindURL(stream_url)
	})
}

// Starts a run in the background and returns once it is accepted.
// ctx bounds the run, so it should be the server's and not the request's
func (a *App) Detect(ctx context.Context, s *session.Session, kind enums.Source) error {
	settings := s.Settings()
	if err := s.ModelError(); err != nil {
		return fmt.Errorf("%w: %w", ERR_NO_MODEL, err)
	}
	confidence, err := detection.ConfidenceFromPercent(settings.ConfidencePct)
	if err != nil {
		return fmt.Errorf("%w: %w", ERR_SETTINGS, err)
	}
	model, err := a.loadModel(s, settings)
	if err != nil {
		return err
	}
	orch := s.Orchestrator(kind)
	if orch == nil {
		return fmt.Errorf("%w: unknown source %q", ERR_SETTINGS, kind.Value)
	}

	if !a.runner.TryLock() {
		return fmt.Errorf("%w: the detector is serving another session", orchestrator.ERR_BUSY)
	}
	if err := s.Begin(kind); err != nil {
		a.runner.Unlock()
		return err
	}

	// nil interface, not a nil *Tracker
	var trk detection.Tracker
	if settings.Tracker != "" {
		trk = tracker.New(a.presets[settings.Tracker], s.Logger())
	}
	adapter := detection.NewAdapter(model, confidence, trk, int(a.cfg.Detector.CanonicalWidth))
	run := a.run(s, adapter, model, settings.Model)

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer a.runner.Unlock()
		defer s.End()
		outcome, err := orch.Detect(ctx, run)
		switch {
		case orchestrator.IsRefusal(err):
			s.Notify(enums.MessageWarning, err.Error())
		case err != nil:
			s.Logger().Warn("Run failed", "source", kind.Value, "frames", outcome.Frames, "error", err)
		}
	}()
	return nil
}

func (a *App) run(s *session.Session, processor orchestrator.Processor, model detection.Model, variant string) orchestrator.Run {
	return orchestrator.Run{
		Processor:  processor,
		Names:      model.Name,
		Renderer:   s.Display(),
		Notifier:   s,
		Aggregator: s.Camera(),
		Quit:       s.QuitFlag(),
		OnSummary: func(kind enums.Source, names []string) {
			a.publish(s, kind, variant, names)
		},
	}
}

// Stops a running camera between frames. Without one the camera
// collection gathered so far is summarized right away
func (a *App) Quit(s *session.Session) {
	if s.Quit() {
		s.Logger().Info("Quit requested")
		return
	}
	settings := s.Settings()
	names := yolo.Names(nil).Get
	if model, err := a.models.Get(settings.Model); err == nil {
		names = model.Name
	}
	orchestrator.Summarize(s.Camera(), orchestrator.Run{
		Names:    names,
		Notifier: s,
		OnSummary: func(kind enums.Source, classes []string) {
			a.publish(s, kind, settings.Model, classes)
		},
	}, enums.SourceWebcam)
}

func (a *App) publish(s *session.Session, kind enums.Source, variant string, names []string) {
	err := a.publisher.Publish(context.Background(), &synapse.Command{
		Sender:    sender,
		Type:      "summary",
		Initiator: s.Id(),
		Subject:   kind.Value,
		Message: &synapse.Message{
			Source:  kind.Value,
			Model:   variant,
			Classes: names,
			Time:    time.Now(),
		},
	})
	if err != nil {
		s.Logger().Warn("Summary not published", "error", err)
	}
}

type Status struct {
	Session         string            `json:"session"`
	Settings        session.Settings  `json:"settings"`
	ModelError      string            `json:"model_error,omitempty"`
	Models          []string          `json:"models"`
	Trackers        []string          `json:"trackers"`
	ConfidenceRange [2]uint           `json:"confidence_range"`
	Sources         map[string]string `json:"sources"`
	Running         string            `json:"running,omitempty"`
	Frames          uint64            `json:"frames"`
	YouTubeURL      string            `json:"youtube_url"`
	StreamExample   string            `json:"stream_example"`
	Messages        []session.Message `json:"messages"`
}

func (a *App) Status(s *session.Session) Status {
	st := Status{
		Session:         s.Id(),
		Settings:        s.Settings(),
		Models:          a.models.Variants(),
		ConfidenceRange: [2]uint{a.cfg.Detector.MinConfidence, a.cfg.Detector.MaxConfidence},
		Sources:         make(map[string]string, enums.Sources.Len()),
		Frames:          s.Display().Shown(),
		YouTubeURL:      s.YouTube.URL(),
		StreamExample:   a.cfg.Input.StreamExampleURL,
		Messages:        s.Messages(),
	}
	slices.Sort(st.Models)
	if err := s.ModelError(); err != nil {
		st.ModelError = err.Error()
	}
	for _, member := range enums.TrackerPresets.Members() {
		if _, ok := a.presets[member.Value]; ok {
			st.Trackers = append(st.Trackers, member.Value)
		}
	}
	for _, kind := range enums.Sources.Members() {
		st.Sources[kind.Value] = s.Orchestrator(kind).State().String()
	}
	if kind, running := s.Running(); running {
		st.Running = kind.Value
	}
	if st.YouTubeURL == "" {
		st.YouTubeURL = a.cfg.Input.DefaultYouTubeURL
	}
	return st
}

// Blocks until every background run returned
func (a *App) Wait() {
	a.wg.Wait()
}

// Runs must already be stopped through their context
func (a *App) Close() error {
	a.wg.Wait()
	err := a.sessions.Close()
	if closer, ok := a.models.(io.Closer); ok {
		err = multierr.Append(err, closer.Close())
	}
	return err
}
