package session

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Robogera/detectdemo/pkg/aggregator"
	"github.com/Robogera/detectdemo/pkg/enums"
	"github.com/Robogera/detectdemo/pkg/gring"
	"github.com/Robogera/detectdemo/pkg/orchestrator"
	"github.com/Robogera/detectdemo/pkg/render"
	"github.com/google/uuid"
	"go.uber.org/multierr"
)

var (
	ERR_CLOSED = errors.New("Session closed")
)

// What the sidebar controls select
type Settings struct {
	Model         string `json:"model"`
	ConfidencePct int    `json:"confidence"`
	// Empty means stateless detection
	Tracker string `json:"tracker"`
}

type Message struct {
	Level string    `json:"level"`
	Text  string    `json:"text"`
	Time  time.Time `json:"time"`
}

// Everything that used to be process wide state of the demo,
// owned by the host and keyed by the browser cookie
type Session struct {
	id uuid.UUID

	mu          sync.Mutex
	settings    Settings
	model_error error
	running     bool
	current     enums.Source
	last_seen   time.Time
	history     *gring.Ring[Message]
	closed      bool

	Image   *orchestrator.ImageInput
	Video   *orchestrator.VideoInput
	YouTube *orchestrator.YouTubeInput
	Webcam  *orchestrator.WebcamInput
	Stream  *orchestrator.StreamInput

	orchestrators map[enums.Source]*orchestrator.Orchestrator
	camera        *aggregator.Aggregator
	quit          atomic.Bool
	display       *render.Display
	hub           *Hub
	logger        *slog.Logger
}

// Inputs a new session starts with
type Inputs struct {
	Image   *orchestrator.ImageInput
	Video   *orchestrator.VideoInput
	YouTube *orchestrator.YouTubeInput
	Webcam  *orchestrator.WebcamInput
	Stream  *orchestrator.StreamInput
}

type Options struct {
	Settings       Settings
	JPEGQuality    int
	MessageHistory int
	StatPeriod     time.Duration
}

func New(id uuid.UUID, inputs Inputs, opts Options, parent_logger *slog.Logger) *Session {
	logger := parent_logger.With("session", id.String())
	s := &Session{
		id:        id,
		settings:  opts.Settings,
		last_seen: time.Now(),
		history:   gring.NewRing[Message](opts.MessageHistory),
		Image:     inputs.Image,
		Video:     inputs.Video,
		YouTube:   inputs.YouTube,
		Webcam:    inputs.Webcam,
		Stream:    inputs.Stream,
		camera:    aggregator.New(),
		display:   render.NewDisplay(opts.JPEGQuality),
		hub:       NewHub(logger.With("coroutine", "hub")),
		logger:    logger,
	}
	s.orchestrators = map[enums.Source]*orchestrator.Orchestrator{
		enums.SourceImage:   orchestrator.New(inputs.Image, opts.StatPeriod, logger),
		enums.SourceVideo:   orchestrator.New(inputs.Video, opts.StatPeriod, logger),
		enums.SourceYouTube: orchestrator.New(inputs.YouTube, opts.StatPeriod, logger),
		enums.SourceWebcam:  orchestrator.New(inputs.Webcam, opts.StatPeriod, logger),
		enums.SourceStream:  orchestrator.New(inputs.Stream, opts.StatPeriod, logger),
	}
	return s
}

func (s *Session) Id() string                     { return s.id.String() }
func (s *Session) Display() *render.Display       { return s.display }
func (s *Session) Hub() *Hub                      { return s.hub }
func (s *Session) Camera() *aggregator.Aggregator { return s.camera }
func (s *Session) QuitFlag() *atomic.Bool         { return &s.quit }
func (s *Session) Logger() *slog.Logger           { return s.logger }

func (s *Session) Orchestrator(kind enums.Source) *orchestrator.Orchestrator {
	return s.orchestrators[kind]
}

func (s *Session) Settings() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

// model_err is the result of loading the selected model, nil clears it
func (s *Session) SetSettings(settings Settings, model_err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = settings
	s.model_error = model_err
}

func (s *Session) ModelError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.model_error
}

// Claims the session for one run, ERR_BUSY if another one is going
func (s *Session) Begin(kind enums.Source) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ERR_CLOSED
	}
	if s.running {
		return fmt.Errorf("%w: %s", orchestrator.ERR_BUSY, s.current.Value)
	}
	s.running, s.current = true, kind
	s.quit.Store(false)
	return nil
}

func (s *Session) End() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	s.last_seen = time.Now()
}

func (s *Session) Running() (enums.Source, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current, s.running
}

// Raises the quit flag if the camera is running. False means there
// is no camera run to stop
func (s *Session) Quit() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running && s.current == enums.SourceWebcam {
		s.quit.Store(true)
		return true
	}
	return false
}

// Implements orchestrator.Notifier
func (s *Session) Notify(level enums.MessageLevel, text string) {
	m := Message{Level: level.Value, Text: text, Time: time.Now()}
	s.mu.Lock()
	s.history.Push(m)
	s.mu.Unlock()
	s.logger.Debug("Message", "level", m.Level, "text", m.Text)
	s.hub.Broadcast(m)
}

// Oldest first
func (s *Session) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.Chronological()
}

func (s *Session) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last_seen = time.Now()
}

// A running session is never idle
func (s *Session) Idle(now time.Time, timeout time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.running && now.Sub(s.last_seen) > timeout
}

// Drops viewers, closes the display and removes a staged upload
// that never ran
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	s.hub.Close()
	return multierr.Combine(s.display.Close(), s.Video.Cleanup())
}
