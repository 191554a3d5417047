package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/Robogera/detectdemo/pkg/enums"
	"github.com/Robogera/detectdemo/pkg/source"
	"github.com/Robogera/detectdemo/pkg/youtube"
)

// Source specific half of a run: binding, acquisition and cleanup.
// The frame loop itself is shared
type Modality interface {
	Kind() enums.Source
	Bound() bool
	// Binds the default input, ERR_NOT_BOUND if there is none
	UseFallback() error
	// Returned source is not opened yet
	Acquire(ctx context.Context) (source.FrameSource, error)
	// Called once after every run, successful or not
	Cleanup() error
	// User facing text for a failed acquisition or open
	Explain(err error) string
}

// Uploaded image kept in memory, the default one is read from disk
type ImageInput struct {
	mu           sync.Mutex
	dir          string
	default_name string
	extensions   []string
	name         string
	data         []byte
	fallback     bool
}

func NewImageInput(dir, default_name string, extensions []string) *ImageInput {
	return &ImageInput{dir: dir, default_name: default_name, extensions: extensions}
}

func (m *ImageInput) Kind() enums.Source { return enums.SourceImage }

func (m *ImageInput) Bound() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data != nil || m.fallback
}

func (m *ImageInput) BindUpload(name string, data []byte) error {
	if err := source.CheckExtension(name, m.extensions); err != nil {
		return err
	}
	if len(data) == 0 {
		return fmt.Errorf("%w: %s is empty", ERR_NOT_BOUND, name)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.name, m.data, m.fallback = name, data, false
	return nil
}

func (m *ImageInput) UseFallback() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.name, m.data, m.fallback = m.default_name, nil, true
	return nil
}

func (m *ImageInput) Acquire(ctx context.Context) (source.FrameSource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data != nil {
		return source.ImageFromBytes(m.name, m.data), nil
	}
	if m.fallback {
		return source.ImageFromFile(filepath.Join(m.dir, m.default_name)), nil
	}
	return nil, ERR_NOT_BOUND
}

func (m *ImageInput) Cleanup() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.name, m.data, m.fallback = "", nil, false
	return nil
}

func (m *ImageInput) Explain(err error) string {
	return "Error loading image: " + err.Error()
}

// Bytes of the image a run would use right now and whether it is the default one
func (m *ImageInput) Preview() (string, []byte, bool, error) {
	m.mu.Lock()
	name, data := m.name, m.data
	m.mu.Unlock()
	if data != nil {
		return name, data, false, nil
	}
	data, err := os.ReadFile(filepath.Join(m.dir, m.default_name))
	if err != nil {
		return "", nil, true, fmt.Errorf("Can't read default image: %w", err)
	}
	return m.default_name, data, true, nil
}

// Upload staged on disk, deleted after the run unless it is the default video
type VideoInput struct {
	mu           sync.Mutex
	dir          string
	default_name string
	extensions   []string
	empty_limit  uint
	path         string
}

func NewVideoInput(dir, default_name string, extensions []string, empty_limit uint) *VideoInput {
	return &VideoInput{dir: dir, default_name: default_name, extensions: extensions, empty_limit: empty_limit}
}

func (m *VideoInput) Kind() enums.Source { return enums.SourceVideo }

func (m *VideoInput) Bound() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.path != ""
}

// Replaces a previously staged upload that never ran
func (m *VideoInput) BindUpload(name string, r io.Reader) error {
	if err := source.CheckExtension(name, m.extensions); err != nil {
		return err
	}
	path, err := source.Stage(m.dir, name, r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	previous := m.path
	m.path = path
	m.mu.Unlock()
	return source.Unstage(previous, m.default_name)
}

func (m *VideoInput) UseFallback() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.path = filepath.Join(m.dir, m.default_name)
	return nil
}

func (m *VideoInput) Path() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.path == "" {
		return filepath.Join(m.dir, m.default_name)
	}
	return m.path
}

func (m *VideoInput) Acquire(ctx context.Context) (source.FrameSource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.path == "" {
		return nil, ERR_NOT_BOUND
	}
	return source.NewFileCapture(m.path, m.empty_limit), nil
}

func (m *VideoInput) Cleanup() error {
	m.mu.Lock()
	path := m.path
	m.path = ""
	m.mu.Unlock()
	return source.Unstage(path, m.default_name)
}

func (m *VideoInput) Explain(err error) string {
	return "Error loading video: " + err.Error()
}

type Downloader interface {
	Download(ctx context.Context, video_url string) (string, error)
}

// Downloaded before the first frame is read. Downloads stay on disk and are reused
type YouTubeInput struct {
	mu          sync.Mutex
	downloader  Downloader
	default_url string
	empty_limit uint
	url         string
}

func NewYouTubeInput(downloader Downloader, default_url string, empty_limit uint) *YouTubeInput {
	return &YouTubeInput{downloader: downloader, default_url: default_url, empty_limit: empty_limit}
}

func (m *YouTubeInput) Kind() enums.Source { return enums.SourceYouTube }

func (m *YouTubeInput) Bound() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.url != ""
}

func (m *YouTubeInput) BindURL(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fmt.Errorf("%w: empty YouTube URL", ERR_NOT_BOUND)
	}
	if _, err := youtube.VideoID(raw); err != nil {
		return fmt.Errorf("%w: %w", ERR_NOT_BOUND, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.url = youtube.CleanURL(raw)
	return nil
}

func (m *YouTubeInput) UseFallback() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.url = youtube.CleanURL(m.default_url)
	return nil
}

func (m *YouTubeInput) URL() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.url
}

func (m *YouTubeInput) Acquire(ctx context.Context) (source.FrameSource, error) {
	video_url := m.URL()
	if video_url == "" {
		return nil, ERR_NOT_BOUND
	}
	path, err := m.downloader.Download(ctx, video_url)
	if err != nil {
		return nil, err
	}
	return source.NewFileCapture(path, m.empty_limit), nil
}

func (m *YouTubeInput) Cleanup() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.url = ""
	return nil
}

func (m *YouTubeInput) Explain(err error) string {
	if errors.Is(err, youtube.ERR_DOWNLOAD) {
		return "Error downloading video: " + err.Error()
	}
	return "Unable to open the downloaded video. Please check if the video format is supported."
}

// Local capture device, always ready
type WebcamInput struct {
	device      int
	empty_limit uint
}

func NewWebcamInput(device int, empty_limit uint) *WebcamInput {
	return &WebcamInput{device: device, empty_limit: empty_limit}
}

func (m *WebcamInput) Kind() enums.Source { return enums.SourceWebcam }
func (m *WebcamInput) Bound() bool        { return true }
func (m *WebcamInput) UseFallback() error { return nil }
func (m *WebcamInput) Cleanup() error     { return nil }

func (m *WebcamInput) Acquire(ctx context.Context) (source.FrameSource, error) {
	return source.NewDeviceCapture(m.device, m.empty_limit), nil
}

func (m *WebcamInput) Explain(err error) string {
	return "Error loading video: " + err.Error()
}

var stream_schemes = []string{"rtsp", "rtsps", "rtmp", "http", "https", "udp", "tcp"}

// User supplied network stream, no default, no reconnect
type StreamInput struct {
	mu          sync.Mutex
	empty_limit uint
	url         string
}

func NewStreamInput(empty_limit uint) *StreamInput {
	return &StreamInput{empty_limit: empty_limit}
}

func (m *StreamInput) Kind() enums.Source { return enums.SourceStream }

func (m *StreamInput) Bound() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.url != ""
}

func (m *StreamInput) BindURL(raw string) error {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if raw == "" || err != nil || u.Host == "" || !slices.Contains(stream_schemes, strings.ToLower(u.Scheme)) {
		return fmt.Errorf("%w: %q is not a stream URL", ERR_NOT_BOUND, raw)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.url = raw
	return nil
}

func (m *StreamInput) UseFallback() error {
	return fmt.Errorf("%w: please enter an RTSP URL", ERR_NOT_BOUND)
}

func (m *StreamInput) Acquire(ctx context.Context) (source.FrameSource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.url == "" {
		return nil, ERR_NOT_BOUND
	}
	return source.NewURLCapture(m.url, m.empty_limit), nil
}

func (m *StreamInput) Cleanup() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.url = ""
	return nil
}

func (m *StreamInput) Explain(err error) string {
	return "Error loading RTSP stream: " + err.Error()
}
