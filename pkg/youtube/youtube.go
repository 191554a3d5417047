package youtube

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	yt "github.com/kkdai/youtube/v2"
)

var (
	ERR_DOWNLOAD   = errors.New("Download failed")
	ERR_BAD_URL    = errors.New("Not a YouTube video URL")
	ERR_NO_FORMATS = errors.New("No muxed mp4 format available")
)

var (
	video_hosts = []string{"youtube.com", "www.youtube.com", "m.youtube.com", "youtu.be"}
	video_id    = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)
)

// Id of the video a youtube.com or youtu.be URL points at
func VideoID(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("%w: %q: %w", ERR_BAD_URL, raw, err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", fmt.Errorf("%w: %q", ERR_BAD_URL, raw)
	}
	if !slices.Contains(video_hosts, strings.ToLower(u.Hostname())) {
		return "", fmt.Errorf("%w: unexpected host %q", ERR_BAD_URL, u.Hostname())
	}
	id, err := yt.ExtractVideoID(u.String())
	if err != nil {
		return "", fmt.Errorf("%w: %q: %w", ERR_BAD_URL, raw, err)
	}
	if !video_id.MatchString(id) {
		return "", fmt.Errorf("%w: %q has no video id", ERR_BAD_URL, raw)
	}
	return id, nil
}

// Drops the start offset (t=...) so the whole video is downloaded
func CleanURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	if !q.Has("t") {
		return raw
	}
	q.Del("t")
	u.RawQuery = q.Encode()
	return u.String()
}

// Single download attempt. Errors wrapped in backoff.Permanent
// are not worth retrying
type Fetcher interface {
	Fetch(ctx context.Context, video_url, dir string) (string, error)
}

type Client struct {
	yt     yt.Client
	logger *slog.Logger
}

func NewClient(logger *slog.Logger) *Client {
	return &Client{logger: logger.With("coroutine", "youtube")}
}

// Downloads the best muxed mp4 into dir/<video id>.mp4. An already
// downloaded video is reused
func (c *Client) Fetch(ctx context.Context, video_url, dir string) (string, error) {
	id, err := VideoID(video_url)
	if err != nil {
		return "", backoff.Permanent(err)
	}
	path := filepath.Join(dir, id+".mp4")
	if info, err := os.Stat(path); err == nil && info.Size() > 0 {
		c.logger.Info("Reusing downloaded video", "id", id, "path", path)
		return path, nil
	}

	video, err := c.yt.GetVideoContext(ctx, video_url)
	if err != nil {
		return "", fmt.Errorf("Can't resolve %s: %w", id, err)
	}
	formats := video.Formats.Type("video/mp4").WithAudioChannels()
	if len(formats) == 0 {
		return "", backoff.Permanent(fmt.Errorf("%w: %s", ERR_NO_FORMATS, id))
	}
	formats.Sort()

	stream, size, err := c.yt.GetStreamContext(ctx, video, &formats[0])
	if err != nil {
		return "", fmt.Errorf("Can't open stream of %s: %w", id, err)
	}
	defer stream.Close()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", backoff.Permanent(fmt.Errorf("Can't create %s: %w", dir, err))
	}
	part := path + ".part"
	f, err := os.Create(part)
	if err != nil {
		return "", backoff.Permanent(fmt.Errorf("Can't create %s: %w", part, err))
	}
	started := time.Now()
	written, err := io.Copy(f, stream)
	if close_err := f.Close(); err == nil {
		err = close_err
	}
	if err != nil {
		os.Remove(part)
		return "", fmt.Errorf("Can't download %s: %w", id, err)
	}
	if err := os.Rename(part, path); err != nil {
		os.Remove(part)
		return "", backoff.Permanent(fmt.Errorf("Can't move %s: %w", part, err))
	}
	c.logger.Info(
		"Downloaded",
		"id", id, "title", video.Title, "quality", formats[0].Quality,
		"bytes", written, "expected", size,
		"time (sec)", time.Since(started).Seconds())
	return path, nil
}

// Resolves and downloads with a bounded number of retries
type Downloader struct {
	fetcher     Fetcher
	dir         string
	retries     uint64
	logger      *slog.Logger
	new_backoff func() backoff.BackOff
}

func NewDownloader(fetcher Fetcher, dir string, retries uint64, logger *slog.Logger) *Downloader {
	return &Downloader{
		fetcher: fetcher,
		dir:     dir,
		retries: retries,
		logger:  logger.With("coroutine", "downloader"),
		new_backoff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxElapsedTime = 0
			return b
		},
	}
}

// First attempt plus at most retries more on transient failures
func (d *Downloader) Download(ctx context.Context, video_url string) (string, error) {
	video_url = CleanURL(video_url)
	var path string
	attempts := 0
	operation := func() error {
		attempts++
		p, err := d.fetcher.Fetch(ctx, video_url, d.dir)
		if err != nil {
			d.logger.Warn("Download attempt failed", "url", video_url, "attempt", attempts, "error", err)
			return err
		}
		path = p
		return nil
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(d.new_backoff(), d.retries), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return "", fmt.Errorf("%w: %s after %d attempts: %w", ERR_DOWNLOAD, video_url, attempts, err)
	}
	return path, nil
}
