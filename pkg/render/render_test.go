package render

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"gocv.io/x/gocv"
)

func viewers(d *Display) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.viewers
}

func TestShow(t *testing.T) {
	d := NewDisplay(80)
	if d.Shown() != 0 {
		t.Fatalf("Fresh display has a frame")
	}
	img := gocv.NewMatWithSize(405, 720, gocv.MatTypeCV8UC3)
	defer img.Close()
	for range 3 {
		if err := d.Show(img); err != nil {
			t.Fatalf("Show: %s", err)
		}
	}
	if d.Shown() != 3 {
		t.Fatalf("Shown: %d", d.Shown())
	}
}

func TestClosed(t *testing.T) {
	d := NewDisplay(0)
	d.Close()
	img := gocv.NewMatWithSize(10, 10, gocv.MatTypeCV8UC3)
	defer img.Close()
	if err := d.Show(img); !errors.Is(err, ERR_DISPLAY_CLOSED) {
		t.Fatalf("Expected ERR_DISPLAY_CLOSED, got %v", err)
	}
	if err := d.ShowJPEG([]byte{0xFF, 0xD8}); !errors.Is(err, ERR_DISPLAY_CLOSED) {
		t.Fatalf("Expected ERR_DISPLAY_CLOSED, got %v", err)
	}
	rec := httptest.NewRecorder()
	d.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stream", nil))
	if rec.Code != http.StatusGone {
		t.Fatalf("Closed display served with %d", rec.Code)
	}
}

func TestCloseEndsStreaming(t *testing.T) {
	d := NewDisplay(80)
	server := httptest.NewServer(d)
	defer server.Close()

	img := gocv.NewMatWithSize(120, 160, gocv.MatTypeCV8UC3)
	defer img.Close()

	done := make(chan error, 1)
	go func() {
		resp, err := http.Get(server.URL)
		if err != nil {
			done <- err
			return
		}
		defer resp.Body.Close()
		_, err = io.ReadAll(resp.Body)
		done <- err
	}()

	deadline := time.Now().Add(5 * time.Second)
	for viewers(d) == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("Viewer never connected")
		}
		time.Sleep(10 * time.Millisecond)
	}
	// a viewer already receiving frames
	for range 3 {
		if err := d.Show(img); err != nil {
			t.Fatalf("Show: %s", err)
		}
		time.Sleep(60 * time.Millisecond)
	}

	d.Close()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Stream ended with %s", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Viewer still streaming after Close")
	}
	if n := viewers(d); n != 0 {
		t.Fatalf("%d viewers left", n)
	}
}
