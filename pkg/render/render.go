package render

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/hybridgroup/mjpeg"
	"gocv.io/x/gocv"
)

var (
	ERR_DISPLAY_CLOSED = errors.New("Display closed")
)

// EOI marker, never reaches a viewer
var final_frame = []byte{0xFF, 0xD9}

type Renderer interface {
	Show(img gocv.Mat) error
}

// Single display slot of a session, every shown frame replaces
// the previous one for all connected viewers
type Display struct {
	mu      sync.Mutex
	stream  *mjpeg.Stream
	quality int
	closed  bool
	shown   uint64
	viewers int
}

func NewDisplay(quality int) *Display {
	if quality <= 0 || quality > 100 {
		quality = 90
	}
	return &Display{
		stream:  mjpeg.NewStream(),
		quality: quality,
	}
}

func (d *Display) Show(img gocv.Mat) error {
	if d.isClosed() {
		return ERR_DISPLAY_CLOSED
	}
	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, img, []int{int(gocv.IMWriteJpegQuality), d.quality})
	if err != nil {
		return err
	}
	defer buf.Close()
	data := make([]byte, buf.Len())
	copy(data, buf.GetBytes())
	return d.ShowJPEG(data)
}

// data must not be modified after the call
func (d *Display) ShowJPEG(data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ERR_DISPLAY_CLOSED
	}
	d.shown++
	d.stream.UpdateJPEG(data)
	return nil
}

func (d *Display) Shown() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.shown
}

// Ends every streaming response. A viewer only notices the close on
// its next frame and the stream drops frames for viewers between
// reads, so frames keep coming until the last one has left
func (d *Display) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	if d.viewers > 0 {
		go d.drain()
	}
	return nil
}

func (d *Display) drain() {
	tick := time.NewTicker(d.stream.FrameInterval / 4)
	defer tick.Stop()
	for range tick.C {
		d.mu.Lock()
		left := d.viewers
		d.mu.Unlock()
		if left == 0 {
			return
		}
		d.stream.UpdateJPEG(final_frame)
	}
}

func (d *Display) isClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

func (d *Display) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		http.Error(w, ERR_DISPLAY_CLOSED.Error(), http.StatusGone)
		return
	}
	d.viewers++
	d.mu.Unlock()
	defer func() {
		d.mu.Lock()
		d.viewers--
		d.mu.Unlock()
	}()
	d.stream.ServeHTTP(viewer{ResponseWriter: w, display: d}, r)
}

// Fails every write once the display is closed, which is what
// ends the stream's serving loop
type viewer struct {
	http.ResponseWriter
	display *Display
}

func (v viewer) Write(p []byte) (int, error) {
	if v.display.isClosed() {
		return 0, ERR_DISPLAY_CLOSED
	}
	n, err := v.ResponseWriter.Write(p)
	if f, ok := v.ResponseWriter.(http.Flusher); ok && err == nil {
		f.Flush()
	}
	return n, err
}
