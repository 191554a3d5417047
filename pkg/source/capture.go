package source

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/Robogera/detectdemo/pkg/indexed"
	"gocv.io/x/gocv"
)

type CaptureKind int

const (
	CaptureFile CaptureKind = iota
	CaptureDevice
	CaptureURL
)

// Video file, capture device or network stream
type Capture struct {
	kind        CaptureKind
	address     string
	device      int
	empty_limit uint
	stream      *gocv.VideoCapture
	frame_id    uint64
}

func NewFileCapture(path string, empty_limit uint) *Capture {
	return &Capture{kind: CaptureFile, address: path, empty_limit: empty_limit}
}

func NewDeviceCapture(device int, empty_limit uint) *Capture {
	return &Capture{kind: CaptureDevice, address: strconv.Itoa(device), device: device, empty_limit: empty_limit}
}

func NewURLCapture(url string, empty_limit uint) *Capture {
	return &Capture{kind: CaptureURL, address: url, empty_limit: empty_limit}
}

func (s *Capture) Describe() string {
	switch s.kind {
	case CaptureFile:
		return "file " + s.address
	case CaptureDevice:
		return "device " + s.address
	default:
		return "stream " + s.address
	}
}

func (s *Capture) Open(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var stream *gocv.VideoCapture
	var err error
	switch s.kind {
	case CaptureFile:
		stream, err = gocv.VideoCaptureFile(s.address)
	case CaptureDevice:
		stream, err = gocv.VideoCaptureDevice(s.device)
	default:
		stream, err = gocv.OpenVideoCapture(s.address)
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ERR_SOURCE_UNAVAILABLE, s.Describe(), err)
	}
	if !stream.IsOpened() {
		stream.Close()
		return fmt.Errorf("%w: %s", ERR_SOURCE_UNAVAILABLE, s.Describe())
	}
	s.stream = stream
	s.frame_id = 0
	return nil
}

func (s *Capture) Read() ReadResult {
	if s.stream == nil {
		return errorResult(ERR_NOT_OPEN)
	}
	var empty uint
	for {
		// Reciever of this is responsible for closing
		img := gocv.NewMat()
		if !s.stream.Read(&img) {
			img.Close()
			if s.exhausted() {
				return endResult()
			}
			return errorResult(fmt.Errorf("%w: %s frame %d", ERR_READ, s.Describe(), s.frame_id))
		}
		if img.Empty() {
			img.Close()
			if s.exhausted() {
				return endResult()
			}
			empty++
			if empty > s.empty_limit {
				return errorResult(fmt.Errorf("%w: %s", ERR_EMPTY_FRAMES, s.Describe()))
			}
			continue
		}
		frame := indexed.NewIndexed(s.frame_id, time.Now(), img)
		s.frame_id++
		return frameResult(frame)
	}
}

// Only files can run out of frames, a failed read on a
// live source is always an error
func (s *Capture) exhausted() bool {
	if s.kind != CaptureFile {
		return false
	}
	count := s.stream.Get(gocv.VideoCaptureFrameCount)
	pos := s.stream.Get(gocv.VideoCapturePosFrames)
	return isExhausted(pos, count)
}

func isExhausted(pos, count float64) bool {
	return count <= 0 || pos >= count-1
}

func (s *Capture) Release() error {
	if s.stream == nil {
		return nil
	}
	err := s.stream.Close()
	s.stream = nil
	return err
}
