package source

import (
	"context"
	"errors"

	"github.com/Robogera/detectdemo/pkg/indexed"
	"gocv.io/x/gocv"
)

var (
	ERR_SOURCE_UNAVAILABLE = errors.New("Source unavailable")
	ERR_READ               = errors.New("Can't read from stream")
	ERR_EMPTY_FRAMES       = errors.New("Too many empty frames")
	ERR_NOT_OPEN           = errors.New("Source is not open")
)

type ReadKind int

const (
	Frame ReadKind = iota
	EndOfStream
	ReadError
)

func (k ReadKind) String() string {
	switch k {
	case Frame:
		return "frame"
	case EndOfStream:
		return "end of stream"
	default:
		return "read error"
	}
}

// Outcome of one read. Frame is only set for Kind == Frame
// and is owned by the caller, Err only for Kind == ReadError
type ReadResult struct {
	Kind  ReadKind
	Frame indexed.Indexed[gocv.Mat]
	Err   error
}

func frameResult(frame indexed.Indexed[gocv.Mat]) ReadResult {
	return ReadResult{Kind: Frame, Frame: frame}
}

func endResult() ReadResult {
	return ReadResult{Kind: EndOfStream}
}

func errorResult(err error) ReadResult {
	return ReadResult{Kind: ReadError, Err: err}
}

type FrameSource interface {
	// Fails with ERR_SOURCE_UNAVAILABLE
	Open(ctx context.Context) error
	Read() ReadResult
	// Safe to call more than once and on a source that never opened
	Release() error
	Describe() string
}
