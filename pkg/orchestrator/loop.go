package orchestrator

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/Robogera/detectdemo/pkg/detection"
	"github.com/Robogera/detectdemo/pkg/gsma"
	"github.com/Robogera/detectdemo/pkg/render"
	"github.com/Robogera/detectdemo/pkg/source"
	"gocv.io/x/gocv"
)

type End int

const (
	// Source ran out of frames
	EndExhausted End = iota
	// Quit flag seen between frames
	EndCancelled
	// Context cancelled, server is going down or the session was reaped
	EndContext
	EndReadError
	EndProcessError
	EndRenderError
)

func (e End) String() string {
	return [...]string{"exhausted", "cancelled", "context", "read error", "process error", "render error"}[e]
}

type Outcome struct {
	Frames uint64
	End    End
	Err    error
}

type Processor interface {
	Process(frame gocv.Mat, t time.Time) (*detection.Result, error)
}

type Recorder interface {
	Record(class_ids ...int)
}

// One run over an opened source: read -> detect -> render -> record,
// strictly one frame at a time
type Loop struct {
	Source    source.FrameSource
	Processor Processor
	Renderer  render.Renderer
	Recorder  Recorder
	// nil when the source can't be cancelled
	Quit *atomic.Bool
	// Sees every result before it is closed
	Observe    func(*detection.Result)
	StatPeriod time.Duration
	Logger     *slog.Logger
}

func (l *Loop) Run(ctx context.Context) Outcome {
	var frames, frames_since_last_tick uint64
	inference_ms, _ := gsma.NewSMA[float64](30)
	last_tick := time.Now()

	for {
		if l.Quit != nil && l.Quit.Load() {
			l.Logger.Info("Quit requested", "frames", frames)
			return Outcome{Frames: frames, End: EndCancelled}
		}
		select {
		case <-ctx.Done():
			l.Logger.Info("Cancelled by context", "frames", frames)
			return Outcome{Frames: frames, End: EndContext, Err: ctx.Err()}
		default:
		}

		res := l.Source.Read()
		switch res.Kind {
		case source.EndOfStream:
			return Outcome{Frames: frames, End: EndExhausted}
		case source.ReadError:
			l.Logger.Warn("Read failed", "source", l.Source.Describe(), "frames", frames, "error", res.Err)
			return Outcome{Frames: frames, End: EndReadError, Err: res.Err}
		}

		frame := res.Frame.Value()
		inference_start := time.Now()
		result, err := l.Processor.Process(frame, res.Frame.Time())
		frame.Close()
		if err != nil {
			l.Logger.Error("Processing failed", "frame", res.Frame.Id(), "error", err)
			return Outcome{Frames: frames, End: EndProcessError, Err: err}
		}
		inference_ms.Recalc(float64(time.Since(inference_start).Microseconds()) / 1000)

		err = l.Renderer.Show(result.Plotted)
		if err == nil {
			l.Recorder.Record(result.ClassIds()...)
			if l.Observe != nil {
				l.Observe(result)
			}
		}
		result.Close()
		if err != nil {
			l.Logger.Error("Can't show frame", "frame", res.Frame.Id(), "error", err)
			return Outcome{Frames: frames, End: EndRenderError, Err: err}
		}
		frames++
		frames_since_last_tick++

		if l.StatPeriod > 0 {
			if since := time.Since(last_tick); since >= l.StatPeriod {
				l.Logger.Info(
					"Stats",
					"frames processed", frames,
					"frames per second", float64(frames_since_last_tick)/since.Seconds(),
					"inference (ms)", inference_ms.Show())
				frames_since_last_tick = 0
				last_tick = time.Now()
			}
		}
	}
}
