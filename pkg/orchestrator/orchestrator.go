package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Robogera/detectdemo/pkg/aggregator"
	"github.com/Robogera/detectdemo/pkg/detection"
	"github.com/Robogera/detectdemo/pkg/enums"
	"github.com/Robogera/detectdemo/pkg/render"
	"go.uber.org/multierr"
)

const details_error = "An error occurred while processing the detection results"

type Notifier interface {
	Notify(level enums.MessageLevel, text string)
}

// Everything a single run needs from its session
type Run struct {
	// Fresh per run, carries the tracker state
	Processor Processor
	Names     func(int) string
	Renderer  render.Renderer
	Notifier  Notifier
	// Session scoped collection of a resumable source,
	// ignored for the others
	Aggregator *aggregator.Aggregator
	// Cleared by whoever claims the run, never by Detect
	Quit *atomic.Bool
	// Called with every summary shown to the user
	OnSummary func(kind enums.Source, names []string)
}

// Drives one source kind through Idle -> Ready -> Running -> Done
type Orchestrator struct {
	mu          sync.Mutex
	modality    Modality
	policy      Policy
	state       State
	stat_period time.Duration
	logger      *slog.Logger
}

func New(modality Modality, stat_period time.Duration, parent_logger *slog.Logger) *Orchestrator {
	o := &Orchestrator{
		modality:    modality,
		policy:      Policies[modality.Kind()],
		stat_period: stat_period,
		logger:      parent_logger.With("source", modality.Kind().Value),
	}
	if modality.Bound() {
		o.state = Ready
	}
	return o
}

func (o *Orchestrator) Kind() enums.Source { return o.modality.Kind() }
func (o *Orchestrator) Policy() Policy     { return o.policy }
func (o *Orchestrator) Modality() Modality { return o.modality }

func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Runs bind against the modality unless a run is in progress
func (o *Orchestrator) Bind(bind func() error) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state == Running {
		return ERR_BUSY
	}
	if err := bind(); err != nil {
		return err
	}
	if o.modality.Bound() {
		o.state = Ready
	}
	return nil
}

// Takes the orchestrator into Running, binding the fallback if needed
func (o *Orchestrator) begin() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state == Running {
		return ERR_BUSY
	}
	if !o.modality.Bound() {
		if !o.policy.Fallback {
			if err := o.modality.UseFallback(); err != nil {
				return err
			}
			return ERR_NOT_BOUND
		}
		if err := o.modality.UseFallback(); err != nil {
			return err
		}
		o.logger.Debug("Using default input")
	}
	o.state = Running
	return nil
}

func (o *Orchestrator) finish() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.state = Done
	if err := o.modality.Cleanup(); err != nil {
		o.logger.Warn("Cleanup failed", "error", err)
	}
	o.state = o.policy.After()
	if o.state == Ready && !o.modality.Bound() {
		o.state = Idle
	}
}

// Blocking. Failures after the run started are reported through
// run.Notifier and returned as well
func (o *Orchestrator) Detect(ctx context.Context, run Run) (outcome Outcome, err error) {
	if err := o.begin(); err != nil {
		return Outcome{}, err
	}
	defer o.finish()

	started := time.Now()
	o.logger.Info("Run started")

	src, err := o.modality.Acquire(ctx)
	if err != nil {
		run.Notifier.Notify(enums.MessageError, o.modality.Explain(err))
		return Outcome{}, err
	}
	if err := src.Open(ctx); err != nil {
		run.Notifier.Notify(enums.MessageError, o.modality.Explain(err))
		return Outcome{}, err
	}
	defer func() {
		if release_err := src.Release(); release_err != nil {
			o.logger.Warn("Release failed", "source", src.Describe(), "error", release_err)
			err = multierr.Append(err, release_err)
		}
	}()

	agg := run.Aggregator
	if agg == nil || !o.policy.Resumable {
		agg = aggregator.New()
	}
	// the flag is cleared when the run is claimed, a quit raised
	// while the camera opens still counts
	var quit *atomic.Bool
	if o.policy.Cancellable {
		quit = run.Quit
	}
	var last *detection.Result
	var observe func(*detection.Result)
	if o.policy.Details {
		observe = func(r *detection.Result) {
			last = &detection.Result{Boxes: append([]detection.Box(nil), r.Boxes...)}
		}
	}

	loop := &Loop{
		Source:     src,
		Processor:  run.Processor,
		Renderer:   run.Renderer,
		Recorder:   agg,
		Quit:       quit,
		Observe:    observe,
		StatPeriod: o.stat_period,
		Logger:     o.logger.With("run", started.Format(time.RFC3339)),
	}
	outcome = loop.Run(ctx)
	o.logger.Info(
		"Run finished",
		"end", outcome.End.String(), "frames", outcome.Frames,
		"time (sec)", time.Since(started).Seconds())

	switch outcome.End {
	case EndExhausted, EndCancelled:
	case EndReadError:
		run.Notifier.Notify(enums.MessageWarning, fmt.Sprintf("Stream interrupted after %d frames: %s", outcome.Frames, outcome.Err))
	case EndContext:
		return outcome, outcome.Err
	default:
		run.Notifier.Notify(enums.MessageError, "Error processing video: "+outcome.Err.Error())
		return outcome, outcome.Err
	}

	if o.policy.Details && last != nil {
		run.Notifier.Notify(FormatDetails(last.Boxes))
	}

	if o.policy.Resumable {
		// the camera only reports on quit, anything else keeps collecting
		if outcome.End == EndCancelled {
			Summarize(agg, run, o.modality.Kind())
		}
		return outcome, outcome.Err
	}
	Summarize(agg, run, o.modality.Kind())
	return outcome, outcome.Err
}

// Reports the collection to the user. A resumable collection starts over
func Summarize(agg *aggregator.Aggregator, run Run, kind enums.Source) {
	names := agg.Take(run.Names, Policies[kind].Resumable)
	level := enums.MessageSuccess
	if len(names) == 0 {
		level = enums.MessageInfo
	}
	run.Notifier.Notify(level, aggregator.Format(names))
	if run.OnSummary != nil {
		run.OnSummary(kind, names)
	}
}

type boxDetails struct {
	Class      int        `json:"class"`
	Confidence float32    `json:"confidence"`
	XYWH       [4]float64 `json:"xywh"`
}

// Detection results section of an image run
func FormatDetails(boxes []detection.Box) (enums.MessageLevel, string) {
	if len(boxes) == 0 {
		return enums.MessageDetails, aggregator.NoObjects
	}
	details := make([]boxDetails, len(boxes))
	for i, b := range boxes {
		details[i] = boxDetails{Class: b.ClassId, Confidence: b.Confidence, XYWH: b.XYWH()}
	}
	data, err := json.Marshal(details)
	if err != nil {
		return enums.MessageInfo, details_error
	}
	return enums.MessageDetails, string(data)
}

func IsRefusal(err error) bool {
	return errors.Is(err, ERR_BUSY) || errors.Is(err, ERR_NOT_BOUND)
}
