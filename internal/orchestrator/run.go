package orchestrator

import (
	"context"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// DefaultKeepalive is the idle interval after which Relay emits a keepalive.
const DefaultKeepalive = 30 * time.Second

// Run is a handle on a pipeline run executing in the background.
type Run struct {
	// ID identifies the run for cancellation requests.
	ID string

	signal   *CancelSignal
	abort    context.CancelFunc
	reporter *ProgressReporter
	done     chan struct{}
	result   *PipelineResult
}

// Start runs req on o in a new goroutine and returns immediately. Progress is
// buffered in a reporter of the given size; the event channel is closed when
// the run ends.
func Start(ctx context.Context, o Orchestrator, req RunRequest, buffer int) *Run {
	ctx, abort := context.WithCancel(ctx)
	if req.Cancel == nil {
		req.Cancel = &CancelSignal{}
	}
	r := &Run{
		ID:       uuid.NewString(),
		signal:   req.Cancel,
		abort:    abort,
		reporter: NewProgressReporter(buffer),
		done:     make(chan struct{}),
	}
	go func() {
		defer close(r.done)
		defer r.reporter.Close()
		r.result = o.Run(ctx, req, r.reporter)
	}()
	return r
}

// Events returns the run's progress stream.
func (r *Run) Events() <-chan ProgressEvent { return r.reporter.Subscribe() }

// Cancel asks the run to stop at its next checkpoint.
func (r *Run) Cancel() { r.signal.Cancel() }

// Abort cancels the run's context, interrupting in-flight stream reads.
func (r *Run) Abort() {
	r.signal.Cancel()
	r.abort()
}

// Detach tells the run nobody is reading its events any more.
func (r *Run) Detach() { r.reporter.Detach() }

// Done is closed when the run has finished.
func (r *Run) Done() <-chan struct{} { return r.done }

// Wait blocks until the run finishes and returns its result.
func (r *Run) Wait() *PipelineResult {
	<-r.done
	r.abort()
	return r.result
}

// Stream relays the run's events to fn until the run ends, then returns its
// result. If fn fails the run is aborted and the error returned alongside the
// result.
func (r *Run) Stream(ctx context.Context, keepalive time.Duration, fn func(Frame) error) (*PipelineResult, error) {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer r.Detach()
		if err := Relay(gctx, r.Events(), keepalive, fn); err != nil {
			r.Abort()
			return err
		}
		return nil
	})
	g.Go(func() error {
		select {
		case <-r.done:
		case <-gctx.Done():
			r.Abort()
			<-r.done
		}
		return nil
	})
	err := g.Wait()
	return r.Wait(), err
}

// Frame is one item delivered by Relay: an event or a keepalive.
type Frame struct {
	Event     *ProgressEvent
	Keepalive bool
}

// Relay forwards events to fn in order until the channel is closed. When no
// event arrives for keepalive it calls fn with a keepalive frame. It never
// reads from events after observing the close.
func Relay(ctx context.Context, events <-chan ProgressEvent, keepalive time.Duration, fn func(Frame) error) error {
	if keepalive <= 0 {
		keepalive = DefaultKeepalive
	}
	timer := time.NewTimer(keepalive)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if err := fn(Frame{Event: &ev}); err != nil {
				return err
			}

		case <-timer.C:
			if err := fn(Frame{Keepalive: true}); err != nil {
				return err
			}
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(keepalive)
	}
}
