package orchestrator

import (
	"context"
	"sync/atomic"
)

// CancelSignal is a cooperative stop flag shared between a caller and a
// running pipeline. The pipeline polls it at checkpoints.
type CancelSignal struct {
	set atomic.Bool
}

// Cancel requests the run to stop at its next checkpoint.
func (c *CancelSignal) Cancel() { c.set.Store(true) }

// Cancelled reports whether Cancel was called.
func (c *CancelSignal) Cancelled() bool { return c != nil && c.set.Load() }

// checkpoint returns ErrCancelled when the signal is set or ctx is done.
func checkpoint(ctx context.Context, sig *CancelSignal) error {
	if sig.Cancelled() || ctx.Err() != nil {
		return ErrCancelled
	}
	return nil
}
