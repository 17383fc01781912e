package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog"

	"candiag/internal/canbus"
)

// ReceiverStats counts what the receiver did with the frames it saw.
type ReceiverStats struct {
	Accepted  uint64 `json:"accepted"`
	Discarded uint64 `json:"discarded"`
	Errors    uint64 `json:"errors"`
}

// Receiver owns the CAN controller and feeds accepted frames into a Channel.
type Receiver struct {
	ctrl canbus.Controller
	out  *Channel
	log  zerolog.Logger

	accepted  atomic.Uint64
	discarded atomic.Uint64
	errs      atomic.Uint64
}

func NewReceiver(ctrl canbus.Controller, out *Channel, log zerolog.Logger) *Receiver {
	return &Receiver{ctrl: ctrl, out: out, log: log}
}

// Run receives frames until ctx is cancelled or the controller closes.
// Decode errors are logged and skipped.
func (r *Receiver) Run(ctx context.Context) error {
	r.log.Info().Int("capacity", r.out.Cap()).Msg("bus receiver started")
	for {
		f, err := r.ctrl.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, canbus.ErrClosed) {
				return fmt.Errorf("bus receiver: %w", err)
			}
			r.errs.Add(1)
			r.log.Warn().Err(err).Msg("receive error")
			continue
		}

		cf, ok := Accept(f)
		if !ok {
			r.discarded.Add(1)
			continue
		}
		if err := r.out.Send(ctx, cf); err != nil {
			return nil
		}
		r.accepted.Add(1)
	}
}

// Stats returns a snapshot of the receive counters.
func (r *Receiver) Stats() ReceiverStats {
	return ReceiverStats{
		Accepted:  r.accepted.Load(),
		Discarded: r.discarded.Load(),
		Errors:    r.errs.Load(),
	}
}
