package bridge

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"candiag/internal/canbus"
)

type step struct {
	frame canbus.Frame
	err   error
}

// scriptedController replays steps, then blocks until ctx ends or reports
// closure when closeAtEnd is set.
type scriptedController struct {
	steps      []step
	closeAtEnd bool
}

func (s *scriptedController) Receive(ctx context.Context) (canbus.Frame, error) {
	if len(s.steps) == 0 {
		if s.closeAtEnd {
			return canbus.Frame{}, canbus.ErrClosed
		}
		<-ctx.Done()
		return canbus.Frame{}, canbus.ErrClosed
	}
	st := s.steps[0]
	s.steps = s.steps[1:]
	return st.frame, st.err
}

func (s *scriptedController) Close() error { return nil }

func TestAcceptRemoteFrame(t *testing.T) {
	f, ok := Accept(canbus.Frame{ID: 0x18DAF100, Extended: true, Remote: true, Len: 2, Data: [8]byte{0xAA}})
	if !ok {
		t.Fatalf("extended remote frame must be accepted")
	}
	if !f.Remote || f.Len != 2 || f.Data != [8]byte{} {
		t.Fatalf("unexpected remote frame %+v", f)
	}
	if back := f.Frame(); !back.Remote || !back.Extended || back.Len != 2 {
		t.Fatalf("remote flag lost on conversion: %+v", back)
	}

	if _, ok := Accept(canbus.Frame{ID: 0x123, Remote: true, Len: 1}); ok {
		t.Fatalf("standard remote frame must not be accepted")
	}
}

func TestAcceptFilterPolicy(t *testing.T) {
	if _, ok := Accept(canbus.Frame{ID: 0x123, Len: 8}); ok {
		t.Fatalf("standard identifier must not be accepted")
	}

	f, ok := Accept(canbus.Frame{ID: 0x18DAF100, Extended: true, Len: 3, Data: [8]byte{1, 2, 3}})
	if !ok {
		t.Fatalf("extended identifier must be accepted")
	}
	if f.ID != 0x18DAF100 || f.Len != 3 {
		t.Fatalf("unexpected frame %+v", f)
	}
	if f.Data != [8]byte{1, 2, 3, 0, 0, 0, 0, 0} {
		t.Fatalf("payload not zero padded: %x", f.Data)
	}
	if back := f.Frame(); !back.Extended || back.ID != f.ID || back.Len != 3 {
		t.Fatalf("unexpected controller frame %+v", back)
	}
}

func TestReceiverForwardsExtendedOnly(t *testing.T) {
	ctrl := &scriptedController{
		steps: []step{
			{frame: canbus.Frame{ID: 0x18DAF100, Extended: true, Len: 1, Data: [8]byte{0xAA}}},
			{frame: canbus.Frame{ID: 0x123, Len: 2}},
			{err: errors.New("bit stuffing error")},
			{frame: canbus.Frame{ID: 0x18DAF101, Extended: true}},
		},
		closeAtEnd: true,
	}
	out := mustChannel(t, DefaultCapacity)
	r := NewReceiver(ctrl, out, zerolog.Nop())

	err := r.Run(context.Background())
	if !errors.Is(err, canbus.ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}

	if out.Len() != 2 {
		t.Fatalf("expected 2 forwarded frames, got %d", out.Len())
	}
	first, _ := out.Receive(context.Background())
	second, _ := out.Receive(context.Background())
	if first.ID != 0x18DAF100 || second.ID != 0x18DAF101 {
		t.Fatalf("unexpected forwarded frames %+v %+v", first, second)
	}

	stats := r.Stats()
	if stats.Accepted != 2 || stats.Discarded != 1 || stats.Errors != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestReceiverBlocksOnFullChannel(t *testing.T) {
	ctrl := &scriptedController{
		steps: []step{
			{frame: canbus.Frame{ID: 0x100000, Extended: true}},
			{frame: canbus.Frame{ID: 0x100001, Extended: true}},
			{frame: canbus.Frame{ID: 0x100002, Extended: true}},
		},
	}
	out := mustChannel(t, 1)
	r := NewReceiver(ctrl, out, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	for i := 0; i < 3; i++ {
		time.Sleep(20 * time.Millisecond)
		if out.Len() > 1 {
			t.Fatalf("channel exceeded capacity")
		}
		f, err := out.Receive(ctx)
		if err != nil {
			t.Fatalf("Receive returned error: %v", err)
		}
		if f.ID != uint32(0x100000+i) {
			t.Fatalf("frame %d out of order: %x", i, f.ID)
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected nil on cancellation, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("receiver did not stop")
	}
	if got := r.Stats().Accepted; got != 3 {
		t.Fatalf("expected 3 accepted frames, got %d", got)
	}
}
