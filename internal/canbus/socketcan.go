package canbus

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"

	sockcan "github.com/brutella/can"
)

// Flag bits carried in the identifier word of a SocketCAN frame.
const (
	effFlag uint32 = 1 << 31
	rtrFlag uint32 = 1 << 30
	errFlag uint32 = 1 << 29
)

// SocketCAN receives frames from a Linux SocketCAN interface.
type SocketCAN struct {
	name   string
	rwc    sockcan.ReadWriteCloser
	closed atomic.Bool
}

// NewSocketCAN wraps an already opened SocketCAN reader.
func NewSocketCAN(name string, rwc sockcan.ReadWriteCloser) *SocketCAN {
	return &SocketCAN{name: name, rwc: rwc}
}

// Receive blocks until the next frame arrives. Cancelling ctx closes the
// socket, after which the controller is unusable.
func (s *SocketCAN) Receive(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrClosed, err)
	}
	stop := context.AfterFunc(ctx, func() { _ = s.Close() })
	defer stop()

	var raw sockcan.Frame
	if err := s.rwc.ReadFrame(&raw); err != nil {
		if s.closed.Load() || errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed) {
			return Frame{}, fmt.Errorf("%w: %s: %v", ErrClosed, s.name, err)
		}
		return Frame{}, fmt.Errorf("socketcan %s: read frame: %w", s.name, err)
	}
	return decodeSocketFrame(raw)
}

// Close releases the socket.
func (s *SocketCAN) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.rwc.Close()
}

func decodeSocketFrame(raw sockcan.Frame) (Frame, error) {
	if raw.ID&errFlag != 0 {
		return Frame{}, fmt.Errorf("%w: class 0x%08X", ErrErrorFrame, raw.ID&MaxExtID)
	}
	if raw.Length > 8 {
		return Frame{}, fmt.Errorf("%w: %d", ErrInvalidLen, raw.Length)
	}

	f := Frame{
		Extended: raw.ID&effFlag != 0,
		Remote:   raw.ID&rtrFlag != 0,
		Len:      raw.Length,
	}
	if f.Extended {
		f.ID = raw.ID & MaxExtID
	} else {
		f.ID = raw.ID & MaxStdID
	}
	copy(f.Data[:], raw.Data[:f.Len])
	return f, nil
}
