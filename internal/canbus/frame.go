// Package canbus holds the controller-side view of the CAN bus: decoded
// frames as they come off the wire and the controllers that produce them.
package canbus

import (
	"context"
	"errors"
	"fmt"
)

// Identifier limits.
const (
	MaxStdID = 0x7FF
	MaxExtID = 0x1FFFFFFF
)

var (
	// ErrClosed is returned once a controller can no longer produce frames.
	ErrClosed     = errors.New("canbus: controller closed")
	ErrInvalidID  = errors.New("canbus: invalid identifier")
	ErrInvalidLen = errors.New("canbus: invalid data length")
	ErrErrorFrame = errors.New("canbus: error frame")
)

// Frame is a classical CAN frame as decoded by a controller.
type Frame struct {
	ID       uint32 // 11-bit (std) or 29-bit (ext)
	Extended bool
	Remote   bool
	Len      uint8
	Data     [8]byte
}

// Validate returns an error if the frame is not valid.
func (f Frame) Validate() error {
	if f.Len > 8 {
		return ErrInvalidLen
	}
	if f.Extended {
		if f.ID > MaxExtID {
			return ErrInvalidID
		}
	} else if f.ID > MaxStdID {
		return ErrInvalidID
	}
	return nil
}

// Payload returns the logical data bytes.
func (f Frame) Payload() []byte {
	n := f.Len
	if n > 8 {
		n = 8
	}
	return f.Data[:n]
}

func (f Frame) String() string {
	if f.Extended {
		return fmt.Sprintf("%08X#% X", f.ID, f.Payload())
	}
	return fmt.Sprintf("%03X#% X", f.ID, f.Payload())
}

// Controller produces frames received from a CAN controller.
//
// Receive blocks until a frame arrives. Errors wrapping ErrClosed are
// terminal; any other error concerns a single frame and the caller may keep
// receiving.
type Controller interface {
	Receive(ctx context.Context) (Frame, error)
	Close() error
}
