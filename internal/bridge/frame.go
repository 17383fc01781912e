// Package bridge moves accepted CAN frames from the bus receiver to the
// diagnostic server through a bounded channel.
package bridge

import "candiag/internal/canbus"

// CanFrame is a frame accepted for forwarding. The payload is always eight
// bytes, zero padded past Len; a remote frame keeps its requested length and
// an all-zero payload.
type CanFrame struct {
	ID     uint32
	Data   [8]byte
	Len    uint8
	Remote bool
}

// Accept applies the acceptance rule of the bridge: only extended
// identifiers are forwarded.
func Accept(f canbus.Frame) (CanFrame, bool) {
	if !f.Extended {
		return CanFrame{}, false
	}
	out := CanFrame{ID: f.ID & canbus.MaxExtID, Remote: f.Remote}
	if f.Remote {
		out.Len = min(f.Len, 8)
		return out, true
	}
	out.Len = uint8(copy(out.Data[:], f.Payload()))
	return out, true
}

// Frame converts back to the controller representation.
func (f CanFrame) Frame() canbus.Frame {
	return canbus.Frame{ID: f.ID, Extended: true, Remote: f.Remote, Len: f.Len, Data: f.Data}
}
