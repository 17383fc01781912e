package slcan

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync/atomic"

	"go.bug.st/serial"

	"candiag/internal/canbus"
)

// Port receives frames from an SLCAN adapter attached to a serial port.
type Port struct {
	name   string
	rw     io.ReadWriteCloser
	r      *bufio.Reader
	closed atomic.Bool
}

// OpenPort opens the serial device, selects the bus bitrate and opens the
// CAN channel.
func OpenPort(name string, baud, bitrate int) (*Port, error) {
	setup, err := BitrateCommand(bitrate)
	if err != nil {
		return nil, err
	}

	mode := &serial.Mode{
		BaudRate: baud,
		Parity:   serial.NoParity,
		DataBits: 8,
		StopBits: serial.OneStopBit,
	}
	p, err := serial.Open(name, mode)
	if err != nil {
		return nil, fmt.Errorf("slcan: open serial port %q: %w", name, err)
	}
	_ = p.ResetInputBuffer()
	_ = p.ResetOutputBuffer()

	port := NewPort(name, p)
	for _, cmd := range []string{CommandClose, setup, CommandOpen} {
		if _, err := io.WriteString(p, cmd); err != nil {
			_ = p.Close()
			return nil, fmt.Errorf("slcan: write %q to %s: %w", strings.TrimSpace(cmd), name, err)
		}
	}
	return port, nil
}

// NewPort wraps an already configured adapter stream.
func NewPort(name string, rw io.ReadWriteCloser) *Port {
	return &Port{name: name, rw: rw, r: bufio.NewReader(rw)}
}

// Receive returns the next frame line. Command acknowledgements are skipped.
func (p *Port) Receive(ctx context.Context) (canbus.Frame, error) {
	if err := ctx.Err(); err != nil {
		return canbus.Frame{}, fmt.Errorf("%w: %v", canbus.ErrClosed, err)
	}
	stop := context.AfterFunc(ctx, func() { _ = p.Close() })
	defer stop()

	for {
		line, err := p.r.ReadString('\r')
		if err != nil {
			// A serial port that fails a read does not recover.
			return canbus.Frame{}, fmt.Errorf("%w: %s: %v", canbus.ErrClosed, p.name, err)
		}

		line = strings.Trim(line, "\r\n")
		frameLine := strings.TrimLeft(line, string(bell))
		switch {
		case frameLine == "" && line != "":
			return canbus.Frame{}, fmt.Errorf("slcan: %s: adapter rejected command", p.name)
		case frameLine == "":
			continue
		case frameLine[0] == 'z' || frameLine[0] == 'Z':
			continue
		}
		return DecodeFrame(frameLine)
	}
}

// Close closes the CAN channel and the serial port.
func (p *Port) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	_, _ = io.WriteString(p.rw, CommandClose)
	return p.rw.Close()
}
