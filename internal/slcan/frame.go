// Package slcan implements the serial CAN (SLCAN / LAWICEL) ASCII protocol:
// frame encoding for diagnostic records and decoding of the lines an SLCAN
// USB adapter emits.
package slcan

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"candiag/internal/canbus"
)

// EncodeFrame converts a CAN frame into its CR-terminated SLCAN string.
func EncodeFrame(frame canbus.Frame) string {
	var builder strings.Builder
	switch {
	case frame.Remote && frame.Extended:
		builder.WriteByte('R')
	case frame.Remote && !frame.Extended:
		builder.WriteByte('r')
	case !frame.Remote && frame.Extended:
		builder.WriteByte('T')
	default:
		builder.WriteByte('t')
	}

	if frame.Extended {
		builder.WriteString(fmt.Sprintf("%08X", frame.ID&canbus.MaxExtID))
	} else {
		builder.WriteString(fmt.Sprintf("%03X", frame.ID&canbus.MaxStdID))
	}

	builder.WriteByte('0' + byte(frame.Len&0x0F))

	if !frame.Remote {
		for i := uint8(0); i < frame.Len && i < 8; i++ {
			builder.WriteString(fmt.Sprintf("%02X", frame.Data[i]))
		}
	}

	builder.WriteByte('\r')
	return builder.String()
}

// DecodeFrame parses a single SLCAN frame line. The trailing CR is optional
// and an adapter timestamp (four hex digits after the data) is ignored.
func DecodeFrame(line string) (canbus.Frame, error) {
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return canbus.Frame{}, fmt.Errorf("slcan: empty line")
	}

	var frame canbus.Frame
	idLen := 3
	switch line[0] {
	case 't':
	case 'T':
		frame.Extended = true
		idLen = 8
	case 'r':
		frame.Remote = true
	case 'R':
		frame.Extended = true
		frame.Remote = true
		idLen = 8
	default:
		return canbus.Frame{}, fmt.Errorf("slcan: unknown frame type %q", line[0])
	}

	rest := line[1:]
	if len(rest) < idLen+1 {
		return canbus.Frame{}, fmt.Errorf("slcan: short frame %q", line)
	}

	id, err := strconv.ParseUint(rest[:idLen], 16, 32)
	if err != nil {
		return canbus.Frame{}, fmt.Errorf("slcan: identifier in %q: %w", line, err)
	}
	frame.ID = uint32(id)

	dlc := rest[idLen]
	if dlc < '0' || dlc > '8' {
		return canbus.Frame{}, fmt.Errorf("slcan: data length %q: %w", dlc, canbus.ErrInvalidLen)
	}
	frame.Len = dlc - '0'

	data := rest[idLen+1:]
	if !frame.Remote {
		want := int(frame.Len) * 2
		if len(data) != want && len(data) != want+4 {
			return canbus.Frame{}, fmt.Errorf("slcan: %d data digits for length %d", len(data), frame.Len)
		}
		if _, err := hex.Decode(frame.Data[:frame.Len], []byte(data[:want])); err != nil {
			return canbus.Frame{}, fmt.Errorf("slcan: data in %q: %w", line, err)
		}
	}

	if err := frame.Validate(); err != nil {
		return canbus.Frame{}, fmt.Errorf("slcan: %q: %w", line, err)
	}
	return frame, nil
}
