package canbus

import (
	"bufio"
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

// Replay plays back a candump log as if the frames arrived from a controller.
// Lines look like "(1436509052.249713) can0 18DAF100#0102030405060708".
type Replay struct {
	name     string
	sc       *bufio.Scanner
	closer   io.Closer
	realtime bool

	lineNum int
	lastTS  float64
	closed  atomic.Bool
}

// OpenReplay opens a candump log file. With realtime set, frames are paced
// by the gaps between their timestamps.
func OpenReplay(path string, realtime bool) (*Replay, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("replay: %w", err)
	}
	r := NewReplay(path, f, realtime)
	r.closer = f
	return r, nil
}

// NewReplay plays back frames read from r.
func NewReplay(name string, r io.Reader, realtime bool) *Replay {
	return &Replay{
		name:     name,
		sc:       bufio.NewScanner(r),
		realtime: realtime,
		lastTS:   -1,
	}
}

// Receive returns the next frame of the log. The end of the log closes the
// controller.
func (r *Replay) Receive(ctx context.Context) (Frame, error) {
	for {
		if err := ctx.Err(); err != nil {
			return Frame{}, fmt.Errorf("%w: %v", ErrClosed, err)
		}
		if r.closed.Load() {
			return Frame{}, fmt.Errorf("%w: %s", ErrClosed, r.name)
		}
		if !r.sc.Scan() {
			if err := r.sc.Err(); err != nil {
				return Frame{}, fmt.Errorf("%w: %s: %v", ErrClosed, r.name, err)
			}
			return Frame{}, fmt.Errorf("%w: %s: end of log", ErrClosed, r.name)
		}
		r.lineNum++

		line := strings.TrimSpace(r.sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		frame, ts, err := ParseCandumpLine(line)
		if err != nil {
			return Frame{}, fmt.Errorf("replay %s:%d: %w", r.name, r.lineNum, err)
		}
		if err := r.pace(ctx, ts); err != nil {
			return Frame{}, fmt.Errorf("%w: %v", ErrClosed, err)
		}
		return frame, nil
	}
}

func (r *Replay) pace(ctx context.Context, ts float64) error {
	if !r.realtime || ts < 0 {
		return nil
	}
	last := r.lastTS
	r.lastTS = ts
	if last < 0 || ts <= last {
		return nil
	}

	t := time.NewTimer(time.Duration((ts - last) * float64(time.Second)))
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Close stops the replay.
func (r *Replay) Close() error {
	if r.closed.Swap(true) || r.closer == nil {
		return nil
	}
	return r.closer.Close()
}

// ParseCandumpLine extracts a frame from a candump log line. The timestamp is
// -1 when the line carries none.
func ParseCandumpLine(line string) (Frame, float64, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Frame{}, -1, fmt.Errorf("candump: empty line")
	}

	ts := -1.0
	if f := fields[0]; strings.HasPrefix(f, "(") && strings.HasSuffix(f, ")") {
		v, err := strconv.ParseFloat(strings.Trim(f, "()"), 64)
		if err != nil {
			return Frame{}, -1, fmt.Errorf("candump: timestamp %q: %w", f, err)
		}
		ts = v
	}

	token := fields[len(fields)-1]
	idStr, dataStr, ok := strings.Cut(token, "#")
	if !ok {
		return Frame{}, -1, fmt.Errorf("candump: missing '#' in %q", token)
	}

	id, err := strconv.ParseUint(idStr, 16, 32)
	if err != nil {
		return Frame{}, -1, fmt.Errorf("candump: identifier %q: %w", idStr, err)
	}

	frame := Frame{ID: uint32(id), Extended: len(idStr) > 3}

	if strings.HasPrefix(dataStr, "R") {
		frame.Remote = true
		if n := strings.TrimPrefix(dataStr, "R"); n != "" {
			l, err := strconv.ParseUint(n, 10, 8)
			if err != nil {
				return Frame{}, -1, fmt.Errorf("candump: remote length %q: %w", n, err)
			}
			frame.Len = uint8(l)
		}
	} else {
		data, err := hex.DecodeString(strings.ReplaceAll(dataStr, ".", ""))
		if err != nil {
			return Frame{}, -1, fmt.Errorf("candump: payload %q: %w", dataStr, err)
		}
		if len(data) > 8 {
			return Frame{}, -1, fmt.Errorf("candump: %d payload bytes: %w", len(data), ErrInvalidLen)
		}
		frame.Len = uint8(len(data))
		copy(frame.Data[:], data)
	}

	if err := frame.Validate(); err != nil {
		return Frame{}, -1, fmt.Errorf("candump: %q: %w", token, err)
	}
	return frame, ts, nil
}
