package main

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/sasha-s/go-deadlock"
)

// captureRecord is one streamed line as stored in a capture file.
type captureRecord struct {
	Time time.Time `cbor:"1,keyasint"`
	Line string    `cbor:"2,keyasint"`
}

// captureWriter appends a CBOR sequence of captureRecords.
type captureWriter struct {
	mu  deadlock.Mutex
	enc *cbor.Encoder
	now func() time.Time
}

func newCaptureWriter(w io.Writer) *captureWriter {
	return &captureWriter{enc: cbor.NewEncoder(w), now: time.Now}
}

func (c *captureWriter) Write(line string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enc.Encode(captureRecord{Time: c.now().UTC(), Line: line}); err != nil {
		return fmt.Errorf("capture: %w", err)
	}
	return nil
}

func readCapture(r io.Reader) ([]captureRecord, error) {
	dec := cbor.NewDecoder(r)
	var out []captureRecord
	for {
		var rec captureRecord
		if err := dec.Decode(&rec); err != nil {
			if errors.Is(err, io.EOF) {
				return out, nil
			}
			return out, fmt.Errorf("capture: record %d: %w", len(out)+1, err)
		}
		out = append(out, rec)
	}
}

func printCapture(r io.Reader, w io.Writer) (int, error) {
	recs, err := readCapture(r)
	for _, rec := range recs {
		fmt.Fprintf(w, "%s %s\n", rec.Time.UTC().Format(time.RFC3339Nano), rec.Line)
	}
	return len(recs), err
}
