package flash

import (
	"fmt"
	"io"

	"github.com/marcinbor85/gohex"
)

// LoadHex writes every data segment of an Intel HEX image into st and returns
// the number of bytes written.
func LoadHex(st Storage, r io.Reader) (int, error) {
	mem := gohex.NewMemory()
	if err := mem.ParseIntelHex(r); err != nil {
		return 0, fmt.Errorf("flash: parse hex image: %w", err)
	}

	total := 0
	for _, seg := range mem.GetDataSegments() {
		if err := st.Write(seg.Address, seg.Data); err != nil {
			return total, fmt.Errorf("flash: load segment at %#x: %w", seg.Address, err)
		}
		total += len(seg.Data)
	}
	return total, nil
}

// DumpHex exports size bytes starting at start as an Intel HEX image.
func DumpHex(st Storage, w io.Writer, start, size uint32) error {
	buf := make([]byte, size)
	if err := st.Read(start, buf); err != nil {
		return err
	}
	mem := gohex.NewMemory()
	if err := mem.AddBinary(start, buf); err != nil {
		return fmt.Errorf("flash: build hex image: %w", err)
	}
	if err := mem.DumpIntelHex(w, 16); err != nil {
		return fmt.Errorf("flash: write hex image: %w", err)
	}
	return nil
}
