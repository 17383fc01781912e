package diag

import (
	"fmt"
	"strings"

	"candiag/internal/bridge"
	"candiag/internal/slcan"
)

// Format selects how forwarded frames are rendered on the wire.
type Format int

const (
	// FormatCandump renders "18DAF100   [8]  01 02 03 04 05 06 07 08".
	FormatCandump Format = iota
	// FormatSLCAN renders "T18DAF10080102030405060708\r".
	FormatSLCAN
)

func (f Format) String() string {
	switch f {
	case FormatCandump:
		return "candump"
	case FormatSLCAN:
		return "slcan"
	default:
		return fmt.Sprintf("Format(%d)", int(f))
	}
}

// ParseFormat maps a format name to its Format.
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(name) {
	case "", "candump":
		return FormatCandump, nil
	case "slcan":
		return FormatSLCAN, nil
	default:
		return 0, fmt.Errorf("diag: unknown record format %q", name)
	}
}

// Record renders f as one newline-terminated line. Remote frames carry no
// data bytes.
func Record(format Format, f bridge.CanFrame) []byte {
	if format == FormatSLCAN {
		return []byte(slcan.EncodeFrame(f.Frame()) + "\n")
	}

	n := int(f.Len)
	if n > len(f.Data) {
		n = len(f.Data)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%08X   [%d]", f.ID, n)
	switch {
	case f.Remote:
		b.WriteString("  remote request")
	case n > 0:
		b.WriteByte(' ')
		for _, v := range f.Data[:n] {
			fmt.Fprintf(&b, " %02X", v)
		}
	}
	b.WriteByte('\n')
	return []byte(b.String())
}
