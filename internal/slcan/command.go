package slcan

import "fmt"

// Adapter control commands.
const (
	CommandOpen  = "O\r"
	CommandClose = "C\r"
)

// bell is the adapter's negative acknowledgement.
const bell = '\a'

var bitrateCommands = map[int]string{
	10000:   "S0\r",
	20000:   "S1\r",
	50000:   "S2\r",
	100000:  "S3\r",
	125000:  "S4\r",
	250000:  "S5\r",
	500000:  "S6\r",
	800000:  "S7\r",
	1000000: "S8\r",
}

// BitrateCommand returns the setup command selecting a standard bus bitrate.
func BitrateCommand(bitrate int) (string, error) {
	cmd, ok := bitrateCommands[bitrate]
	if !ok {
		return "", fmt.Errorf("slcan: unsupported bitrate %d", bitrate)
	}
	return cmd, nil
}
