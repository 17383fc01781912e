// Package device restarts the gateway after a persistent-state reset.
package device

import (
	"fmt"
	"os"
)

// Restarter restarts the device. A successful Restart normally does not
// return.
type Restarter interface {
	Restart() error
}

// ExitCodeRestart is the exit status asking the supervisor for a restart.
const ExitCodeRestart = 3

// Exit restarts by terminating the process; the service supervisor
// (systemd Restart=, a watchdog) brings the bridge back.
type Exit struct {
	Code int
	exit func(int)
}

func NewExit() *Exit {
	return &Exit{Code: ExitCodeRestart, exit: os.Exit}
}

func (e *Exit) Restart() error {
	e.exit(e.Code)
	return nil
}

// New returns the restarter for mode: "reboot" or "exit".
func New(mode string) (Restarter, error) {
	switch mode {
	case "reboot":
		return Reboot{}, nil
	case "exit":
		return NewExit(), nil
	default:
		return nil, fmt.Errorf("device: unknown restart mode %q", mode)
	}
}
