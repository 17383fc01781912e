// Package netstack tracks the network link the diagnostic server listens on.
// On the gateway the IP stack itself belongs to the kernel; what the bridge
// needs from it is to know when the access point interface can carry traffic.
package netstack

import (
	"context"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Driver runs the link processing loop. Socket operations only make progress
// while Run is executing.
type Driver interface {
	Run(ctx context.Context) error
	LinkUp() bool
}

// DefaultPollInterval matches the link-up poll used before the first accept.
const DefaultPollInterval = 500 * time.Millisecond

// Link watches the state of a network interface.
type Link struct {
	iface  string
	poll   time.Duration
	log    zerolog.Logger
	lookup func(name string) (*net.Interface, error)

	up atomic.Bool
}

// NewLink watches iface. An empty name means the host stack with no
// dedicated interface, which is always up.
func NewLink(iface string, poll time.Duration, log zerolog.Logger) *Link {
	return &Link{
		iface:  iface,
		poll:   poll,
		log:    log,
		lookup: net.InterfaceByName,
	}
}

// Run polls the interface until ctx is cancelled.
func (l *Link) Run(ctx context.Context) error {
	t := time.NewTicker(l.poll)
	defer t.Stop()
	for {
		l.refresh()
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
	}
}

func (l *Link) refresh() {
	up := true
	if l.iface != "" {
		iface, err := l.lookup(l.iface)
		up = err == nil && iface.Flags&net.FlagUp != 0 && iface.Flags&net.FlagRunning != 0
	}
	if prev := l.up.Swap(up); prev != up {
		if up {
			l.log.Info().Str("iface", l.name()).Msg("link up")
		} else {
			l.log.Warn().Str("iface", l.name()).Msg("link down")
		}
	}
}

func (l *Link) name() string {
	if l.iface == "" {
		return "host"
	}
	return l.iface
}

// LinkUp reports the last observed link state.
func (l *Link) LinkUp() bool { return l.up.Load() }

// WaitLinkUp polls d until the link is up.
func WaitLinkUp(ctx context.Context, d Driver, poll time.Duration) error {
	if d.LinkUp() {
		return nil
	}
	t := time.NewTicker(poll)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("netstack: wait for link: %w", ctx.Err())
		case <-t.C:
			if d.LinkUp() {
				return nil
			}
		}
	}
}
