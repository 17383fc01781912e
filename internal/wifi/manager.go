package wifi

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/sasha-s/go-deadlock"
)

// State is the access point lifecycle state.
type State int32

const (
	Stopped State = iota
	Starting
	Started
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Starting:
		return "starting"
	case Started:
		return "started"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Event is a notification raised by the wireless controller.
type Event int

const (
	EventAPStart Event = iota
	EventAPStop
)

func (e Event) String() string {
	switch e {
	case EventAPStart:
		return "ap-start"
	case EventAPStop:
		return "ap-stop"
	default:
		return fmt.Sprintf("Event(%d)", int(e))
	}
}

// Controller is the wireless controller driven by the Manager.
type Controller interface {
	// IsStarted reports whether the access point is currently running.
	IsStarted() (bool, error)
	// SetConfiguration applies cfg for the next Start.
	SetConfiguration(cfg APConfig) error
	// Start brings the access point up. Completion is signalled by
	// EventAPStart.
	Start(ctx context.Context) error
	// WaitForEvent blocks until ev is raised.
	WaitForEvent(ctx context.Context, ev Event) error
}

// DefaultSettleDelay is the pause between an AP stop and the restart.
const DefaultSettleDelay = 5 * time.Second

// Manager keeps the access point running, restarting it after every stop.
type Manager struct {
	ctrl   Controller
	cfg    APConfig
	settle time.Duration
	log    zerolog.Logger

	mu      deadlock.Mutex
	state   State
	changed chan struct{}
	starts  uint64
}

func NewManager(ctrl Controller, cfg APConfig, settle time.Duration, log zerolog.Logger) *Manager {
	return &Manager{
		ctrl:    ctrl,
		cfg:     cfg,
		settle:  settle,
		log:     log,
		changed: make(chan struct{}),
	}
}

// Run drives the lifecycle until ctx is cancelled. A configuration or start
// failure is returned and ends the manager.
func (m *Manager) Run(ctx context.Context) error {
	m.log.Info().Str("ssid", m.cfg.SSID).Uint8("channel", m.cfg.Channel).Msg("access point manager started")
	for {
		if m.State() == Started {
			if err := m.ctrl.WaitForEvent(ctx, EventAPStop); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("wifi: wait for %v: %w", EventAPStop, err)
			}
			m.setState(Stopped)
			m.log.Warn().Dur("settle", m.settle).Msg("access point stopped")
			if !sleepCtx(ctx, m.settle) {
				return nil
			}
		}

		started, err := m.ctrl.IsStarted()
		if err != nil {
			m.log.Debug().Err(err).Msg("controller status unavailable, restarting access point")
		}
		if err == nil && started {
			m.setState(Started)
			continue
		}

		if err := m.start(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

func (m *Manager) start(ctx context.Context) error {
	m.setState(Starting)
	if err := m.ctrl.SetConfiguration(m.cfg); err != nil {
		return fmt.Errorf("wifi: configure access point: %w", err)
	}
	m.log.Info().Str("ssid", m.cfg.SSID).Msg("starting access point")
	if err := m.ctrl.Start(ctx); err != nil {
		return fmt.Errorf("wifi: start access point: %w", err)
	}
	if err := m.ctrl.WaitForEvent(ctx, EventAPStart); err != nil {
		return fmt.Errorf("wifi: wait for %v: %w", EventAPStart, err)
	}

	m.mu.Lock()
	m.starts++
	m.mu.Unlock()
	m.setState(Started)
	m.log.Info().Str("ssid", m.cfg.SSID).Msg("access point started")
	return nil
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == s {
		return
	}
	m.state = s
	close(m.changed)
	m.changed = make(chan struct{})
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Starts counts successful access point starts.
func (m *Manager) Starts() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.starts
}

// WaitStarted blocks until the access point is Started.
func (m *Manager) WaitStarted(ctx context.Context) error {
	for {
		m.mu.Lock()
		state, changed := m.state, m.changed
		m.mu.Unlock()
		if state == Started {
			return nil
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
