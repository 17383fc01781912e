package wifi

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sasha-s/go-deadlock"
)

// Sim is an in-process access point for running the bridge without a radio.
// Stop raises the AP-stop event the way a real controller does when the last
// station leaves and the AP is torn down.
type Sim struct {
	// StartDelay emulates the time the radio needs to come up.
	StartDelay time.Duration
	// StartErr, when set, makes every Start fail.
	StartErr error

	mu        deadlock.Mutex
	cfg       *APConfig
	started   bool
	startedCh chan struct{}
	stoppedCh chan struct{}
	starts    int
}

func NewSim() *Sim {
	return &Sim{
		startedCh: make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

func (s *Sim) IsStarted() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started, nil
}

func (s *Sim) SetConfiguration(cfg APConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.cfg = &cfg
	s.mu.Unlock()
	return nil
}

func (s *Sim) Start(ctx context.Context) error {
	if s.StartErr != nil {
		return s.StartErr
	}
	s.mu.Lock()
	configured := s.cfg != nil
	s.mu.Unlock()
	if !configured {
		return errors.New("wifi: sim: start before configuration")
	}

	if s.StartDelay > 0 && !sleepCtx(ctx, s.StartDelay) {
		return ctx.Err()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}
	s.started = true
	s.starts++
	s.stoppedCh = make(chan struct{})
	close(s.startedCh)
	return nil
}

func (s *Sim) WaitForEvent(ctx context.Context, ev Event) error {
	s.mu.Lock()
	var (
		ch    chan struct{}
		ready bool
	)
	switch ev {
	case EventAPStart:
		ch, ready = s.startedCh, s.started
	case EventAPStop:
		ch, ready = s.stoppedCh, !s.started
	default:
		s.mu.Unlock()
		return fmt.Errorf("wifi: sim: unsupported event %v", ev)
	}
	s.mu.Unlock()

	if ready {
		return nil
	}
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop tears the access point down and raises the AP-stop event.
func (s *Sim) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return
	}
	s.started = false
	s.startedCh = make(chan struct{})
	close(s.stoppedCh)
}

// Starts counts successful starts.
func (s *Sim) Starts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.starts
}

// Config returns the last applied configuration.
func (s *Sim) Config() (APConfig, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cfg == nil {
		return APConfig{}, false
	}
	return *s.cfg, true
}
