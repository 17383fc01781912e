package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"candiag/internal/bridge"
	"candiag/internal/canbus"
	"candiag/internal/device"
	"candiag/internal/diag"
	"candiag/internal/flash"
	"candiag/internal/netstack"
	"candiag/internal/slcan"
	"candiag/internal/wifi"
)

// statusInterval is the period of the websocket status push.
const statusInterval = time.Second

// gateway wires the bus receiver, the access point, the link watcher and the
// diagnostic server together.
type gateway struct {
	cfg     Config
	log     zerolog.Logger
	started time.Time

	ctrl     canbus.Controller
	frames   *bridge.Channel
	receiver *bridge.Receiver
	ap       *wifi.Manager
	apCtrl   wifi.Controller
	link     *netstack.Link
	store    flash.Storage
	server   *diag.Server

	// active counts task goroutines still running.
	active atomic.Int32

	closers   []io.Closer
	closeOnce sync.Once
}

func newGateway(cfg Config, log zerolog.Logger) (*gateway, error) {
	g := &gateway{cfg: cfg, log: log, started: time.Now()}

	store, err := g.openFlash()
	if err != nil {
		return nil, err
	}
	g.store = store

	ctrl, err := openController(cfg, log.With().Str("component", "can").Logger())
	if err != nil {
		g.Close()
		return nil, err
	}
	g.ctrl = ctrl
	g.closers = append(g.closers, ctrl)

	frames, err := bridge.NewChannel(cfg.Queue)
	if err != nil {
		g.Close()
		return nil, err
	}
	g.frames = frames
	g.receiver = bridge.NewReceiver(ctrl, frames, log.With().Str("component", "receiver").Logger())

	apLog := log.With().Str("component", "ap").Logger()
	var apCtrl wifi.Controller
	switch cfg.WiFi {
	case "sim":
		apCtrl = wifi.NewSim()
	default:
		apCtrl = wifi.NewHostapd(cfg.HostapdBin, cfg.WLAN, cfg.HostapdDir, apLog)
	}
	g.apCtrl = apCtrl
	g.ap = wifi.NewManager(apCtrl, wifi.DefaultAPConfig(), wifi.DefaultSettleDelay, apLog)
	g.link = netstack.NewLink(cfg.LinkIface, netstack.DefaultPollInterval, log.With().Str("component", "link").Logger())

	restarter, err := device.New(cfg.Restart)
	if err != nil {
		g.Close()
		return nil, err
	}
	format, err := diag.ParseFormat(cfg.Format)
	if err != nil {
		g.Close()
		return nil, err
	}
	diagCfg := diag.DefaultConfig()
	diagCfg.Format = format
	eraser := flash.NewEraser(store, log.With().Str("component", "flash").Logger())
	g.server = diag.NewServer(diagCfg, frames, eraser, restarter, log.With().Str("component", "diag").Logger())

	return g, nil
}

func (g *gateway) openFlash() (flash.Storage, error) {
	var store flash.Storage
	if g.cfg.Flash == "" {
		store = flash.NewMemory(flash.DefaultCapacity)
	} else {
		bs, err := flash.OpenBolt(g.cfg.Flash, flash.DefaultCapacity)
		if err != nil {
			return nil, err
		}
		g.closers = append(g.closers, bs)
		store = bs
	}

	if g.cfg.FlashSeed != "" {
		f, err := os.Open(g.cfg.FlashSeed)
		if err != nil {
			g.Close()
			return nil, fmt.Errorf("open flash seed: %w", err)
		}
		defer f.Close()
		n, err := flash.LoadHex(store, f)
		if err != nil {
			g.Close()
			return nil, err
		}
		g.log.Info().Str("image", g.cfg.FlashSeed).Int("bytes", n).Msg("flash seeded")
	}
	return store, nil
}

// openController opens the CAN controller named by cfg.CAN.
func openController(cfg Config, log zerolog.Logger) (canbus.Controller, error) {
	kind, target, _ := strings.Cut(cfg.CAN, ":")
	log = log.With().Str("controller", kind).Str("target", target).Logger()

	var (
		ctrl canbus.Controller
		err  error
	)
	switch kind {
	case "socketcan":
		ctrl, err = canbus.OpenSocketCAN(target)
	case "slcan":
		ctrl, err = slcan.OpenPort(target, cfg.SerialBaud, cfg.CANBitrate)
	case "replay":
		ctrl, err = canbus.OpenReplay(target, cfg.ReplayRealtime)
	default:
		err = fmt.Errorf("unknown CAN controller %q", kind)
	}
	if err != nil {
		return nil, err
	}
	log.Info().Msg("CAN controller opened")
	return ctrl, nil
}

// Run starts every task and returns when ctx ends or the first task fails.
func (g *gateway) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	tasks := map[string]func(context.Context) error{
		"receiver": g.receiver.Run,
		"ap":       g.ap.Run,
		"link":     g.link.Run,
		"diag":     g.serveDiag,
	}
	if g.cfg.HTTP != "" {
		tasks["status"] = g.serveStatus
	}

	errCh := make(chan error, len(tasks))
	for name, task := range tasks {
		g.active.Add(1)
		go func(name string, task func(context.Context) error) {
			err := task(ctx)
			g.active.Add(-1)
			if err != nil {
				err = fmt.Errorf("%s: %w", name, err)
			}
			errCh <- err
		}(name, task)
	}

	// Every task is collected before returning so Close never races a
	// task still using the controller or the flash store.
	var first error
	for pending := len(tasks); pending > 0; pending-- {
		select {
		case <-ctx.Done():
			if first == nil {
				g.log.Info().Msg("context cancelled")
			}
			cancel()
			for ; pending > 0; pending-- {
				if err := <-errCh; err != nil && first == nil {
					first = err
				}
			}
			return first
		case err := <-errCh:
			if err != nil && first == nil {
				first = err
				cancel()
			}
		}
	}
	return first
}

// serveDiag waits for the link and the access point, then serves sessions.
func (g *gateway) serveDiag(ctx context.Context) error {
	if err := netstack.WaitLinkUp(ctx, g.link, netstack.DefaultPollInterval); err != nil {
		return nil
	}
	if err := g.ap.WaitStarted(ctx); err != nil {
		return nil
	}

	ln, err := net.Listen("tcp", g.cfg.Listen)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", g.cfg.Listen, err)
	}
	err = g.server.Serve(ctx, ln)
	if errors.Is(err, diag.ErrRestarted) {
		g.log.Warn().Msg("device restart returned, stopping")
	}
	return err
}

// snapshot gathers the status reported by the web server.
func (g *gateway) snapshot() statusSnapshot {
	return statusSnapshot{
		Uptime:      time.Since(g.started).Round(time.Second).String(),
		AccessPoint: g.ap.State().String(),
		APStarts:    g.ap.Starts(),
		LinkUp:      g.link.LinkUp(),
		Session:     g.server.Status(),
		Receiver:    g.receiver.Stats(),
		QueueLen:    g.frames.Len(),
		QueueCap:    g.frames.Cap(),
	}
}

// Close stops the access point and releases the controller and the flash
// image. It is safe to call more than once.
func (g *gateway) Close() {
	g.closeOnce.Do(func() {
		if s, ok := g.apCtrl.(interface{ Stop() error }); ok {
			if err := s.Stop(); err != nil {
				g.log.Warn().Err(err).Msg("access point stop failed")
			}
		}
		for i := len(g.closers) - 1; i >= 0; i-- {
			if err := g.closers[i].Close(); err != nil {
				g.log.Warn().Err(err).Msg("close failed")
			}
		}
	})
}
