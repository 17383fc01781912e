package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"candiag/internal/bridge"
	"candiag/internal/device"
	"candiag/internal/diag"
)

// Config collects the command-line settings of the gateway.
type Config struct {
	CAN            string // socketcan:<iface>, slcan:<port> or replay:<log>
	CANBitrate     int
	SerialBaud     int
	ReplayRealtime bool

	Listen string
	HTTP   string // empty disables the status server

	WiFi       string // hostapd or sim
	WLAN       string
	HostapdBin string
	HostapdDir string
	LinkIface  string

	Flash     string // bbolt image path; empty keeps flash in memory
	FlashSeed string // Intel HEX image loaded at startup
	Restart   string // reboot or exit
	Format    string
	Queue     int
	LogLevel  string
}

func parseFlags(args []string, output io.Writer) (Config, error) {
	var cfg Config
	fs := flag.NewFlagSet("candiag", flag.ContinueOnError)
	fs.SetOutput(output)

	fs.StringVar(&cfg.CAN, "can", "socketcan:can0", "CAN controller (socketcan:<iface>, slcan:<serial-port>, replay:<candump-log>)")
	fs.IntVar(&cfg.CANBitrate, "can-bitrate", 250000, "CAN bit rate in bit/s (SLCAN adapters)")
	fs.IntVar(&cfg.SerialBaud, "serial-baud", 115200, "Serial speed of the SLCAN adapter")
	fs.BoolVar(&cfg.ReplayRealtime, "replay-realtime", false, "Pace replayed frames by their capture timestamps")
	fs.StringVar(&cfg.Listen, "listen", fmt.Sprintf(":%d", diag.DefaultPort), "TCP address of the diagnostic service (192.168.2.1:8080 accepts only over the access point)")
	fs.StringVar(&cfg.HTTP, "http", ":8081", "HTTP address for the status page (empty to disable)")
	fs.StringVar(&cfg.WiFi, "wifi", "hostapd", "Access point controller (hostapd|sim)")
	fs.StringVar(&cfg.WLAN, "wlan", "wlan0", "Wireless interface the access point runs on")
	fs.StringVar(&cfg.HostapdBin, "hostapd-bin", "hostapd", "Path to the hostapd binary")
	fs.StringVar(&cfg.HostapdDir, "hostapd-dir", os.TempDir(), "Directory for the generated hostapd configuration")
	fs.StringVar(&cfg.LinkIface, "link-iface", "", "Interface that must be up before accepting sessions (empty for any)")
	fs.StringVar(&cfg.Flash, "flash", "", "Path of the persistent flash image (empty for an in-memory image)")
	fs.StringVar(&cfg.FlashSeed, "flash-seed", "", "Intel HEX image written to flash at startup")
	fs.StringVar(&cfg.Restart, "restart", "reboot", "How the device restarts after a reset (reboot|exit)")
	fs.StringVar(&cfg.Format, "format", "candump", "Record format of streamed frames (candump|slcan)")
	fs.IntVar(&cfg.Queue, "queue", bridge.DefaultCapacity, "Capacity of the frame queue")
	fs.StringVar(&cfg.LogLevel, "log-level", "info", "Log level (debug|info|warn|error)")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the settings that can be checked without touching hardware.
func (c Config) Validate() error {
	kind, arg, ok := strings.Cut(c.CAN, ":")
	if !ok || arg == "" {
		return fmt.Errorf("invalid -can %q: expected <kind>:<target>", c.CAN)
	}
	switch kind {
	case "socketcan", "slcan", "replay":
	default:
		return fmt.Errorf("invalid -can %q: unknown controller %q", c.CAN, kind)
	}
	if c.CANBitrate <= 0 {
		return fmt.Errorf("invalid -can-bitrate %d", c.CANBitrate)
	}
	if c.SerialBaud <= 0 {
		return fmt.Errorf("invalid -serial-baud %d", c.SerialBaud)
	}
	if c.Listen == "" {
		return errors.New("-listen must not be empty")
	}
	switch c.WiFi {
	case "hostapd":
		if c.WLAN == "" {
			return errors.New("-wlan is required with -wifi hostapd")
		}
	case "sim":
	default:
		return fmt.Errorf("invalid -wifi %q: expected hostapd or sim", c.WiFi)
	}
	if _, err := device.New(c.Restart); err != nil {
		return err
	}
	if _, err := diag.ParseFormat(c.Format); err != nil {
		return err
	}
	if c.Queue < 1 {
		return fmt.Errorf("invalid -queue %d: must be at least 1", c.Queue)
	}
	if _, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel)); err != nil || c.LogLevel == "" {
		return fmt.Errorf("invalid -log-level %q", c.LogLevel)
	}
	return nil
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	out := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	return zerolog.New(out).Level(lvl).With().Timestamp().Logger()
}

func main() {
	cfg, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	log := newLogger(cfg.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	gw, err := newGateway(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialise gateway")
	}
	defer gw.Close()

	if err := gw.Run(ctx); err != nil {
		log.Error().Err(err).Msg("gateway terminated")
		gw.Close()
		os.Exit(1)
	}
	log.Info().Msg("exiting")
}
