// Command diagclient is the operator side of the diagnostic service. It
// requests a reset or streams forwarded frames, optionally capturing them
// to a CBOR file.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"candiag/internal/diag"
)

func main() {
	var (
		addr     = flag.String("addr", fmt.Sprintf("192.168.2.1:%d", diag.DefaultPort), "Address of the diagnostic service")
		reset    = flag.Bool("reset", false, "Erase the persistent state and restart the device")
		greeting = flag.String("greeting", "hi", "First message sent to start streaming")
		record   = flag.String("record", "", "Capture streamed records into this CBOR file")
		dump     = flag.String("dump", "", "Print a CBOR capture file and exit")
		interact = flag.Bool("i", false, "Interactive mode: r=reset, s=stream, x=stop, q=quit")
		timeout  = flag.Duration("timeout", 5*time.Second, "Dial timeout")
		logLevel = flag.String("log-level", "info", "Log level (debug|info|warn|error)")
	)
	flag.Parse()

	lvl, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid -log-level %q\n", *logLevel)
		os.Exit(2)
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		Level(lvl).With().Timestamp().Logger()

	if *dump != "" {
		f, err := os.Open(*dump)
		if err != nil {
			log.Fatal().Err(err).Msg("open capture")
		}
		defer f.Close()
		n, err := printCapture(f, os.Stdout)
		if err != nil {
			log.Fatal().Err(err).Msg("read capture")
		}
		log.Info().Int("records", n).Msg("capture printed")
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	c := &client{addr: *addr, timeout: *timeout, greeting: []byte(*greeting), out: os.Stdout, log: log}
	if *record != "" {
		f, err := os.Create(*record)
		if err != nil {
			log.Fatal().Err(err).Msg("create capture")
		}
		defer f.Close()
		c.capture = newCaptureWriter(f)
	}

	switch {
	case *interact:
		err = c.interactive(ctx)
	case *reset:
		err = c.reset(ctx)
	default:
		err = c.stream(ctx)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("session ended")
		os.Exit(1)
	}
}

func (c *client) dial(ctx context.Context) (net.Conn, error) {
	d := net.Dialer{Timeout: c.timeout}
	conn, err := d.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", c.addr, err)
	}
	return conn, nil
}
