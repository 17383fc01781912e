package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/eiannone/keyboard"
	"github.com/rs/zerolog"

	"candiag/internal/diag"
)

type client struct {
	addr     string
	timeout  time.Duration
	greeting []byte
	out      io.Writer
	capture  *captureWriter
	log      zerolog.Logger
}

// reset sends the reset trigger. The device answers by restarting, so the
// connection is simply closed afterwards.
func (c *client) reset(ctx context.Context) error {
	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()
	if _, err := conn.Write([]byte{diag.ResetTrigger}); err != nil {
		return fmt.Errorf("send reset: %w", err)
	}
	c.log.Warn().Str("addr", c.addr).Msg("reset requested")
	return nil
}

func (c *client) stream(ctx context.Context) error {
	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	c.log.Info().Str("addr", c.addr).Msg("streaming")
	n, err := c.streamConn(conn)
	c.log.Info().Int("records", n).Msg("stream ended")
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// streamConn sends the greeting, then copies records to the output until
// the server closes the connection.
func (c *client) streamConn(conn io.ReadWriter) (int, error) {
	if len(c.greeting) == 0 || (len(c.greeting) == 1 && c.greeting[0] == diag.ResetTrigger) {
		return 0, fmt.Errorf("greeting %q would not start a stream", c.greeting)
	}
	if _, err := conn.Write(c.greeting); err != nil {
		return 0, fmt.Errorf("send greeting: %w", err)
	}

	n := 0
	sc := bufio.NewScanner(conn)
	for sc.Scan() {
		line := sc.Text()
		if _, err := fmt.Fprintln(c.out, line); err != nil {
			return n, err
		}
		if c.capture != nil {
			if err := c.capture.Write(line); err != nil {
				return n, err
			}
		}
		n++
	}
	if err := sc.Err(); err != nil && !isClosed(err) {
		return n, fmt.Errorf("read stream: %w", err)
	}
	return n, nil
}

// isClosed reports the ends a session normally has: the server aborts the
// connection after its close delays.
func isClosed(err error) bool {
	var ne *net.OpError
	return errors.As(err, &ne) || errors.Is(err, net.ErrClosed)
}

// interactive maps single keys to client actions until q, Esc or Ctrl-C.
func (c *client) interactive(ctx context.Context) error {
	keys, err := keyboard.GetKeys(10)
	if err != nil {
		return fmt.Errorf("open keyboard: %w", err)
	}
	defer func() { _ = keyboard.Close() }()

	c.log.Info().Msg("r=reset s=stream x=stop q=quit")

	var (
		cancelStream context.CancelFunc
		streamDone   chan struct{}
	)
	stopStream := func() {
		if cancelStream != nil {
			cancelStream()
			<-streamDone
			cancelStream = nil
		}
	}
	defer stopStream()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-keys:
			if ev.Err != nil {
				return fmt.Errorf("keyboard: %w", ev.Err)
			}
			switch {
			case ev.Key == keyboard.KeyEsc || ev.Key == keyboard.KeyCtrlC || ev.Rune == 'q':
				return nil
			case ev.Rune == 'r':
				stopStream()
				if err := c.reset(ctx); err != nil {
					c.log.Error().Err(err).Msg("reset failed")
				}
			case ev.Rune == 's':
				if cancelStream != nil {
					continue
				}
				var sctx context.Context
				sctx, cancelStream = context.WithCancel(ctx)
				streamDone = make(chan struct{})
				go func(done chan struct{}) {
					defer close(done)
					if err := c.stream(sctx); err != nil && sctx.Err() == nil {
						c.log.Error().Err(err).Msg("stream failed")
					}
				}(streamDone)
			case ev.Rune == 'x':
				stopStream()
			}
		}
	}
}
