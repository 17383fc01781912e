package main

import (
	"bytes"
	"context"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"candiag/internal/diag"
)

func TestStreamConn(t *testing.T) {
	clientSide, serverSide := net.Pipe()
	defer clientSide.Close()

	greeting := make(chan string, 1)
	go func() {
		defer serverSide.Close()
		buf := make([]byte, diag.CommandBufferSize)
		n, err := serverSide.Read(buf)
		if err != nil {
			return
		}
		greeting <- string(buf[:n])
		io.WriteString(serverSide, "18DAF100   [8]  01 02 03 04 05 06 07 08\n")
		io.WriteString(serverSide, "18DAF101   [1]  FF\n")
	}()

	var out, capture bytes.Buffer
	c := &client{greeting: []byte("hi"), out: &out, capture: newCaptureWriter(&capture), log: zerolog.Nop()}
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	c.capture.now = func() time.Time { return fixed }

	n, err := c.streamConn(clientSide)
	if err != nil {
		t.Fatalf("streamConn returned error: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 records, got %d", n)
	}
	if got := <-greeting; got != "hi" {
		t.Fatalf("expected greeting %q, got %q", "hi", got)
	}
	if !strings.HasPrefix(out.String(), "18DAF100   [8]") {
		t.Fatalf("unexpected output %q", out.String())
	}

	recs, err := readCapture(&capture)
	if err != nil {
		t.Fatalf("readCapture returned error: %v", err)
	}
	if len(recs) != 2 || recs[1].Line != "18DAF101   [1]  FF" || !recs[0].Time.Equal(fixed) {
		t.Fatalf("unexpected capture %+v", recs)
	}
}

func TestStreamConnRejectsResetGreeting(t *testing.T) {
	c := &client{greeting: []byte{diag.ResetTrigger}, out: io.Discard, log: zerolog.Nop()}
	if _, err := c.streamConn(&bytes.Buffer{}); err == nil {
		t.Fatalf("expected error for a greeting equal to the reset trigger")
	}
}

func TestResetSendsTrigger(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	got := make(chan []byte, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		data, _ := io.ReadAll(conn)
		got <- data
	}()

	c := &client{addr: ln.Addr().String(), timeout: time.Second, out: io.Discard, log: zerolog.Nop()}
	if err := c.reset(context.Background()); err != nil {
		t.Fatalf("reset returned error: %v", err)
	}

	select {
	case data := <-got:
		if !bytes.Equal(data, []byte{0xFA}) {
			t.Fatalf("expected exactly [0xFA], got %x", data)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("server never received the trigger")
	}
}

func TestPrintCapture(t *testing.T) {
	var buf bytes.Buffer
	w := newCaptureWriter(&buf)
	w.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	if err := w.Write("T18DAF1001FF"); err != nil {
		t.Fatalf("write: %v", err)
	}

	var out bytes.Buffer
	n, err := printCapture(&buf, &out)
	if err != nil || n != 1 {
		t.Fatalf("printCapture = %d, %v", n, err)
	}
	if out.String() != "2024-05-01T12:00:00Z T18DAF1001FF\n" {
		t.Fatalf("unexpected output %q", out.String())
	}
}
