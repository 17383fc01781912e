package wifi

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func fakeHostapd(t *testing.T, script string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts unavailable")
	}
	path := filepath.Join(t.TempDir(), "hostapd")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755); err != nil {
		t.Fatalf("write fake hostapd: %v", err)
	}
	return path
}

func TestHostapdLifecycle(t *testing.T) {
	bin := fakeHostapd(t, `echo "wlan0: interface state UNINITIALIZED->ENABLED"
echo "wlan0: AP-ENABLED"
sleep 0.2
echo "wlan0: AP-DISABLED"
exec sleep 5
`)
	dir := t.TempDir()
	h := NewHostapd(bin, "wlan0", dir, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := h.Start(ctx); err == nil {
		t.Fatalf("expected error when starting unconfigured hostapd")
	}
	if err := h.SetConfiguration(DefaultAPConfig()); err != nil {
		t.Fatalf("SetConfiguration returned error: %v", err)
	}
	conf, err := os.ReadFile(filepath.Join(dir, "hostapd-wlan0.conf"))
	if err != nil {
		t.Fatalf("config not written: %v", err)
	}
	if !strings.Contains(string(conf), "ssid=ion-esp-diag") {
		t.Fatalf("unexpected config:\n%s", conf)
	}

	if err := h.Start(ctx); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	if started, _ := h.IsStarted(); !started {
		t.Fatalf("expected AP to be started")
	}

	if err := h.WaitForEvent(ctx, EventAPStop); err != nil {
		t.Fatalf("WaitForEvent returned error: %v", err)
	}
	if started, _ := h.IsStarted(); started {
		t.Fatalf("expected AP to be stopped")
	}
}

func TestHostapdExitBeforeEnable(t *testing.T) {
	bin := fakeHostapd(t, "echo 'could not configure driver mode'\nexit 1\n")
	h := NewHostapd(bin, "wlan0", t.TempDir(), zerolog.Nop())
	if err := h.SetConfiguration(DefaultAPConfig()); err != nil {
		t.Fatalf("SetConfiguration returned error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.Start(ctx); err == nil {
		t.Fatalf("expected start failure when hostapd exits")
	}
	if err := h.WaitForEvent(ctx, EventAPStop); err != nil {
		t.Fatalf("stop event should already be raised: %v", err)
	}
}

func TestHostapdStop(t *testing.T) {
	bin := fakeHostapd(t, `echo "wlan0: AP-ENABLED"
exec sleep 5
`)
	h := NewHostapd(bin, "wlan0", t.TempDir(), zerolog.Nop())
	if err := h.Stop(); err != nil {
		t.Fatalf("Stop before Start returned error: %v", err)
	}
	if err := h.SetConfiguration(DefaultAPConfig()); err != nil {
		t.Fatalf("SetConfiguration returned error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.Start(ctx); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	if err := h.WaitForEvent(ctx, EventAPStart); err != nil {
		t.Fatalf("start event not raised: %v", err)
	}

	if err := h.Stop(); err != nil {
		t.Fatalf("Stop returned error: %v", err)
	}
	if err := h.WaitForEvent(ctx, EventAPStop); err != nil {
		t.Fatalf("stop event not raised after Stop: %v", err)
	}
	if started, _ := h.IsStarted(); started {
		t.Fatalf("expected AP to be stopped")
	}
}
