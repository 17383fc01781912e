package main

import (
	"io"
	"strings"
	"testing"

	"candiag/internal/bridge"
)

func TestParseFlagsDefaults(t *testing.T) {
	cfg, err := parseFlags(nil, io.Discard)
	if err != nil {
		t.Fatalf("parseFlags returned error: %v", err)
	}
	if cfg.CAN != "socketcan:can0" || cfg.CANBitrate != 250000 {
		t.Fatalf("unexpected CAN defaults %+v", cfg)
	}
	if cfg.Listen != ":8080" || cfg.HTTP != ":8081" {
		t.Fatalf("unexpected listen defaults %q %q", cfg.Listen, cfg.HTTP)
	}
	if cfg.Queue != bridge.DefaultCapacity {
		t.Fatalf("expected queue %d, got %d", bridge.DefaultCapacity, cfg.Queue)
	}
	if cfg.Restart != "reboot" || cfg.Format != "candump" || cfg.WiFi != "hostapd" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
}

func TestParseFlagsOverrides(t *testing.T) {
	args := []string{
		"-can", "slcan:/dev/ttyACM0",
		"-wifi", "sim",
		"-restart", "exit",
		"-format", "slcan",
		"-queue", "4",
		"-log-level", "debug",
	}
	cfg, err := parseFlags(args, io.Discard)
	if err != nil {
		t.Fatalf("parseFlags returned error: %v", err)
	}
	if cfg.CAN != "slcan:/dev/ttyACM0" || cfg.WiFi != "sim" || cfg.Restart != "exit" || cfg.Queue != 4 {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
}

func TestParseFlagsRejectsInvalid(t *testing.T) {
	cases := map[string][]string{
		"controller":   {"-can", "usb:0"},
		"missing arg":  {"-can", "socketcan:"},
		"wifi":         {"-wifi", "mesh"},
		"restart":      {"-restart", "halt"},
		"format":       {"-format", "json"},
		"queue":        {"-queue", "0"},
		"log level":    {"-log-level", "loud"},
		"bitrate":      {"-can-bitrate", "0"},
		"unknown flag": {"-period", "100"},
	}
	for name, args := range cases {
		if _, err := parseFlags(args, io.Discard); err == nil {
			t.Errorf("%s: expected error for %s", name, strings.Join(args, " "))
		}
	}
}
