package wifi

import (
	"errors"
	"strings"
	"testing"
)

func TestDefaultAPConfig(t *testing.T) {
	cfg := DefaultAPConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default configuration invalid: %v", err)
	}
	if cfg.Channel != 1 || cfg.MaxConnections != 5 || cfg.Auth != AuthWPA2Personal {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if got := cfg.Protocols.String(); got != "802.11b/g/n" {
		t.Fatalf("unexpected protocol set %q", got)
	}
}

func TestAPConfigValidate(t *testing.T) {
	mutate := []func(*APConfig){
		func(c *APConfig) { c.SSID = "" },
		func(c *APConfig) { c.SSID = strings.Repeat("x", 33) },
		func(c *APConfig) { c.Channel = 0 },
		func(c *APConfig) { c.Channel = 14 },
		func(c *APConfig) { c.Protocols = 0 },
		func(c *APConfig) { c.MaxConnections = 0 },
		func(c *APConfig) { c.Password = "short" },
		func(c *APConfig) { c.Auth = AuthMethod(7) },
	}
	for i, m := range mutate {
		cfg := DefaultAPConfig()
		m(&cfg)
		if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
			t.Fatalf("case %d: expected ErrInvalidConfig, got %v", i, err)
		}
	}

	open := DefaultAPConfig()
	open.Auth = AuthNone
	open.Password = ""
	if err := open.Validate(); err != nil {
		t.Fatalf("open network should be valid: %v", err)
	}
}

func TestRenderHostapdConfig(t *testing.T) {
	conf, err := RenderHostapdConfig("wlan0", DefaultAPConfig())
	if err != nil {
		t.Fatalf("RenderHostapdConfig returned error: %v", err)
	}
	text := string(conf)
	for _, want := range []string{
		"interface=wlan0\n",
		"ssid=ion-esp-diag\n",
		"ignore_broadcast_ssid=0\n",
		"channel=1\n",
		"hw_mode=g\n",
		"ieee80211n=1\n",
		"max_num_sta=5\n",
		"wpa=2\n",
		"wpa_passphrase=p@ssw0rd\n",
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("missing %q in\n%s", want, text)
		}
	}

	open := DefaultAPConfig()
	open.Auth = AuthNone
	open.Protocols = Protocol80211B
	conf, err = RenderHostapdConfig("wlan1", open)
	if err != nil {
		t.Fatalf("RenderHostapdConfig returned error: %v", err)
	}
	if strings.Contains(string(conf), "wpa=") {
		t.Fatalf("open network must not carry WPA settings:\n%s", conf)
	}
	if !strings.Contains(string(conf), "hw_mode=b\n") || !strings.HasSuffix(string(conf), "max_num_sta=5\n") {
		t.Fatalf("unexpected open network config:\n%s", conf)
	}
}
