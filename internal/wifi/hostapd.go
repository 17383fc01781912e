package wifi

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"text/template"

	"github.com/rs/zerolog"
	"github.com/sasha-s/go-deadlock"
)

var hostapdTemplate = template.Must(template.New("hostapd.conf").Parse(`interface={{.Interface}}
driver=nl80211
ssid={{.SSID}}
ignore_broadcast_ssid={{if .Hidden}}1{{else}}0{{end}}
channel={{.Channel}}
hw_mode={{.HWMode}}
ieee80211n={{if .N}}1{{else}}0{{end}}
max_num_sta={{.MaxConnections}}
{{- if .WPA2}}
wpa=2
wpa_key_mgmt=WPA-PSK
rsn_pairwise=CCMP
wpa_passphrase={{.Password}}
{{- end}}
`))

// RenderHostapdConfig renders cfg as a hostapd.conf for iface.
func RenderHostapdConfig(iface string, cfg APConfig) ([]byte, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	hwMode := "g"
	if cfg.Protocols&(Protocol80211G|Protocol80211N) == 0 {
		hwMode = "b"
	}
	data := struct {
		APConfig
		Interface string
		HWMode    string
		N         bool
		WPA2      bool
	}{
		APConfig:  cfg,
		Interface: iface,
		HWMode:    hwMode,
		N:         cfg.Protocols&Protocol80211N != 0,
		WPA2:      cfg.Auth == AuthWPA2Personal,
	}

	var buf bytes.Buffer
	if err := hostapdTemplate.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("wifi: render hostapd config: %w", err)
	}
	return buf.Bytes(), nil
}

// Hostapd runs the access point through a hostapd process. The AP counts as
// started once hostapd reports AP-ENABLED; AP-DISABLED or the process exiting
// raises the stop event.
type Hostapd struct {
	bin      string
	iface    string
	confPath string
	log      zerolog.Logger

	mu         deadlock.Mutex
	configured bool
	running    bool
	enabled    bool
	enabledCh  chan struct{}
	stoppedCh  chan struct{}
	proc       *os.Process
}

// NewHostapd manages hostapd on iface, writing its configuration into dir.
func NewHostapd(bin, iface, dir string, log zerolog.Logger) *Hostapd {
	return &Hostapd{
		bin:       bin,
		iface:     iface,
		confPath:  filepath.Join(dir, "hostapd-"+iface+".conf"),
		log:       log,
		enabledCh: make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

func (h *Hostapd) IsStarted() (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.running && h.enabled, nil
}

func (h *Hostapd) SetConfiguration(cfg APConfig) error {
	conf, err := RenderHostapdConfig(h.iface, cfg)
	if err != nil {
		return err
	}
	if err := os.WriteFile(h.confPath, conf, 0o600); err != nil {
		return fmt.Errorf("wifi: write %s: %w", h.confPath, err)
	}
	h.mu.Lock()
	h.configured = true
	h.mu.Unlock()
	return nil
}

// Start launches hostapd and waits for the AP to be enabled. The process is
// killed when ctx ends.
func (h *Hostapd) Start(ctx context.Context) error {
	h.mu.Lock()
	if !h.configured {
		h.mu.Unlock()
		return errors.New("wifi: hostapd: start before configuration")
	}
	if h.running {
		h.mu.Unlock()
		return nil
	}

	cmd := exec.CommandContext(ctx, h.bin, h.confPath)
	out, err := cmd.StdoutPipe()
	if err != nil {
		h.mu.Unlock()
		return fmt.Errorf("wifi: hostapd stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		h.mu.Unlock()
		return fmt.Errorf("wifi: start %s: %w", h.bin, err)
	}
	enabled := make(chan struct{})
	stopped := make(chan struct{})
	h.running = true
	h.enabled = false
	h.enabledCh = enabled
	h.stoppedCh = stopped
	h.proc = cmd.Process
	h.mu.Unlock()

	h.log.Debug().Int("pid", cmd.Process.Pid).Str("config", h.confPath).Msg("hostapd launched")
	go h.watch(cmd, out, enabled, stopped)

	select {
	case <-enabled:
		return nil
	case <-stopped:
		return fmt.Errorf("wifi: hostapd exited before enabling %s", h.iface)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hostapd) watch(cmd *exec.Cmd, out io.Reader, enabled, stopped chan struct{}) {
	var once sync.Once
	sc := bufio.NewScanner(out)
	for sc.Scan() {
		line := sc.Text()
		h.log.Debug().Str("line", line).Msg("hostapd")
		switch {
		case strings.Contains(line, "AP-ENABLED"):
			h.mu.Lock()
			h.enabled = true
			h.mu.Unlock()
			once.Do(func() { close(enabled) })
		case strings.Contains(line, "AP-DISABLED"):
			h.mu.Lock()
			h.enabled = false
			h.mu.Unlock()
			_ = cmd.Process.Kill()
		}
	}

	err := cmd.Wait()
	h.mu.Lock()
	h.running = false
	h.enabled = false
	h.proc = nil
	h.mu.Unlock()
	if err != nil {
		h.log.Warn().Err(err).Msg("hostapd exited")
	} else {
		h.log.Info().Msg("hostapd exited")
	}
	close(stopped)
}

func (h *Hostapd) WaitForEvent(ctx context.Context, ev Event) error {
	h.mu.Lock()
	var (
		ch    chan struct{}
		ready bool
	)
	switch ev {
	case EventAPStart:
		ch, ready = h.enabledCh, h.running && h.enabled
	case EventAPStop:
		ch, ready = h.stoppedCh, !h.running
	default:
		h.mu.Unlock()
		return fmt.Errorf("wifi: hostapd: unsupported event %v", ev)
	}
	h.mu.Unlock()

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

// Stop terminates hostapd; the stop event follows once the process exits.
func (h *Hostapd) Stop() error {
	h.mu.Lock()
	proc := h.proc
	h.mu.Unlock()
	if proc == nil {
		return nil
	}
	if err := proc.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("wifi: stop hostapd: %w", err)
	}
	return nil
}
