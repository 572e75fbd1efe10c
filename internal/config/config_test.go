package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/bscdce/internal/hostlink"
	"github.com/danmuck/bscdce/internal/testutil/testlog"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bscdce.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadOverridesOnlyDefinedKeys(t *testing.T) {
	testlog.Start(t)

	path := writeConfig(t, `
bit_rate = 4800
receive_timeout = "750ms"
debug = false

[pins]
backend = "gpio"
txd = " GPIO17 "
active_low = false

[reset]
ring_off = "1s"

[host]
transport = "TCP"
mode = "text"

[admin]
listen = ""
cors_origins = [" http://a ", ""]
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	def := Default()

	if cfg.BitRate != 4800 || cfg.ReceiveTimeout != 750*time.Millisecond || cfg.Debug {
		t.Fatalf("top-level overrides not applied: %+v", cfg)
	}
	if cfg.BufferCapacity != def.BufferCapacity || cfg.HoldForTrailingPad {
		t.Fatalf("undefined keys changed: %+v", cfg)
	}
	if cfg.Pins.Backend != BackendGPIO || cfg.Pins.TxD != "GPIO17" || cfg.Pins.ActiveLow {
		t.Fatalf("pin overrides not applied: %+v", cfg.Pins)
	}
	if cfg.Pins.RxD != def.Pins.RxD {
		t.Fatalf("rxd changed: %q", cfg.Pins.RxD)
	}
	if cfg.Reset.RingOff != time.Second || cfg.Reset.RingOn != def.Reset.RingOn {
		t.Fatalf("reset overrides wrong: %+v", cfg.Reset)
	}
	if cfg.Host.Transport != TransportTCP || cfg.Host.Mode != ModeText || cfg.Host.Listen != def.Host.Listen {
		t.Fatalf("host overrides wrong: %+v", cfg.Host)
	}
	if cfg.Admin.Listen != "" || len(cfg.Admin.CorsOrigins) != 1 || cfg.Admin.CorsOrigins[0] != "http://a" {
		t.Fatalf("admin overrides wrong: %+v", cfg.Admin)
	}
}

func TestLoadRejectsBadInput(t *testing.T) {
	testlog.Start(t)

	cases := map[string]string{
		"bit rate":      "bit_rate = 0\n",
		"fast":          "bit_rate = 38400\n",
		"capacity":      "buffer_capacity = 1\n",
		"backend":       "[pins]\nbackend = \"spi\"\n",
		"transport":     "[host]\ntransport = \"usb\"\n",
		"mode":          "[host]\nmode = \"morse\"\n",
		"unknown key":   "bitrate = 2400\n",
		"negative":      "[reset]\nring_on = \"-1s\"\n",
		"empty device": "[host]\ndevice = \"\"\n",
		"gpio no pins": "[pins]\nbackend = \"gpio\"\ntxd = \"\"\n",
	}
	for name, body := range cases {
		if _, err := Load(writeConfig(t, body)); !errors.Is(err, ErrInvalid) {
			t.Fatalf("%s: expected ErrInvalid, got %v", name, err)
		}
	}

	if _, err := Load(writeConfig(t, "receive_timeout = \"soon\"\n")); err == nil {
		t.Fatalf("expected duration parse error")
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatalf("expected missing file error")
	}
}

func TestTemplateRoundTripsDefaults(t *testing.T) {
	testlog.Start(t)

	path := filepath.Join(t.TempDir(), "bscdce.toml")
	if err := WriteTemplate(path, false); err != nil {
		t.Fatalf("write template: %v", err)
	}
	if err := WriteTemplate(path, false); err == nil {
		t.Fatalf("expected refusal to overwrite")
	}
	if err := WriteTemplate(path, true); err != nil {
		t.Fatalf("overwrite template: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load template: %v", err)
	}
	def := Default()
	if cfg.BitRate != def.BitRate || cfg.Reset != def.Reset || cfg.Host != def.Host || cfg.Pins != def.Pins {
		t.Fatalf("template does not reproduce defaults: %+v", cfg)
	}

	body, _ := os.ReadFile(path)
	if !strings.Contains(string(body), "receive_timeout = '2s'") && !strings.Contains(string(body), `receive_timeout = "2s"`) {
		t.Fatalf("unexpected template body:\n%s", body)
	}
}

func TestConversions(t *testing.T) {
	testlog.Start(t)

	cfg := Default()
	cfg.Host.Mode = ModeText
	cfg.Reset.Answer = time.Millisecond

	mc := cfg.ModemConfig()
	if mc.BitRate != cfg.BitRate || mc.Reset.Answer != time.Millisecond || !mc.ActiveLow {
		t.Fatalf("unexpected modem config: %+v", mc)
	}
	if got := cfg.HostOptions(); got.Mode != hostlink.ModeText || !got.Debug {
		t.Fatalf("unexpected host options: %+v", got)
	}
	if cfg.PinNames().CD != "GPIO5" {
		t.Fatalf("unexpected pin names: %+v", cfg.PinNames())
	}
	lines, err := cfg.OpenLines()
	if err != nil || lines.TxD == nil {
		t.Fatalf("loopback lines: %v", err)
	}
}

func TestWatchReloadsOnWrite(t *testing.T) {
	testlog.Start(t)

	path := writeConfig(t, "bit_rate = 2400\n")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan Config, 4)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, func(c Config) {
			select {
			case changes <- c:
			default:
			}
		})
	}()

	// The watcher registers asynchronously; keep rewriting until it reports.
	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case cfg := <-changes:
			// A reload can race the truncate half of a rewrite and see defaults.
			if cfg.BitRate != 1200 {
				continue
			}
			cancel()
			if err := <-done; err != nil {
				t.Fatalf("watch: %v", err)
			}
			return
		case <-tick.C:
			if err := os.WriteFile(path, []byte("bit_rate = 1200\n"), 0o600); err != nil {
				t.Fatalf("rewrite: %v", err)
			}
		case <-deadline:
			t.Fatalf("no reload observed")
		}
	}
}
