package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	BackendLoopback = "loopback"
	BackendGPIO     = "gpio"

	TransportSerial = "serial"
	TransportTCP    = "tcp"

	ModeBinary = "binary"
	ModeText   = "text"

	MaxBitRate = 19200
)

var ErrInvalid = errors.New("config: invalid")

type Config struct {
	BitRate            int
	BufferCapacity     int
	ReceiveTimeout     time.Duration
	HoldForTrailingPad bool
	Debug              bool
	Pins               PinConfig
	Reset              ResetConfig
	Host               HostConfig
	Admin              AdminConfig
}

type PinConfig struct {
	Backend   string
	TxD       string
	RxD       string
	TxClk     string
	RxClk     string
	CTS       string
	DSR       string
	CD        string
	ActiveLow bool
}

type ResetConfig struct {
	NotReadyHold time.Duration
	DSRSettle    time.Duration
	RingOn       time.Duration
	RingOff      time.Duration
	Answer       time.Duration
	CTSSettle    time.Duration
}

type HostConfig struct {
	Transport string
	Device    string
	Baud      int
	Listen    string
	Mode      string
}

// AdminConfig is the HTTP admin surface. An empty Listen disables it.
type AdminConfig struct {
	Listen      string
	CorsOrigins []string
}

func Default() Config {
	return Config{
		BitRate:        2400,
		BufferCapacity: 300,
		ReceiveTimeout: 2 * time.Second,
		Debug:          true,
		Pins: PinConfig{
			Backend:   BackendLoopback,
			TxD:       "GPIO3",
			RxD:       "GPIO9",
			TxClk:     "GPIO16",
			RxClk:     "GPIO14",
			CTS:       "GPIO8",
			DSR:       "GPIO6",
			CD:        "GPIO5",
			ActiveLow: true,
		},
		Reset: ResetConfig{
			NotReadyHold: 2 * time.Second,
			DSRSettle:    500 * time.Millisecond,
			RingOn:       2 * time.Second,
			RingOff:      4 * time.Second,
			Answer:       500 * time.Millisecond,
			CTSSettle:    500 * time.Millisecond,
		},
		Host: HostConfig{
			Transport: TransportSerial,
			Device:    "/dev/ttyACM0",
			Baud:      115200,
			Listen:    "127.0.0.1:7300",
			Mode:      ModeBinary,
		},
		Admin: AdminConfig{
			Listen:      "127.0.0.1:7310",
			CorsOrigins: []string{"http://localhost:3000"},
		},
	}
}

// fileConfig mirrors the on-disk layout. Durations are strings.
type fileConfig struct {
	BitRate            int       `toml:"bit_rate"`
	BufferCapacity     int       `toml:"buffer_capacity"`
	ReceiveTimeout     string    `toml:"receive_timeout"`
	HoldForTrailingPad bool      `toml:"hold_for_trailing_pad"`
	Debug              bool      `toml:"debug"`
	Pins               filePins  `toml:"pins"`
	Reset              fileReset `toml:"reset"`
	Host               fileHost  `toml:"host"`
	Admin              fileAdmin `toml:"admin"`
}

type filePins struct {
	Backend   string `toml:"backend"`
	TxD       string `toml:"txd"`
	RxD       string `toml:"rxd"`
	TxClk     string `toml:"txclk"`
	RxClk     string `toml:"rxclk"`
	CTS       string `toml:"cts"`
	DSR       string `toml:"dsr"`
	CD        string `toml:"cd"`
	ActiveLow bool   `toml:"active_low"`
}

type fileReset struct {
	NotReadyHold string `toml:"not_ready_hold"`
	DSRSettle    string `toml:"dsr_settle"`
	RingOn       string `toml:"ring_on"`
	RingOff      string `toml:"ring_off"`
	Answer       string `toml:"answer"`
	CTSSettle    string `toml:"cts_settle"`
}

type fileHost struct {
	Transport string `toml:"transport"`
	Device    string `toml:"device"`
	Baud      int    `toml:"baud"`
	Listen    string `toml:"listen"`
	Mode      string `toml:"mode"`
}

type fileAdmin struct {
	Listen      string   `toml:"listen"`
	CorsOrigins []string `toml:"cors_origins"`
}

// Load decodes path over Default. Only keys present in the file override.
func Load(path string) (Config, error) {
	cfg := Default()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("%w: unknown key %q", ErrInvalid, undecoded[0].String())
	}

	if meta.IsDefined("bit_rate") {
		cfg.BitRate = raw.BitRate
	}
	if meta.IsDefined("buffer_capacity") {
		cfg.BufferCapacity = raw.BufferCapacity
	}
	if meta.IsDefined("hold_for_trailing_pad") {
		cfg.HoldForTrailingPad = raw.HoldForTrailingPad
	}
	if meta.IsDefined("debug") {
		cfg.Debug = raw.Debug
	}

	durations := []struct {
		keys []string
		raw  string
		dst  *time.Duration
	}{
		{[]string{"receive_timeout"}, raw.ReceiveTimeout, &cfg.ReceiveTimeout},
		{[]string{"reset", "not_ready_hold"}, raw.Reset.NotReadyHold, &cfg.Reset.NotReadyHold},
		{[]string{"reset", "dsr_settle"}, raw.Reset.DSRSettle, &cfg.Reset.DSRSettle},
		{[]string{"reset", "ring_on"}, raw.Reset.RingOn, &cfg.Reset.RingOn},
		{[]string{"reset", "ring_off"}, raw.Reset.RingOff, &cfg.Reset.RingOff},
		{[]string{"reset", "answer"}, raw.Reset.Answer, &cfg.Reset.Answer},
		{[]string{"reset", "cts_settle"}, raw.Reset.CTSSettle, &cfg.Reset.CTSSettle},
	}
	for _, d := range durations {
		if !meta.IsDefined(d.keys...) {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", strings.Join(d.keys, "."), err)
		}
		*d.dst = v
	}

	pinNames := []struct {
		key string
		raw string
		dst *string
	}{
		{"backend", raw.Pins.Backend, &cfg.Pins.Backend},
		{"txd", raw.Pins.TxD, &cfg.Pins.TxD},
		{"rxd", raw.Pins.RxD, &cfg.Pins.RxD},
		{"txclk", raw.Pins.TxClk, &cfg.Pins.TxClk},
		{"rxclk", raw.Pins.RxClk, &cfg.Pins.RxClk},
		{"cts", raw.Pins.CTS, &cfg.Pins.CTS},
		{"dsr", raw.Pins.DSR, &cfg.Pins.DSR},
		{"cd", raw.Pins.CD, &cfg.Pins.CD},
	}
	for _, p := range pinNames {
		if meta.IsDefined("pins", p.key) {
			*p.dst = strings.TrimSpace(p.raw)
		}
	}
	if meta.IsDefined("pins", "active_low") {
		cfg.Pins.ActiveLow = raw.Pins.ActiveLow
	}

	if meta.IsDefined("host", "transport") {
		cfg.Host.Transport = strings.ToLower(strings.TrimSpace(raw.Host.Transport))
	}
	if meta.IsDefined("host", "device") {
		cfg.Host.Device = strings.TrimSpace(raw.Host.Device)
	}
	if meta.IsDefined("host", "baud") {
		cfg.Host.Baud = raw.Host.Baud
	}
	if meta.IsDefined("host", "listen") {
		cfg.Host.Listen = strings.TrimSpace(raw.Host.Listen)
	}
	if meta.IsDefined("host", "mode") {
		cfg.Host.Mode = strings.ToLower(strings.TrimSpace(raw.Host.Mode))
	}

	if meta.IsDefined("admin", "listen") {
		cfg.Admin.Listen = strings.TrimSpace(raw.Admin.Listen)
	}
	if meta.IsDefined("admin", "cors_origins") {
		cfg.Admin.CorsOrigins = normalizeOrigins(raw.Admin.CorsOrigins)
	}

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func Validate(cfg Config) error {
	if cfg.BitRate < 1 || cfg.BitRate > MaxBitRate {
		return fmt.Errorf("%w: bit_rate %d outside 1..%d", ErrInvalid, cfg.BitRate, MaxBitRate)
	}
	if cfg.BufferCapacity < 2 {
		return fmt.Errorf("%w: buffer_capacity %d below 2", ErrInvalid, cfg.BufferCapacity)
	}
	if cfg.ReceiveTimeout <= 0 {
		return fmt.Errorf("%w: receive_timeout must be positive", ErrInvalid)
	}
	for name, d := range map[string]time.Duration{
		"not_ready_hold": cfg.Reset.NotReadyHold,
		"dsr_settle":     cfg.Reset.DSRSettle,
		"ring_on":        cfg.Reset.RingOn,
		"ring_off":       cfg.Reset.RingOff,
		"answer":         cfg.Reset.Answer,
		"cts_settle":     cfg.Reset.CTSSettle,
	} {
		if d < 0 {
			return fmt.Errorf("%w: reset.%s is negative", ErrInvalid, name)
		}
	}

	switch cfg.Pins.Backend {
	case BackendLoopback:
	case BackendGPIO:
		if cfg.Pins.TxD == "" || cfg.Pins.RxD == "" {
			return fmt.Errorf("%w: gpio backend needs pins.txd and pins.rxd", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown pins.backend %q", ErrInvalid, cfg.Pins.Backend)
	}

	switch cfg.Host.Transport {
	case TransportSerial:
		if cfg.Host.Device == "" {
			return fmt.Errorf("%w: serial transport needs host.device", ErrInvalid)
		}
		if cfg.Host.Baud <= 0 {
			return fmt.Errorf("%w: host.baud must be positive", ErrInvalid)
		}
	case TransportTCP:
		if cfg.Host.Listen == "" {
			return fmt.Errorf("%w: tcp transport needs host.listen", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown host.transport %q", ErrInvalid, cfg.Host.Transport)
	}

	switch cfg.Host.Mode {
	case ModeBinary, ModeText:
	default:
		return fmt.Errorf("%w: unknown host.mode %q", ErrInvalid, cfg.Host.Mode)
	}
	return nil
}

func normalizeOrigins(in []string) []string {
	out := make([]string, 0, len(in))
	for _, origin := range in {
		v := strings.TrimSpace(origin)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}
