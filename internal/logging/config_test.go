package logging

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func TestParseLevel(t *testing.T) {
	cases := []struct {
		raw  string
		want zerolog.Level
		ok   bool
	}{
		{"debug", zerolog.DebugLevel, true},
		{" WARN ", zerolog.WarnLevel, true},
		{"off", zerolog.Disabled, true},
		{"", zerolog.InfoLevel, false},
		{"loud", zerolog.InfoLevel, false},
	}
	for _, tc := range cases {
		got, ok := ParseLevel(tc.raw)
		if got != tc.want || ok != tc.ok {
			t.Fatalf("ParseLevel(%q) = %v,%v want %v,%v", tc.raw, got, ok, tc.want, tc.ok)
		}
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv(EnvLogLevel, "error")
	t.Setenv(EnvLogTimestamp, "true")
	t.Setenv(EnvLogNoColor, "1")

	cfg := defaultConfig(ProfileTest)
	applyEnvOverrides(&cfg)
	if cfg.Level != zerolog.ErrorLevel {
		t.Fatalf("unexpected level: %v", cfg.Level)
	}
	if !cfg.Timestamp || !cfg.NoColor {
		t.Fatalf("unexpected flags: %+v", cfg)
	}
}

func TestSetDebug(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.DebugLevel)

	SetDebug(false)
	if zerolog.GlobalLevel() != zerolog.InfoLevel {
		t.Fatalf("expected info level, got %v", zerolog.GlobalLevel())
	}
	SetDebug(true)
	if zerolog.GlobalLevel() != zerolog.DebugLevel {
		t.Fatalf("expected debug level, got %v", zerolog.GlobalLevel())
	}
}

func TestEnvLevelPinsAgainstSetDebug(t *testing.T) {
	t.Setenv(EnvLogLevel, "warn")
	prev := log.Logger
	defer func() {
		log.Logger = prev
		levelPinned.Store(false)
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}()

	cfg := Resolve(ProfileRuntime)
	if cfg.Level != zerolog.WarnLevel || !cfg.LevelPinned {
		t.Fatalf("unexpected resolved config: %+v", cfg)
	}
	cfg.App = "bscdce"
	Apply(cfg)
	SetDebug(true)
	if zerolog.GlobalLevel() != zerolog.WarnLevel {
		t.Fatalf("pinned level overridden: %v", zerolog.GlobalLevel())
	}
}
