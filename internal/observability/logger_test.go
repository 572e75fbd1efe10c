package observability

import (
	"testing"

	"github.com/danmuck/bscdce/internal/logging"
	"github.com/danmuck/bscdce/internal/testutil/testlog"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func TestInitLoggerKeepsEnvProfile(t *testing.T) {
	testlog.Start(t)
	t.Setenv(logging.EnvLogLevel, "error")
	prev := log.Logger
	defer func() {
		logging.Apply(logging.Config{Level: zerolog.DebugLevel})
		log.Logger = prev
	}()

	InitLogger("bscdce")
	if got := zerolog.GlobalLevel(); got != zerolog.ErrorLevel {
		t.Fatalf("level after InitLogger = %v, want error", got)
	}
	logging.SetDebug(true)
	if got := zerolog.GlobalLevel(); got != zerolog.ErrorLevel {
		t.Fatalf("config debug flag overrode env level: %v", got)
	}
}
