package observability

import (
	"github.com/danmuck/bscdce/internal/logging"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// InitLogger installs the runtime logging profile, with its environment
// overrides, tagged with app as the global logger.
func InitLogger(app string) zerolog.Logger {
	cfg := logging.Resolve(logging.ProfileRuntime)
	cfg.App = app
	logging.Apply(cfg)
	return log.Logger
}
