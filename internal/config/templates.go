package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

const templateHeader = `# bscdce configuration.
# pins.backend: loopback | gpio
# host.transport: serial | tcp
# host.mode: binary | text
# An empty admin.listen disables the admin HTTP API.

`

// Template renders Default as TOML.
func Template() (string, error) {
	data, err := toml.Marshal(toFile(Default()))
	if err != nil {
		return "", fmt.Errorf("render config template: %w", err)
	}
	return templateHeader + string(data), nil
}

func WriteTemplate(path string, overwrite bool) error {
	template, err := Template()
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

func toFile(cfg Config) fileConfig {
	return fileConfig{
		BitRate:            cfg.BitRate,
		BufferCapacity:     cfg.BufferCapacity,
		ReceiveTimeout:     cfg.ReceiveTimeout.String(),
		HoldForTrailingPad: cfg.HoldForTrailingPad,
		Debug:              cfg.Debug,
		Pins: filePins{
			Backend:   cfg.Pins.Backend,
			TxD:       cfg.Pins.TxD,
			RxD:       cfg.Pins.RxD,
			TxClk:     cfg.Pins.TxClk,
			RxClk:     cfg.Pins.RxClk,
			CTS:       cfg.Pins.CTS,
			DSR:       cfg.Pins.DSR,
			CD:        cfg.Pins.CD,
			ActiveLow: cfg.Pins.ActiveLow,
		},
		Reset: fileReset{
			NotReadyHold: cfg.Reset.NotReadyHold.String(),
			DSRSettle:    cfg.Reset.DSRSettle.String(),
			RingOn:       cfg.Reset.RingOn.String(),
			RingOff:      cfg.Reset.RingOff.String(),
			Answer:       cfg.Reset.Answer.String(),
			CTSSettle:    cfg.Reset.CTSSettle.String(),
		},
		Host: fileHost{
			Transport: cfg.Host.Transport,
			Device:    cfg.Host.Device,
			Baud:      cfg.Host.Baud,
			Listen:    cfg.Host.Listen,
			Mode:      cfg.Host.Mode,
		},
		Admin: fileAdmin{
			Listen:      cfg.Admin.Listen,
			CorsOrigins: cfg.Admin.CorsOrigins,
		},
	}
}
