package config

import (
	"github.com/danmuck/bscdce/internal/hostlink"
	"github.com/danmuck/bscdce/internal/modem"
)

func (c Config) ModemConfig() modem.Config {
	return modem.Config{
		BitRate:            c.BitRate,
		BufferCapacity:     c.BufferCapacity,
		ReceiveTimeout:     c.ReceiveTimeout,
		HoldForTrailingPad: c.HoldForTrailingPad,
		ActiveLow:          c.Pins.ActiveLow,
		Reset: modem.ResetTiming{
			NotReadyHold: c.Reset.NotReadyHold,
			DSRSettle:    c.Reset.DSRSettle,
			RingOn:       c.Reset.RingOn,
			RingOff:      c.Reset.RingOff,
			Answer:       c.Reset.Answer,
			CTSSettle:    c.Reset.CTSSettle,
		},
	}
}

func (c Config) PinNames() modem.PinNames {
	return modem.PinNames{
		TxD:   c.Pins.TxD,
		RxD:   c.Pins.RxD,
		TxClk: c.Pins.TxClk,
		RxClk: c.Pins.RxClk,
		CTS:   c.Pins.CTS,
		DSR:   c.Pins.DSR,
		CD:    c.Pins.CD,
	}
}

// OpenLines builds the modem lines for the configured backend.
func (c Config) OpenLines() (modem.Lines, error) {
	if c.Pins.Backend == BackendGPIO {
		return modem.OpenGPIO(c.PinNames(), c.Pins.ActiveLow)
	}
	return modem.Loopback(), nil
}

func (c Config) HostOptions() hostlink.Options {
	mode, err := hostlink.ParseMode(c.Host.Mode)
	if err != nil {
		mode = hostlink.ModeBinary
	}
	return hostlink.Options{Mode: mode, Debug: c.Debug}
}
