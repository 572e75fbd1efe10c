package modem

import (
	"fmt"
	"strings"

	"github.com/danmuck/bscdce/internal/pins"
)

// Lines are named from the terminal's side of the interface, so TxD is an
// input here and RxD is an output.
type Lines struct {
	TxD   pins.Input
	RxD   pins.Output
	TxClk pins.Output
	RxClk pins.Output
	CTS   pins.Output
	DSR   pins.Output
	CD    pins.Output
}

// PinNames maps each line to a board pin name.
type PinNames struct {
	TxD   string
	RxD   string
	TxClk string
	RxClk string
	CTS   string
	DSR   string
	CD    string
}

func DefaultPinNames() PinNames {
	return PinNames{
		TxD:   "GPIO3",
		RxD:   "GPIO9",
		TxClk: "GPIO16",
		RxClk: "GPIO14",
		CTS:   "GPIO8",
		DSR:   "GPIO6",
		CD:    "GPIO5",
	}
}

// Loopback wires RxD straight back into TxD so everything sent is also
// received. Every field is a *pins.Line.
func Loopback() Lines {
	data := pins.NewLine(pins.Mark)
	return Lines{
		TxD:   data,
		RxD:   data,
		TxClk: pins.NewLine(false),
		RxClk: pins.NewLine(false),
		CTS:   pins.NewLine(true),
		DSR:   pins.NewLine(true),
		CD:    pins.NewLine(true),
	}
}

// OpenGPIO claims the named pins. Control outputs start released for the
// given polarity and the data output starts at mark.
func OpenGPIO(names PinNames, activeLow bool) (Lines, error) {
	var lines Lines
	var err error

	if lines.TxD, err = pins.OpenGPIOInput(names.TxD); err != nil {
		return Lines{}, fmt.Errorf("open txd: %w", err)
	}

	outputs := []struct {
		label   string
		name    string
		initial bool
		dst     *pins.Output
	}{
		{"rxd", names.RxD, pins.Mark, &lines.RxD},
		{"txclk", names.TxClk, false, &lines.TxClk},
		{"rxclk", names.RxClk, false, &lines.RxClk},
		{"cts", names.CTS, activeLow, &lines.CTS},
		{"dsr", names.DSR, activeLow, &lines.DSR},
		{"cd", names.CD, activeLow, &lines.CD},
	}
	for _, o := range outputs {
		if strings.TrimSpace(o.name) == "" {
			*o.dst = pins.Discard{}
			continue
		}
		out, err := pins.OpenGPIOOutput(o.name, o.initial)
		if err != nil {
			return Lines{}, fmt.Errorf("open %s: %w", o.label, err)
		}
		*o.dst = out
	}
	return lines, nil
}

func (l Lines) withDefaults() Lines {
	if l.TxD == nil {
		l.TxD = pins.NewLine(pins.Mark)
	}
	for _, o := range []*pins.Output{&l.RxD, &l.TxClk, &l.RxClk, &l.CTS, &l.DSR, &l.CD} {
		if *o == nil {
			*o = pins.Discard{}
		}
	}
	return l
}
