package pins

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

var ErrUnknownPin = errors.New("pins: unknown gpio pin")

var (
	hostOnce sync.Once
	hostErr  error
)

func initHost() error {
	hostOnce.Do(func() {
		_, hostErr = host.Init()
	})
	return hostErr
}

// GPIOOutput drives a periph.io pin.
type GPIOOutput struct {
	pin gpio.PinIO
}

// GPIOInput samples a periph.io pin with the pull-up enabled so an
// unconnected line reads as mark.
type GPIOInput struct {
	pin gpio.PinIO
}

func lookup(name string) (gpio.PinIO, error) {
	if err := initHost(); err != nil {
		return nil, fmt.Errorf("pins: host init: %w", err)
	}
	name = strings.TrimSpace(name)
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPin, name)
	}
	return p, nil
}

// OpenGPIOOutput configures name as an output at the given initial level.
func OpenGPIOOutput(name string, initial bool) (*GPIOOutput, error) {
	p, err := lookup(name)
	if err != nil {
		return nil, err
	}
	if err := p.Out(gpio.Level(initial)); err != nil {
		return nil, fmt.Errorf("pins: configure %s as output: %w", name, err)
	}
	return &GPIOOutput{pin: p}, nil
}

// OpenGPIOInput configures name as a pulled-up input.
func OpenGPIOInput(name string) (*GPIOInput, error) {
	p, err := lookup(name)
	if err != nil {
		return nil, err
	}
	if err := p.In(gpio.PullUp, gpio.NoEdge); err != nil {
		return nil, fmt.Errorf("pins: configure %s as input: %w", name, err)
	}
	return &GPIOInput{pin: p}, nil
}

// Set ignores write errors; the clock goroutine has no way to report them.
func (o *GPIOOutput) Set(high bool) {
	_ = o.pin.Out(gpio.Level(high))
}

func (i *GPIOInput) Get() bool {
	return bool(i.pin.Read())
}
