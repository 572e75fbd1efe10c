package hostlink

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tarm/serial"
	"go.bug.st/serial/enumerator"
)

var ErrNoDevice = errors.New("hostlink: serial device not set")

// OpenSerial opens the host-side serial port. USB CDC ports ignore the baud
// rate, but real UARTs need it.
func OpenSerial(device string, baud int) (io.ReadWriteCloser, error) {
	device = strings.TrimSpace(device)
	if device == "" {
		return nil, ErrNoDevice
	}
	if baud <= 0 {
		baud = 115200
	}
	port, err := serial.OpenPort(&serial.Config{Name: device, Baud: baud})
	if err != nil {
		return nil, fmt.Errorf("hostlink: open %s: %w", device, err)
	}
	return port, nil
}

// ServeStream runs a FrontEnd on rwc until the stream ends or ctx is done,
// closing rwc on the way out so a blocked read returns.
func ServeStream(ctx context.Context, rwc io.ReadWriteCloser, fe *FrontEnd) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-ctx.Done()
		_ = rwc.Close()
	}()
	err := fe.Serve(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// ConnHandler serves one accepted host connection.
type ConnHandler func(ctx context.Context, conn net.Conn) error

// ListenTCP accepts host connections on addr and serves them one at a time,
// since they all share one modem. It returns when ctx is done.
func ListenTCP(ctx context.Context, addr string, handle ConnHandler) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("hostlink: listen %s: %w", addr, err)
	}
	return Serve(ctx, ln, handle)
}

// Serve runs the accept loop on ln and closes it when ctx is done.
func Serve(ctx context.Context, ln net.Listener, handle ConnHandler) error {
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()
	log.Info().Str("addr", ln.Addr().String()).Msg("host link listening")

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				time.Sleep(50 * time.Millisecond)
				continue
			}
			return fmt.Errorf("hostlink: accept: %w", err)
		}

		remote := conn.RemoteAddr().String()
		log.Info().Str("remote", remote).Msg("host connected")
		if err := handle(ctx, conn); err != nil {
			log.Warn().Err(err).Str("remote", remote).Msg("host session ended")
		} else {
			log.Info().Str("remote", remote).Msg("host disconnected")
		}
		_ = conn.Close()
	}
}

// PortInfo describes one serial port found on the system.
type PortInfo struct {
	Name         string `json:"name"`
	IsUSB        bool   `json:"is_usb"`
	VID          string `json:"vid,omitempty"`
	PID          string `json:"pid,omitempty"`
	SerialNumber string `json:"serial_number,omitempty"`
	Product      string `json:"product,omitempty"`
}

func ListPorts() ([]PortInfo, error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("hostlink: list ports: %w", err)
	}
	out := make([]PortInfo, 0, len(ports))
	for _, p := range ports {
		out = append(out, PortInfo{
			Name:         p.Name,
			IsUSB:        p.IsUSB,
			VID:          p.VID,
			PID:          p.PID,
			SerialNumber: p.SerialNumber,
			Product:      p.Product,
		})
	}
	return out, nil
}
