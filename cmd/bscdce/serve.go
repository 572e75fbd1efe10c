package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os/signal"
	"syscall"
	"time"

	"github.com/danmuck/bscdce/internal/admin"
	"github.com/danmuck/bscdce/internal/config"
	"github.com/danmuck/bscdce/internal/hostlink"
	"github.com/danmuck/bscdce/internal/logging"
	"github.com/danmuck/bscdce/internal/modem"
	"github.com/danmuck/bscdce/internal/observability"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const (
	heartbeatInterval = 30 * time.Second
	serialRetry       = time.Second
)

func newServeCommand() *cobra.Command {
	var path string
	var watch bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the modem, the host link and the admin API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(path)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			if watch {
				go func() {
					if err := config.Watch(ctx, path, applyReload); err != nil {
						log.Warn().Err(err).Msg("config watch stopped")
					}
				}()
			}
			return runServe(ctx, cfg)
		},
	}
	pathFlag(cmd.Flags(), &path, "config", "c", "config file")
	cmd.Flags().BoolVar(&watch, "watch", true, "reload the log level when the config file changes")
	return cmd
}

// applyReload carries the settings that can change without a restart.
func applyReload(cfg config.Config) {
	logging.SetDebug(cfg.Debug)
	log.Info().Bool("debug", cfg.Debug).Msg("runtime settings reloaded")
}

// runServe blocks until ctx is done or a component fails.
func runServe(ctx context.Context, cfg config.Config) error {
	observability.InitLogger("bscdce")
	logging.SetDebug(cfg.Debug)

	lines, err := cfg.OpenLines()
	if err != nil {
		return fmt.Errorf("open %s lines: %w", cfg.Pins.Backend, err)
	}
	m := modem.New(cfg.ModemConfig(), lines, nil)
	if err := m.Start(); err != nil {
		return err
	}
	defer m.Stop()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 3)
	go func() {
		if err := m.Ready(ctx); err != nil && ctx.Err() == nil {
			errCh <- err
		}
	}()
	go func() {
		errCh <- serveHost(ctx, cfg, m)
	}()
	if cfg.Admin.Listen != "" {
		srv := admin.New("bscdce", cfg.Admin.Listen, cfg.Admin.CorsOrigins, m)
		go func() {
			errCh <- srv.Run(ctx)
		}()
	}

	log.Info().
		Str("backend", cfg.Pins.Backend).
		Str("transport", cfg.Host.Transport).
		Str("mode", cfg.Host.Mode).
		Str("admin", cfg.Admin.Listen).
		Msg("bscdce serving")

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("bscdce shutdown")
			return nil
		case err := <-errCh:
			if err != nil {
				return err
			}
		case <-ticker.C:
			st := m.Status()
			log.Info().
				Bool("ready", st.Ready).
				Uint64("ticks", st.Ticks).
				Str("send_state", st.SendState).
				Str("receive_state", st.ReceiveState).
				Uint64("frames_received", st.FramesReceived).
				Uint64("bytes_sent", st.BytesSent).
				Msg("heartbeat")
		}
	}
}

func serveHost(ctx context.Context, cfg config.Config, dev hostlink.Device) error {
	opts := cfg.HostOptions()
	if cfg.Host.Transport == config.TransportTCP {
		return hostlink.ListenTCP(ctx, cfg.Host.Listen, func(ctx context.Context, conn net.Conn) error {
			return hostlink.NewFrontEnd(conn, dev, opts).Serve(ctx)
		})
	}

	// The serial device comes and goes with the USB cable; keep reopening.
	for {
		port, err := hostlink.OpenSerial(cfg.Host.Device, cfg.Host.Baud)
		if err != nil {
			if errors.Is(err, hostlink.ErrNoDevice) {
				return err
			}
			log.Warn().Err(err).Dur("retry", serialRetry).Msg("host serial unavailable")
		} else {
			log.Info().Str("device", cfg.Host.Device).Int("baud", cfg.Host.Baud).Msg("host serial open")
			if err := hostlink.ServeStream(ctx, port, hostlink.NewFrontEnd(port, dev, opts)); err != nil {
				log.Warn().Err(err).Msg("host serial session ended")
			}
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(serialRetry):
		}
	}
}
