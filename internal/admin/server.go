package admin

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/danmuck/bscdce/internal/bsc"
	"github.com/danmuck/bscdce/internal/databuf"
	"github.com/danmuck/bscdce/internal/modem"
	"github.com/danmuck/bscdce/internal/observability"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const version = "0.1.0"

var ErrBadHex = errors.New("admin: malformed hex payload")

// Modem is what the admin API reads from and drives.
type Modem interface {
	Status() modem.Status
	LastFrame() *databuf.Snapshot
	Send(ctx context.Context, frame []byte) (int, error)
}

type Server struct {
	ID       string
	Addr     string
	Appeared time.Time

	modem  Modem
	router *gin.Engine
}

// New builds the router with logging, metrics and CORS middleware and
// registers every route.
func New(id, addr string, corsOrigins []string, m Modem) *Server {
	observability.RegisterMetrics()
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(log.Logger))
	r.Use(observability.RequestMetricsMiddleware(id))
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(corsOrigins),
		AllowMethods: []string{"GET", "POST"},
		AllowHeaders: []string{"Origin", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	s := &Server{
		ID:       id,
		Addr:     addr,
		Appeared: time.Now(),
		modem:    m,
		router:   r,
	}
	s.registerRoutes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) registerRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.Appeared).String(),
			"service": s.ID,
			"version": version,
		})
	})

	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.router.GET("/ready", func(c *gin.Context) {
		st := s.modem.Status()
		ready := st.Running && st.Ready
		code := http.StatusOK
		if !ready {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{
			"ready":   ready,
			"uptime":  time.Since(s.Appeared).String(),
			"service": s.ID,
			"version": version,
		})
	})

	s.router.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.modem.Status())
	})

	s.router.GET("/frames/last", func(c *gin.Context) {
		snap := s.modem.LastFrame()
		if snap == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "no frame received yet"})
			return
		}
		data := snap.Bytes()
		c.JSON(http.StatusOK, gin.H{
			"length": snap.Len(),
			"kind":   bsc.Classify(data).String(),
			"hex":    snap.String(),
		})
	})

	s.router.POST("/send", func(c *gin.Context) {
		var req sendRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		data, err := parseHex(req.Hex)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		frame := data
		if !req.Raw {
			frame = bsc.Envelope(data)
		}

		remaining, err := s.modem.Send(c.Request.Context(), frame)
		if err != nil {
			log.Error().Err(err).Int("frame_len", len(frame)).Msg("admin send failed")
			status := http.StatusInternalServerError
			if errors.Is(err, modem.ErrNotRunning) {
				status = http.StatusServiceUnavailable
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}
		log.Info().Int("frame_len", len(frame)).Msg("admin send")
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"sent":      len(frame) - remaining,
			"remaining": remaining,
		})
	})
}

// sendRequest carries bytes as hex. Unless Raw is set the bytes are wrapped
// in the usual pad and sync preamble and a closing pad.
type sendRequest struct {
	Hex string `json:"hex" binding:"required"`
	Raw bool   `json:"raw"`
}

// parseHex accepts "32 37", "0x32,0x37" and "3237".
func parseHex(raw string) ([]byte, error) {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ' ' || r == ',' || r == '\n' || r == '\t'
	})
	var sb strings.Builder
	for _, f := range fields {
		f = strings.TrimPrefix(strings.TrimPrefix(f, "0x"), "0X")
		if len(f)%2 == 1 {
			f = "0" + f
		}
		sb.WriteString(f)
	}
	out, err := hex.DecodeString(sb.String())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadHex, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: empty", ErrBadHex)
	}
	return out, nil
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.Addr).Msg("admin api listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("admin: serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("admin: shutdown: %w", err)
	}
	return nil
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}
