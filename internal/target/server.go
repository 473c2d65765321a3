// Package target is a small HTTP endpoint with a fixed status and latency.
// It is the thing to point a run at when trying out a configuration, and the
// fixture the integration tests run against.
package target

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Config controls the default route.
type Config struct {
	// Status returned by "/" (default 200)
	Status int

	// Delay before "/" answers
	Delay time.Duration

	// Jitter adds up to this much on top of Delay
	Jitter time.Duration

	// Body written by "/" (default "OK")
	Body string

	// Seed for the jitter source; the same seed gives the same sequence
	Seed int64
}

// Handler serves the mock routes:
//
//	GET /              configured status, delay and jitter
//	GET /status/{code} the given status, no delay
//	GET /delay/{ms}    200 after the given number of milliseconds
//	GET /health        200 "healthy"
type Handler struct {
	cfg Config
	mux *http.ServeMux

	mu  sync.Mutex
	rng *rand.Rand

	requests atomic.Int64
	inFlight atomic.Int64
	peak     atomic.Int64
}

// NewHandler creates a handler for cfg.
func NewHandler(cfg Config) *Handler {
	if cfg.Status == 0 {
		cfg.Status = http.StatusOK
	}
	if cfg.Body == "" {
		cfg.Body = "OK"
	}
	h := &Handler{
		cfg: cfg,
		mux: http.NewServeMux(),
		rng: rand.New(rand.NewSource(cfg.Seed)),
	}

	h.mux.HandleFunc("GET /{$}", h.serveDefault)
	h.mux.HandleFunc("GET /status/{code}", h.serveStatus)
	h.mux.HandleFunc("GET /delay/{ms}", h.serveDelay)
	h.mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "healthy")
	})
	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.requests.Add(1)
	n := h.inFlight.Add(1)
	defer h.inFlight.Add(-1)
	for {
		p := h.peak.Load()
		if n <= p || h.peak.CompareAndSwap(p, n) {
			break
		}
	}
	h.mux.ServeHTTP(w, r)
}

// Requests is the number of requests received.
func (h *Handler) Requests() int64 {
	return h.requests.Load()
}

// InFlight is the number of requests being served now.
func (h *Handler) InFlight() int64 {
	return h.inFlight.Load()
}

// PeakInFlight is the highest InFlight seen.
func (h *Handler) PeakInFlight() int64 {
	return h.peak.Load()
}

func (h *Handler) delay() time.Duration {
	d := h.cfg.Delay
	if h.cfg.Jitter > 0 {
		h.mu.Lock()
		d += time.Duration(h.rng.Int63n(int64(h.cfg.Jitter) + 1))
		h.mu.Unlock()
	}
	return d
}

func (h *Handler) serveDefault(w http.ResponseWriter, r *http.Request) {
	if !wait(r.Context(), h.delay()) {
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(h.cfg.Status)
	fmt.Fprint(w, h.cfg.Body)
}

func (h *Handler) serveStatus(w http.ResponseWriter, r *http.Request) {
	code, err := strconv.Atoi(r.PathValue("code"))
	if err != nil || code < 100 || code > 599 {
		http.Error(w, "invalid status code", http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(code)
	fmt.Fprint(w, http.StatusText(code))
}

func (h *Handler) serveDelay(w http.ResponseWriter, r *http.Request) {
	ms, err := strconv.Atoi(r.PathValue("ms"))
	if err != nil || ms < 0 {
		http.Error(w, "invalid delay", http.StatusBadRequest)
		return
	}
	if !wait(r.Context(), time.Duration(ms)*time.Millisecond) {
		return
	}
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

// wait sleeps for d unless the client goes away first.
func wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// Server runs a Handler on a TCP address.
type Server struct {
	handler *Handler
	server  *http.Server
	logger  *zap.Logger
}

// NewServer creates a server for addr. logger may be nil.
func NewServer(addr string, cfg Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := NewHandler(cfg)
	return &Server{
		handler: h,
		logger:  logger.Named("target"),
		server: &http.Server{
			Addr:              addr,
			Handler:           h,
			ReadTimeout:       5 * time.Second,
			IdleTimeout:       120 * time.Second,
			MaxHeaderBytes:    1 << 20,
			ReadHeaderTimeout: 2 * time.Second,
		},
	}
}

// Handler returns the handler being served.
func (s *Server) Handler() *Handler {
	return s.handler
}

// Serve accepts connections on l until ctx is cancelled, then shuts down.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	s.logger.Info("target listening",
		zap.String("addr", l.Addr().String()),
		zap.Int("status", s.handler.cfg.Status),
		zap.Duration("delay", s.handler.cfg.Delay),
		zap.Duration("jitter", s.handler.cfg.Jitter),
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.server.Serve(l)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	s.logger.Info("target stopped", zap.Int64("requests", s.handler.Requests()))
	return nil
}

// ListenAndServe listens on the configured address and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context) error {
	l, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.server.Addr, err)
	}
	return s.Serve(ctx, l)
}
