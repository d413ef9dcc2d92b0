package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/OliverSchlueter/goutils/sloki"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

const shutdownTimeout = 30 * time.Second

// Registrar mounts the routes of one handler.
type Registrar interface {
	Register(r chi.Router)
}

// Closer releases a resource after the HTTP server has stopped.
type Closer interface {
	Close(ctx context.Context) error
}

type Server struct {
	name       string
	router     chi.Router
	httpServer *http.Server
	closers    []Closer
}

type Configuration struct {
	Name           string
	Addr           string
	RequestTimeout time.Duration
	Handlers       []Registrar
	// Closers run in order once the server has shut down, sharing the
	// shutdown timeout.
	Closers []Closer
}

func NewServer(cfg Configuration) *Server {
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 60 * time.Second
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(cfg.RequestTimeout))

	name := cfg.Name
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "ok", "service": name})
	})

	for _, h := range cfg.Handlers {
		h.Register(r)
	}

	return &Server{
		name:    cfg.Name,
		router:  r,
		closers: cfg.Closers,
		httpServer: &http.Server{
			Addr:              cfg.Addr,
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is done and then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("Started HTTP server", slog.String("service", s.name), slog.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("Shutting down HTTP server", slog.String("service", s.name))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err := s.httpServer.Shutdown(shutdownCtx)
	if err != nil {
		slog.Error("HTTP server shutdown failed", sloki.WrapError(err))
	}

	if closeErr := s.Close(shutdownCtx); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}

// Close runs the configured closers. Start calls it after shutdown; servers
// that are never started, like in tests, call it themselves.
func (s *Server) Close(ctx context.Context) error {
	var errs []error
	for _, c := range s.closers {
		if err := c.Close(ctx); err != nil {
			slog.Error("Failed to close server resource", slog.String("service", s.name), sloki.WrapError(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		slog.Debug("Handled request",
			slog.String("request_id", chimiddleware.GetReqID(r.Context())),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Duration("duration", time.Since(start)),
		)
	})
}
