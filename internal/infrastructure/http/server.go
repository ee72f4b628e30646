// Package http provides the HTTP server infrastructure.
// Clean Architecture: Framework/driver layer - outermost circle.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/0xcro3dile/incidentrag-go/internal/domain/ports"
	"github.com/0xcro3dile/incidentrag-go/internal/domain/usecases"
)

// Synthesizer answers questions and builds incident reports.
type Synthesizer interface {
	Handle(ctx context.Context, req usecases.Request) (*usecases.Response, error)
}

// Options configure the listener and request limits.
type Options struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// RequestTimeout bounds synthesis per request; keep it below WriteTimeout so
	// that a deadline still produces a response instead of a dropped connection.
	RequestTimeout time.Duration
	CORSOrigins    []string
	MaxUploadBytes int64
}

// Server is the HTTP server for the incident API.
type Server struct {
	synth  Synthesizer
	store  ports.IncidentStore
	index  ports.EmbeddingIndex
	parser ports.DocumentParser // nil when binary uploads are not supported
	opts   Options
	logger *zap.Logger
}

// NewServer creates a new HTTP server. parser may be nil.
func NewServer(
	synth Synthesizer,
	store ports.IncidentStore,
	index ports.EmbeddingIndex,
	parser ports.DocumentParser,
	opts Options,
	logger *zap.Logger,
) *Server {
	if opts.Addr == "" {
		opts.Addr = ":8000"
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 20 << 20
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		synth:  synth,
		store:  store,
		index:  index,
		parser: parser,
		opts:   opts,
		logger: logger,
	}
}

// Handler builds the routed, instrumented and CORS-wrapped handler.
func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()

	router.HandleFunc("/ask_solution/", s.handleAskSolution).Methods(http.MethodPost)
	router.HandleFunc("/get_incident_report/", s.handleIncidentReport).Methods(http.MethodPost)
	router.HandleFunc("/incidents/{id}", s.handleGetIncident).Methods(http.MethodGet)
	router.HandleFunc("/api/health", s.handleHealth).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	router.Use(s.recoveryMiddleware)
	router.Use(s.instrumentMiddleware)

	c := cors.New(cors.Options{
		AllowedOrigins:   s.opts.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})
	return c.Handler(router)
}

// Start runs the HTTP server until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:         s.opts.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", zap.String("addr", s.opts.Addr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// synthesisContext applies the per-request deadline, if any.
func (s *Server) synthesisContext(r *http.Request) (context.Context, context.CancelFunc) {
	if s.opts.RequestTimeout <= 0 {
		return context.WithCancel(r.Context())
	}
	return context.WithTimeout(r.Context(), s.opts.RequestTimeout)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
