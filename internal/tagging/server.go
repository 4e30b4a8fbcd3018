package tagging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/FairForge/metavault/internal/metrics"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// DefaultMaxBodyBytes is the largest accepted upload
const DefaultMaxBodyBytes = 100 << 20

// ServerConfig configures the tag server
type ServerConfig struct {
	Port         int
	MaxBodyBytes int64
}

// Server exposes a Service over HTTP at /api/identifyTags.
type Server struct {
	config     ServerConfig
	logger     *zap.Logger
	router     *mux.Router
	httpServer *http.Server
	metrics    *metrics.Metrics
	primary    Service
	imagga     Service
	startTime  time.Time
}

// NewServer creates a server answering with primary, or with imagga when
// the request carries a useImagga query parameter. imagga may be nil.
func NewServer(cfg ServerConfig, primary, imagga Service, m *metrics.Metrics, logger *zap.Logger) *Server {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	s := &Server{
		config:    cfg,
		logger:    logger,
		router:    mux.NewRouter(),
		metrics:   m,
		primary:   primary,
		imagga:    imagga,
		startTime: time.Now(),
	}

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 180 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics.Handler()).Methods("GET")
	}
	s.router.HandleFunc("/api/identifyTags", s.handleIdentifyTags).Methods("POST")

	s.router.Use(s.loggingMiddleware)
}

// Handler returns the routed handler, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status": "healthy",
		"uptime": time.Since(s.startTime).Seconds(),
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(health)
}

func (s *Server) handleIdentifyTags(w http.ResponseWriter, r *http.Request) {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || !strings.HasPrefix(mediaType, "image/") {
		s.writeEnvelope(w, http.StatusUnsupportedMediaType, envelope{
			Status:  statusError,
			Message: "request body must be an image/* upload",
		})
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.config.MaxBodyBytes))
	if err != nil {
		status := http.StatusBadRequest
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		s.writeEnvelope(w, status, envelope{Status: statusError, Message: err.Error()})
		return
	}

	service := s.primary
	if r.URL.Query().Get("useImagga") != "" {
		service = s.imagga
	}
	if service == nil {
		s.writeEnvelope(w, http.StatusInternalServerError, envelope{
			Status:  statusError,
			Message: "tag provider not configured",
		})
		return
	}

	labels, err := service.Tag(r.Context(), body, mediaType)
	if err != nil {
		s.logger.Error("tagging failed", zap.Error(err))
		s.writeEnvelope(w, http.StatusInternalServerError, envelope{Status: statusError, Message: err.Error()})
		return
	}
	if labels == nil {
		labels = []Label{}
	}
	s.writeEnvelope(w, http.StatusOK, envelope{Status: statusSuccess, Data: labels})
}

func (s *Server) writeEnvelope(w http.ResponseWriter, status int, env envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(env)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		s.metrics.IncrementRequest(r.Method, r.URL.Path, rec.status)
		s.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("latency", time.Since(start)),
		)
	})
}

func (s *Server) Start() error {
	s.logger.Info("Starting tag server", zap.Int("port", s.config.Port))
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
