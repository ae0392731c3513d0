// Package server exposes the question answering service over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/rs/zerolog/log"

	"health-rag/internal/cipher"
	"health-rag/internal/config"
	"health-rag/internal/helper"
	"health-rag/internal/models"
	"health-rag/internal/profile"
	"health-rag/internal/rag"
)

const (
	maxBodyBytes    = 1 << 20
	requestIDHeader = "X-Request-ID"
)

// Answerer answers one question request.
type Answerer interface {
	Answer(ctx context.Context, req models.QueryRequest) (*models.QueryResponse, error)
}

// Server represents the HTTP API server
type Server struct {
	svc    Answerer
	chunks int
	server *http.Server
}

// NewServer wires the routes for svc. chunks is reported by GET /health.
func NewServer(cfg *config.ServerConfig, svc Answerer, chunks int) *Server {
	s := &Server{svc: svc, chunks: chunks}

	r := mux.NewRouter()
	r.HandleFunc("/RAG", s.handleRAG).Methods(http.MethodPost)
	r.HandleFunc("/cipher", s.handleCipher).Methods(http.MethodPost)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.respondError(w, http.StatusNotFound, fmt.Errorf("no route for %s %s", r.Method, r.URL.Path))
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.respondError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed on %s", r.Method, r.URL.Path))
	})

	var h http.Handler = r
	h = hlog.AccessHandler(accessLog)(h)
	h = requestID(h)
	h = hlog.NewHandler(log.Logger)(h)
	h = cors.New(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", requestIDHeader},
	}).Handler(h)

	s.server = &http.Server{
		Addr:         net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Handler:      h,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

// Handler returns the HTTP handler for the server
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

func (s *Server) Addr() string {
	return s.server.Addr
}

// Start blocks until the server stops. It returns nil after Shutdown.
func (s *Server) Start() error {
	log.Info().Str("addr", s.server.Addr).Msg("Starting server")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to serve on %s: %w", s.server.Addr, err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleRAG(w http.ResponseWriter, r *http.Request) {
	var req models.QueryRequest
	if err := decode(w, r, &req); err != nil {
		s.respondError(w, http.StatusBadRequest, err)
		return
	}

	res, err := s.svc.Answer(r.Context(), req)
	if err != nil {
		status := statusFor(err)
		hlog.FromRequest(r).Error().Err(err).Int("status", status).Msg("Failed to answer question")
		s.respondError(w, status, err)
		return
	}
	s.respond(w, http.StatusOK, res)
}

func (s *Server) handleCipher(w http.ResponseWriter, r *http.Request) {
	var req models.CipherRequest
	if err := decode(w, r, &req); err != nil {
		s.respondError(w, http.StatusBadRequest, err)
		return
	}
	s.respond(w, http.StatusOK, models.CipherResponse{
		Original: req.Text,
		Ciphered: cipher.Caesar(req.Text, cipher.DefaultShift),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.respond(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"chunks": s.chunks,
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, rag.ErrEmptyQuestion):
		return http.StatusBadRequest
	case errors.Is(err, profile.ErrInvalidProfile):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadGateway
	}
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

// respond writes a JSON response
func (s *Server) respond(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			log.Error().Err(err).Msg("Failed to encode response")
		}
	}
}

// respondError writes an error response
func (s *Server) respondError(w http.ResponseWriter, status int, err error) {
	s.respond(w, status, models.ErrorResponse{Error: err.Error()})
}

// requestID tags the request logger and the response with a fresh UUID,
// keeping one supplied by the client.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			var err error
			if id, err = helper.GenerateUUID(); err != nil {
				log.Warn().Err(err).Msg("Failed to generate request id")
			}
		}
		if id != "" {
			w.Header().Set(requestIDHeader, id)
			l := zerolog.Ctx(r.Context())
			l.UpdateContext(func(c zerolog.Context) zerolog.Context {
				return c.Str("request_id", id)
			})
		}
		next.ServeHTTP(w, r)
	})
}

func accessLog(r *http.Request, status, size int, duration time.Duration) {
	hlog.FromRequest(r).Info().
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Int("status", status).
		Int("size", size).
		Dur("duration", duration).
		Msg("Request handled")
}
