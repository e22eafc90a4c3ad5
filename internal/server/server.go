package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/geomind-labs/geomind/internal/cache"
	"github.com/geomind-labs/geomind/internal/model"
	"github.com/geomind-labs/geomind/internal/pipeline"
)

// Locator runs the geolocation pipeline over raw image bytes.
type Locator interface {
	RunImage(ctx context.Context, name string, image []byte) (*model.Session, error)
}

// Server exposes the pipeline over HTTP.
type Server struct {
	locator Locator
	cache   *cache.Cache
	port    int
}

// New builds a server. The cache may be nil to disable caching.
func New(locator Locator, predCache *cache.Cache, port int) *Server {
	return &Server{locator: locator, cache: predCache, port: port}
}

// locateRequest is the POST /v1/locate body.
type locateRequest struct {
	Name     string `json:"name"`
	ImageB64 string `json:"image_b64"`
}

// locateResponse is the POST /v1/locate reply.
type locateResponse struct {
	SessionID  string            `json:"session_id,omitempty"`
	Iterations int               `json:"iterations"`
	Cached     bool              `json:"cached"`
	Prediction *model.Prediction `json:"prediction"`
}

// Router builds the HTTP routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", s.handleHealth)
	r.Post("/v1/locate", s.handleLocate)

	return r
}

// Start runs the server until the context is canceled, then shuts down
// gracefully.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		zap.L().Info("server listening", zap.Int("port", s.port))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleLocate(w http.ResponseWriter, r *http.Request) {
	var req locateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.ImageB64 == "" {
		respondError(w, http.StatusBadRequest, "image_b64 is required", nil)
		return
	}
	image, err := base64.StdEncoding.DecodeString(req.ImageB64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "image_b64 is not valid base64", err)
		return
	}
	name := req.Name
	if name == "" {
		name = "upload"
	}

	key := cache.Key(image)
	if s.cache != nil {
		cached, cerr := s.cache.Get(r.Context(), key)
		if cerr != nil {
			zap.L().Warn("cache lookup failed", zap.Error(cerr))
		}
		if cached != nil {
			respondJSON(w, http.StatusOK, locateResponse{Cached: true, Prediction: cached})
			return
		}
	}

	sess, err := s.locator.RunImage(r.Context(), name, image)
	if err != nil {
		status := http.StatusBadGateway
		var verr *pipeline.ValidationError
		if errors.As(err, &verr) {
			status = http.StatusUnprocessableEntity
		}
		respondError(w, status, "geolocation failed", err)
		return
	}

	if s.cache != nil {
		if cerr := s.cache.Put(r.Context(), key, sess.Prediction); cerr != nil {
			zap.L().Warn("cache store failed", zap.Error(cerr))
		}
	}

	respondJSON(w, http.StatusOK, locateResponse{
		SessionID:  sess.ID,
		Iterations: sess.Iteration,
		Prediction: sess.Prediction,
	})
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		zap.L().Warn("response encode failed", zap.Error(err))
	}
}

func respondError(w http.ResponseWriter, status int, msg string, err error) {
	if err != nil {
		zap.L().Warn(msg, zap.Error(err))
	}
	respondJSON(w, status, map[string]string{"error": msg})
}
