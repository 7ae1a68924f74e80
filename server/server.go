// Package server exposes the assistant over a JSON HTTP API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/hupe1980/reviewmesh"
	"github.com/hupe1980/reviewmesh/core"
	"github.com/hupe1980/reviewmesh/engine"
	"github.com/hupe1980/reviewmesh/logging"
	"github.com/hupe1980/reviewmesh/prompt"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// Service is the functionality served over HTTP. *reviewmesh.Assistant implements it.
type Service interface {
	Analyze(ctx context.Context, req reviewmesh.AnalyzeRequest) (reviewmesh.Analysis, error)
	Ask(ctx context.Context, req engine.Request) (engine.Result, error)
	ReviewCommits(ctx context.Context, hashes []string, modelID string) (reviewmesh.CommitReview, error)
	ListModels(ctx context.Context, provider string) ([]string, error)
	ConfiguredModels() []string
	QueueReview(ctx context.Context, hash string) error
	ReviewResult(ctx context.Context, hash string) (reviewmesh.ReviewStatus, error)
}

var _ Service = (*reviewmesh.Assistant)(nil)

// Options configures the Server.
type Options struct {
	Logger logging.Logger
	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration
	// MaxInFlight limits concurrently served model-backed requests. Set to 0
	// for unlimited.
	MaxInFlight int
}

// Server routes API requests to a Service.
type Server struct {
	svc     Service
	opts    Options
	mux     *http.ServeMux
	limiter *inFlightLimiter
}

// New creates a Server.
func New(svc Service, optFns ...func(o *Options)) *Server {
	opts := Options{ShutdownTimeout: 10 * time.Second}
	for _, fn := range optFns {
		fn(&opts)
	}
	opts.Logger = logging.OrNoOp(opts.Logger)

	s := &Server{svc: svc, opts: opts, mux: http.NewServeMux(), limiter: newInFlightLimiter(opts.MaxInFlight)}
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.HandleFunc("POST /api/analyze", s.limiter.limit(s.handleAnalyze))
	s.mux.HandleFunc("POST /api/ask", s.limiter.limit(s.handleAsk))
	s.mux.HandleFunc("GET /api/models", s.limiter.limit(s.handleModels))
	s.mux.HandleFunc("POST /api/reviews", s.limiter.limit(s.handleReview))
	s.mux.HandleFunc("POST /api/reviews/{hash}/queue", s.handleQueue)
	s.mux.HandleFunc("GET /api/reviews/{hash}", s.handleResult)
	return s
}

// Handler returns the HTTP handler with request logging.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		s.mux.ServeHTTP(rec, r)
		s.opts.Logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

// ListenAndServe serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.opts.Logger.Info("server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "in_flight": s.limiter.InFlight()})
}

// analyzeBody accepts the ticket fields at top level or nested under "issue".
type analyzeBody struct {
	reviewmesh.AnalyzeRequest
	Issue *reviewmesh.AnalyzeRequest `json:"issue,omitempty"`
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var body analyzeBody
	if !s.decode(w, r, &body) {
		return
	}
	req := body.AnalyzeRequest
	if issue := body.Issue; issue != nil {
		req.Subject = orElse(issue.Subject, req.Subject)
		req.Description = orElse(issue.Description, req.Description)
		req.ModelID = orElse(issue.ModelID, req.ModelID)
		if issue.TrackerID != 0 {
			req.TrackerID = issue.TrackerID
		}
	}

	a, err := s.svc.Analyze(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"analysis": a.Text, "html": a.HTML, "model": a.ModelID})
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req engine.Request
	if !s.decode(w, r, &req) {
		return
	}
	res, err := s.svc.Ask(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	provider := r.URL.Query().Get("provider")
	if provider == "" {
		writeJSON(w, http.StatusOK, map[string][]string{"models": s.svc.ConfiguredModels()})
		return
	}
	ids, err := s.svc.ListModels(r.Context(), provider)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"models": ids})
}

type reviewBody struct {
	Hashes []string `json:"hashes"`
	// HashList is a comma or space separated alternative to Hashes.
	HashList string `json:"hash_list"`
	ModelID  string `json:"model"`
}

func (s *Server) handleReview(w http.ResponseWriter, r *http.Request) {
	var body reviewBody
	if !s.decode(w, r, &body) {
		return
	}
	hashes := body.Hashes
	if len(hashes) == 0 {
		var err error
		if hashes, err = prompt.ParseHashList(body.HashList); err != nil {
			s.writeError(w, err)
			return
		}
	}
	review, err := s.svc.ReviewCommits(r.Context(), hashes, body.ModelID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, review)
}

func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	hash := r.PathValue("hash")
	if err := s.svc.QueueReview(r.Context(), hash); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, reviewmesh.ReviewStatus{Hash: hash, Queued: true})
}

func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	status, err := s.svc.ReviewResult(r.Context(), r.PathValue("hash"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if !status.Queued && !status.Done {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "review not found"})
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		s.writeError(w, core.NewValidationError("invalid request body: %v", err))
		return false
	}
	return true
}

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
	Hint  string `json:"hint,omitempty"`
}

// StatusFor maps an error to its HTTP status.
func StatusFor(err error) int {
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	switch core.KindOf(err) {
	case core.KindValidation:
		return http.StatusBadRequest
	case core.KindConfig, core.KindTemplate:
		return http.StatusUnprocessableEntity
	case core.KindTransport, core.KindProviderAPI:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	body := errorBody{Error: err.Error(), Kind: string(core.KindOf(err))}

	var e *core.Error
	if errors.As(err, &e) {
		body.Error = e.Message
		body.Hint = e.Hint()
	}
	if status >= http.StatusInternalServerError {
		s.opts.Logger.Error("request failed", "status", status, "error", err)
	} else {
		s.opts.Logger.Debug("request rejected", "status", status, "error", err)
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// orElse returns v unless it is blank.
func orElse(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
