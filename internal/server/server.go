// Package server exposes the rendering pipeline over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"mime"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gobwas/glob"
	"github.com/google/uuid"
	"github.com/samsaffron/markview/internal/export"
	"github.com/samsaffron/markview/internal/logger"
	"github.com/samsaffron/markview/internal/markdown"
	"github.com/samsaffron/markview/internal/render"
	"github.com/samsaffron/markview/internal/serveui"
	"golang.org/x/time/rate"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 10 << 20

type Config struct {
	Host        string
	Port        int
	UI          bool
	CORSOrigins []string
	// ConvertRate limits /api/convert to this many requests per second.
	// Zero disables the limit.
	ConvertRate float64
}

type Server struct {
	cfg      Config
	renderer *markdown.Renderer
	store    *render.Store
	exporter *export.Exporter
	limiter  *rate.Limiter
	logger   *log.Logger
	server   *http.Server

	cssOnce sync.Once
	css     string
	cssErr  error
}

// New builds a server. exporter may be nil, in which case /api/convert
// reports every format as unsupported.
func New(cfg Config, r *markdown.Renderer, store *render.Store, exporter *export.Exporter) *Server {
	s := &Server{
		cfg:      cfg,
		renderer: r,
		store:    store,
		exporter: exporter,
		logger:   logger.NewComponentLogger("server"),
	}
	if cfg.ConvertRate > 0 {
		burst := int(math.Ceil(cfg.ConvertRate))
		s.limiter = rate.NewLimiter(rate.Limit(cfg.ConvertRate), burst)
	}
	return s
}

// SetLogger replaces the request logger.
func (s *Server) SetLogger(l *log.Logger) { s.logger = l }

// Handler returns the routed handler with CORS and request logging applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/health", s.cors(s.handleHealth))
	mux.HandleFunc("/api/render", s.cors(s.handleRender))
	mux.HandleFunc("/api/render/{id}/blocks/{blockID}", s.cors(s.handleBlock))
	mux.HandleFunc("/api/styles.css", s.cors(s.handleStyles))
	mux.HandleFunc("/api/convert", s.cors(s.handleConvert))

	if s.cfg.UI {
		mux.HandleFunc("/", s.cors(s.handleUI))
		mux.HandleFunc("/ui", s.cors(s.handleUI))
		mux.HandleFunc("/ui/", s.cors(s.handleUI))
	}

	return s.logRequests(mux)
}

func (s *Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
}

func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.Addr(),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		err := s.server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("start server: %w", err)
		}
		return nil
	case <-time.After(50 * time.Millisecond):
		return nil
	}
}

func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		writeError(w, http.StatusMethodNotAllowed, "invalid_request_error", "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleUI(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		writeError(w, http.StatusMethodNotAllowed, "invalid_request_error", "method not allowed")
		return
	}
	w.Header().Set("ETag", serveui.ETag())
	w.Header().Set("Cache-Control", "no-cache")
	if serveui.NotModified(r.Header.Get("If-None-Match")) {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(serveui.IndexHTML())
}

type renderRequest struct {
	ID          string `json:"id"`
	Content     string `json:"content"`
	IsStreaming bool   `json:"isStreaming"`
	Generation  uint64 `json:"generation"`
}

type renderResponse struct {
	ID         string               `json:"id"`
	Generation uint64               `json:"generation"`
	HTML       string               `json:"html"`
	Blocks     []markdown.CodeBlock `json:"blocks"`
}

func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		writeError(w, http.StatusMethodNotAllowed, "invalid_request_error", "method not allowed")
		return
	}
	if err := requireJSONContentType(r); err != nil {
		writeError(w, http.StatusUnsupportedMediaType, "invalid_request_error", err.Error())
		return
	}
	var req renderRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_error", err.Error())
		return
	}

	id := strings.TrimSpace(req.ID)
	if id == "" {
		id = uuid.NewString()
	}

	res := s.renderer.Render(markdown.Input{Content: req.Content, IsStreaming: req.IsStreaming})
	if err := s.store.Put(id, req.Generation, res); err != nil {
		if errors.Is(err, render.ErrStaleGeneration) {
			writeError(w, http.StatusConflict, "stale_generation", err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, renderResponse{
		ID:         id,
		Generation: req.Generation,
		HTML:       res.HTML,
		Blocks:     res.Blocks,
	})
}

// handleBlock returns a stored block's raw text for the copy handler.
func (s *Server) handleBlock(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		writeError(w, http.StatusMethodNotAllowed, "invalid_request_error", "method not allowed")
		return
	}
	block, ok := s.store.Block(r.PathValue("id"), r.PathValue("blockID"))
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "code block not found")
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = io.WriteString(w, block.Raw)
}

func (s *Server) handleStyles(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		writeError(w, http.StatusMethodNotAllowed, "invalid_request_error", "method not allowed")
		return
	}
	css, err := s.styleSheet()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/css; charset=utf-8")
	_, _ = io.WriteString(w, css)
}

func (s *Server) styleSheet() (string, error) {
	s.cssOnce.Do(func() {
		s.css, s.cssErr = s.renderer.StyleSheet()
	})
	return s.css, s.cssErr
}

func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		writeError(w, http.StatusMethodNotAllowed, "invalid_request_error", "method not allowed")
		return
	}
	if s.limiter != nil && !s.limiter.Allow() {
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusTooManyRequests, "rate_limit_error", "too many conversion requests")
		return
	}
	if err := requireJSONContentType(r); err != nil {
		writeError(w, http.StatusUnsupportedMediaType, "invalid_request_error", err.Error())
		return
	}
	var req export.Request
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_error", err.Error())
		return
	}
	if s.exporter == nil {
		writeError(w, http.StatusBadRequest, "invalid_request_error", export.ErrUnsupportedFormat.Error())
		return
	}

	artifact, err := s.exporter.Convert(r.Context(), req)
	switch {
	case errors.Is(err, export.ErrEmptyMarkdown), errors.Is(err, export.ErrUnsupportedFormat):
		writeError(w, http.StatusBadRequest, "invalid_request_error", err.Error())
		return
	case err != nil:
		s.logger.Error("conversion failed", "format", req.Format, "err", err)
		writeError(w, http.StatusBadGateway, "conversion_error", err.Error())
		return
	}

	w.Header().Set("Content-Type", artifact.ContentType)
	w.Header().Set("Content-Disposition", artifact.ContentDisposition())
	w.Header().Set("Content-Length", fmt.Sprint(len(artifact.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(artifact.Data)
}

// cors allows the configured origins. An origin containing * is a pattern
// whose * does not cross dots, so https://*.example.com matches one label.
func (s *Server) cors(next http.HandlerFunc) http.HandlerFunc {
	allowed := make(map[string]struct{}, len(s.cfg.CORSOrigins))
	var patterns []glob.Glob
	allowAll := false
	for _, origin := range s.cfg.CORSOrigins {
		o := strings.TrimSpace(origin)
		if o == "" {
			continue
		}
		if o == "*" {
			allowAll = true
			continue
		}
		if strings.Contains(o, "*") {
			g, err := glob.Compile(o, '.')
			if err != nil {
				s.logger.Warn("ignoring invalid cors origin pattern", "origin", o, "err", err)
				continue
			}
			patterns = append(patterns, g)
			continue
		}
		allowed[o] = struct{}{}
	}
	originAllowed := func(origin string) bool {
		if _, ok := allowed[origin]; ok {
			return true
		}
		for _, g := range patterns {
			if g.Match(origin) {
				return true
			}
		}
		return false
	}

	return func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" {
			if allowAll {
				w.Header().Set("Access-Control-Allow-Origin", "*")
			} else if originAllowed(origin) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Vary", "Origin")
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			w.Header().Set("Access-Control-Expose-Headers", "Content-Disposition")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next(w, r)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("request", "method", r.Method, "path", r.URL.Path, "status", rec.status, "dur", time.Since(start))
	})
}

func writeError(w http.ResponseWriter, status int, errorType, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"message": message,
			"type":    errorType,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return fmt.Errorf("request body exceeds %d bytes", maxBodyBytes)
		}
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return fmt.Errorf("request body must contain a single JSON object")
	}
	return nil
}

func requireJSONContentType(r *http.Request) error {
	contentType := r.Header.Get("Content-Type")
	if strings.TrimSpace(contentType) == "" {
		return fmt.Errorf("Content-Type must be application/json")
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return fmt.Errorf("invalid Content-Type header")
	}
	if mediaType != "application/json" {
		return fmt.Errorf("Content-Type must be application/json")
	}
	return nil
}
