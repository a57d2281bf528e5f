package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"calagg/internal/apperr"
	appLog "calagg/internal/log"
	"calagg/internal/pipeline"
)

// calendarName matches the files a run writes; nothing else in the output
// directory is served.
var calendarName = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*\.ical$`)

// Server publishes the output directory of a watch loop: the calendar
// files, the last run's status and, when a registry is given, metrics.
type Server struct {
	outdir   string
	username string
	password string
	gatherer prometheus.Gatherer
	mux      *http.ServeMux

	mu   sync.RWMutex
	last *runStatus
}

// Option customizes a Server.
type Option func(*Server)

// WithBasicAuth protects every endpoint except /health. Empty credentials
// leave auth disabled.
func WithBasicAuth(username, password string) Option {
	return func(s *Server) {
		s.username = username
		s.password = password
	}
}

// WithMetrics exposes g on /metrics.
func WithMetrics(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// NewServer constructs a Server for outdir.
func NewServer(outdir string, opts ...Option) *Server {
	s := &Server{outdir: outdir, mux: http.NewServeMux()}
	for _, opt := range opts {
		opt(s)
	}
	s.registerRoutes()
	return s
}

// Record stores the outcome of a run for /api/status.
func (s *Server) Record(rep pipeline.Report, err error) {
	st := &runStatus{FinishedAt: time.Now().UTC(), OK: err == nil}
	if err != nil {
		st.Error = err.Error()
		st.Kind = string(apperr.KindOf(err))
	} else {
		st.PrimaryEvents = rep.PrimaryEvents
		for _, c := range rep.Stores {
			st.Calendars = append(st.Calendars, calendarDTO{
				Category: string(c.Category),
				File:     filepath.Base(c.Path),
				New:      c.New,
				Total:    c.Total,
			})
		}
	}
	s.mu.Lock()
	s.last = st
	s.mu.Unlock()
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled")
		return s.basicAuthMiddleware(h)
	}
	return h
}

func (s *Server) basicAuthEnabled() bool {
	return s.username != "" && s.password != ""
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, s.username) || !secureCompare(p, s.password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="calagg", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return apperr.Config("http server", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/api/status", s.handleStatus)
	s.mux.HandleFunc("/calendars/", s.handleCalendar)
	if s.gatherer != nil {
		s.mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleStatus reports the last finished run, or 503 before the first one.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	st := s.last
	s.mu.RUnlock()
	if st == nil {
		writeError(w, http.StatusServiceUnavailable, "no run finished yet")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// handleCalendar serves GET /calendars/<category>.ical from the output
// directory.
func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	name := r.URL.Path[len("/calendars/"):]
	if !calendarName.MatchString(name) {
		http.NotFound(w, r)
		return
	}

	path := filepath.Join(s.outdir, name)
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			http.NotFound(w, r)
			return
		}
		appLog.Error("calendar open failed", err, "path", path)
		writeError(w, http.StatusInternalServerError, "failed to read calendar")
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read calendar")
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	http.ServeContent(w, r, name, info.ModTime(), f)
}

// runStatus is the JSON response shape for /api/status.
type runStatus struct {
	FinishedAt    time.Time     `json:"finished_at"`
	OK            bool          `json:"ok"`
	Error         string        `json:"error,omitempty"`
	Kind          string        `json:"kind,omitempty"`
	PrimaryEvents int           `json:"primary_events,omitempty"`
	Calendars     []calendarDTO `json:"calendars,omitempty"`
}

type calendarDTO struct {
	Category string `json:"category"`
	File     string `json:"file"`
	New      int    `json:"new"`
	Total    int    `json:"total"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
