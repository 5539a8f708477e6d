package main

import (
	"fmt"
	"net"
	"net/http"
	"slices"
	"time"

	"github.com/dustin/go-humanize"
)

// setupRoutes registers the annotation API
func (s *Server) setupRoutes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/", s.handleRoot)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/health/metrics", s.handleMetrics)

	mux.HandleFunc("/api/annotate", s.handleAnnotate)
	mux.HandleFunc("/api/analyses", s.handleAnalyses)
	mux.HandleFunc("/api/analyses/", s.handleAnalysis)

	handler := s.withCORS(mux)
	if s.config.AccessLog {
		handler = s.withAccessLog(handler)
	}
	return handler
}

// withCORS answers browser preflights. An empty origin list or "*" admits
// every origin; otherwise only listed origins are echoed back.
func (s *Server) withCORS(next http.Handler) http.Handler {
	origins := s.config.AllowedOrigins
	anyOrigin := len(origins) == 0 || slices.Contains(origins, "*")

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		switch {
		case anyOrigin:
			w.Header().Set("Access-Control-Allow-Origin", "*")
		case origin != "" && slices.Contains(origins, origin):
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Add("Vary", "Origin")
		}
		if w.Header().Get("Access-Control-Allow-Origin") != "" {
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// statusRecorder remembers the status written by a handler
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	n, err := sr.ResponseWriter.Write(b)
	sr.bytes += n
	return n, err
}

// withAccessLog writes one line per request once the response is done
func (s *Server) withAccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		started := time.Now()
		next.ServeHTTP(rec, r)
		s.log.Infof("%s %s %d %s in %s from %s", r.Method, r.URL.Path, rec.status,
			humanize.Bytes(uint64(rec.bytes)), time.Since(started).Round(time.Microsecond), remoteHost(r))
	})
}

// remoteHost is the peer address without its port
func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Start serves the API until the listener fails
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.config.Port)
	s.log.Infof("🚀 HarmonicDNA server starting on %s", addr)
	s.log.Infof("   Database: %s", s.config.DBPath)
	s.log.Infof("   Beam width: %d, rule: %s", s.config.BeamWidth, s.config.Rule)
	s.log.Infof("   CORS Origins: %v", s.config.AllowedOrigins)
	s.log.Infof("\nEndpoints:")
	s.log.Infof("   GET    /health                  - Health check")
	s.log.Infof("   GET    /api/health/metrics      - Server metrics")
	s.log.Infof("   POST   /api/annotate            - Annotate a piece document")
	s.log.Infof("   GET    /api/analyses            - List stored analyses")
	s.log.Infof("   GET    /api/analyses/{id}       - Get analysis by ID")
	s.log.Infof("   DELETE /api/analyses/{id}       - Delete analysis by ID")

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.setupRoutes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return srv.ListenAndServe()
}
