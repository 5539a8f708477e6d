package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/himanishpuri/HarmonicDNA/internal/export"
	"github.com/himanishpuri/HarmonicDNA/pkg/harmonic"
	"github.com/himanishpuri/HarmonicDNA/pkg/harmonic/decode"
	"github.com/himanishpuri/HarmonicDNA/pkg/harmonic/piece"
	"github.com/himanishpuri/HarmonicDNA/pkg/harmonic/vocab"
	"github.com/himanishpuri/HarmonicDNA/pkg/logger"
	"github.com/himanishpuri/HarmonicDNA/pkg/utils"
)

// Server encapsulates the HTTP server and its dependencies
type Server struct {
	service harmonic.Service
	config  *ServerConfig
	log     harmonic.Logger
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port           int
	DBPath         string
	BeamWidth      int
	Rule           string
	Timeout        time.Duration
	AllowedOrigins []string
	AccessLog      bool
}

// NewServer creates a new server instance
func NewServer(service harmonic.Service, config *ServerConfig) *Server {
	return &Server{
		service: service,
		config:  config,
		log:     logger.GetLogger(),
	}
}

// respondJSON writes a JSON response
func (s *Server) respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Errorf("Failed to encode JSON response: %v", err)
	}
}

// respondError writes an error response
func (s *Server) respondError(w http.ResponseWriter, statusCode int, message string) {
	s.respondJSON(w, statusCode, ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    statusCode,
	})
}

// statusFor maps annotation errors to HTTP status codes
func statusFor(err error) int {
	var structural *decode.StructuralError
	var maxBytes *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, piece.ErrInvalidPiece), errors.Is(err, vocab.ErrUnknownLabel):
		return http.StatusBadRequest
	case errors.Is(err, harmonic.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &structural):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

// handleRoot handles GET /
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]any{
		"service": "HarmonicDNA API",
		"version": "1.0.0",
		"endpoints": map[string]string{
			"health":         "GET /health",
			"metrics":        "GET /api/health/metrics",
			"annotate":       "POST /api/annotate?store=true&format=json|rntxt|table",
			"listAnalyses":   "GET /api/analyses",
			"getAnalysis":    "GET /api/analyses/{id}",
			"deleteAnalysis": "DELETE /api/analyses/{id}",
		},
	})
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// handleMetrics handles GET /api/health/metrics
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	st, err := s.service.Stats()
	if err != nil {
		s.log.Errorf("Failed to get database stats: %v", err)
		s.respondError(w, http.StatusInternalServerError, "Failed to retrieve metrics")
		return
	}

	s.respondJSON(w, http.StatusOK, MetricsResponse{
		Status:        "healthy",
		DatabasePath:  s.config.DBPath,
		AnalysisCount: st.Analyses,
		SegmentCount:  st.Segments,
		BeamWidth:     s.config.BeamWidth,
		Rule:          s.config.Rule,
	})
}

// handleAnnotatePiece handles POST /api/annotate with a piece document body
func (s *Server) handleAnnotatePiece(w http.ResponseWriter, r *http.Request) {
	timeout := s.config.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	format := export.FormatJSON
	if f := r.URL.Query().Get("format"); f != "" {
		parsed, err := export.ParseFormat(f)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		format = parsed
	}
	store := false
	if v := r.URL.Query().Get("store"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "store must be a boolean")
			return
		}
		store = b
	}

	doc, err := piece.Decode(http.MaxBytesReader(w, r.Body, MaxPieceBytes))
	if err != nil {
		s.log.Warnf("Failed to decode piece: %v", err)
		code := statusFor(err)
		if code == http.StatusInternalServerError {
			code = http.StatusBadRequest
		}
		s.respondError(w, code, fmt.Sprintf("Invalid piece document: %v", err))
		return
	}
	p := doc.Piece
	if p.ID == "" {
		p.ID = "request-" + utils.GenerateUUID()[:8]
	}

	var a *harmonic.Analysis
	if store {
		a, err = s.service.AnnotateAndStore(ctx, p)
	} else {
		a, err = s.service.Annotate(ctx, p)
	}
	if err != nil {
		code := statusFor(err)
		s.log.Errorf("Failed to annotate %s: %v", p.ID, err)
		s.respondError(w, code, fmt.Sprintf("Failed to annotate piece: %v", err))
		return
	}

	status := http.StatusOK
	if store {
		status = http.StatusCreated
	}
	out := export.Document{Analysis: a, Frames: p.Frames}
	if format == export.FormatJSON {
		s.respondJSON(w, status, export.JSON(out))
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	if err := export.Write(w, format, out); err != nil {
		s.log.Errorf("Failed to write %s response: %v", format, err)
	}
}

// handleListAnalyses handles GET /api/analyses
func (s *Server) handleListAnalyses(w http.ResponseWriter, r *http.Request) {
	analyses, err := s.service.ListAnalyses()
	if err != nil {
		s.log.Errorf("Failed to list analyses: %v", err)
		s.respondError(w, http.StatusInternalServerError, "Failed to retrieve analyses")
		return
	}

	dtos := make([]AnalysisSummaryDTO, len(analyses))
	for i, a := range analyses {
		dtos[i] = AnalysisSummaryDTO{
			ID:           a.ID,
			PieceID:      a.PieceID,
			Title:        a.Title,
			FrameCount:   a.FrameCount,
			SegmentCount: a.SegmentCount,
			LogProb:      a.LogProb,
			Model:        a.ModelName,
			CreatedAt:    a.CreatedAt,
		}
	}

	s.respondJSON(w, http.StatusOK, ListAnalysesResponse{
		Analyses: dtos,
		Count:    len(dtos),
	})
}

// handleGetAnalysis handles GET /api/analyses/{id}
func (s *Server) handleGetAnalysis(w http.ResponseWriter, r *http.Request, id string) {
	a, err := s.service.GetAnalysis(id)
	if err != nil {
		code := statusFor(err)
		if code == http.StatusNotFound {
			s.log.Warnf("Analysis not found: %s", id)
			s.respondError(w, code, fmt.Sprintf("Analysis with ID %s not found", id))
			return
		}
		s.log.Errorf("Failed to load analysis %s: %v", id, err)
		s.respondError(w, code, "Failed to load analysis")
		return
	}

	s.respondJSON(w, http.StatusOK, export.JSON(export.Document{Analysis: a}))
}

// handleDeleteAnalysis handles DELETE /api/analyses/{id}
func (s *Server) handleDeleteAnalysis(w http.ResponseWriter, r *http.Request, id string) {
	if err := s.service.DeleteAnalysis(id); err != nil {
		code := statusFor(err)
		if code == http.StatusNotFound {
			s.log.Warnf("Analysis not found for deletion: %s", id)
			s.respondError(w, code, fmt.Sprintf("Analysis with ID %s not found", id))
			return
		}
		s.log.Errorf("Failed to delete analysis %s: %v", id, err)
		s.respondError(w, code, "Failed to delete analysis")
		return
	}

	s.respondJSON(w, http.StatusOK, DeleteAnalysisResponse{
		Message: "Analysis deleted successfully",
		ID:      id,
	})
}

// handleAnnotate routes requests to /api/annotate
func (s *Server) handleAnnotate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	s.handleAnnotatePiece(w, r)
}

// handleAnalyses routes requests to /api/analyses
func (s *Server) handleAnalyses(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	s.handleListAnalyses(w, r)
}

// handleAnalysis routes requests to /api/analyses/{id}
func (s *Server) handleAnalysis(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Path[len("/api/analyses/"):]
	if id == "" {
		s.respondError(w, http.StatusBadRequest, "Analysis ID required")
		return
	}
	if !utils.IsUUID(id) {
		s.respondError(w, http.StatusBadRequest, "Invalid analysis ID")
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.handleGetAnalysis(w, r, id)
	case http.MethodDelete:
		s.handleDeleteAnalysis(w, r, id)
	default:
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}
