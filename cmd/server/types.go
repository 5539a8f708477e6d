package main

import "time"

// MaxPieceBytes bounds the request body of POST /api/annotate.
const MaxPieceBytes = 16 << 20

// AnalysisSummaryDTO represents a stored analysis in list responses
type AnalysisSummaryDTO struct {
	ID           string    `json:"id"`
	PieceID      string    `json:"piece_id"`
	Title        string    `json:"title,omitempty"`
	FrameCount   int       `json:"frame_count"`
	SegmentCount int       `json:"segment_count"`
	LogProb      float64   `json:"log_prob"`
	Model        string    `json:"model"`
	CreatedAt    time.Time `json:"created_at"`
}

// ListAnalysesResponse is the response for GET /api/analyses
type ListAnalysesResponse struct {
	Analyses []AnalysisSummaryDTO `json:"analyses"`
	Count    int                  `json:"count"`
}

// DeleteAnalysisResponse is the response for DELETE /api/analyses/{id}
type DeleteAnalysisResponse struct {
	Message string `json:"message"`
	ID      string `json:"id"`
}

// MetricsResponse provides server health and database metrics
type MetricsResponse struct {
	Status        string `json:"status"`
	DatabasePath  string `json:"database_path"`
	AnalysisCount int64  `json:"analysis_count"`
	SegmentCount  int64  `json:"segment_count"`
	BeamWidth     int    `json:"beam_width"`
	Rule          string `json:"rule"`
}

// ErrorResponse is the standard error response format
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code,omitempty"`
}
