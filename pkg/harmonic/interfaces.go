package harmonic

import (
	"context"

	"github.com/himanishpuri/HarmonicDNA/pkg/harmonic/eval"
	"github.com/himanishpuri/HarmonicDNA/pkg/harmonic/piece"
	"github.com/himanishpuri/HarmonicDNA/pkg/models"
)

type Service interface {
	Annotate(ctx context.Context, p *piece.Piece) (*Analysis, error)
	AnnotateAndStore(ctx context.Context, p *piece.Piece) (*Analysis, error)
	AnnotateBatch(ctx context.Context, pieces []*piece.Piece, store bool) []BatchItem
	Evaluate(ctx context.Context, p *piece.Piece, reference []piece.Segment, opts eval.Options) (*Evaluation, error)
	GetAnalysis(id string) (*Analysis, error)
	ListAnalyses() ([]AnalysisSummary, error)
	DeleteAnalysis(id string) error
	Stats() (models.DatabaseStats, error)
	Close() error
}

type Storage interface {
	SaveAnalysis(a *Analysis) (string, error)
	GetAnalysis(id string) (*Analysis, error)
	ListAnalyses() ([]AnalysisSummary, error)
	DeleteAnalysis(id string) error
	SegmentCount(id string) (int, error)
	Stats() (models.DatabaseStats, error)
	Close() error
}

type Logger interface {
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
	Debugf(format string, args ...any)
}
