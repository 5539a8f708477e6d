package harmonic

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/himanishpuri/HarmonicDNA/pkg/harmonic/decode"
	"github.com/himanishpuri/HarmonicDNA/pkg/harmonic/eval"
	"github.com/himanishpuri/HarmonicDNA/pkg/harmonic/piece"
	"github.com/himanishpuri/HarmonicDNA/pkg/harmonic/vocab"
	"github.com/himanishpuri/HarmonicDNA/pkg/logger"
	"github.com/himanishpuri/HarmonicDNA/pkg/models"
)

// searchErrorSlack absorbs summation order differences between the decoder
// and Rescore.
const searchErrorSlack = 1e-9

// harmonicService is the default implementation of the Service interface.
type harmonicService struct {
	storage Storage
	decoder *decode.Decoder
	log     Logger
	config  *Config
}

func NewService(opts ...Option) (Service, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	// Set default logger if none provided
	if cfg.Logger == nil {
		cfg.Logger = logger.GetLogger()
	}
	if cfg.Decode.Logger == nil {
		cfg.Decode.Logger = cfg.Logger
	}
	if cfg.Factory == nil {
		return nil, fmt.Errorf("%w: no scoring model factory", decode.ErrInvalidConfig)
	}

	v := cfg.Vocabulary
	if v == nil {
		if cfg.Rule == nil {
			cfg.Rule = vocab.Diatonic
		}
		v = vocab.Standard(cfg.Rule)
	}
	dec, err := decode.New(v, cfg.Decode)
	if err != nil {
		return nil, err
	}

	// Create or use provided storage
	stor := cfg.Storage
	if stor == nil && cfg.DBPath != "" {
		stor, err = NewSQLiteStorage(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create storage: %w", err)
		}
	}

	return &harmonicService{
		storage: stor,
		decoder: dec,
		log:     cfg.Logger,
		config:  cfg,
	}, nil
}

// Annotate decodes p without storing the result.
func (s *harmonicService) Annotate(ctx context.Context, p *piece.Piece) (*Analysis, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	s.log.Infof("Annotating piece %s (%d frames)", p.ID, p.Len())

	m, err := s.config.Factory(p, s.decoder.Vocabulary())
	if err != nil {
		return nil, fmt.Errorf("building scoring model: %w", err)
	}
	res, err := s.decoder.Decode(ctx, p, m)
	if err != nil {
		return nil, err
	}

	a := s.newAnalysis(p, res)
	s.log.Infof("Annotated %s: %d segments, %d key regions, log prob %.3f in %s",
		p.ID, len(res.Segments), len(res.KeySpans), res.LogProb, res.Stats.Elapsed.Round(time.Millisecond))
	return a, nil
}

// AnnotateAndStore decodes p and persists the analysis.
func (s *harmonicService) AnnotateAndStore(ctx context.Context, p *piece.Piece) (*Analysis, error) {
	if s.storage == nil {
		return nil, ErrNoStorage
	}
	a, err := s.Annotate(ctx, p)
	if err != nil {
		return nil, err
	}
	if err := s.store(a); err != nil {
		return nil, err
	}
	return a, nil
}

// AnnotateBatch decodes pieces concurrently. Failures are reported per piece.
func (s *harmonicService) AnnotateBatch(ctx context.Context, pieces []*piece.Piece, store bool) []BatchItem {
	s.log.Infof("Annotating batch of %d pieces", len(pieces))

	results := s.decoder.DecodeBatch(ctx, pieces, s.config.Factory, s.config.BatchParallel)
	items := make([]BatchItem, len(results))
	failed := 0
	for i, r := range results {
		items[i] = BatchItem{PieceID: r.PieceID, Err: r.Err}
		if r.Err == nil {
			items[i].Analysis = s.newAnalysis(pieces[i], r.Result)
			if store && s.storage == nil {
				items[i].Err = ErrNoStorage
			} else if store {
				items[i].Err = s.store(items[i].Analysis)
			}
		}
		if items[i].Err != nil {
			failed++
			s.log.Warnf("Piece %q failed: %v", r.PieceID, items[i].Err)
		}
	}
	s.log.Infof("Batch complete: %d succeeded, %d failed", len(items)-failed, failed)
	return items
}

// Evaluate annotates p and compares the result with reference.
func (s *harmonicService) Evaluate(ctx context.Context, p *piece.Piece, reference []piece.Segment, opts eval.Options) (*Evaluation, error) {
	a, err := s.Annotate(ctx, p)
	if err != nil {
		return nil, err
	}
	report, err := eval.Compare(p, reference, a.Segments, opts)
	if err != nil {
		return nil, err
	}

	ev := &Evaluation{Analysis: a, Report: report, ReferenceLogProb: math.Inf(-1)}
	m, err := s.config.Factory(p, s.decoder.Vocabulary())
	if err != nil {
		return nil, fmt.Errorf("building scoring model: %w", err)
	}
	ref, err := decode.Rescore(p, s.decoder.Vocabulary(), m, reference)
	if err != nil {
		s.log.Warnf("Reference labeling of %s cannot be scored: %v", p.ID, err)
	} else {
		ev.ReferenceLogProb = ref
		ev.SearchError = ref > a.LogProb+searchErrorSlack
	}
	s.log.Infof("Evaluated %s: %s", p.ID, report)
	return ev, nil
}

func (s *harmonicService) GetAnalysis(id string) (*Analysis, error) {
	if s.storage == nil {
		return nil, ErrNoStorage
	}
	return s.storage.GetAnalysis(id)
}

func (s *harmonicService) ListAnalyses() ([]AnalysisSummary, error) {
	if s.storage == nil {
		return nil, ErrNoStorage
	}
	return s.storage.ListAnalyses()
}

func (s *harmonicService) DeleteAnalysis(id string) error {
	if s.storage == nil {
		return ErrNoStorage
	}
	if err := s.storage.DeleteAnalysis(id); err != nil {
		return err
	}
	s.log.Infof("Deleted analysis %s", id)
	return nil
}

func (s *harmonicService) Stats() (models.DatabaseStats, error) {
	if s.storage == nil {
		return models.DatabaseStats{}, ErrNoStorage
	}
	return s.storage.Stats()
}

func (s *harmonicService) Close() error {
	if s.storage == nil {
		return nil
	}
	return s.storage.Close()
}

func (s *harmonicService) store(a *Analysis) error {
	id, err := s.storage.SaveAnalysis(a)
	if err != nil {
		return fmt.Errorf("failed to store analysis: %w", err)
	}
	a.ID = id
	s.log.Infof("Stored analysis %s for piece %s", id, a.PieceID)
	return nil
}

func (s *harmonicService) newAnalysis(p *piece.Piece, res *decode.Result) *Analysis {
	stats := res.Stats
	return &Analysis{
		PieceID:    p.ID,
		Title:      p.Title,
		FrameCount: p.Len(),
		LogProb:    res.LogProb,
		BeamWidth:  s.config.Decode.BeamWidth,
		ModelName:  s.config.ModelName,
		Segments:   res.Segments,
		CreatedAt:  time.Now().UTC(),
		Stats:      &stats,
	}
}
