package harmonic

import (
	"fmt"

	"github.com/himanishpuri/HarmonicDNA/pkg/harmonic/piece"
	"github.com/himanishpuri/HarmonicDNA/pkg/harmonic/storage"
	"github.com/himanishpuri/HarmonicDNA/pkg/harmonic/vocab"
	"github.com/himanishpuri/HarmonicDNA/pkg/models"
)

// storageAdapter adapts the storage.DBClient to implement the Storage interface.
type storageAdapter struct {
	db *storage.DBClient
}

// NewSQLiteStorage creates a new SQLite storage backend.
func NewSQLiteStorage(dbPath string) (Storage, error) {
	db, err := storage.NewDBClientWithPath(dbPath)
	if err != nil {
		return nil, err
	}
	return &storageAdapter{db: db}, nil
}

func (s *storageAdapter) SaveAnalysis(a *Analysis) (string, error) {
	figures := a.Figures()
	rec := &models.Analysis{
		ID:         a.ID,
		PieceID:    a.PieceID,
		Title:      a.Title,
		FrameCount: a.FrameCount,
		LogProb:    a.LogProb,
		BeamWidth:  a.BeamWidth,
		ModelName:  a.ModelName,
		CreatedAt:  a.CreatedAt,
		Segments:   make([]models.Segment, len(a.Segments)),
	}
	for i, seg := range a.Segments {
		rec.Segments[i] = models.Segment{
			Start:  seg.Start,
			End:    seg.End,
			Key:    seg.Key.String(),
			Chord:  seg.Chord.String(),
			Figure: figures[i],
		}
	}
	return s.db.SaveAnalysis(rec)
}

func (s *storageAdapter) GetAnalysis(id string) (*Analysis, error) {
	rec, err := s.db.GetAnalysis(id)
	if err != nil {
		return nil, err
	}

	a := &Analysis{
		ID:         rec.ID,
		PieceID:    rec.PieceID,
		Title:      rec.Title,
		FrameCount: rec.FrameCount,
		LogProb:    rec.LogProb,
		BeamWidth:  rec.BeamWidth,
		ModelName:  rec.ModelName,
		CreatedAt:  rec.CreatedAt,
		Segments:   make([]piece.Segment, len(rec.Segments)),
	}
	for i, seg := range rec.Segments {
		key, err := vocab.ParseKey(seg.Key)
		if err != nil {
			return nil, fmt.Errorf("analysis %s segment %d: %w", id, i, err)
		}
		chord, err := vocab.ParseChord(seg.Chord)
		if err != nil {
			return nil, fmt.Errorf("analysis %s segment %d: %w", id, i, err)
		}
		a.Segments[i] = piece.Segment{Start: seg.Start, End: seg.End, Key: key, Chord: chord}
	}
	return a, nil
}

func (s *storageAdapter) ListAnalyses() ([]AnalysisSummary, error) {
	recs, err := s.db.ListAnalyses()
	if err != nil {
		return nil, err
	}

	out := make([]AnalysisSummary, len(recs))
	for i, rec := range recs {
		out[i] = AnalysisSummary{
			ID:           rec.ID,
			PieceID:      rec.PieceID,
			Title:        rec.Title,
			FrameCount:   rec.FrameCount,
			SegmentCount: rec.SegmentCount,
			LogProb:      rec.LogProb,
			ModelName:    rec.ModelName,
			CreatedAt:    rec.CreatedAt,
		}
	}
	return out, nil
}

func (s *storageAdapter) DeleteAnalysis(id string) error {
	return s.db.DeleteAnalysis(id)
}

func (s *storageAdapter) SegmentCount(id string) (int, error) {
	return s.db.SegmentCount(id)
}

func (s *storageAdapter) Stats() (models.DatabaseStats, error) {
	return s.db.Stats()
}

func (s *storageAdapter) Close() error {
	return s.db.Close()
}
