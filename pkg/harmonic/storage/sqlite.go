//go:build !js && !wasm
// +build !js,!wasm

package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	customlogger "github.com/himanishpuri/HarmonicDNA/pkg/logger"
	"github.com/himanishpuri/HarmonicDNA/pkg/models"
	"github.com/himanishpuri/HarmonicDNA/pkg/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const DefaultDBFile = "harmonicdna.sqlite3"
const errDBClientNil = "db client is nil"

// ErrNotFound is returned when an analysis id does not exist.
var ErrNotFound = errors.New("analysis not found")

type DBClient struct {
	DB *gorm.DB
	db *sql.DB
}

type Analysis struct {
	ID         string  `gorm:"primaryKey;type:varchar(36)"`
	PieceID    string  `gorm:"index:idx_piece_id" json:"piece_id"`
	Title      string  `json:"title"`
	FrameCount int     `json:"frame_count"`
	LogProb    float64 `json:"log_prob"`
	BeamWidth  int     `json:"beam_width"`
	ModelName  string  `json:"model_name"`
	CreatedAt  time.Time
}

type Segment struct {
	ID         uint   `gorm:"primaryKey;autoIncrement"`
	AnalysisID string `gorm:"type:varchar(36);index:idx_analysis,priority:1" json:"analysis_id"`
	Position   int    `gorm:"index:idx_analysis,priority:2" json:"position"`
	Start      int    `json:"start"`
	End        int    `json:"end"`
	Key        string `json:"key"`
	Chord      string `json:"chord"`
	Figure     string `json:"figure"`
}

func NewDBClient() (*DBClient, error) {
	dbPath := os.Getenv("HARMONIC_DB_PATH")
	if dbPath == "" {
		dbPath = DefaultDBFile
	}
	return NewDBClientWithPath(dbPath)
}

func NewDBClientWithPath(dbPath string) (*DBClient, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := utils.MakeDir(dir); err != nil {
			return nil, fmt.Errorf("creating db dir: %w", err)
		}
	}

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	}

	db, err := gorm.Open(sqlite.Open(dbPath+"?_pragma=foreign_keys(1)"), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting sql.DB from gorm: %w", err)
	}

	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&Analysis{}, &Segment{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("auto migrate: %w", err)
	}

	return &DBClient{DB: db, db: sqlDB}, nil
}

func (c *DBClient) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

// SaveAnalysis stores a and its segments in one transaction and returns the
// analysis id. An empty a.ID is replaced by a fresh UUID.
func (c *DBClient) SaveAnalysis(a *models.Analysis) (string, error) {
	if c == nil || c.DB == nil {
		return "", errors.New(errDBClientNil)
	}
	if a == nil {
		return "", errors.New("analysis is nil")
	}

	id := a.ID
	if id == "" {
		id = utils.GenerateUUID()
	}
	row := Analysis{
		ID:         id,
		PieceID:    a.PieceID,
		Title:      a.Title,
		FrameCount: a.FrameCount,
		LogProb:    a.LogProb,
		BeamWidth:  a.BeamWidth,
		ModelName:  a.ModelName,
		CreatedAt:  a.CreatedAt,
	}
	segs := make([]Segment, len(a.Segments))
	for i, s := range a.Segments {
		segs[i] = Segment{
			AnalysisID: id,
			Position:   i,
			Start:      s.Start,
			End:        s.End,
			Key:        s.Key,
			Chord:      s.Chord,
			Figure:     s.Figure,
		}
	}

	err := c.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("creating analysis: %w", err)
		}
		if len(segs) > 0 {
			if err := tx.CreateInBatches(segs, 500).Error; err != nil {
				return fmt.Errorf("batch insert segments: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// GetAnalysis loads one analysis with its segments in order.
func (c *DBClient) GetAnalysis(id string) (*models.Analysis, error) {
	if c == nil || c.DB == nil {
		return nil, errors.New(errDBClientNil)
	}

	var row Analysis
	if err := c.DB.Where("id = ?", id).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("querying analysis: %w", err)
	}

	var segs []Segment
	if err := c.DB.Where("analysis_id = ?", id).Order("position").Find(&segs).Error; err != nil {
		return nil, fmt.Errorf("querying segments: %w", err)
	}

	a := toModel(row)
	a.SegmentCount = len(segs)
	a.Segments = make([]models.Segment, len(segs))
	for i, s := range segs {
		a.Segments[i] = models.Segment{Start: s.Start, End: s.End, Key: s.Key, Chord: s.Chord, Figure: s.Figure}
	}
	return &a, nil
}

// ListAnalyses returns every analysis, newest first, without segments.
func (c *DBClient) ListAnalyses() ([]models.Analysis, error) {
	if c == nil || c.DB == nil {
		return nil, errors.New(errDBClientNil)
	}

	var rows []Analysis
	if err := c.DB.Order("created_at DESC").Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("listing analyses: %w", err)
	}

	var counts []struct {
		AnalysisID string
		N          int
	}
	if err := c.DB.Model(&Segment{}).Select("analysis_id, count(*) as n").Group("analysis_id").Scan(&counts).Error; err != nil {
		return nil, fmt.Errorf("counting segments: %w", err)
	}
	byID := make(map[string]int, len(counts))
	for _, cnt := range counts {
		byID[cnt.AnalysisID] = cnt.N
	}

	out := make([]models.Analysis, len(rows))
	for i, r := range rows {
		out[i] = toModel(r)
		out[i].SegmentCount = byID[r.ID]
	}
	return out, nil
}

// DeleteAnalysis removes an analysis and its segments.
func (c *DBClient) DeleteAnalysis(id string) error {
	if c == nil || c.DB == nil {
		return errors.New(errDBClientNil)
	}
	return c.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("analysis_id = ?", id).Delete(&Segment{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&Analysis{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil
	})
}

func (c *DBClient) SegmentCount(id string) (int, error) {
	if c == nil || c.DB == nil {
		return 0, errors.New(errDBClientNil)
	}
	var count int64
	if err := c.DB.Model(&Segment{}).Where("analysis_id = ?", id).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("counting segments: %w", err)
	}
	return int(count), nil
}

// Stats counts stored analyses and segments.
func (c *DBClient) Stats() (models.DatabaseStats, error) {
	var st models.DatabaseStats
	if c == nil || c.DB == nil {
		return st, errors.New(errDBClientNil)
	}
	if err := c.DB.Model(&Analysis{}).Count(&st.Analyses).Error; err != nil {
		return st, fmt.Errorf("counting analyses: %w", err)
	}
	if err := c.DB.Model(&Segment{}).Count(&st.Segments).Error; err != nil {
		return st, fmt.Errorf("counting segments: %w", err)
	}
	return st, nil
}

func toModel(r Analysis) models.Analysis {
	return models.Analysis{
		ID:         r.ID,
		PieceID:    r.PieceID,
		Title:      r.Title,
		FrameCount: r.FrameCount,
		LogProb:    r.LogProb,
		BeamWidth:  r.BeamWidth,
		ModelName:  r.ModelName,
		CreatedAt:  r.CreatedAt,
	}
}

// Convenience: helper to build a DB client from HARMONIC_DB_PATH and log errors.
func MustNewDBClient() *DBClient {
	cli, err := NewDBClient()
	if err != nil {
		customlogger.GetLogger().Errorf("failed to open DB: %v", err)
		panic(err)
	}
	return cli
}
