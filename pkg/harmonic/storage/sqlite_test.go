package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/himanishpuri/HarmonicDNA/pkg/models"
	"github.com/himanishpuri/HarmonicDNA/pkg/utils"
)

// Helper function to create a temporary test database
func setupTestDB(t *testing.T) (*DBClient, string) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test_harmonic.sqlite3")
	t.Setenv("HARMONIC_DB_PATH", dbPath)

	client, err := NewDBClient()
	if err != nil {
		t.Fatalf("Failed to create test DB client: %v", err)
	}
	t.Cleanup(func() {
		client.Close()
	})

	return client, dbPath
}

func sampleAnalysis(pieceID string, created time.Time) *models.Analysis {
	return &models.Analysis{
		PieceID:    pieceID,
		Title:      "Prelude " + pieceID,
		FrameCount: 8,
		LogProb:    -12.5,
		BeamWidth:  64,
		ModelName:  "template",
		CreatedAt:  created,
		Segments: []models.Segment{
			{Start: 0, End: 3, Key: "C", Chord: "C:M", Figure: "I"},
			{Start: 3, End: 5, Key: "C", Chord: "G:Mm7/1", Figure: "V65"},
			{Start: 5, End: 8, Key: "a", Chord: "A:m", Figure: "i"},
		},
	}
}

// TestNewDBClient tests database initialization
func TestNewDBClient(t *testing.T) {
	client, dbPath := setupTestDB(t)

	if client.DB == nil {
		t.Fatal("Expected non-nil GORM DB handle")
	}
	if client.db == nil {
		t.Fatal("Expected non-nil sql.DB handle")
	}
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Errorf("Database file was not created at %s", dbPath)
	}
}

// TestNewDBClientWithCustomPath tests that missing parent directories are created
func TestNewDBClientWithCustomPath(t *testing.T) {
	customPath := filepath.Join(t.TempDir(), "subdir", "nested", "custom.db")

	client, err := NewDBClientWithPath(customPath)
	if err != nil {
		t.Fatalf("Failed to create DB with custom path: %v", err)
	}
	defer client.Close()

	if _, err := os.Stat(customPath); os.IsNotExist(err) {
		t.Errorf("Database file was not created at custom path %s", customPath)
	}
}

// TestSaveAndGetAnalysis tests a full round trip including segment order
func TestSaveAndGetAnalysis(t *testing.T) {
	client, _ := setupTestDB(t)

	in := sampleAnalysis("bwv846", time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	id, err := client.SaveAnalysis(in)
	if err != nil {
		t.Fatalf("Failed to save analysis: %v", err)
	}
	if !utils.IsUUID(id) {
		t.Errorf("Expected a UUID id, got %q", id)
	}

	got, err := client.GetAnalysis(id)
	if err != nil {
		t.Fatalf("Failed to get analysis: %v", err)
	}
	if got.ID != id || got.PieceID != "bwv846" || got.Title != in.Title {
		t.Errorf("Unexpected analysis header %+v", got)
	}
	if got.FrameCount != 8 || got.LogProb != -12.5 || got.BeamWidth != 64 || got.ModelName != "template" {
		t.Errorf("Unexpected analysis fields %+v", got)
	}
	if !got.CreatedAt.Equal(in.CreatedAt) {
		t.Errorf("Expected created at %v, got %v", in.CreatedAt, got.CreatedAt)
	}
	if got.SegmentCount != 3 || len(got.Segments) != 3 {
		t.Fatalf("Expected 3 segments, got count %d and %d rows", got.SegmentCount, len(got.Segments))
	}
	for i, s := range got.Segments {
		if s != in.Segments[i] {
			t.Errorf("Segment %d: expected %+v, got %+v", i, in.Segments[i], s)
		}
	}
}

// TestSaveAnalysisKeepsExplicitID tests that a caller supplied id is used
func TestSaveAnalysisKeepsExplicitID(t *testing.T) {
	client, _ := setupTestDB(t)

	in := sampleAnalysis("p", time.Now())
	in.ID = utils.GenerateUUID()
	id, err := client.SaveAnalysis(in)
	if err != nil {
		t.Fatalf("Failed to save analysis: %v", err)
	}
	if id != in.ID {
		t.Errorf("Expected id %s, got %s", in.ID, id)
	}

	if _, err := client.SaveAnalysis(in); err == nil {
		t.Error("Expected duplicate id to fail")
	}
	if n, _ := client.SegmentCount(id); n != 3 {
		t.Errorf("Expected failed duplicate save to leave 3 segments, found %d", n)
	}
}

// TestGetAnalysisNotFound tests lookups of unknown ids
func TestGetAnalysisNotFound(t *testing.T) {
	client, _ := setupTestDB(t)

	_, err := client.GetAnalysis(utils.GenerateUUID())
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

// TestListAnalyses tests ordering and segment counts of list queries
func TestListAnalyses(t *testing.T) {
	client, _ := setupTestDB(t)

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	var ids []string
	for i := 0; i < 3; i++ {
		a := sampleAnalysis(fmt.Sprintf("p%d", i), base.Add(time.Duration(i)*time.Hour))
		a.Segments = a.Segments[:i+1]
		id, err := client.SaveAnalysis(a)
		if err != nil {
			t.Fatalf("Failed to save analysis %d: %v", i, err)
		}
		ids = append(ids, id)
	}

	list, err := client.ListAnalyses()
	if err != nil {
		t.Fatalf("Failed to list analyses: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("Expected 3 analyses, got %d", len(list))
	}
	for i, a := range list {
		want := 2 - i
		if a.ID != ids[want] {
			t.Errorf("Position %d: expected %s, got %s", i, ids[want], a.ID)
		}
		if a.SegmentCount != want+1 {
			t.Errorf("Analysis %s: expected %d segments, got %d", a.PieceID, want+1, a.SegmentCount)
		}
		if len(a.Segments) != 0 {
			t.Errorf("Expected list results without segments, got %d", len(a.Segments))
		}
	}
}

// TestDeleteAnalysis tests cascading deletion of segments
func TestDeleteAnalysis(t *testing.T) {
	client, _ := setupTestDB(t)

	keep, _ := client.SaveAnalysis(sampleAnalysis("keep", time.Now()))
	drop, err := client.SaveAnalysis(sampleAnalysis("drop", time.Now()))
	if err != nil {
		t.Fatalf("Failed to save analysis: %v", err)
	}

	if err := client.DeleteAnalysis(drop); err != nil {
		t.Fatalf("Failed to delete analysis: %v", err)
	}
	if _, err := client.GetAnalysis(drop); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected deleted analysis to be gone, got %v", err)
	}
	if n, _ := client.SegmentCount(drop); n != 0 {
		t.Errorf("Expected 0 segments after deletion, found %d", n)
	}
	if n, _ := client.SegmentCount(keep); n != 3 {
		t.Errorf("Expected the other analysis to keep 3 segments, found %d", n)
	}

	if err := client.DeleteAnalysis(drop); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound on second delete, got %v", err)
	}
}

// TestStats tests the aggregate counters
func TestStats(t *testing.T) {
	client, _ := setupTestDB(t)

	st, err := client.Stats()
	if err != nil {
		t.Fatalf("Failed to get stats: %v", err)
	}
	if st.Analyses != 0 || st.Segments != 0 {
		t.Errorf("Expected empty stats, got %+v", st)
	}

	client.SaveAnalysis(sampleAnalysis("a", time.Now()))
	client.SaveAnalysis(sampleAnalysis("b", time.Now()))

	st, _ = client.Stats()
	if st.Analyses != 2 || st.Segments != 6 {
		t.Errorf("Expected 2 analyses and 6 segments, got %+v", st)
	}
}

// TestNilClient tests that a nil client fails without panicking
func TestNilClient(t *testing.T) {
	var client *DBClient

	if err := client.Close(); err != nil {
		t.Errorf("Expected nil Close to succeed, got %v", err)
	}
	if _, err := client.SaveAnalysis(sampleAnalysis("x", time.Now())); err == nil {
		t.Error("Expected error from nil client")
	}
	if _, err := client.ListAnalyses(); err == nil {
		t.Error("Expected error from nil client")
	}
}

// TestMustNewDBClient tests the env driven constructor
func TestMustNewDBClient(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "must.sqlite3")
	t.Setenv("HARMONIC_DB_PATH", dbPath)

	client := MustNewDBClient()
	defer client.Close()

	if _, err := os.Stat(dbPath); err != nil {
		t.Errorf("Expected database at %s: %v", dbPath, err)
	}
}
