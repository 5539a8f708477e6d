package decode

import (
	"errors"
	"fmt"
	"math"
	"runtime"
)

// ErrInvalidConfig is returned by Config.Validate.
var ErrInvalidConfig = errors.New("invalid decoder config")

// Logger is the logging surface the decoder writes to.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debugf(string, ...any) {}
func (nopLogger) Infof(string, ...any)  {}

// Config tunes the beam search.
type Config struct {
	// BeamWidth is the maximum number of hypotheses carried between frames.
	BeamWidth int
	// PruneMargin drops hypotheses scoring below best-PruneMargin (natural log).
	// math.Inf(1) disables the cutoff.
	PruneMargin float64
	// MinSegmentLength is the minimum chord segment length in frames.
	MinSegmentLength int
	// MinKeyLength is the minimum key segment length in frames.
	MinKeyLength int
	// MaxChordDuration caps a chord segment's duration in quarter notes; 0 is unlimited.
	MaxChordDuration float64
	// AlignOnsets forbids boundaries between frames that share an onset.
	AlignOnsets bool
	// MinChangeProb gates chord boundaries: a segment may close only where
	// the change probability is strictly greater. Setting it to 0 together
	// with MaxNoChangeProb 1 disables both gates.
	MinChangeProb float64
	// MaxNoChangeProb is the largest change probability at which a chord
	// segment may continue instead of closing.
	MaxNoChangeProb float64
	// Workers bounds the goroutines expanding one beam; values below 2 expand sequentially.
	Workers int
	// CacheSize bounds the per-decode score cache; 0 selects the default.
	CacheSize int

	// Policy replaces the policy derived from the length and onset fields.
	Policy Policy
	// Merger replaces the default StateMerger.
	Merger Merger
	// Pruner replaces the default pruner built from BeamWidth and PruneMargin.
	Pruner Pruner
	Logger Logger
}

// DefaultConfig returns the settings used by the CLI and server.
func DefaultConfig() Config {
	return Config{
		BeamWidth:        100,
		PruneMargin:      25,
		MinSegmentLength: 1,
		MinKeyLength:     1,
		MaxChordDuration: 0,
		AlignOnsets:      true,
		MinChangeProb:    0.5,
		MaxNoChangeProb:  0.5,
		Workers:          runtime.GOMAXPROCS(0),
	}
}

// Validate checks every numeric field. Decode calls it before touching the piece.
func (c Config) Validate() error {
	switch {
	case c.BeamWidth <= 0:
		return fmt.Errorf("%w: beam width %d must be positive", ErrInvalidConfig, c.BeamWidth)
	case math.IsNaN(c.PruneMargin) || c.PruneMargin < 0:
		return fmt.Errorf("%w: prune margin %v must be non-negative", ErrInvalidConfig, c.PruneMargin)
	case c.MinSegmentLength < 0:
		return fmt.Errorf("%w: minimum segment length %d is negative", ErrInvalidConfig, c.MinSegmentLength)
	case c.MinKeyLength < 0:
		return fmt.Errorf("%w: minimum key length %d is negative", ErrInvalidConfig, c.MinKeyLength)
	case math.IsNaN(c.MaxChordDuration) || c.MaxChordDuration < 0:
		return fmt.Errorf("%w: maximum chord duration %v is negative", ErrInvalidConfig, c.MaxChordDuration)
	case math.IsNaN(c.MinChangeProb) || c.MinChangeProb < 0 || c.MinChangeProb > 1:
		return fmt.Errorf("%w: min change probability %v outside [0,1]", ErrInvalidConfig, c.MinChangeProb)
	case math.IsNaN(c.MaxNoChangeProb) || c.MaxNoChangeProb < 0 || c.MaxNoChangeProb > 1:
		return fmt.Errorf("%w: max no-change probability %v outside [0,1]", ErrInvalidConfig, c.MaxNoChangeProb)
	case c.MinChangeProb > c.MaxNoChangeProb:
		return fmt.Errorf("%w: chord change undefined for probabilities in (%v, %v)",
			ErrInvalidConfig, c.MaxNoChangeProb, c.MinChangeProb)
	case c.Workers < 0:
		return fmt.Errorf("%w: workers %d is negative", ErrInvalidConfig, c.Workers)
	case c.CacheSize < 0:
		return fmt.Errorf("%w: cache size %d is negative", ErrInvalidConfig, c.CacheSize)
	}
	return nil
}

func (c Config) policy() Policy {
	if c.Policy != nil {
		return c.Policy
	}
	length := LengthPolicy{
		MinChordFrames:   c.MinSegmentLength,
		MinKeyFrames:     c.MinKeyLength,
		MaxChordDuration: c.MaxChordDuration,
	}
	if c.AlignOnsets {
		return Policies{length, OnsetPolicy{}}
	}
	return length
}

func (c Config) merger() Merger {
	if c.Merger != nil {
		return c.Merger
	}
	return StateMerger{}
}

func (c Config) pruner() Pruner {
	if c.Pruner != nil {
		return c.Pruner
	}
	return BeamPruner{Width: c.BeamWidth, Margin: c.PruneMargin}
}

func (c Config) logger() Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return nopLogger{}
}

// gates reports whether the change-probability gates are active.
func (c Config) gated() bool {
	return c.MinChangeProb > 0 || c.MaxNoChangeProb < 1
}
