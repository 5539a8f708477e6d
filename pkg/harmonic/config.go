package harmonic

import (
	"github.com/himanishpuri/HarmonicDNA/pkg/harmonic/decode"
	"github.com/himanishpuri/HarmonicDNA/pkg/harmonic/scoring"
	"github.com/himanishpuri/HarmonicDNA/pkg/harmonic/vocab"
)

const DefaultDBFile = "harmonicdna.sqlite3"

type Config struct {
	// DBPath is the SQLite file used when Storage is nil. An empty path
	// disables persistence.
	DBPath  string
	Logger  Logger
	Storage Storage

	Decode     decode.Config
	Rule       vocab.Rule
	Vocabulary *vocab.Vocabulary

	ModelName string
	Factory   scoring.Factory

	// BatchParallel bounds concurrently decoded pieces in AnnotateBatch; 0 is unbounded.
	BatchParallel int
}

type Option func(*Config)

func WithDBPath(path string) Option {
	return func(c *Config) {
		c.DBPath = path
	}
}

func WithLogger(log Logger) Option {
	return func(c *Config) {
		c.Logger = log
	}
}

func WithStorage(storage Storage) Option {
	return func(c *Config) {
		c.Storage = storage
	}
}

func WithBeamWidth(width int) Option {
	return func(c *Config) {
		c.Decode.BeamWidth = width
	}
}

// WithPruneMargin sets the score margin below the best hypothesis at which
// hypotheses are dropped; math.Inf(1) disables margin pruning.
func WithPruneMargin(margin float64) Option {
	return func(c *Config) {
		c.Decode.PruneMargin = margin
	}
}

func WithMinSegmentLength(frames int) Option {
	return func(c *Config) {
		c.Decode.MinSegmentLength = frames
	}
}

func WithMinKeyLength(frames int) Option {
	return func(c *Config) {
		c.Decode.MinKeyLength = frames
	}
}

func WithMaxChordDuration(quarters float64) Option {
	return func(c *Config) {
		c.Decode.MaxChordDuration = quarters
	}
}

// WithChangeGates sets the change probability above which a chord boundary
// may be placed and the one at or below which a chord may continue.
// WithChangeGates(0, 1) disables gating.
func WithChangeGates(minChange, maxNoChange float64) Option {
	return func(c *Config) {
		c.Decode.MinChangeProb = minChange
		c.Decode.MaxNoChangeProb = maxNoChange
	}
}

func WithAlignOnsets(align bool) Option {
	return func(c *Config) {
		c.Decode.AlignOnsets = align
	}
}

func WithWorkers(n int) Option {
	return func(c *Config) {
		c.Decode.Workers = n
	}
}

func WithCacheSize(n int) Option {
	return func(c *Config) {
		c.Decode.CacheSize = n
	}
}

// WithDecodeConfig replaces every decoder setting at once.
func WithDecodeConfig(cfg decode.Config) Option {
	return func(c *Config) {
		c.Decode = cfg
	}
}

// WithRule selects which chords are valid in which keys for the standard vocabulary.
func WithRule(rule vocab.Rule) Option {
	return func(c *Config) {
		c.Rule = rule
	}
}

// WithVocabulary replaces the standard vocabulary; the rule option is then ignored.
func WithVocabulary(v *vocab.Vocabulary) Option {
	return func(c *Config) {
		c.Vocabulary = v
	}
}

// WithModelFactory sets the scoring model built for each piece. The name is
// stored alongside every analysis.
func WithModelFactory(name string, f scoring.Factory) Option {
	return func(c *Config) {
		c.ModelName = name
		c.Factory = f
	}
}

func WithBatchParallel(n int) Option {
	return func(c *Config) {
		c.BatchParallel = n
	}
}

func defaultConfig() *Config {
	return &Config{
		DBPath:    DefaultDBFile,
		Decode:    decode.DefaultConfig(),
		Rule:      vocab.Diatonic,
		ModelName: "template",
		Factory:   scoring.TemplateFactory(scoring.DefaultTemplateConfig()),
		Logger:    nil,
	}
}
