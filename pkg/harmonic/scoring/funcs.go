package scoring

// Funcs adapts plain functions to Model. A nil field scores 0, which is
// log-probability 1.
type Funcs struct {
	InitialChordFn        func(InitialChordQuery) (float64, error)
	ChordTransitionFn     func(ChordBoundaryQuery) (float64, error)
	ChordClassificationFn func(ClassificationQuery) (float64, error)
	ChordSequenceFn       func(ChordSequenceQuery) (float64, error)
	KeyTransitionFn       func(KeyBoundaryQuery) (float64, error)
	KeySequenceFn         func(KeySequenceQuery) (float64, error)

	ChordLimit int
	KeyLimit   int
}

var (
	_ Model          = Funcs{}
	_ HistoryLimiter = Funcs{}
)

func (f Funcs) InitialChord(q InitialChordQuery) (float64, error) {
	if f.InitialChordFn == nil {
		return 0, nil
	}
	return f.InitialChordFn(q)
}

func (f Funcs) ChordTransition(q ChordBoundaryQuery) (float64, error) {
	if f.ChordTransitionFn == nil {
		return 0, nil
	}
	return f.ChordTransitionFn(q)
}

func (f Funcs) ChordClassification(q ClassificationQuery) (float64, error) {
	if f.ChordClassificationFn == nil {
		return 0, nil
	}
	return f.ChordClassificationFn(q)
}

func (f Funcs) ChordSequence(q ChordSequenceQuery) (float64, error) {
	if f.ChordSequenceFn == nil {
		return 0, nil
	}
	return f.ChordSequenceFn(q)
}

func (f Funcs) KeyTransition(q KeyBoundaryQuery) (float64, error) {
	if f.KeyTransitionFn == nil {
		return 0, nil
	}
	return f.KeyTransitionFn(q)
}

func (f Funcs) KeySequence(q KeySequenceQuery) (float64, error) {
	if f.KeySequenceFn == nil {
		return 0, nil
	}
	return f.KeySequenceFn(q)
}

func (f Funcs) ChordHistoryLimit() int { return f.ChordLimit }
func (f Funcs) KeyHistoryLimit() int   { return f.KeyLimit }
