// Package decode finds the most probable joint segmentation of a piece into
// key and chord segments with a beam search over scoring.Model answers.
package decode

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/himanishpuri/HarmonicDNA/pkg/harmonic/piece"
	"github.com/himanishpuri/HarmonicDNA/pkg/harmonic/scoring"
	"github.com/himanishpuri/HarmonicDNA/pkg/harmonic/vocab"
)

// Result is the best labeling found for one piece.
type Result struct {
	PieceID  string
	Segments []piece.Segment
	KeySpans []piece.KeySpan
	// LogProb is the total log-probability of Segments.
	LogProb float64
	// Cumulative[i] is the log-probability once Segments[i] closed.
	Cumulative []float64
	Stats      Stats
}

// Stats describes the work done by one decode.
type Stats struct {
	Frames    int
	Generated int
	Merged    int
	Pruned    int
	PeakBeam  int
	Cache     scoring.Stats
	Elapsed   time.Duration
}

// Decoder runs beam searches over a fixed vocabulary and configuration.
// It holds no per-piece state and may decode several pieces concurrently.
type Decoder struct {
	vocab  *vocab.Vocabulary
	cfg    Config
	policy Policy
	merger Merger
	pruner Pruner
	log    Logger
}

// New validates cfg and returns a Decoder.
func New(v *vocab.Vocabulary, cfg Config) (*Decoder, error) {
	if v == nil {
		return nil, fmt.Errorf("%w: nil vocabulary", ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Decoder{
		vocab:  v,
		cfg:    cfg,
		policy: cfg.policy(),
		merger: cfg.merger(),
		pruner: cfg.pruner(),
		log:    cfg.logger(),
	}, nil
}

// Vocabulary returns the label sets searched.
func (d *Decoder) Vocabulary() *vocab.Vocabulary { return d.vocab }

// Config returns the configuration the decoder was built with.
func (d *Decoder) Config() Config { return d.cfg }

// Decode labels p with the model m. Errors are returned unchanged from the
// piece (piece.ErrInvalidPiece), the model (*scoring.ScoringError) or the
// search itself (*StructuralError). Cancellation is observed between frames.
func (d *Decoder) Decode(ctx context.Context, p *piece.Piece, m scoring.Model) (*Result, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	a, err := scoring.NewAdapter(m, d.vocab, p, d.cfg.CacheSize)
	if err != nil {
		return nil, err
	}
	return d.DecodeWith(ctx, p, a)
}

// DecodeWith labels p using an existing adapter, sharing its cache.
func (d *Decoder) DecodeWith(ctx context.Context, p *piece.Piece, a *scoring.Adapter) (*Result, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	started := time.Now()
	r := &run{d: d, p: p, a: a}
	r.stats.Frames = p.Len()

	d.log.Debugf("decoding %s: %d frames, beam width %d", p.ID, p.Len(), d.cfg.BeamWidth)

	first, err := r.open()
	if err != nil {
		return nil, err
	}
	beam, err := r.survive(0, first)
	if err != nil {
		return nil, err
	}
	for t := 1; t < p.Len(); t++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("decode %s: frame %d: %w", p.ID, t, err)
		}
		cands, err := r.extend(ctx, beam, t)
		if err != nil {
			return nil, err
		}
		if beam, err = r.survive(t, cands); err != nil {
			return nil, err
		}
	}

	res, err := r.finish(beam)
	if err != nil {
		return nil, err
	}
	res.Stats.Cache = a.Stats()
	res.Stats.Elapsed = time.Since(started)

	d.log.Debugf("decoded %s: %d segments, %d key spans, log-prob %.4f in %s",
		p.ID, len(res.Segments), len(res.KeySpans), res.LogProb, res.Stats.Elapsed)
	return res, nil
}

// run is the state of one decode.
type run struct {
	d     *Decoder
	p     *piece.Piece
	a     *scoring.Adapter
	stats Stats
}

// open scores every (key, chord) pair for frame 0.
func (r *run) open() ([]*Candidate, error) {
	var out []*Candidate
	for _, k := range r.d.vocab.Keys() {
		ks, err := r.a.KeySequence(nil, k)
		if err != nil {
			return nil, err
		}
		for _, c := range r.d.vocab.ChordsIn(k) {
			ic, err := r.a.InitialChord(k, c)
			if err != nil {
				return nil, err
			}
			cls, err := r.a.ChordClassification(0, 1, c)
			if err != nil {
				return nil, err
			}
			out = append(out, &Candidate{
				kind:      expandOpen,
				key:       k,
				chord:     c,
				committed: ks + ic,
				openCls:   cls,
				order:     len(out),
			})
		}
	}
	return out, nil
}

// extend expands every hypothesis of beam across boundary t. Children are
// collected per parent so the candidate order does not depend on scheduling.
func (r *run) extend(ctx context.Context, beam []*Hypothesis, t int) ([]*Candidate, error) {
	children := make([][]*Candidate, len(beam))
	errs := make([]error, len(beam))

	if r.d.cfg.Workers < 2 || len(beam) < 2 {
		for i, h := range beam {
			if children[i], errs[i] = r.expand(h, t); errs[i] != nil {
				return nil, errs[i]
			}
		}
	} else {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(r.d.cfg.Workers)
		for i, h := range beam {
			i, h := i, h
			g.Go(func() error {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				children[i], errs[i] = r.expand(h, t)
				return errs[i]
			})
		}
		waitErr := g.Wait()
		for _, err := range errs {
			if err != nil {
				return nil, err
			}
		}
		if waitErr != nil {
			return nil, fmt.Errorf("decode %s: frame %d: %w", r.p.ID, t, waitErr)
		}
	}

	total := 0
	for _, cs := range children {
		total += len(cs)
	}
	out := make([]*Candidate, 0, total)
	for _, cs := range children {
		for _, c := range cs {
			c.order = len(out)
			out = append(out, c)
		}
	}
	return out, nil
}

// expand generates the children of h at boundary t: continuation, then
// chord changes, then key changes, each in vocabulary order. A chord change
// inside the key always moves to a different chord, so segments are maximal.
func (r *run) expand(h *Hypothesis, t int) ([]*Candidate, error) {
	a, cfg := r.a, r.d.cfg
	b := Boundary{Frames: r.p.Frames, KeyStart: h.keyStart, ChordStart: h.chordStart, At: t}

	canContinue := r.d.policy.AllowContinue(b)
	canClose := r.d.policy.AllowChordBoundary(b)

	// the gates only decide boundaries the policy already allows
	if cfg.gated() && canClose {
		p, err := a.ChangeProb(h.chordStart, t, h.key, h.chord)
		if err != nil {
			return nil, err
		}
		canClose = p > cfg.MinChangeProb
		canContinue = canContinue && p <= cfg.MaxNoChangeProb
	}

	var out []*Candidate
	if canContinue {
		cls, err := a.ChordClassification(h.chordStart, t+1, h.chord)
		if err != nil {
			return nil, err
		}
		out = append(out, &Candidate{
			parent:    h,
			kind:      expandContinue,
			at:        t,
			key:       h.key,
			chord:     h.chord,
			committed: h.committed,
			openCls:   cls,
		})
	}
	if !canClose {
		return out, nil
	}

	trans, err := a.ChordTransition(h.chordStart, t, h.key, h.chord)
	if err != nil {
		return nil, err
	}
	closed := h.committed + h.openCls + trans

	history := append(h.chordHistory(a.ChordHistoryLimit()), h.chord)
	for _, c := range r.d.vocab.ChordsIn(h.key) {
		if c == h.chord {
			continue
		}
		seq, err := a.ChordSequence(h.key, history, c)
		if err != nil {
			return nil, err
		}
		cls, err := a.ChordClassification(t, t+1, c)
		if err != nil {
			return nil, err
		}
		out = append(out, &Candidate{
			parent:    h,
			kind:      expandChord,
			at:        t,
			key:       h.key,
			chord:     c,
			committed: closed + seq,
			closed:    closed,
			openCls:   cls,
		})
	}

	if !r.d.policy.AllowKeyBoundary(b) {
		return out, nil
	}
	kt, err := a.KeyTransition(h.keyStart, t, h.key, h.chord)
	if err != nil {
		return nil, err
	}
	closed += kt

	keys := append(h.keyHistory(a.KeyHistoryLimit()), h.key)
	for _, k := range r.d.vocab.Keys() {
		if k == h.key {
			continue
		}
		ks, err := a.KeySequence(keys, k)
		if err != nil {
			return nil, err
		}
		for _, c := range r.d.vocab.ChordsIn(k) {
			seq, err := a.ChordSequence(k, nil, c)
			if err != nil {
				return nil, err
			}
			cls, err := a.ChordClassification(t, t+1, c)
			if err != nil {
				return nil, err
			}
			out = append(out, &Candidate{
				parent:    h,
				kind:      expandKey,
				at:        t,
				key:       k,
				chord:     c,
				committed: closed + ks + seq,
				closed:    closed,
				openCls:   cls,
			})
		}
	}
	return out, nil
}

// survive merges and prunes the candidates of frame t and materializes the
// next beam.
func (r *run) survive(t int, cands []*Candidate) ([]*Hypothesis, error) {
	if len(cands) == 0 {
		return nil, &StructuralError{PieceID: r.p.ID, Frame: t, Err: ErrEmptyBeam}
	}
	r.stats.Generated += len(cands)

	merged := r.d.merger.Merge(cands)
	r.stats.Merged += len(cands) - len(merged)

	kept := r.d.pruner.Prune(merged)
	if len(kept) == 0 {
		return nil, &StructuralError{PieceID: r.p.ID, Frame: t, Err: ErrEmptyBeam}
	}
	r.stats.Pruned += len(merged) - len(kept)
	r.stats.PeakBeam = max(r.stats.PeakBeam, len(kept))

	beam := make([]*Hypothesis, len(kept))
	for i, c := range kept {
		beam[i] = c.materialize()
		beam[i].order = i
	}
	r.d.log.Debugf("%s frame %d: %d candidates, %d merged, beam %d, best %.4f",
		r.p.ID, t, len(cands), len(cands)-len(merged), len(beam), beam[0].LogProb())
	return beam, nil
}

// finish force-closes every hypothesis at the end of the piece and returns
// the best one.
func (r *run) finish(beam []*Hypothesis) (*Result, error) {
	n := r.p.Len()
	var (
		best      *Hypothesis
		bestScore float64
	)
	for _, h := range beam {
		ct, err := r.a.ChordTransition(h.chordStart, n, h.key, h.chord)
		if err != nil {
			return nil, err
		}
		kt, err := r.a.KeyTransition(h.keyStart, n, h.key, h.chord)
		if err != nil {
			return nil, err
		}
		score := h.committed + h.openCls + ct + kt
		if best == nil || finalBetter(h, score, best, bestScore) {
			best, bestScore = h, score
		}
	}

	segments, cumulative := reconstruct(best.closeOpen(n, bestScore))
	if err := piece.CheckPartition(segments, n, r.d.vocab); err != nil {
		return nil, &StructuralError{PieceID: r.p.ID, Frame: n, Err: err}
	}
	return &Result{
		PieceID:    r.p.ID,
		Segments:   segments,
		KeySpans:   piece.KeySpans(segments),
		LogProb:    bestScore,
		Cumulative: cumulative,
		Stats:      r.stats,
	}, nil
}

// finalBetter applies the candidate ordering to finished hypotheses.
func finalBetter(h *Hypothesis, score float64, best *Hypothesis, bestScore float64) bool {
	switch {
	case score != bestScore:
		return score > bestScore
	case h.numSegments != best.numSegments:
		return h.numSegments < best.numSegments
	case h.numKeys != best.numKeys:
		return h.numKeys < best.numKeys
	default:
		return h.order < best.order
	}
}
