package decode

import (
	"cmp"
	"math"
	"slices"
)

// Merger collapses candidates that are interchangeable for the rest of the
// search. The result must be a subset of in.
type Merger interface {
	Merge(in []*Candidate) []*Candidate
}

// Pruner selects the candidates that survive into the next beam. The result
// must be ordered best first.
type Pruner interface {
	Prune(in []*Candidate) []*Candidate
}

// Compare orders candidates best first: higher log-probability, then fewer
// chord segments, then fewer key changes, then generation order.
func Compare(a, b *Candidate) int {
	if c := cmp.Compare(b.LogProb(), a.LogProb()); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Segments(), b.Segments()); c != 0 {
		return c
	}
	if c := cmp.Compare(a.KeyChanges(), b.KeyChanges()); c != 0 {
		return c
	}
	return cmp.Compare(a.order, b.order)
}

// StateMerger keeps the best candidate for each State.
type StateMerger struct{}

func (StateMerger) Merge(in []*Candidate) []*Candidate {
	best := make(map[State]int, len(in))
	out := make([]*Candidate, 0, len(in))
	for _, c := range in {
		st := c.State()
		if i, ok := best[st]; ok {
			if Compare(c, out[i]) < 0 {
				out[i] = c
			}
			continue
		}
		best[st] = len(out)
		out = append(out, c)
	}
	return out
}

// NoMerger keeps every candidate.
type NoMerger struct{}

func (NoMerger) Merge(in []*Candidate) []*Candidate { return in }

// BeamPruner sorts candidates, drops those scoring more than Margin below
// the best, and keeps at most Width.
type BeamPruner struct {
	Width  int
	Margin float64
}

func (p BeamPruner) Prune(in []*Candidate) []*Candidate {
	if len(in) == 0 {
		return in
	}
	slices.SortFunc(in, Compare)
	if !math.IsInf(p.Margin, 1) {
		floor := in[0].LogProb() - p.Margin
		n := len(in)
		for n > 1 && in[n-1].LogProb() < floor {
			n--
		}
		in = in[:n]
	}
	if p.Width > 0 && len(in) > p.Width {
		in = in[:p.Width]
	}
	return in
}
