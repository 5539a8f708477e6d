package decode

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/himanishpuri/HarmonicDNA/pkg/harmonic/piece"
	"github.com/himanishpuri/HarmonicDNA/pkg/harmonic/scoring"
)

// BatchResult is the outcome for one piece of a batch.
type BatchResult struct {
	PieceID string
	Result  *Result
	Err     error
}

// DecodeBatch decodes pieces concurrently, at most parallel at a time, each
// with its own model instance from factory. A failing piece does not stop
// the others; results keep the input order.
func (d *Decoder) DecodeBatch(ctx context.Context, pieces []*piece.Piece, factory scoring.Factory, parallel int) []BatchResult {
	out := make([]BatchResult, len(pieces))
	var g errgroup.Group
	if parallel > 0 {
		g.SetLimit(parallel)
	}
	for i, p := range pieces {
		if p == nil {
			out[i].Err = piece.ErrInvalidPiece
			continue
		}
		out[i].PieceID = p.ID
		i, p := i, p
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				out[i].Err = err
				return nil
			}
			m, err := factory(p, d.vocab)
			if err != nil {
				out[i].Err = err
				return nil
			}
			out[i].Result, out[i].Err = d.Decode(ctx, p, m)
			if out[i].Err != nil {
				d.log.Debugf("decode %s failed: %v", p.ID, out[i].Err)
			}
			return nil
		})
	}
	_ = g.Wait()
	return out
}
