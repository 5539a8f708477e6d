package decode

import (
	"errors"
	"fmt"
)

// ErrEmptyBeam is the cause of a StructuralError raised when no hypothesis survives.
var ErrEmptyBeam = errors.New("no hypothesis could be extended")

// StructuralError reports a search that cannot continue, with the frame
// at which it happened.
type StructuralError struct {
	PieceID string
	Frame   int
	Err     error
}

func (e *StructuralError) Error() string {
	return fmt.Sprintf("decode %s: frame %d: %v", e.PieceID, e.Frame, e.Err)
}

func (e *StructuralError) Unwrap() error {
	return e.Err
}
