package connection

import (
	"errors"
	"fmt"
)

// Connect steps, reported by StepError.
const (
	StepParse  = "parse"
	StepStage  = "stage"
	StepOpen   = "open"
	StepVerify = "verify"
)

// ErrRecordNotFound is returned by SearchSimilar for an unknown record id.
var ErrRecordNotFound = errors.New("record not found")

// StepError is returned by Connect and names the step that failed.
// It unwraps to the underlying sentinel (bundle.ErrNotFound, engine.ErrOpenFailed, ...).
type StepError struct {
	Step string
	Path string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("connect %s: %s: %v", e.Path, e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }
