package etl

import (
	"errors"
	"fmt"
)

// ErrEmptyInput is returned by the transformer when a file yields zero
// data rows. Structural, not a data-quality reject.
var ErrEmptyInput = errors.New("no data rows in input")

// ExtractionError marks a file that could not be read at all: missing,
// unsupported, oversized, undecodable, or missing required columns.
// It aborts the file and the run is recorded as ERRO.
type ExtractionError struct {
	Path string
	Msg  string
	Err  error
}

func (e *ExtractionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("extract %s: %s: %v", e.Path, e.Msg, e.Err)
	}
	return fmt.Sprintf("extract %s: %s", e.Path, e.Msg)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// extractErr builds an ExtractionError.
func extractErr(path, msg string, err error) *ExtractionError {
	return &ExtractionError{Path: path, Msg: msg, Err: err}
}

// LoadError marks a fatal fault in the load phase: a constraint
// violation outside the expected duplicate case, a staging/COPY fault,
// or an unavailable database. The affected batch is rolled back.
type LoadError struct {
	Op  string
	Err error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s: %v", e.Op, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }
