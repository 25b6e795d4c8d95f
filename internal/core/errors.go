package core

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyQuery is returned when GetAnswer receives a blank question.
	// Transports reject such input before calling the pipeline.
	ErrEmptyQuery = errors.New("empty query")

	// ErrProcessing matches every upstream failure of a turn.  Callers only
	// need errors.Is(err, ErrProcessing) to decide on an apology.
	ErrProcessing = errors.New("failed to process query")
)

// Pipeline stages reported in ProcessingError.
const (
	StageEmbed    = "embed"
	StageRetrieve = "retrieve"
	StageCondense = "condense"
	StagePrompt   = "prompt"
	StageGenerate = "generate"
)

// ProcessingError wraps the upstream failure of one stage.
type ProcessingError struct {
	Stage string
	Err   error
}

// Error implements error.
func (e *ProcessingError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrProcessing, e.Stage, e.Err)
}

// Unwrap exposes the upstream error.
func (e *ProcessingError) Unwrap() error { return e.Err }

// Is makes every ProcessingError match ErrProcessing.
func (e *ProcessingError) Is(target error) bool { return target == ErrProcessing }

func stageError(stage string, err error) error {
	return &ProcessingError{Stage: stage, Err: err}
}
