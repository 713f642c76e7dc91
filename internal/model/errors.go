package model

import (
	"errors"
	"fmt"
)

var (
	ErrModelNotFound    = errors.New("model not found, train the model first")
	ErrInsufficientData = errors.New("insufficient training data")
	ErrTooFewClasses    = errors.New("too few classes")
	ErrTooFewSamples    = errors.New("too few samples")
	ErrLabelRequired    = errors.New("label is required")
)

// InsufficientDataError reports why Train refused to fit. Reason is
// ErrTooFewClasses or ErrTooFewSamples.
type InsufficientDataError struct {
	Reason error
	Have   int
	Need   int
}

func (e *InsufficientDataError) Error() string {
	if errors.Is(e.Reason, ErrTooFewClasses) {
		return fmt.Sprintf("Need at least %d different classes to train the model (have %d)", e.Need, e.Have)
	}
	return fmt.Sprintf("Need at least %d samples to train the model (have %d)", e.Need, e.Have)
}

func (e *InsufficientDataError) Is(target error) bool {
	return target == ErrInsufficientData
}

func (e *InsufficientDataError) Unwrap() error { return e.Reason }

// ReasonCode is the wire name of the failed precondition.
func (e *InsufficientDataError) ReasonCode() string {
	if errors.Is(e.Reason, ErrTooFewClasses) {
		return "too_few_classes"
	}
	return "too_few_samples"
}
