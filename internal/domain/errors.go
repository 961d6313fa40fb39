package domain

import (
	"errors"
	"fmt"
)

var (
	ErrPIIDetectorUnavailable = errors.New("pii detector unavailable")
	ErrIndexUnavailable       = errors.New("vector index unavailable")
	ErrEmbeddingUnavailable   = errors.New("embedding service unavailable")
	ErrGenerationUnavailable  = errors.New("answer generation unavailable")
	ErrTimeout                = errors.New("external call timed out")
	// ErrEmptyRetrieval is a valid outcome, not a failure.
	ErrEmptyRetrieval = errors.New("no matching incidents")
	ErrInvalidFilter  = errors.New("invalid metadata filter")
	ErrNotFound       = errors.New("incident not found")
)

type MissingFieldError struct {
	Row   int
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("row %d: missing required field %q", e.Row, e.Field)
}

type MalformedDateError struct {
	Row   int
	Field string
	Value string
}

func (e *MalformedDateError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("row %d: %s is empty", e.Row, e.Field)
	}
	return fmt.Sprintf("row %d: cannot parse %s %q", e.Row, e.Field, e.Value)
}

type ExternalKind string

const (
	KindPIIDetector ExternalKind = "pii_detector"
	KindIndex       ExternalKind = "index"
	KindEmbedding   ExternalKind = "embedding"
	KindGeneration  ExternalKind = "generation"
)

// ExternalError wraps a failed collaborator call. It matches the sentinel
// for its kind, and ErrTimeout when the call ran out of time.
type ExternalError struct {
	Op       string
	Kind     ExternalKind
	Attempts int
	Timeout  bool
	Cause    error
}

func (e *ExternalError) Error() string {
	if e == nil {
		return "external call failed"
	}
	msg := fmt.Sprintf("%s failed (kind=%s attempts=%d", e.Op, e.Kind, e.Attempts)
	if e.Timeout {
		msg += " timeout=true"
	}
	msg += ")"
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *ExternalError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func (e *ExternalError) Is(target error) bool {
	if e == nil {
		return false
	}
	switch target {
	case ErrTimeout:
		return e.Timeout
	case ErrPIIDetectorUnavailable:
		return e.Kind == KindPIIDetector
	case ErrIndexUnavailable:
		return e.Kind == KindIndex
	case ErrEmbeddingUnavailable:
		return e.Kind == KindEmbedding
	case ErrGenerationUnavailable:
		return e.Kind == KindGeneration
	}
	return false
}

func NewExternalError(op string, kind ExternalKind, attempts int, timeout bool, cause error) error {
	return &ExternalError{Op: op, Kind: kind, Attempts: attempts, Timeout: timeout, Cause: cause}
}
