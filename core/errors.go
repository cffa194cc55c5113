package core

import (
	"errors"
	"fmt"
)

// Error categories. Every error returned by the pipelines matches exactly one
// of these through errors.Is.
var (
	ErrConfiguration = errors.New("configuration error")
	ErrUpstreamFetch = errors.New("upstream fetch failure")
	ErrModel         = errors.New("model failure")
	ErrStore         = errors.New("store failure")
	ErrInvalidInput  = errors.New("invalid input")
)

var (
	ErrModelUnavailable     = fmt.Errorf("%w: tokenizer model unavailable", ErrConfiguration)
	ErrInvalidMaxTokens     = fmt.Errorf("%w: max tokens must be positive", ErrConfiguration)
	ErrSchemaMismatch       = fmt.Errorf("%w: collection schema mismatch", ErrConfiguration)
	ErrEmbeddingUnavailable = fmt.Errorf("%w: embedding unavailable", ErrModel)
	ErrEmptyInput           = fmt.Errorf("%w: cannot embed empty text", ErrEmbeddingUnavailable)
	ErrFetchOrParse         = fmt.Errorf("%w: no text extracted", ErrUpstreamFetch)
	ErrIndexing             = fmt.Errorf("%w: indexing failed", ErrStore)
	ErrSearchUnavailable    = fmt.Errorf("%w: search unavailable", ErrStore)
	ErrCollectionNotFound   = fmt.Errorf("%w: collection not found", ErrStore)
	ErrInvalidRecord        = fmt.Errorf("%w: record does not fit the collection", ErrStore)
)

// OpError records the operation and the source key or query it failed on.
type OpError struct {
	Op      string
	Key     string
	Err     error
	Context map[string]any
}

func (e *OpError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("%s [key=%s]: %v", e.Op, e.Key, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}

func NewOpError(op, key string, err error) *OpError {
	return &OpError{Op: op, Key: key, Err: err}
}

func WithContext(err *OpError, key string, val any) *OpError {
	if err.Context == nil {
		err.Context = make(map[string]any)
	}
	err.Context[key] = val
	return err
}

// Wrap joins a category sentinel with its cause so both match errors.Is.
func Wrap(kind error, cause error) error {
	if cause == nil {
		return kind
	}
	return fmt.Errorf("%w: %w", kind, cause)
}
