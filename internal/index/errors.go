package index

import (
	"errors"
	"fmt"
)

// ErrEmptyIndex is returned when querying an index that holds no chunks.
var ErrEmptyIndex = errors.New("index contains no chunks")

// EmbeddingProviderError wraps any failure of the embedding provider.
type EmbeddingProviderError struct {
	Err error
}

func (e *EmbeddingProviderError) Error() string {
	return fmt.Sprintf("embedding provider: %v", e.Err)
}

func (e *EmbeddingProviderError) Unwrap() error { return e.Err }

// PersistenceCorruptionError reports persisted index or manifest files that
// exist but cannot be read back.
type PersistenceCorruptionError struct {
	Path string
	Err  error
}

func (e *PersistenceCorruptionError) Error() string {
	return fmt.Sprintf("corrupt persisted index %s: %v", e.Path, e.Err)
}

func (e *PersistenceCorruptionError) Unwrap() error { return e.Err }
