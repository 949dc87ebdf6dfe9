package graph

import (
	"errors"
	"fmt"
)

// ErrIndexUnavailable is returned by retrieval when the similarity index does not exist.
var ErrIndexUnavailable = errors.New("similarity index unavailable")

// ErrNoEmbedder is returned when embedding is requested without a provider.
var ErrNoEmbedder = errors.New("embedding requested but no embedding provider configured")

type ItemErrorKind string

const (
	ItemErrorValidation         ItemErrorKind = "validation"
	ItemErrorWrite              ItemErrorKind = "write"
	ItemErrorEmbedding          ItemErrorKind = "embedding"
	ItemErrorEmbeddingDimension ItemErrorKind = "embedding_dimension"
	ItemErrorEndpointNotFound   ItemErrorKind = "endpoint_not_found"
)

// ItemError is a recorded, non-fatal failure of a single graph item.
type ItemError struct {
	Kind     ItemErrorKind
	ItemKind string
	ItemID   string
	Err      error
}

func (e *ItemError) Error() string {
	if e == nil {
		return "item error"
	}
	if e.Err == nil {
		return fmt.Sprintf("%s %s: %s", e.ItemKind, e.ItemID, e.Kind)
	}
	return fmt.Sprintf("%s %s: %s: %v", e.ItemKind, e.ItemID, e.Kind, e.Err)
}

func (e *ItemError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

type IndexOp string

const (
	IndexOpCreate IndexOp = "create"
	IndexOpDrop   IndexOp = "drop"
)

// IndexError is a non-fatal failure to create or drop a vector index.
type IndexError struct {
	Op    IndexOp
	Index string
	Err   error
}

func (e *IndexError) Error() string {
	if e == nil {
		return "index error"
	}
	return fmt.Sprintf("vector index %s %s failed: %v", e.Op, e.Index, e.Err)
}

func (e *IndexError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
