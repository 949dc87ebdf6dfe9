package neo4jdb

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// ConnectivityError means the store could not be reached or refused the
// credentials. Callers treat it as fatal for the whole operation.
type ConnectivityError struct {
	Op    string
	Cause error
}

func (e *ConnectivityError) Error() string {
	if e == nil {
		return "neo4j unavailable"
	}
	if e.Cause == nil {
		return fmt.Sprintf("neo4j unavailable (op=%s)", e.Op)
	}
	return fmt.Sprintf("neo4j unavailable (op=%s): %v", e.Op, e.Cause)
}

func (e *ConnectivityError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func IsConnectivity(err error) bool {
	if err == nil {
		return false
	}
	var ce *ConnectivityError
	if errors.As(err, &ce) {
		return true
	}
	return neo4j.IsConnectivityError(err) || isAuthError(err)
}

// IsFatal reports errors that must abort a multi-item operation.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return IsConnectivity(err)
}

// IsIndexNotFound matches the server errors raised when a named index does not exist.
func IsIndexNotFound(err error) bool {
	if err == nil {
		return false
	}
	var nerr *neo4j.Neo4jError
	if errors.As(err, &nerr) {
		if nerr.Code == "Neo.ClientError.Schema.IndexNotFound" {
			return true
		}
		return mentionsMissingIndex(nerr.Msg)
	}
	return mentionsMissingIndex(err.Error())
}

func mentionsMissingIndex(msg string) bool {
	m := strings.ToLower(msg)
	return strings.Contains(m, "no such vector schema index") ||
		strings.Contains(m, "no such index")
}

func isAuthError(err error) bool {
	var nerr *neo4j.Neo4jError
	if !errors.As(err, &nerr) {
		return false
	}
	return strings.HasPrefix(nerr.Code, "Neo.ClientError.Security.")
}

func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if neo4j.IsConnectivityError(err) || isAuthError(err) {
		return &ConnectivityError{Op: op, Cause: err}
	}
	return err
}
