// Package state provides the session-state store used by the diagnostic
// flow: get/set by key with an optimistic version counter. The engine is
// never the only writer of this store, so every write carries the version it
// read and loses cleanly on a conflict.
package state

import (
	"context"

	"github.com/google/uuid"
)

// Store is the external key-value contract.
//
// Get returns the current value and version; a missing key is not an error
// and reports version 0 with a nil value.
//
// Set writes value only when the stored version still equals
// expectedVersion, returning the new version. expectedVersion 0 means
// "create, the key must not exist yet". A lost race returns
// errors.ErrVersionConflict; retry policy belongs to the caller.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, int64, error)
	Set(ctx context.Context, key string, value []byte, expectedVersion int64) (int64, error)
	Close() error
}

// DiagnosticFlowKey is the key scheme for per-graph diagnostic sessions.
func DiagnosticFlowKey(graphID uuid.UUID) string {
	return "curricula:diagnostic:" + graphID.String()
}
