// Package persist stores the whole AppState as one JSON blob under a fixed key.
//
// Three backends share the same codec: a JSON file in the workspace, a row in a
// SQLite key/value table, and an in-memory copy for tests. Loading never fails:
// a missing or unparseable blob yields the empty initial state and is logged.
package persist

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"

	"partnertrack/internal/domain"
)

// DefaultKey is the storage key the state blob lives under.
const DefaultKey = "task_progress_app_v1"

// Backend is implemented by every storage option.
type Backend interface {
	Load(ctx context.Context) domain.AppState
	Save(ctx context.Context, state domain.AppState) error
	Close() error
}

var errEmptyBlob = errors.New("empty state blob")

// Encode serializes state with the persisted field names.
func Encode(state domain.AppState) ([]byte, error) {
	b, err := json.MarshalIndent(state.Normalize(), "", "  ")
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

// Decode parses a state blob. Unknown fields are ignored and absent fields take
// their zero values, so older and newer blobs both load.
func Decode(data []byte) (domain.AppState, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return domain.AppState{}, errEmptyBlob
	}
	var state domain.AppState
	if err := json.Unmarshal(data, &state); err != nil {
		return domain.AppState{}, err
	}
	return state.Normalize(), nil
}
