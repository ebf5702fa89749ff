package store

import (
	"fmt"
	"path/filepath"
)

// Backend kinds accepted by OpenBackend.
const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
)

// OpenBackend opens the backend of the given kind under stateDir.
// The JSON backend keeps the cache/<tag>/<collection>.json layout; the
// SQLite backend uses <stateDir>/state.db.
func OpenBackend(kind, stateDir string) (Backend, error) {
	switch kind {
	case "", BackendJSON:
		return NewFileBackend(stateDir)
	case BackendSQLite:
		return OpenSQLiteBackend(filepath.Join(stateDir, "state.db"))
	default:
		return nil, fmt.Errorf("unknown storage backend: %s (must be 'json' or 'sqlite')", kind)
	}
}
