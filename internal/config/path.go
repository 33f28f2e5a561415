// Package config loads and validates the glrules configuration.
package config

import (
	"os"
	"path/filepath"
	"strings"
)

// MemoryDatabase is the SQLite path for a throwaway in-process database.
const MemoryDatabase = ":memory:"

// ExpandPath resolves a configured database path. A leading ~ becomes the
// user's home directory and $VAR references are replaced from the environment.
// The in-memory database name is returned unchanged.
func ExpandPath(path string) string {
	path = strings.TrimSpace(path)
	if path == "" || path == MemoryDatabase {
		return path
	}

	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, strings.TrimPrefix(path[1:], "/"))
		}
	}

	return os.ExpandEnv(path)
}
