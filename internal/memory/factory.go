package memory

import (
	"context"
	"strings"
)

// NewStore picks a backend from configuration: postgres when a database URL
// is set, sqlite when a file path is set, otherwise in-memory. The returned
// mode string is used for logging and health reporting.
func NewStore(ctx context.Context, databaseURL, sqlitePath string) (Store, string, error) {
	if strings.TrimSpace(databaseURL) != "" {
		s, err := NewPostgresStore(ctx, databaseURL)
		if err != nil {
			return nil, "", err
		}
		return s, "postgres", nil
	}
	if strings.TrimSpace(sqlitePath) != "" {
		s, err := NewSQLiteStore(sqlitePath)
		if err != nil {
			return nil, "", err
		}
		return s, "sqlite", nil
	}
	return NewInMemoryStore(), "in-memory", nil
}
