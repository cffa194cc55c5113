package vector

import (
	"context"
	"fmt"
	"strings"

	"github.com/hubenschmidt/go-pagesearch/core"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

// Open creates a store for driver. An empty driver is inferred from the DSN:
// - postgres:// or postgresql://: pgvector
// - empty DSN: in-memory
// - anything else: SQLite at the given path
func Open(ctx context.Context, driver, dsn string, opts ...Option) (Store, error) {
	if driver == "" {
		switch {
		case isPostgresDSN(dsn):
			driver = DriverPostgres
		case dsn == "":
			driver = DriverMemory
		default:
			driver = DriverSQLite
		}
	}

	switch driver {
	case DriverPostgres:
		s, err := NewPgVectorStore(ctx, dsn, opts...)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		return s, nil
	case DriverSQLite:
		s, err := NewSQLiteStore(ctx, dsn, opts...)
		if err != nil {
			return nil, fmt.Errorf("sqlite: %w", err)
		}
		return s, nil
	case DriverMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("%w: unknown vector store driver %q", core.ErrConfiguration, driver)
	}
}

func isPostgresDSN(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}
