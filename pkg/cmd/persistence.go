package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dukex/conformance/pkg/persistence"
	"github.com/dukex/conformance/pkg/persistence/file"
	"github.com/dukex/conformance/pkg/persistence/postgresql"
	"github.com/dukex/conformance/pkg/persistence/redis"
)

// ReferenceTTL bounds how long reference records live in redis.
const ReferenceTTL = 7 * 24 * time.Hour

// NewPersistence opens the run archive named by databaseURL: "postgres://" and
// "postgresql://" URLs select PostgreSQL, "file://dir" or a bare path selects the file store.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	switch parsePersistenceProvider(databaseURL) {
	case "postgres", "postgresql":
		p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres persistence: %w", err)
		}

		return p, nil
	case "file":
		return file.NewPersistence(strings.TrimPrefix(databaseURL, "file://")), nil
	default:
		return nil, fmt.Errorf("unsupported database url %q", databaseURL)
	}
}

// NewReferenceRepository returns a redis-backed repository for "redis://" URLs. It returns
// nil for "" and "memory", in which case the coordinator uses the persistence's own store.
func NewReferenceRepository(ctx context.Context, logger *slog.Logger, storeURL string) (persistence.ReferenceRepository, func() error, error) {
	switch {
	case storeURL == "" || storeURL == "memory":
		return nil, func() error { return nil }, nil
	case strings.HasPrefix(storeURL, "redis://"), strings.HasPrefix(storeURL, "rediss://"):
		repo, err := redis.NewReferenceRepository(ctx, logger, storeURL, ReferenceTTL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open redis reference store: %w", err)
		}

		return repo, repo.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported reference store %q", storeURL)
	}
}

func parsePersistenceProvider(databaseURL string) string {
	if databaseURL == "" {
		return ""
	}

	scheme, _, found := strings.Cut(databaseURL, "://")
	if !found {
		return "file"
	}

	return scheme
}
