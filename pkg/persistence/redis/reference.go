// Package redis provides a Redis-backed reference repository. Each run and entity type
// maps to a sorted set whose scores follow insertion order.
package redis

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/dukex/conformance/pkg/models"
	"github.com/dukex/conformance/pkg/persistence"
	redis "github.com/redis/go-redis/v9"
)

const keyPrefix = "conformance:run:"

// ReferenceRepository implements persistence.ReferenceRepository on Redis.
type ReferenceRepository struct {
	client *redis.Client
	logger *slog.Logger
	ttl    time.Duration
}

// NewReferenceRepository connects to the Redis server at redisURL (redis://host:port/db).
// Keys expire ttl after the last write; zero keeps them forever.
func NewReferenceRepository(ctx context.Context, logger *slog.Logger, redisURL string, ttl time.Duration) (*ReferenceRepository, error) {
	options, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(options)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err = client.Ping(pingCtx).Err()
	if err != nil {
		_ = client.Close()

		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.InfoContext(ctx, "Connected to Redis", "addr", options.Addr, "db", options.DB)

	return &ReferenceRepository{client: client, logger: logger, ttl: ttl}, nil
}

func refsKey(runID, entityType string) string {
	return keyPrefix + runID + ":refs:" + entityType
}

func typesKey(runID string) string {
	return keyPrefix + runID + ":types"
}

func seqKey(runID string) string {
	return keyPrefix + runID + ":seq"
}

func createdKey(runID string) string {
	return keyPrefix + runID + ":created"
}

// SaveReference adds instanceID to the run's set for entityType unless already present.
func (rr *ReferenceRepository) SaveReference(ctx context.Context, runID, entityType, instanceID string) error {
	if err := persistence.ValidateReference(runID, entityType, instanceID); err != nil {
		return err
	}

	seq, err := rr.client.Incr(ctx, seqKey(runID)).Result()
	if err != nil {
		return fmt.Errorf("failed to allocate reference sequence: %w", err)
	}

	_, err = rr.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAddNX(ctx, refsKey(runID, entityType), redis.Z{Score: float64(seq), Member: instanceID})
		pipe.SAdd(ctx, typesKey(runID), entityType)
		pipe.HSetNX(ctx, createdKey(runID), entityType+"/"+instanceID, time.Now().UTC().Format(time.RFC3339Nano))

		if rr.ttl > 0 {
			for _, key := range []string{refsKey(runID, entityType), typesKey(runID), seqKey(runID), createdKey(runID)} {
				pipe.Expire(ctx, key, rr.ttl)
			}
		}

		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save reference %s/%s: %w", entityType, instanceID, err)
	}

	return nil
}

// References returns the ids recorded for entityType in insertion order.
func (rr *ReferenceRepository) References(ctx context.Context, runID, entityType string) ([]string, error) {
	ids, err := rr.client.ZRange(ctx, refsKey(runID, entityType), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read references: %w", err)
	}

	return ids, nil
}

// ReferencesByRun returns every record of the run in insertion order.
func (rr *ReferenceRepository) ReferencesByRun(ctx context.Context, runID string) ([]models.ReferenceRecord, error) {
	entityTypes, err := rr.client.SMembers(ctx, typesKey(runID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read reference types: %w", err)
	}

	created, err := rr.client.HGetAll(ctx, createdKey(runID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read reference timestamps: %w", err)
	}

	type scored struct {
		record models.ReferenceRecord
		score  float64
	}

	var all []scored

	for _, entityType := range entityTypes {
		members, err := rr.client.ZRangeWithScores(ctx, refsKey(runID, entityType), 0, -1).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to read references: %w", err)
		}

		for _, member := range members {
			instanceID, _ := member.Member.(string)
			createdAt, _ := time.Parse(time.RFC3339Nano, created[entityType+"/"+instanceID])

			all = append(all, scored{
				record: models.ReferenceRecord{
					RunID:      runID,
					EntityType: entityType,
					InstanceID: instanceID,
					CreatedAt:  createdAt,
				},
				score: member.Score,
			})
		}
	}

	sort.Slice(all, func(i, j int) bool { return all[i].score < all[j].score })

	records := make([]models.ReferenceRecord, 0, len(all))
	for _, entry := range all {
		records = append(records, entry.record)
	}

	return records, nil
}

// HealthCheck pings the server.
func (rr *ReferenceRepository) HealthCheck(ctx context.Context) error {
	return rr.client.Ping(ctx).Err()
}

// Close releases the connection pool.
func (rr *ReferenceRepository) Close() error {
	return rr.client.Close()
}
