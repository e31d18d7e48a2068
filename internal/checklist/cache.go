package checklist

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	id "sebenza/pkg/domain"
)

const defaultStatusTTL = 30 * time.Second

// StatusCache is a read-through cache for checklist status summaries. The
// chat collaborator polls status on every exchange, so this keeps hot reads
// off the store. Misses and redis failures fall back to the store.
type StatusCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

func NewStatusCache(client *redis.Client, ttl time.Duration, logger *slog.Logger) *StatusCache {
	if ttl <= 0 {
		ttl = defaultStatusTTL
	}
	return &StatusCache{client: client, ttl: ttl, logger: logger}
}

func statusKey(candidateID id.CandidateID) string {
	return "checklist:status:" + candidateID.String()
}

// Get returns the cached status and whether it was present.
func (c *StatusCache) Get(ctx context.Context, candidateID id.CandidateID) (Status, bool) {
	raw, err := c.client.Get(ctx, statusKey(candidateID)).Bytes()
	if err == redis.Nil {
		return Status{}, false
	}
	if err != nil {
		c.logger.WarnContext(ctx, "checklist status cache read failed", "error", err)
		return Status{}, false
	}
	var status Status
	if err := json.Unmarshal(raw, &status); err != nil {
		return Status{}, false
	}
	return status, true
}

// Set stores a status summary with a short TTL.
func (c *StatusCache) Set(ctx context.Context, candidateID id.CandidateID, status Status) {
	raw, err := json.Marshal(status)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, statusKey(candidateID), raw, c.ttl).Err(); err != nil {
		c.logger.WarnContext(ctx, "checklist status cache write failed", "error", err)
	}
}

// Invalidate drops the cached status after any item write.
func (c *StatusCache) Invalidate(ctx context.Context, candidateID id.CandidateID) {
	if err := c.client.Del(ctx, statusKey(candidateID)).Err(); err != nil {
		c.logger.WarnContext(ctx, "checklist status cache invalidation failed", "error", err)
	}
}
