package member

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// DefaultKeyPrefix is the cache namespace the portal's sync job writes to.
const DefaultKeyPrefix = "calaim:member:"

// RedisSource reads member snapshots from the synchronized Redis cache.
// A separate sync job mirrors the upstream case-management records into
// Redis as JSON; this source only ever reads.
type RedisSource struct {
	client    *redis.Client
	keyPrefix string
	logger    *zap.Logger
}

// NewRedisSource creates a RedisSource. An empty keyPrefix selects
// DefaultKeyPrefix.
func NewRedisSource(client *redis.Client, keyPrefix string, logger *zap.Logger) *RedisSource {
	if keyPrefix == "" {
		keyPrefix = DefaultKeyPrefix
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisSource{client: client, keyPrefix: keyPrefix, logger: logger}
}

// Lookup fetches and decodes the cached snapshot for a member.
func (s *RedisSource) Lookup(ctx context.Context, memberID string) (*Snapshot, error) {
	key := s.keyPrefix + memberID

	data, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("member %q: %w", memberID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("redis lookup for member %q: %w", memberID, err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		s.logger.Warn("corrupt member snapshot in cache",
			zap.String("member_id", memberID),
			zap.Error(err),
		)
		return nil, fmt.Errorf("decoding cached snapshot for member %q: %w", memberID, err)
	}

	if snap.MemberID == "" {
		snap.MemberID = memberID
	}
	return &snap, nil
}
