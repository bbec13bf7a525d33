package adapter

import (
	"context"
	"encoding/json"

	"studydrive/internal/cache"
	"studydrive/internal/domain"

	"github.com/redis/go-redis/v9"
)

// snapshotKey is the single Redis key the whole snapshot lives under. The
// snapshot is one document, so a plain SET/GET keeps replacement atomic.
var snapshotKey = cache.GenerateCacheKey("store", "snapshot", "current")

// RedisSnapshotRepository persists the snapshot in Redis. It expects a
// connected *redis.Client.
type RedisSnapshotRepository struct {
	client *redis.Client
}

func NewRedisSnapshotRepository(client *redis.Client) *RedisSnapshotRepository {
	return &RedisSnapshotRepository{client: client}
}

func (r *RedisSnapshotRepository) Save(ctx context.Context, snapshot *domain.Snapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return domain.NewStorageError("failed to encode snapshot", err)
	}
	if err := r.client.Set(ctx, snapshotKey, data, 0).Err(); err != nil {
		return domain.NewStorageError("failed to write snapshot to redis", err)
	}
	return nil
}

func (r *RedisSnapshotRepository) Load(ctx context.Context) (*domain.Snapshot, error) {
	data, err := r.client.Get(ctx, snapshotKey).Bytes()
	if err != nil {
		if err == redis.Nil {
			return domain.NewSnapshot(), nil
		}
		return nil, domain.NewStorageError("failed to read snapshot from redis", err)
	}

	var snapshot domain.Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, domain.NewStorageError("stored snapshot is corrupt", err)
	}
	if snapshot.Files == nil {
		snapshot.Files = make(map[string]*domain.ExamFile)
	}
	return &snapshot, nil
}
