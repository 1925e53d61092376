package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"greendrake/estate/internal/logger"
)

// ConnectRedis initializes and returns a Redis client instance.
func ConnectRedis(addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := rdb.Ping(ctx).Result()
	if err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Global().Info("connected to Redis", zap.String("addr", addr))
	return rdb, nil
}

// DisconnectRedis closes the Redis client connection.
func DisconnectRedis(client *redis.Client) error {
	if client == nil {
		return nil
	}
	if err := client.Close(); err != nil {
		return fmt.Errorf("failed to close Redis connection: %w", err)
	}
	logger.Global().Info("Redis connection closed")
	return nil
}

// OwnerCache remembers which agent owns a property.
type OwnerCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewOwnerCache returns a cache whose entries expire after ttl.
func NewOwnerCache(rdb *redis.Client, ttl time.Duration) *OwnerCache {
	return &OwnerCache{rdb: rdb, ttl: ttl}
}

func ownerKey(propertyID string) string {
	return "property_owner:" + propertyID
}

// GetOwner returns the cached owner. found is false on a miss.
func (c *OwnerCache) GetOwner(ctx context.Context, propertyID string) (agentID string, found bool, err error) {
	agentID, err = c.rdb.Get(ctx, ownerKey(propertyID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return agentID, true, nil
}

// SetOwner caches the owner of propertyID.
func (c *OwnerCache) SetOwner(ctx context.Context, propertyID, agentID string) error {
	return c.rdb.Set(ctx, ownerKey(propertyID), agentID, c.ttl).Err()
}

// Forget drops a cached owner, e.g. after a listing changes hands.
func (c *OwnerCache) Forget(ctx context.Context, propertyID string) error {
	return c.rdb.Del(ctx, ownerKey(propertyID)).Err()
}
