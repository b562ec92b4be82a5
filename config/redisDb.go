package config

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// Redis bundles the optional redis handles. A nil Redis (or nil Client) means
// the process runs without redis: sync locks degrade to lock-free and token
// lookups fall through to the database.
type Redis struct {
	Client *redis.Client
	Locker *redislock.Client
}

// ConnectRedis dials REDIS_ADDRESS once. Redis is an optimization here, not a
// dependency: on failure it returns nil rather than retrying forever.
func ConnectRedis() *Redis {
	redisAddr := os.Getenv("REDIS_ADDRESS")
	if redisAddr == "" {
		log.Printf("REDIS_ADDRESS not set; running without redis")
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     redisAddr,
		Password: "",
		DB:       0, // use default DB
		PoolSize: 100,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Printf("failed to connect redis (addr=%s): %v; running without redis", redisAddr, err)
		return nil
	}
	log.Printf("connected to redis (addr=%s)", redisAddr)
	return &Redis{
		Client: client,
		Locker: redislock.New(client),
	}
}

func (r *Redis) GetValue(ctx context.Context, key string) (string, bool, error) {
	if r == nil || r.Client == nil {
		return "", false, nil
	}
	val, err := r.Client.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return "", false, nil
		}
		return "", false, err
	}
	return val, true, nil
}

func (r *Redis) SetValue(ctx context.Context, key string, value string, exp time.Duration) error {
	if r == nil || r.Client == nil {
		return nil
	}
	return r.Client.Set(ctx, key, value, exp).Err()
}

func (r *Redis) RemoveKey(ctx context.Context, keys ...string) error {
	if r == nil || r.Client == nil {
		return nil
	}
	_, err := r.Client.Del(ctx, keys...).Result()
	return err
}

// Obtain wraps the lock client so callers need no nil checks. A nil lock with
// a nil error means "no redis, proceed without the lock".
func (r *Redis) Obtain(ctx context.Context, key string, ttl time.Duration) (*redislock.Lock, error) {
	if r == nil || r.Locker == nil {
		return nil, nil
	}
	return r.Locker.Obtain(ctx, key, ttl, nil)
}

func (r *Redis) Close() {
	if r != nil && r.Client != nil {
		_ = r.Client.Close()
	}
}
