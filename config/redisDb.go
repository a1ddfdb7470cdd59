package config

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

var (
	rdb    *redis.Client
	locker *redislock.Client
)

// GetRedisDB returns nil when Redis is disabled. Every helper below is a no-op then.
func GetRedisDB() *redis.Client {
	return rdb
}

func GetRedisLock() *redislock.Client {
	return locker
}

// SetRedis installs an already connected client. nil disables Redis.
func SetRedis(client *redis.Client) {
	rdb = client
	if client == nil {
		locker = nil
		return
	}
	locker = redislock.New(client)
}

// GetRedisObject decodes the JSON stored at key into dest and reports whether it was found.
func GetRedisObject(ctx context.Context, key string, dest any) (bool, error) {
	if rdb == nil {
		return false, nil
	}
	raw, err := rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, err
	}
	return true, nil
}

// SetRedisObjectInSet stores obj as JSON at key and records key in setKey, so a group of
// cached results can be dropped together. The set lives as long as its newest member.
func SetRedisObjectInSet(ctx context.Context, setKey, key string, obj any, ttl time.Duration) error {
	if rdb == nil {
		return nil
	}
	raw, err := json.Marshal(obj)
	if err != nil {
		return err
	}
	_, err = rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, key, raw, ttl)
		pipe.SAdd(ctx, setKey, key)
		pipe.Expire(ctx, setKey, ttl)
		return nil
	})
	return err
}

// RemoveRedisSet deletes every key recorded in setKey and the set itself.
func RemoveRedisSet(ctx context.Context, setKey string) error {
	if rdb == nil {
		return nil
	}
	keys, err := rdb.SMembers(ctx, setKey).Result()
	if err != nil {
		return err
	}
	return rdb.Del(ctx, append(keys, setKey)...).Err()
}

// ConnectRedisWithRetry connects and installs the global client and lock client. Call it
// after the HTTP server is listening.
//
// Env:
// - REDIS_ADDRESS (default localhost:6379)
// - REDIS_OPTIONAL=true: an empty REDIS_ADDRESS leaves Redis disabled
// - REDIS_PASSWORD, REDIS_DB, REDIS_POOL_SIZE
func ConnectRedisWithRetry() {
	logger := GetLogger().WithField("field", "redis")
	addr := os.Getenv("REDIS_ADDRESS")
	if addr == "" {
		if boolFromEnv("REDIS_OPTIONAL", false) {
			logger.Warn("REDIS_ADDRESS not set; continuation locks and report cache are disabled")
			return
		}
		addr = "localhost:6379"
	}
	opts := &redis.Options{
		Addr:     addr,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       intFromEnv("REDIS_DB", 0),
		PoolSize: intFromEnv("REDIS_POOL_SIZE", 50),
	}

	for attempt := 1; ; attempt++ {
		client := redis.NewClient(opts)
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := client.Ping(pingCtx).Err()
		cancel()
		if err == nil {
			SetRedis(client)
			logger.WithFields(logrus.Fields{"attempt": attempt, "addr": addr}).Info("connected to redis")
			return
		}
		_ = client.Close()
		sleep := time.Second << min(attempt, 5)
		logger.WithFields(logrus.Fields{"attempt": attempt, "addr": addr, "retry_in": sleep.String()}).
			WithError(err).Warn("redis connect failed")
		time.Sleep(sleep)
	}
}
