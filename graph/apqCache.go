package graph

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const apqPrefix = "demo-apq:"

// Cache keeps automatic persisted queries in Redis. The client is read per call because
// Redis connects after the router is built; without it every lookup misses.
type Cache struct {
	client func() *redis.Client
	ttl    time.Duration
}

func NewCache(client func() *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func (c *Cache) Add(ctx context.Context, key string, value interface{}) {
	if rdb := c.client(); rdb != nil {
		rdb.Set(ctx, apqPrefix+key, value, c.ttl)
	}
}

func (c *Cache) Get(ctx context.Context, key string) (interface{}, bool) {
	rdb := c.client()
	if rdb == nil {
		return struct{}{}, false
	}
	s, err := rdb.Get(ctx, apqPrefix+key).Result()
	if err != nil {
		return struct{}{}, false
	}
	return s, true
}
