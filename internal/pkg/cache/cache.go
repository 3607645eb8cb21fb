package cache

import (
	"context"
	"fmt"
	"log"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/storage/redis"
	goredis "github.com/redis/go-redis/v9"

	"github.com/ManuelReschke/gravity-bridge/internal/pkg/env"
)

var (
	client *goredis.Client
	ctx    = context.Background()
)

// SetupCache initializes the connection to the Redis/Dragonfly server
func SetupCache() {
	client = goredis.NewClient(&goredis.Options{
		Addr:     fmt.Sprintf("%s:%s", host(), port()),
		Password: env.GetEnv("CACHE_PASSWORD", ""),
		DB:       0,
	})

	pong, err := client.Ping(ctx).Result()
	if err != nil {
		log.Printf("[Cache] Warning: could not connect to cache: %v", err)
	} else {
		log.Printf("[Cache] Connected: %s", pong)
	}
}

// GetClient returns the Redis client instance
func GetClient() *goredis.Client {
	if client == nil {
		SetupCache()
	}
	return client
}

// NewFiberStorage returns a fiber storage on the same server, used by the rate
// limiter so counters are shared between instances. It returns nil when the
// server is unreachable and callers fall back to in-memory storage.
func NewFiberStorage() (storage fiber.Storage) {
	p, err := strconv.Atoi(port())
	if err != nil {
		p = 6379
	}
	defer func() {
		// redis.New panics when the initial ping fails
		if r := recover(); r != nil {
			log.Printf("[Cache] Warning: rate limiter storage unavailable, using memory: %v", r)
			storage = nil
		}
	}()
	return redis.New(redis.Config{
		Host:     host(),
		Port:     p,
		Password: env.GetEnv("CACHE_PASSWORD", ""),
		Database: 2, // Separate database for limiter counters
		Reset:    false,
	})
}

// Close releases the shared client.
func Close() error {
	if client == nil {
		return nil
	}
	err := client.Close()
	client = nil
	return err
}

func host() string { return env.GetEnv("CACHE_HOST", "localhost") }
func port() string { return env.GetEnv("CACHE_PORT", "6379") }
