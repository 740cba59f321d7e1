package cache

import (
	"context"
	"log"
	"os"
	"strings"

	"github.com/redis/go-redis/v9"
)

var Client *redis.Client

var (
	newClient = redis.NewClient
	pingRedis = func(ctx context.Context, client *redis.Client) error {
		return client.Ping(ctx).Err()
	}
)

// InitRedis connects the process-wide client. REDIS_URL may be a bare
// host:port or a redis:// / rediss:// URL.
func InitRedis(ctx context.Context) {
	raw := strings.TrimSpace(os.Getenv("REDIS_URL"))
	if raw == "" {
		raw = "localhost:6379"
	}

	opts, err := redisOptions(raw)
	if err != nil {
		log.Fatalf("failed to parse REDIS_URL: %v", err)
	}

	Client = newClient(opts)
	if err := pingRedis(ctx, Client); err != nil {
		log.Fatalf("failed to connect to Redis at %s: %v", opts.Addr, err)
	}
	log.Printf("Connected to Redis at %s", opts.Addr)
}

func redisOptions(raw string) (*redis.Options, error) {
	if strings.Contains(raw, "://") {
		return redis.ParseURL(raw)
	}
	return &redis.Options{Addr: raw}, nil
}
