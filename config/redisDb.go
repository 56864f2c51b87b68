package config

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

var rdb *redis.Client

// ConnectRedisWithRetry connects the global Redis client and returns a lock
// client on top of it. CloseRedis closes the connection.
// maxAttempts <= 0 retries forever.
func ConnectRedisWithRetry(ctx context.Context, redisAddr string, maxAttempts int) (*redislock.Client, error) {
	if redisAddr == "" {
		redisAddr = "localhost:6379"
		log.Printf("REDIS_ADDRESS not set; defaulting to %s", redisAddr)
	}

	var attempt int
	for {
		attempt++
		client := redis.NewClient(&redis.Options{
			Addr:     redisAddr,
			Password: "",
			DB:       0,
			PoolSize: 100,
		})
		err := client.Ping(ctx).Err()
		if err == nil {
			rdb = client
			log.Printf("connected to redis (attempt=%d addr=%s)", attempt, redisAddr)
			return redislock.New(rdb), nil
		}
		_ = client.Close()
		if maxAttempts > 0 && attempt >= maxAttempts {
			return nil, fmt.Errorf("connect redis after %d attempts: %w", attempt, err)
		}

		sleep := time.Second * time.Duration(1<<min(attempt, 5))
		if sleep > 30*time.Second {
			sleep = 30 * time.Second
		}
		log.Printf("failed to connect redis (attempt=%d addr=%s): %v; retrying in %s", attempt, redisAddr, err, sleep)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(sleep):
		}
	}
}

func CloseRedis() error {
	if rdb == nil {
		return nil
	}
	return rdb.Close()
}
