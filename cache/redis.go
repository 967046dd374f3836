package cache

import (
	"context"
	"log"
	"trip-dispatch-system/config"

	"github.com/go-redis/redis/v8"
)

var Rdb *redis.Client

func InitRedis() error {
	cfg := config.Cfg.Redis
	Rdb = redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx := context.Background()
	if _, err := Rdb.Ping(ctx).Result(); err != nil {
		return err
	}

	log.Println("Connected to Redis successfully.")
	return nil
}
