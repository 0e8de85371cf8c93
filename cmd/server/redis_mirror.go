package main

import (
	"context"
	"log"
	"os"
	"strings"

	"github.com/redis/go-redis/v9"

	"wayfinder.ai/internal/persistence/mirror"
	"wayfinder.ai/internal/sim/world"
)

type redisMirrorRuntime struct {
	enabled   bool
	warmStart bool
	prefix    string
	worldID   string
	client    *redis.Client
	mirror    *mirror.Mirror
}

func buildRedisMirrorRuntime(worldID string, logger *log.Logger) (*redisMirrorRuntime, error) {
	if !envBool("WF_REDIS_MIRROR", false) {
		return &redisMirrorRuntime{enabled: false}, nil
	}

	client, err := mirror.Dial(mirror.RedisOptions{URL: strings.TrimSpace(os.Getenv("WF_REDIS_URL"))})
	if err != nil {
		return nil, err
	}
	prefix := strings.TrimSpace(os.Getenv("WF_REDIS_PREFIX"))
	if prefix == "" {
		prefix = "wayfinder"
	}
	m := mirror.New(client, mirror.Config{
		Prefix:  prefix,
		WorldID: worldID,
		Workers: envInt("WF_REDIS_WORKERS", 2),
		Logger:  logger,
	})
	return &redisMirrorRuntime{
		enabled:   true,
		warmStart: envBool("WF_REDIS_WARM_START", true),
		prefix:    prefix,
		worldID:   worldID,
		client:    client,
		mirror:    m,
	}, nil
}

// WarmStart seeds the path cache from the mirrored entries of a previous
// run. It is a no-op when the mirror is disabled.
func (r *redisMirrorRuntime) WarmStart(ctx context.Context, w *world.World) (int, error) {
	if r == nil || !r.enabled || !r.warmStart {
		return 0, nil
	}
	entries, err := mirror.Load(ctx, r.client, r.prefix, r.worldID)
	if err != nil {
		return 0, err
	}
	w.RestorePaths(entries)
	return len(entries), nil
}

func (r *redisMirrorRuntime) Close() {
	if r == nil || !r.enabled {
		return
	}
	r.mirror.Close()
	_ = r.client.Close()
}
