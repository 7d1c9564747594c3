package biz

import (
	"context"
	"errors"
	"time"

	"github.com/kart-io/logger"
	goredis "github.com/redis/go-redis/v9"

	redisopts "github.com/courselab/course-qa/pkg/options/redis"
	"github.com/courselab/course-qa/pkg/utils/json"
)

// AnswerCache stores completed answers in Redis, keyed by the document
// identity of the question. A nil cache is valid and disables caching, so the
// service runs unchanged without Redis.
type AnswerCache struct {
	client    *goredis.Client
	ttl       time.Duration
	keyPrefix string
}

// NewAnswerCache connects to Redis and verifies the connection. Returns nil
// when the cache is disabled in options.
func NewAnswerCache(ctx context.Context, opts *redisopts.Options) (*AnswerCache, error) {
	if opts == nil || !opts.Enabled {
		return nil, nil
	}

	client := goredis.NewClient(&goredis.Options{
		Addr:         opts.Addr(),
		Password:     opts.Password,
		DB:           opts.Database,
		PoolSize:     opts.PoolSize,
		DialTimeout:  opts.DialTimeout,
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}

	logger.Infow("answer cache connected",
		"addr", opts.Addr(),
		"ttl", opts.TTL.String(),
	)

	return &AnswerCache{
		client:    client,
		ttl:       opts.TTL,
		keyPrefix: opts.KeyPrefix,
	}, nil
}

func (c *AnswerCache) key(query Query) string {
	return c.keyPrefix + DocumentID(query.Course, query.Question)
}

// Get returns the cached answer for query, or nil on miss. Cache failures are
// logged and reported as misses; the pipeline must not depend on Redis.
func (c *AnswerCache) Get(ctx context.Context, query Query) *Answer {
	if c == nil {
		return nil
	}

	data, err := c.client.Get(ctx, c.key(query)).Bytes()
	if err != nil {
		if !errors.Is(err, goredis.Nil) {
			logger.Warnw("answer cache get failed", "error", err.Error())
		}
		return nil
	}

	var answer Answer
	if err := json.Unmarshal(data, &answer); err != nil {
		logger.Warnw("answer cache entry corrupt", "error", err.Error())
		return nil
	}

	answer.Cached = true
	return &answer
}

// Set stores answer under its query key. Failures are logged and dropped.
func (c *AnswerCache) Set(ctx context.Context, answer *Answer) {
	if c == nil || answer == nil {
		return
	}

	data, err := json.Marshal(answer)
	if err != nil {
		logger.Warnw("answer cache marshal failed", "error", err.Error())
		return
	}

	if err := c.client.Set(ctx, c.key(answer.Query), data, c.ttl).Err(); err != nil {
		logger.Warnw("answer cache set failed", "error", err.Error())
	}
}

// Close releases the Redis connection.
func (c *AnswerCache) Close() error {
	if c == nil {
		return nil
	}
	return c.client.Close()
}
