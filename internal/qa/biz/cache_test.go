package biz

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/courselab/course-qa/pkg/llm"
	redisopts "github.com/courselab/course-qa/pkg/options/redis"
)

// setupTestCache connects to a local Redis test database, skipping when none
// is available.
func setupTestCache(t *testing.T) *AnswerCache {
	t.Helper()

	opts := redisopts.NewOptions()
	opts.Enabled = true
	opts.Database = 15
	opts.KeyPrefix = "test:courseqa:answer:"
	opts.TTL = time.Hour

	cache, err := NewAnswerCache(context.Background(), opts)
	if err != nil {
		t.Skipf("redis not available, skipping: %v", err)
	}
	require.NotNil(t, cache)

	cache.client.FlushDB(context.Background())
	t.Cleanup(func() {
		cache.client.FlushDB(context.Background())
		_ = cache.Close()
	})
	return cache
}

func TestAnswerCacheKeyDerivation(t *testing.T) {
	cache := setupTestCache(t)

	q := Query{Question: "how do I join?", Course: "mlops-zoomcamp"}
	key := cache.key(q)

	assert.Equal(t, "test:courseqa:answer:"+DocumentID(q.Course, q.Question), key)
	// Same query, same key; different course, different key.
	assert.Equal(t, key, cache.key(Query{Question: "how do I join?", Course: "mlops-zoomcamp"}))
	assert.NotEqual(t, key, cache.key(Query{Question: "how do I join?", Course: "machine-learning-zoomcamp"}))
}

func TestAnswerCacheSetAndGet(t *testing.T) {
	cache := setupTestCache(t)
	ctx := context.Background()

	answer := &Answer{
		Text:  "the stored answer",
		Query: Query{Question: "q", Course: "mlops-zoomcamp"},
		Usage: llm.TokenUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}
	cache.Set(ctx, answer)

	cached := cache.Get(ctx, answer.Query)
	require.NotNil(t, cached)
	assert.Equal(t, "the stored answer", cached.Text)
	assert.Equal(t, answer.Query, cached.Query)
	assert.Equal(t, 15, cached.Usage.TotalTokens)
	// Served from cache, flagged as such.
	assert.True(t, cached.Cached)
}

func TestAnswerCacheMiss(t *testing.T) {
	cache := setupTestCache(t)

	cached := cache.Get(context.Background(), Query{Question: "never asked"})
	assert.Nil(t, cached)
}

func TestAnswerCacheCorruptEntryIsMiss(t *testing.T) {
	cache := setupTestCache(t)
	ctx := context.Background()

	q := Query{Question: "q", Course: "mlops-zoomcamp"}
	require.NoError(t, cache.client.Set(ctx, cache.key(q), "not json{{", time.Hour).Err())

	assert.Nil(t, cache.Get(ctx, q))
}

func TestAnswerCacheDisabledReturnsNil(t *testing.T) {
	opts := redisopts.NewOptions() // Enabled defaults to false

	cache, err := NewAnswerCache(context.Background(), opts)
	require.NoError(t, err)
	assert.Nil(t, cache)
}

func TestAnswerCacheNilIsSafe(t *testing.T) {
	var cache *AnswerCache

	assert.Nil(t, cache.Get(context.Background(), Query{Question: "q"}))
	assert.NotPanics(t, func() {
		cache.Set(context.Background(), &Answer{Text: "a"})
	})
	assert.NoError(t, cache.Close())
}
