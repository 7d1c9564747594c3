package biz

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/kart-io/logger"

	"github.com/courselab/course-qa/internal/qa/store"
	"github.com/courselab/course-qa/pkg/resilience"
)

// Retriever fetches candidate documents for a query. It owns the retry policy
// for transient store failures; nothing below it retries.
type Retriever struct {
	store store.DocumentStore
	boost float64
	retry *resilience.RetryConfig
}

// NewRetriever creates a retriever. maxAttempts bounds store retries,
// including the first call.
func NewRetriever(st store.DocumentStore, questionBoost float64, maxAttempts int) *Retriever {
	retry := resilience.DefaultRetryConfig()
	if maxAttempts > 0 {
		retry.MaxAttempts = maxAttempts
	}
	retry.InitialDelay = 200 * time.Millisecond
	retry.MaxDelay = 2 * time.Second
	retry.Retryable = func(err error) bool {
		return errors.Is(err, store.ErrStoreUnavailable)
	}

	return &Retriever{
		store: st,
		boost: questionBoost,
		retry: retry,
	}
}

// Retrieve returns up to topK hits in non-increasing score order. Zero hits is
// a successful outcome. Exhausted retries and deadline expiry surface as
// ErrRetrievalFailed.
func (r *Retriever) Retrieve(ctx context.Context, query Query, topK int) ([]store.SearchHit, error) {
	var hits []store.SearchHit

	err := resilience.RetryWithBackoff(ctx, r.retry, func() error {
		var searchErr error
		hits, searchErr = r.store.Search(ctx, store.SearchRequest{
			Text:          query.Question,
			Course:        query.Course,
			Size:          topK,
			QuestionBoost: r.boost,
		})
		return searchErr
	})
	if err != nil {
		logger.Warnw("retrieval exhausted",
			"course", query.Course,
			"top_k", topK,
			"error", err.Error(),
		)
		return nil, fmt.Errorf("%w: %v", ErrRetrievalFailed, err)
	}

	// The store already returns hits ordered by score. Enforce the ordering
	// invariant anyway; the sort is stable so equal scores keep their
	// arrival order.
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Score > hits[j].Score
	})
	for i := range hits {
		hits[i].Rank = i + 1
	}

	return hits, nil
}
