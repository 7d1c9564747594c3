// Package metrics holds the service business counters. Counters are plain
// atomics so the hot path never blocks, the stats endpoint reads snapshots.
package metrics

import (
	"sync/atomic"
	"time"
)

// Metrics aggregates pipeline counters.
type Metrics struct {
	answersCompleted atomic.Int64
	answersFailed    atomic.Int64
	invalidQueries   atomic.Int64

	retrievalErrors  atomic.Int64
	generationErrors atomic.Int64
	emptyRetrievals  atomic.Int64
	truncations      atomic.Int64

	cacheHits   atomic.Int64
	cacheMisses atomic.Int64

	documentsIndexed atomic.Int64
	documentsSkipped atomic.Int64

	promptTokens     atomic.Int64
	completionTokens atomic.Int64

	retrievalTimeNs  atomic.Int64
	generationTimeNs atomic.Int64
}

// New creates zeroed metrics.
func New() *Metrics {
	return &Metrics{}
}

// AnswerCompleted records a request reaching the completed state.
func (m *Metrics) AnswerCompleted() { m.answersCompleted.Add(1) }

// AnswerFailed records a request reaching the errored state.
func (m *Metrics) AnswerFailed() { m.answersFailed.Add(1) }

// InvalidQuery records a request rejected before any network call.
func (m *Metrics) InvalidQuery() { m.invalidQueries.Add(1) }

// RetrievalError records an exhausted retrieval.
func (m *Metrics) RetrievalError() { m.retrievalErrors.Add(1) }

// GenerationError records an exhausted generation.
func (m *Metrics) GenerationError() { m.generationErrors.Add(1) }

// EmptyRetrieval records a search returning zero hits.
func (m *Metrics) EmptyRetrieval() { m.emptyRetrievals.Add(1) }

// ContextTruncated records an assembled bundle that had to truncate its
// first document.
func (m *Metrics) ContextTruncated() { m.truncations.Add(1) }

// CacheHit records an answer served from cache.
func (m *Metrics) CacheHit() { m.cacheHits.Add(1) }

// CacheMiss records a cache lookup that missed.
func (m *Metrics) CacheMiss() { m.cacheMisses.Add(1) }

// DocumentsIndexed adds n to the indexed-document counter.
func (m *Metrics) DocumentsIndexed(n int) { m.documentsIndexed.Add(int64(n)) }

// DocumentsSkipped adds n to the skipped-document counter.
func (m *Metrics) DocumentsSkipped(n int) { m.documentsSkipped.Add(int64(n)) }

// TokensUsed accumulates provider token usage.
func (m *Metrics) TokensUsed(prompt, completion int) {
	m.promptTokens.Add(int64(prompt))
	m.completionTokens.Add(int64(completion))
}

// ObserveRetrieval accumulates retrieval latency.
func (m *Metrics) ObserveRetrieval(d time.Duration) { m.retrievalTimeNs.Add(int64(d)) }

// ObserveGeneration accumulates generation latency.
func (m *Metrics) ObserveGeneration(d time.Duration) { m.generationTimeNs.Add(int64(d)) }

// Snapshot is a point-in-time copy of all counters.
type Snapshot struct {
	AnswersCompleted int64 `json:"answers_completed"`
	AnswersFailed    int64 `json:"answers_failed"`
	InvalidQueries   int64 `json:"invalid_queries"`

	RetrievalErrors  int64 `json:"retrieval_errors"`
	GenerationErrors int64 `json:"generation_errors"`
	EmptyRetrievals  int64 `json:"empty_retrievals"`
	Truncations      int64 `json:"truncations"`

	CacheHits   int64 `json:"cache_hits"`
	CacheMisses int64 `json:"cache_misses"`

	DocumentsIndexed int64 `json:"documents_indexed"`
	DocumentsSkipped int64 `json:"documents_skipped"`

	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`

	RetrievalTimeMs  int64 `json:"retrieval_time_ms"`
	GenerationTimeMs int64 `json:"generation_time_ms"`
}

// Snapshot returns a copy of the current counters.
func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		AnswersCompleted: m.answersCompleted.Load(),
		AnswersFailed:    m.answersFailed.Load(),
		InvalidQueries:   m.invalidQueries.Load(),
		RetrievalErrors:  m.retrievalErrors.Load(),
		GenerationErrors: m.generationErrors.Load(),
		EmptyRetrievals:  m.emptyRetrievals.Load(),
		Truncations:      m.truncations.Load(),
		CacheHits:        m.cacheHits.Load(),
		CacheMisses:      m.cacheMisses.Load(),
		DocumentsIndexed: m.documentsIndexed.Load(),
		DocumentsSkipped: m.documentsSkipped.Load(),
		PromptTokens:     m.promptTokens.Load(),
		CompletionTokens: m.completionTokens.Load(),
		RetrievalTimeMs:  m.retrievalTimeNs.Load() / int64(time.Millisecond),
		GenerationTimeMs: m.generationTimeNs.Load() / int64(time.Millisecond),
	}
}
