// Package store defines the document store abstraction over the full-text
// index and its Elasticsearch implementation.
package store

import (
	"context"
	"errors"
)

// ErrStoreUnavailable indicates the index could not be reached or answered
// with a server error. The condition is transient, callers may retry.
var ErrStoreUnavailable = errors.New("document store unavailable")

// Document is one course Q&A record.
type Document struct {
	ID         string `json:"id"`
	Course     string `json:"course"`
	Section    string `json:"section"`
	Question   string `json:"question"`
	AnswerText string `json:"answer_text"`
}

// SearchHit is one retrieved document with its relevance score.
// Rank is 1-based position in the result list.
type SearchHit struct {
	Document Document `json:"document"`
	Score    float64  `json:"score"`
	Rank     int      `json:"rank"`
}

// BulkResult reports the outcome of one bulk indexing call.
type BulkResult struct {
	Created int      `json:"created"`
	Updated int      `json:"updated"`
	Failed  int      `json:"failed"`
	Errors  []string `json:"errors,omitempty"`
}

// Add accumulates another batch outcome into r.
func (r *BulkResult) Add(other *BulkResult) {
	if other == nil {
		return
	}
	r.Created += other.Created
	r.Updated += other.Updated
	r.Failed += other.Failed
	r.Errors = append(r.Errors, other.Errors...)
}

// SearchRequest parameterizes a full-text search.
type SearchRequest struct {
	// Text is the query text matched against question, answer, and section.
	Text string
	// Course restricts results to one course, empty means all courses.
	Course string
	// Size is the maximum number of hits.
	Size int
	// QuestionBoost is the relevance boost for the question field.
	QuestionBoost float64
}

// DocumentStore is the full-text index used by the pipeline.
type DocumentStore interface {
	// EnsureIndex creates the index with settings and mappings when it does
	// not exist yet.
	EnsureIndex(ctx context.Context) error

	// BulkIndex upserts documents by id. Per-document failures are reported
	// in the result, not as an error.
	BulkIndex(ctx context.Context, docs []Document) (*BulkResult, error)

	// Search runs a full-text query and returns hits in non-increasing score
	// order with ranks assigned.
	Search(ctx context.Context, req SearchRequest) ([]SearchHit, error)

	// Count returns the number of indexed documents.
	Count(ctx context.Context) (int64, error)

	// Ping verifies the store is reachable.
	Ping(ctx context.Context) error
}
