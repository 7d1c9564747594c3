// Package biz implements the question-answering pipeline: retrieval, context
// assembly, answer generation, and the orchestrator tying them together.
package biz

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"

	"github.com/courselab/course-qa/internal/qa/store"
	"github.com/courselab/course-qa/pkg/llm"
)

var (
	// ErrInvalidQuery indicates an empty or otherwise unusable question. No
	// network call is made for such requests.
	ErrInvalidQuery = errors.New("invalid query")

	// ErrRetrievalFailed indicates retrieval exhausted its retries.
	ErrRetrievalFailed = errors.New("retrieval failed")

	// ErrGenerationFailed indicates the completion call exhausted its
	// retries or failed fatally.
	ErrGenerationFailed = errors.New("generation failed")
)

// Query is a validated question with an optional course filter.
type Query struct {
	Question string `json:"question"`
	Course   string `json:"course,omitempty"`
}

// ContextBundle is the assembled prompt context for one query.
type ContextBundle struct {
	Query     Query             `json:"query"`
	Hits      []store.SearchHit `json:"hits"`
	Text      string            `json:"text"`
	Size      int               `json:"size"`
	Truncated bool              `json:"truncated"`
}

// Answer is the final pipeline product.
type Answer struct {
	Text      string         `json:"text"`
	Query     Query          `json:"query"`
	Bundle    *ContextBundle `json:"bundle,omitempty"`
	RequestID string         `json:"request_id"`
	Usage     llm.TokenUsage `json:"usage"`
	Cached    bool           `json:"cached"`
}

// DocumentID derives the stable document identity from course and question.
// The same record always maps to the same id, which makes indexing an upsert.
func DocumentID(course, question string) string {
	h := sha256.New()
	h.Write([]byte(course))
	h.Write([]byte{0})
	h.Write([]byte(question))
	return hex.EncodeToString(h.Sum(nil))
}
