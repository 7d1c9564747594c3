package biz

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/kart-io/logger"

	"github.com/courselab/course-qa/internal/qa/metrics"
	"github.com/courselab/course-qa/internal/qa/store"
	"github.com/courselab/course-qa/pkg/utils/json"
)

// RawDocument is one record of the course documents file.
type RawDocument struct {
	Section  string `json:"section"`
	Question string `json:"question"`
	Text     string `json:"text"`
}

// CourseDocuments groups the records of one course.
type CourseDocuments struct {
	Course    string        `json:"course"`
	Documents []RawDocument `json:"documents"`
}

// IndexReport summarizes one index run.
type IndexReport struct {
	Total   int      `json:"total"`
	Created int      `json:"created"`
	Updated int      `json:"updated"`
	Failed  int      `json:"failed"`
	Skipped int      `json:"skipped"`
	Errors  []string `json:"errors,omitempty"`
}

// Indexer loads the course corpus into the document store. Runs are
// idempotent: document ids derive from course and question, so re-running the
// same file updates instead of duplicating.
type Indexer struct {
	store     store.DocumentStore
	courses   map[string]bool
	batchSize int
	metrics   *metrics.Metrics
}

// NewIndexer creates an indexer. courses is the allowed course set; records
// outside it are skipped. batchSize bounds documents per bulk request.
func NewIndexer(st store.DocumentStore, courses []string, batchSize int, m *metrics.Metrics) *Indexer {
	allowed := make(map[string]bool, len(courses))
	for _, c := range courses {
		allowed[c] = true
	}
	if batchSize <= 0 {
		batchSize = 500
	}
	return &Indexer{
		store:     st,
		courses:   allowed,
		batchSize: batchSize,
		metrics:   m,
	}
}

// IndexFile reads the documents JSON file and loads it into the store.
func (ix *Indexer) IndexFile(ctx context.Context, path string) (*IndexReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset: %w", err)
	}

	var dataset []CourseDocuments
	if err := json.Unmarshal(data, &dataset); err != nil {
		return nil, fmt.Errorf("failed to parse dataset: %w", err)
	}

	return ix.IndexDataset(ctx, dataset)
}

// IndexDataset validates and bulk-loads the dataset batch by batch. Invalid
// records are skipped and counted, never fatal. Per-document store failures
// are reported in the result; only whole-batch failures abort the run.
func (ix *Indexer) IndexDataset(ctx context.Context, dataset []CourseDocuments) (*IndexReport, error) {
	if err := ix.store.EnsureIndex(ctx); err != nil {
		return nil, err
	}

	report := &IndexReport{}
	totals := &store.BulkResult{}
	batch := make([]store.Document, 0, ix.batchSize)

	// Completed batches count even when a later batch aborts the run.
	defer func() {
		report.Created = totals.Created
		report.Updated = totals.Updated
		report.Failed = totals.Failed
		report.Errors = totals.Errors
	}()

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		result, err := ix.store.BulkIndex(ctx, batch)
		if err != nil {
			return err
		}
		totals.Add(result)
		batch = batch[:0]
		return nil
	}

	for _, course := range dataset {
		for _, raw := range course.Documents {
			report.Total++

			doc, ok := ix.validate(course.Course, raw)
			if !ok {
				report.Skipped++
				continue
			}

			batch = append(batch, doc)
			if len(batch) >= ix.batchSize {
				if err := flush(); err != nil {
					return report, err
				}
			}
		}
	}
	if err := flush(); err != nil {
		return report, err
	}

	if ix.metrics != nil {
		ix.metrics.DocumentsIndexed(report.Created + report.Updated)
		ix.metrics.DocumentsSkipped(report.Skipped)
	}

	logger.Infow("index run finished",
		"total", report.Total,
		"created", totals.Created,
		"updated", totals.Updated,
		"failed", totals.Failed,
		"skipped", report.Skipped,
	)
	return report, nil
}

// validate checks one record and derives its document identity.
func (ix *Indexer) validate(course string, raw RawDocument) (store.Document, bool) {
	question := strings.TrimSpace(raw.Question)
	answer := strings.TrimSpace(raw.Text)

	if question == "" || answer == "" {
		return store.Document{}, false
	}
	if len(ix.courses) > 0 && !ix.courses[course] {
		return store.Document{}, false
	}

	return store.Document{
		ID:         DocumentID(course, question),
		Course:     course,
		Section:    raw.Section,
		Question:   question,
		AnswerText: answer,
	}, true
}
