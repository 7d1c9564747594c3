package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/kart-io/logger"

	"github.com/courselab/course-qa/pkg/options/elastic"
	"github.com/courselab/course-qa/pkg/utils/httpclient"
	"github.com/courselab/course-qa/pkg/utils/json"
)

// ElasticStore implements DocumentStore against the Elasticsearch HTTP API.
// It speaks the query DSL directly over the shared HTTP client.
type ElasticStore struct {
	opts   *elastic.Options
	client *httpclient.Client
}

var _ DocumentStore = (*ElasticStore)(nil)

// NewElasticStore creates a store client from options.
func NewElasticStore(opts *elastic.Options) *ElasticStore {
	return &ElasticStore{
		opts:   opts,
		client: httpclient.NewClient(opts.Timeout),
	}
}

// indexMapping is the index body used by EnsureIndex. question, answer_text,
// and section are analyzed text, course is an exact-match keyword.
func (s *ElasticStore) indexBody() map[string]any {
	return map[string]any{
		"settings": map[string]any{
			"number_of_shards":   s.opts.NumberOfShards,
			"number_of_replicas": s.opts.NumberOfReplicas,
		},
		"mappings": map[string]any{
			"properties": map[string]any{
				"question":    map[string]any{"type": "text"},
				"answer_text": map[string]any{"type": "text"},
				"section":     map[string]any{"type": "text"},
				"course":      map[string]any{"type": "keyword"},
			},
		},
	}
}

// EnsureIndex creates the index when absent. An existing index is left
// untouched.
func (s *ElasticStore) EnsureIndex(ctx context.Context) error {
	req, err := s.newRequest(ctx, http.MethodHead, "/"+url.PathEscape(s.opts.Index), nil)
	if err != nil {
		return err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	_ = resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode != http.StatusNotFound:
		return fmt.Errorf("%w: index check returned status %d", ErrStoreUnavailable, resp.StatusCode)
	}

	body, err := json.Marshal(s.indexBody())
	if err != nil {
		return fmt.Errorf("failed to marshal index body: %w", err)
	}

	req, err = s.newRequest(ctx, http.MethodPut, "/"+url.PathEscape(s.opts.Index), bytes.NewReader(body))
	if err != nil {
		return err
	}

	if err := s.client.DoJSON(req, nil); err != nil {
		return s.classify(err, "create index")
	}

	logger.Infow("index created", "index", s.opts.Index)
	return nil
}

type bulkResponse struct {
	Errors bool `json:"errors"`
	Items  []struct {
		Index struct {
			ID     string `json:"_id"`
			Result string `json:"result"`
			Status int    `json:"status"`
			Error  *struct {
				Type   string `json:"type"`
				Reason string `json:"reason"`
			} `json:"error"`
		} `json:"index"`
	} `json:"items"`
}

// BulkIndex upserts documents through the _bulk API. Each document is indexed
// under its own id, so re-running the same input updates instead of
// duplicating.
func (s *ElasticStore) BulkIndex(ctx context.Context, docs []Document) (*BulkResult, error) {
	if len(docs) == 0 {
		return &BulkResult{}, nil
	}

	var buf bytes.Buffer
	for _, doc := range docs {
		action := map[string]any{
			"index": map[string]any{
				"_index": s.opts.Index,
				"_id":    doc.ID,
			},
		}
		actionLine, err := json.Marshal(action)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal bulk action: %w", err)
		}
		docLine, err := json.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal document %s: %w", doc.ID, err)
		}
		buf.Write(actionLine)
		buf.WriteByte('\n')
		buf.Write(docLine)
		buf.WriteByte('\n')
	}

	req, err := s.newRequest(ctx, http.MethodPost, "/_bulk", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-ndjson")

	var resp bulkResponse
	if err := s.client.DoJSON(req, &resp); err != nil {
		return nil, s.classify(err, "bulk index")
	}

	result := &BulkResult{}
	for _, item := range resp.Items {
		switch {
		case item.Index.Error != nil:
			result.Failed++
			result.Errors = append(result.Errors,
				fmt.Sprintf("%s: %s: %s", item.Index.ID, item.Index.Error.Type, item.Index.Error.Reason))
		case item.Index.Result == "created":
			result.Created++
		default:
			result.Updated++
		}
	}
	return result, nil
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			ID     string   `json:"_id"`
			Score  float64  `json:"_score"`
			Source Document `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// Search runs the bool query: boosted match on question, plain matches on
// answer_text and section, at least one must match, optional term filter on
// course.
func (s *ElasticStore) Search(ctx context.Context, sreq SearchRequest) ([]SearchHit, error) {
	boolQuery := map[string]any{
		"should": []any{
			map[string]any{
				"match": map[string]any{
					"question": map[string]any{
						"query": sreq.Text,
						"boost": sreq.QuestionBoost,
					},
				},
			},
			map[string]any{
				"match": map[string]any{"answer_text": sreq.Text},
			},
			map[string]any{
				"match": map[string]any{"section": sreq.Text},
			},
		},
		"minimum_should_match": 1,
	}
	if sreq.Course != "" {
		boolQuery["filter"] = map[string]any{
			"term": map[string]any{"course": sreq.Course},
		}
	}

	body, err := json.Marshal(map[string]any{
		"size":  sreq.Size,
		"query": map[string]any{"bool": boolQuery},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal search query: %w", err)
	}

	req, err := s.newRequest(ctx, http.MethodPost, "/"+url.PathEscape(s.opts.Index)+"/_search", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	var resp searchResponse
	if err := s.client.DoJSON(req, &resp); err != nil {
		return nil, s.classify(err, "search")
	}

	hits := make([]SearchHit, 0, len(resp.Hits.Hits))
	for i, h := range resp.Hits.Hits {
		doc := h.Source
		doc.ID = h.ID
		hits = append(hits, SearchHit{
			Document: doc,
			Score:    h.Score,
			Rank:     i + 1,
		})
	}
	return hits, nil
}

// Count returns the number of documents in the index.
func (s *ElasticStore) Count(ctx context.Context) (int64, error) {
	req, err := s.newRequest(ctx, http.MethodGet, "/"+url.PathEscape(s.opts.Index)+"/_count", nil)
	if err != nil {
		return 0, err
	}

	var resp struct {
		Count int64 `json:"count"`
	}
	if err := s.client.DoJSON(req, &resp); err != nil {
		return 0, s.classify(err, "count")
	}
	return resp.Count, nil
}

// Ping verifies the cluster answers on its root endpoint.
func (s *ElasticStore) Ping(ctx context.Context) error {
	req, err := s.newRequest(ctx, http.MethodGet, "/", nil)
	if err != nil {
		return err
	}
	if err := s.client.DoJSON(req, nil); err != nil {
		return s.classify(err, "ping")
	}
	return nil
}

func (s *ElasticStore) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, s.opts.Address+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if s.opts.Username != "" {
		req.SetBasicAuth(s.opts.Username, s.opts.Password)
	}
	return req, nil
}

// classify folds transport errors and 5xx into ErrStoreUnavailable. Client
// errors (bad query, missing index) pass through unchanged.
func (s *ElasticStore) classify(err error, op string) error {
	var statusErr *httpclient.StatusError
	if errors.As(err, &statusErr) {
		if statusErr.Code >= 500 || statusErr.Code == http.StatusTooManyRequests {
			return fmt.Errorf("%w: %s: %v", ErrStoreUnavailable, op, err)
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%w: %s: %v", ErrStoreUnavailable, op, err)
}
