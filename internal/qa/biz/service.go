package biz

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kart-io/logger"

	"github.com/courselab/course-qa/internal/qa/metrics"
	"github.com/courselab/course-qa/internal/qa/store"
	qaopts "github.com/courselab/course-qa/pkg/options/qa"
	"github.com/courselab/course-qa/pkg/pool"
)

// State is a pipeline lifecycle state.
type State string

const (
	StateReceived   State = "received"
	StateRetrieving State = "retrieving"
	StateAssembling State = "assembling"
	StateGenerating State = "generating"
	StateCompleted  State = "completed"
	StateErrored    State = "errored"
)

// AnswerRequest is one question to answer.
type AnswerRequest struct {
	Question  string `json:"question"`
	Course    string `json:"course,omitempty"`
	TopK      int    `json:"top_k,omitempty"`
	RequestID string `json:"-"`
}

// Stats is the service statistics payload.
type Stats struct {
	DocumentCount int64            `json:"document_count"`
	Provider      string           `json:"provider"`
	Model         string           `json:"model"`
	Pipeline      metrics.Snapshot `json:"pipeline"`
	Pool          pool.Stats       `json:"pool"`
}

// Service is the question-answering orchestrator.
type Service interface {
	// Answer runs the full pipeline for one question.
	Answer(ctx context.Context, req AnswerRequest) (*Answer, error)

	// Index loads the configured dataset file into the store.
	Index(ctx context.Context) (*IndexReport, error)

	// Stats reports document count and pipeline counters.
	Stats(ctx context.Context) (*Stats, error)

	// Courses returns the configured course catalog.
	Courses() []string

	// Close releases the worker pool and cache.
	Close()
}

type service struct {
	opts      *qaopts.Options
	store     store.DocumentStore
	retriever *Retriever
	generator *Generator
	indexer   *Indexer
	cache     *AnswerCache
	metrics   *metrics.Metrics
	pool      *pool.Pool

	providerName string
	model        string
}

var _ Service = (*service)(nil)

// Config collects the orchestrator collaborators.
type Config struct {
	Options      *qaopts.Options
	Store        store.DocumentStore
	Retriever    *Retriever
	Generator    *Generator
	Indexer      *Indexer
	Cache        *AnswerCache
	Metrics      *metrics.Metrics
	Pool         *pool.Pool
	ProviderName string
	Model        string
}

// NewService creates the orchestrator.
func NewService(cfg Config) Service {
	return &service{
		opts:         cfg.Options,
		store:        cfg.Store,
		retriever:    cfg.Retriever,
		generator:    cfg.Generator,
		indexer:      cfg.Indexer,
		cache:        cfg.Cache,
		metrics:      cfg.Metrics,
		pool:         cfg.Pool,
		providerName: cfg.ProviderName,
		model:        cfg.Model,
	}
}

// Answer validates the request, then runs retrieval, assembly, and generation
// on the worker pool. Every request terminates in exactly one of completed or
// errored, and the terminal state is logged with the request id.
func (s *service) Answer(ctx context.Context, req AnswerRequest) (*Answer, error) {
	query, err := s.validate(req)
	if err != nil {
		s.metrics.InvalidQuery()
		s.logTerminal(req.RequestID, StateReceived, StateErrored, err)
		return nil, err
	}

	if s.cache != nil {
		if cached := s.cache.Get(ctx, query); cached != nil {
			s.metrics.CacheHit()
			cached.RequestID = req.RequestID
			s.logTerminal(req.RequestID, StateReceived, StateCompleted, nil)
			return cached, nil
		}
		s.metrics.CacheMiss()
	}

	topK := s.clampTopK(req.TopK)

	var answer *Answer
	var runErr error
	poolErr := s.pool.Run(ctx, func() {
		answer, runErr = s.runPipeline(ctx, query, topK, req.RequestID)
	})
	if poolErr != nil {
		// Both classes stay visible: the handler maps a dead request
		// context to 504 before falling back to the retrieval class.
		err := fmt.Errorf("%w: %w", ErrRetrievalFailed, poolErr)
		s.countFailure(err)
		s.logTerminal(req.RequestID, StateReceived, StateErrored, poolErr)
		return nil, err
	}
	if runErr != nil {
		s.countFailure(runErr)
		return nil, runErr
	}
	s.metrics.AnswerCompleted()
	return answer, nil
}

// countFailure records the failed request once, attributed to the pipeline
// stage the error class names. Only the branch whose error reaches the caller
// counts, so an abandoned pipeline run never double-counts its request.
func (s *service) countFailure(err error) {
	s.metrics.AnswerFailed()
	switch {
	case errors.Is(err, ErrGenerationFailed):
		s.metrics.GenerationError()
	case errors.Is(err, ErrRetrievalFailed):
		s.metrics.RetrievalError()
	}
}

// runPipeline executes retrieving, assembling, and generating for one query.
func (s *service) runPipeline(ctx context.Context, query Query, topK int, requestID string) (*Answer, error) {
	state := StateReceived

	state = s.transition(requestID, state, StateRetrieving)
	retrievalStart := time.Now()
	hits, err := s.retriever.Retrieve(ctx, query, topK)
	s.metrics.ObserveRetrieval(time.Since(retrievalStart))
	if err != nil {
		s.logTerminal(requestID, state, StateErrored, err)
		return nil, err
	}
	if len(hits) == 0 {
		// Zero hits is a successful retrieval. The generator answers from
		// the question alone with an empty context.
		s.metrics.EmptyRetrieval()
	}

	state = s.transition(requestID, state, StateAssembling)
	bundle := Assemble(query, hits, s.opts.ContextBudget)
	if bundle.Truncated {
		s.metrics.ContextTruncated()
	}

	state = s.transition(requestID, state, StateGenerating)
	generationStart := time.Now()
	text, usage, err := s.generator.Generate(ctx, query, bundle)
	s.metrics.ObserveGeneration(time.Since(generationStart))
	if err != nil {
		s.logTerminal(requestID, state, StateErrored, err)
		return nil, err
	}

	answer := &Answer{
		Text:      text,
		Query:     query,
		Bundle:    bundle,
		RequestID: requestID,
		Usage:     usage,
	}

	// Tokens were really spent even when the caller stopped waiting.
	s.metrics.TokensUsed(usage.PromptTokens, usage.CompletionTokens)
	s.logTerminal(requestID, state, StateCompleted, nil)

	s.storeInCache(answer)
	return answer, nil
}

// storeInCache writes the answer with a detached context, so a slow cache
// never delays the response.
func (s *service) storeInCache(answer *Answer) {
	if s.cache == nil {
		return
	}
	cacheCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s.cache.Set(cacheCtx, answer)
}

func (s *service) validate(req AnswerRequest) (Query, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return Query{}, fmt.Errorf("%w: question is empty", ErrInvalidQuery)
	}

	course := strings.TrimSpace(req.Course)
	if course != "" && !s.courseAllowed(course) {
		return Query{}, fmt.Errorf("%w: unknown course %q", ErrInvalidQuery, course)
	}

	return Query{Question: question, Course: course}, nil
}

func (s *service) courseAllowed(course string) bool {
	for _, c := range s.opts.Courses {
		if c == course {
			return true
		}
	}
	return false
}

func (s *service) clampTopK(topK int) int {
	if topK <= 0 {
		topK = s.opts.TopK
	}
	if topK > s.opts.MaxTopK {
		topK = s.opts.MaxTopK
	}
	return topK
}

func (s *service) transition(requestID string, from, to State) State {
	logger.Debugw("pipeline state transition",
		"request_id", requestID,
		"from", string(from),
		"to", string(to),
	)
	return to
}

func (s *service) logTerminal(requestID string, from, terminal State, err error) {
	fields := []interface{}{
		"request_id", requestID,
		"from", string(from),
		"state", string(terminal),
	}
	if err != nil {
		fields = append(fields, "error", err.Error())
		logger.Warnw("pipeline terminated", fields...)
		return
	}
	logger.Infow("pipeline terminated", fields...)
}

// Index loads the configured dataset file.
func (s *service) Index(ctx context.Context) (*IndexReport, error) {
	return s.indexer.IndexFile(ctx, s.opts.DatasetPath)
}

// Stats reports document count, provider identity, and counters. A store
// failure zeroes the document count instead of failing the endpoint.
func (s *service) Stats(ctx context.Context) (*Stats, error) {
	count, err := s.store.Count(ctx)
	if err != nil {
		logger.Warnw("document count unavailable", "error", err.Error())
		count = 0
	}

	return &Stats{
		DocumentCount: count,
		Provider:      s.providerName,
		Model:         s.model,
		Pipeline:      s.metrics.Snapshot(),
		Pool:          s.pool.Stats(),
	}, nil
}

// Courses returns the configured course catalog.
func (s *service) Courses() []string {
	return append([]string(nil), s.opts.Courses...)
}

// Close releases the worker pool and the cache connection.
func (s *service) Close() {
	if s.pool != nil {
		s.pool.Release()
	}
	if err := s.cache.Close(); err != nil {
		logger.Warnw("cache close failed", "error", err.Error())
	}
}
