// Package qa assembles the question-answering service from its options:
// document store, chat provider, pipeline, cache, and HTTP server.
package qa

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/kart-io/logger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/courselab/course-qa/internal/qa/biz"
	"github.com/courselab/course-qa/internal/qa/handler"
	"github.com/courselab/course-qa/internal/qa/metrics"
	"github.com/courselab/course-qa/internal/qa/router"
	"github.com/courselab/course-qa/internal/qa/store"
	"github.com/courselab/course-qa/pkg/llm"
	elasticopts "github.com/courselab/course-qa/pkg/options/elastic"
	httpopts "github.com/courselab/course-qa/pkg/options/http"
	llmopts "github.com/courselab/course-qa/pkg/options/llm"
	qaopts "github.com/courselab/course-qa/pkg/options/qa"
	redisopts "github.com/courselab/course-qa/pkg/options/redis"
	"github.com/courselab/course-qa/pkg/pool"

	// Register the chat providers.
	_ "github.com/courselab/course-qa/pkg/llm/ollama"
	_ "github.com/courselab/course-qa/pkg/llm/openai"
)

// Config is the completed service configuration.
type Config struct {
	HTTP    *httpopts.Options
	Elastic *elasticopts.Options
	LLM     *llmopts.ProviderOptions
	QA      *qaopts.Options
	Redis   *redisopts.Options
}

// Server is the assembled QA service.
type Server struct {
	cfg        *Config
	service    biz.Service
	httpServer *http.Server
}

// setupTracePropagation installs the W3C trace-context propagator so the
// shared HTTP client forwards traceparent and baggage headers to the store
// and the chat provider.
func setupTracePropagation() {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
}

// NewServer builds the service from configuration. The store index is
// created lazily by the indexer; an unreachable store delays requests but
// does not block startup.
func NewServer(ctx context.Context, cfg *Config) (*Server, error) {
	setupTracePropagation()

	st := store.NewElasticStore(cfg.Elastic)
	if err := st.Ping(ctx); err != nil {
		logger.Warnw("document store not reachable at startup", "error", err.Error())
	}

	provider, err := llm.NewChatProvider(cfg.LLM.Provider, cfg.LLM.ToConfigMap())
	if err != nil {
		return nil, fmt.Errorf("failed to create chat provider: %w", err)
	}
	logger.Infow("chat provider ready",
		"provider", provider.Name(),
		"model", cfg.LLM.Model,
	)

	cache, err := biz.NewAnswerCache(ctx, cfg.Redis)
	if err != nil {
		// The cache is an optimization; run without it rather than fail.
		logger.Warnw("answer cache unavailable, continuing without it", "error", err.Error())
		cache = nil
	}

	m := metrics.New()

	wp, err := pool.New("qa-pipeline", pool.DefaultConfig(cfg.QA.Workers))
	if err != nil {
		return nil, fmt.Errorf("failed to create worker pool: %w", err)
	}

	svc := biz.NewService(biz.Config{
		Options:      cfg.QA,
		Store:        st,
		Retriever:    biz.NewRetriever(st, cfg.QA.QuestionBoost, cfg.Elastic.MaxRetries),
		Generator:    biz.NewGenerator(provider, cfg.QA.PromptTemplate, cfg.LLM.MaxRetries, cfg.QA.AnswerMaxChars),
		Indexer:      biz.NewIndexer(st, cfg.QA.Courses, cfg.Elastic.BulkBatchSize, m),
		Cache:        cache,
		Metrics:      m,
		Pool:         wp,
		ProviderName: provider.Name(),
		Model:        cfg.LLM.Model,
	})

	qaHandler := handler.NewQAHandler(svc, cfg.HTTP.RequestTimeout)
	engine := router.New(qaHandler)

	httpServer := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      engine,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	return &Server{
		cfg:        cfg,
		service:    svc,
		httpServer: httpServer,
	}, nil
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Infow("HTTP server listening", "addr", s.cfg.HTTP.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		s.service.Close()
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Errorw("graceful shutdown failed", "error", err.Error())
	}

	s.service.Close()
	return nil
}
