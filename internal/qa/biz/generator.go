package biz

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode"

	"github.com/kart-io/logger"

	"github.com/courselab/course-qa/pkg/llm"
	"github.com/courselab/course-qa/pkg/resilience"
	"github.com/courselab/course-qa/pkg/utils/httpclient"
)

// Generator renders the instruction prompt and calls the chat provider. It
// owns the completion retry policy: transient failures back off with jitter,
// fatal API errors stop immediately.
type Generator struct {
	provider llm.ChatProvider
	template string
	maxChars int
	retry    *resilience.RetryConfig
	breaker  *resilience.CircuitBreaker
}

// NewGenerator creates a generator. template must contain the {{question}}
// and {{context}} placeholders. maxAttempts bounds provider calls, including
// the first.
func NewGenerator(provider llm.ChatProvider, template string, maxAttempts, maxChars int) *Generator {
	retry := resilience.DefaultRetryConfig()
	if maxAttempts > 0 {
		retry.MaxAttempts = maxAttempts
	}
	retry.Retryable = isTransient

	return &Generator{
		provider: provider,
		template: template,
		maxChars: maxChars,
		retry:    retry,
		breaker:  resilience.NewCircuitBreaker(nil),
	}
}

// Generate produces an answer for the query from the assembled context. An
// empty context is allowed; the provider answers from the question alone.
func (g *Generator) Generate(ctx context.Context, query Query, bundle *ContextBundle) (string, llm.TokenUsage, error) {
	prompt := g.renderPrompt(query.Question, bundle.Text)

	// Per-call timeouts are transient, but a dead request context is not:
	// once the caller's deadline passed there is nothing left to retry for.
	retry := *g.retry
	retry.Retryable = func(err error) bool {
		if ctx.Err() != nil {
			return false
		}
		return isTransient(err)
	}

	var completion *llm.Completion
	start := time.Now()
	err := resilience.RetryWithCircuitBreaker(ctx, &retry, g.breaker, func() error {
		var callErr error
		completion, callErr = g.provider.Complete(ctx, []llm.Message{
			{Role: llm.RoleUser, Content: prompt},
		})
		return callErr
	})
	if err != nil {
		logger.Warnw("generation exhausted",
			"provider", g.provider.Name(),
			"elapsed", time.Since(start).String(),
			"error", err.Error(),
		)
		return "", llm.TokenUsage{}, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}

	return g.sanitize(completion.Text), completion.Usage, nil
}

func (g *Generator) renderPrompt(question, contextText string) string {
	prompt := strings.ReplaceAll(g.template, "{{question}}", question)
	return strings.ReplaceAll(prompt, "{{context}}", contextText)
}

// sanitize caps the answer length and strips control characters, keeping
// newlines and tabs.
func (g *Generator) sanitize(text string) string {
	cleaned := strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, text)

	cleaned = strings.TrimSpace(cleaned)
	if g.maxChars > 0 && len(cleaned) > g.maxChars {
		cleaned = cutAtRune(cleaned, g.maxChars)
	}
	return cleaned
}

// isTransient classifies completion failures. Rate limits, server errors, and
// transport failures (including per-call timeouts) are worth retrying; other
// API errors (auth, validation) are not.
func isTransient(err error) bool {
	var statusErr *httpclient.StatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.Code == http.StatusTooManyRequests:
			return true
		case statusErr.Code == http.StatusRequestTimeout:
			return true
		case statusErr.Code >= 500:
			return true
		default:
			return false
		}
	}

	// Transport-level failure: connection refused, reset, client timeout.
	return true
}
