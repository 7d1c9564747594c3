package biz

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/courselab/course-qa/internal/qa/metrics"
	"github.com/courselab/course-qa/internal/qa/store"
	"github.com/courselab/course-qa/pkg/llm"
	qaopts "github.com/courselab/course-qa/pkg/options/qa"
	"github.com/courselab/course-qa/pkg/pool"
	"github.com/courselab/course-qa/pkg/utils/httpclient"
)

func newTestService(t *testing.T, st *fakeStore, p *fakeProvider) (Service, *metrics.Metrics) {
	t.Helper()

	opts := qaopts.NewOptions()
	m := metrics.New()

	wp, err := pool.New("test", pool.DefaultConfig(4))
	require.NoError(t, err)
	t.Cleanup(wp.Release)

	retriever := NewRetriever(st, opts.QuestionBoost, 3)
	retriever.retry = fastRetry(3, retriever.retry.Retryable)

	generator := newTestGenerator(p, 3)
	generator.template = opts.PromptTemplate

	svc := NewService(Config{
		Options:      opts,
		Store:        st,
		Retriever:    retriever,
		Generator:    generator,
		Indexer:      NewIndexer(st, opts.Courses, 100, m),
		Metrics:      m,
		Pool:         wp,
		ProviderName: "fake",
		Model:        "fake-model",
	})
	return svc, m
}

func TestAnswerHappyPath(t *testing.T) {
	st := &fakeStore{
		searchFn: func(_ int, _ store.SearchRequest) ([]store.SearchHit, error) {
			return []store.SearchHit{
				{Document: store.Document{Course: "mlops-zoomcamp", Question: "q", AnswerText: "a"}, Score: 2},
			}, nil
		},
	}
	p := &fakeProvider{}
	svc, m := newTestService(t, st, p)

	answer, err := svc.Answer(context.Background(), AnswerRequest{
		Question:  "how do I join?",
		Course:    "mlops-zoomcamp",
		RequestID: "req-1",
	})
	require.NoError(t, err)

	assert.Equal(t, "answer", answer.Text)
	assert.Equal(t, "req-1", answer.RequestID)
	require.NotNil(t, answer.Bundle)
	assert.Contains(t, answer.Bundle.Text, "question: q")

	snap := m.Snapshot()
	assert.Equal(t, int64(1), snap.AnswersCompleted)
	assert.Zero(t, snap.AnswersFailed)
}

func TestAnswerEmptyQuestionMakesNoCalls(t *testing.T) {
	st := &fakeStore{}
	p := &fakeProvider{}
	svc, m := newTestService(t, st, p)

	_, err := svc.Answer(context.Background(), AnswerRequest{Question: "   \t\n "})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidQuery)

	assert.Zero(t, st.searchCalls)
	assert.Zero(t, p.calls)
	assert.Equal(t, int64(1), m.Snapshot().InvalidQueries)
}

func TestAnswerUnknownCourseRejected(t *testing.T) {
	st := &fakeStore{}
	p := &fakeProvider{}
	svc, _ := newTestService(t, st, p)

	_, err := svc.Answer(context.Background(), AnswerRequest{
		Question: "q",
		Course:   "basket-weaving-zoomcamp",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidQuery)
	assert.Zero(t, st.searchCalls)
}

func TestAnswerEmptyRetrievalStillGenerates(t *testing.T) {
	st := &fakeStore{} // search returns no hits
	p := &fakeProvider{}
	svc, m := newTestService(t, st, p)

	answer, err := svc.Answer(context.Background(), AnswerRequest{Question: "q", RequestID: "req-2"})
	require.NoError(t, err)

	assert.Equal(t, "answer", answer.Text)
	assert.Empty(t, answer.Bundle.Text)
	assert.Equal(t, 1, p.calls)

	snap := m.Snapshot()
	assert.Equal(t, int64(1), snap.EmptyRetrievals)
	assert.Equal(t, int64(1), snap.AnswersCompleted)
}

func TestAnswerRetrievalFailureErrors(t *testing.T) {
	st := &fakeStore{
		searchFn: func(_ int, _ store.SearchRequest) ([]store.SearchHit, error) {
			return nil, fmt.Errorf("%w: down", store.ErrStoreUnavailable)
		},
	}
	p := &fakeProvider{}
	svc, m := newTestService(t, st, p)

	_, err := svc.Answer(context.Background(), AnswerRequest{Question: "q"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRetrievalFailed)
	assert.Zero(t, p.calls)

	snap := m.Snapshot()
	assert.Equal(t, int64(1), snap.RetrievalErrors)
	assert.Equal(t, int64(1), snap.AnswersFailed)
}

func TestAnswerGenerationFailureErrors(t *testing.T) {
	st := &fakeStore{}
	p := &fakeProvider{
		fn: func(_ int, _ []llm.Message) (*llm.Completion, error) {
			return nil, &httpclient.StatusError{Code: 400, Body: "model exploded"}
		},
	}
	svc, m := newTestService(t, st, p)

	_, err := svc.Answer(context.Background(), AnswerRequest{Question: "q"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrGenerationFailed)

	snap := m.Snapshot()
	assert.Equal(t, int64(1), snap.GenerationErrors)
	assert.Equal(t, int64(1), snap.AnswersFailed)
}

func TestAnswerDeadlineMidRunCountsFailureOnce(t *testing.T) {
	release := make(chan struct{})
	searched := make(chan struct{})
	st := &fakeStore{
		searchFn: func(_ int, _ store.SearchRequest) ([]store.SearchHit, error) {
			defer close(searched)
			<-release
			return nil, fmt.Errorf("%w: down", store.ErrStoreUnavailable)
		},
	}
	p := &fakeProvider{}
	svc, m := newTestService(t, st, p)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := svc.Answer(ctx, AnswerRequest{Question: "q", RequestID: "req-late"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRetrievalFailed)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// Let the abandoned pipeline run finish, then confirm it did not count
	// the same request again.
	close(release)
	select {
	case <-searched:
	case <-time.After(time.Second):
		t.Fatal("abandoned pipeline never ran its search")
	}
	time.Sleep(20 * time.Millisecond)

	snap := m.Snapshot()
	assert.Equal(t, int64(1), snap.AnswersFailed)
	assert.Equal(t, int64(1), snap.RetrievalErrors)
	assert.Zero(t, snap.AnswersCompleted)
}

func TestAnswerClampsTopK(t *testing.T) {
	var captured store.SearchRequest
	st := &fakeStore{
		searchFn: func(_ int, req store.SearchRequest) ([]store.SearchHit, error) {
			captured = req
			return nil, nil
		},
	}
	svc, _ := newTestService(t, st, &fakeProvider{})

	_, err := svc.Answer(context.Background(), AnswerRequest{Question: "q", TopK: 10000})
	require.NoError(t, err)
	assert.Equal(t, qaopts.NewOptions().MaxTopK, captured.Size)

	_, err = svc.Answer(context.Background(), AnswerRequest{Question: "q", TopK: 0})
	require.NoError(t, err)
	assert.Equal(t, qaopts.NewOptions().TopK, captured.Size)
}

func TestServiceStats(t *testing.T) {
	st := &fakeStore{}
	svc, _ := newTestService(t, st, &fakeProvider{})

	stats, err := svc.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fake", stats.Provider)
	assert.Equal(t, "fake-model", stats.Model)
	assert.Equal(t, 1, st.countCalls)
}

func TestServiceCourses(t *testing.T) {
	svc, _ := newTestService(t, &fakeStore{}, &fakeProvider{})

	courses := svc.Courses()
	assert.Equal(t, qaopts.DefaultCourses, courses)

	// The returned slice is a copy, mutating it must not leak.
	courses[0] = "mutated"
	assert.Equal(t, qaopts.DefaultCourses, svc.Courses())
}
