package biz

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/courselab/course-qa/internal/qa/metrics"
	"github.com/courselab/course-qa/internal/qa/store"
)

var testCourses = []string{"data-engineering-zoomcamp", "machine-learning-zoomcamp", "mlops-zoomcamp"}

func TestDocumentIDStable(t *testing.T) {
	a := DocumentID("mlops-zoomcamp", "How do I join?")
	b := DocumentID("mlops-zoomcamp", "How do I join?")
	c := DocumentID("machine-learning-zoomcamp", "How do I join?")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}

func TestIndexDatasetSkipsInvalidRecords(t *testing.T) {
	st := &fakeStore{}
	ix := NewIndexer(st, testCourses, 100, metrics.New())

	report, err := ix.IndexDataset(context.Background(), []CourseDocuments{
		{
			Course: "mlops-zoomcamp",
			Documents: []RawDocument{
				{Section: "General", Question: "valid?", Text: "yes"},
				{Section: "General", Question: "", Text: "no question"},
				{Section: "General", Question: "no answer?", Text: "   "},
			},
		},
		{
			Course: "unknown-course",
			Documents: []RawDocument{
				{Section: "General", Question: "q", Text: "a"},
			},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, 4, report.Total)
	assert.Equal(t, 1, report.Created)
	assert.Equal(t, 3, report.Skipped)
	assert.Zero(t, report.Failed)

	require.Len(t, st.bulkCalls, 1)
	require.Len(t, st.bulkCalls[0], 1)
	doc := st.bulkCalls[0][0]
	assert.Equal(t, DocumentID("mlops-zoomcamp", "valid?"), doc.ID)
	assert.Equal(t, "mlops-zoomcamp", doc.Course)
}

func TestIndexDatasetBatches(t *testing.T) {
	st := &fakeStore{}
	ix := NewIndexer(st, testCourses, 2, metrics.New())

	docs := make([]RawDocument, 5)
	for i := range docs {
		docs[i] = RawDocument{Question: string(rune('a' + i)), Text: "answer"}
	}

	report, err := ix.IndexDataset(context.Background(), []CourseDocuments{
		{Course: "mlops-zoomcamp", Documents: docs},
	})
	require.NoError(t, err)

	assert.Equal(t, 5, report.Created)
	// 5 documents in batches of 2 -> 2 + 2 + 1.
	require.Len(t, st.bulkCalls, 3)
	assert.Len(t, st.bulkCalls[0], 2)
	assert.Len(t, st.bulkCalls[2], 1)
}

func TestIndexDatasetIdempotentIDs(t *testing.T) {
	st := &fakeStore{}
	ix := NewIndexer(st, testCourses, 100, metrics.New())

	dataset := []CourseDocuments{
		{Course: "mlops-zoomcamp", Documents: []RawDocument{
			{Section: "General", Question: "q1", Text: "a1"},
		}},
	}

	_, err := ix.IndexDataset(context.Background(), dataset)
	require.NoError(t, err)
	_, err = ix.IndexDataset(context.Background(), dataset)
	require.NoError(t, err)

	require.Len(t, st.bulkCalls, 2)
	assert.Equal(t, st.bulkCalls[0][0].ID, st.bulkCalls[1][0].ID)
}

func TestIndexDatasetReportsPerDocumentFailures(t *testing.T) {
	st := &fakeStore{
		bulkFn: func(docs []store.Document) (*store.BulkResult, error) {
			return &store.BulkResult{
				Created: len(docs) - 1,
				Failed:  1,
				Errors:  []string{"doc rejected"},
			}, nil
		},
	}
	ix := NewIndexer(st, testCourses, 100, metrics.New())

	report, err := ix.IndexDataset(context.Background(), []CourseDocuments{
		{Course: "mlops-zoomcamp", Documents: []RawDocument{
			{Question: "q1", Text: "a1"},
			{Question: "q2", Text: "a2"},
		}},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Created)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, []string{"doc rejected"}, report.Errors)
}

func TestIndexFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "documents.json")
	payload := `[
		{"course": "mlops-zoomcamp", "documents": [
			{"section": "General", "question": "q1", "text": "a1"},
			{"section": "General", "question": "q2", "text": "a2"}
		]}
	]`
	require.NoError(t, os.WriteFile(path, []byte(payload), 0o600))

	st := &fakeStore{}
	ix := NewIndexer(st, testCourses, 100, metrics.New())

	report, err := ix.IndexFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Created)
}

func TestIndexFileMissing(t *testing.T) {
	ix := NewIndexer(&fakeStore{}, testCourses, 100, metrics.New())

	_, err := ix.IndexFile(context.Background(), filepath.Join(t.TempDir(), "absent.json"))
	require.Error(t, err)
}
