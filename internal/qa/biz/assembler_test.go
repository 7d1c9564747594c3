package biz

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/courselab/course-qa/internal/qa/store"
)

func makeHits(answers ...string) []store.SearchHit {
	hits := make([]store.SearchHit, len(answers))
	for i, a := range answers {
		hits[i] = store.SearchHit{
			Document: store.Document{
				Course:     "mlops-zoomcamp",
				Section:    "General",
				Question:   "q",
				AnswerText: a,
			},
			Score: float64(10 - i),
			Rank:  i + 1,
		}
	}
	return hits
}

func TestAssembleKeepsRankOrder(t *testing.T) {
	hits := makeHits("first answer", "second answer", "third answer")
	bundle := Assemble(Query{Question: "q"}, hits, 10000)

	first := strings.Index(bundle.Text, "first answer")
	second := strings.Index(bundle.Text, "second answer")
	third := strings.Index(bundle.Text, "third answer")
	require.GreaterOrEqual(t, first, 0)
	assert.Less(t, first, second)
	assert.Less(t, second, third)
	assert.False(t, bundle.Truncated)
	assert.Equal(t, len(bundle.Text), bundle.Size)
}

func TestAssembleStopsBeforeBudget(t *testing.T) {
	hits := makeHits("aaaaaaaaaa", "bbbbbbbbbb", "cccccccccc")
	oneEntry := len("course: mlops-zoomcamp\nsection: General\nquestion: q\nanswer: aaaaaaaaaa")

	// Budget for one entry plus a little, not enough for two.
	bundle := Assemble(Query{Question: "q"}, hits, oneEntry+10)

	assert.Contains(t, bundle.Text, "aaaaaaaaaa")
	assert.NotContains(t, bundle.Text, "bbbbbbbbbb")
	assert.False(t, bundle.Truncated)
	assert.LessOrEqual(t, bundle.Size, oneEntry+10)
}

func TestAssembleNeverSplitsLaterDocuments(t *testing.T) {
	hits := makeHits("short", strings.Repeat("x", 500))
	oneEntry := len(renderEntry(hits[0].Document))

	bundle := Assemble(Query{Question: "q"}, hits, oneEntry+100)

	// The second document does not fit and must be dropped whole.
	assert.Contains(t, bundle.Text, "short")
	assert.NotContains(t, bundle.Text, "xxxxx")
	assert.False(t, bundle.Truncated)
}

func TestAssembleTruncatesOversizedFirstHit(t *testing.T) {
	hits := makeHits(strings.Repeat("y", 1000))
	budget := 200

	bundle := Assemble(Query{Question: "q"}, hits, budget)

	assert.True(t, bundle.Truncated)
	assert.Equal(t, budget, bundle.Size)
	assert.Contains(t, bundle.Text, "course: mlops-zoomcamp")
}

func TestAssembleTruncationKeepsValidUTF8(t *testing.T) {
	// Multibyte answer text; a byte-index cut would split a rune.
	// Each rune is three bytes; the budget lands mid-rune.
	hits := makeHits(strings.Repeat("日本語テキスト", 100))
	budget := 202

	bundle := Assemble(Query{Question: "q"}, hits, budget)

	assert.True(t, bundle.Truncated)
	assert.LessOrEqual(t, bundle.Size, budget)
	assert.True(t, utf8.ValidString(bundle.Text))
}

func TestCutAtRuneBacksOffToBoundary(t *testing.T) {
	s := "héllo" // 'é' is two bytes, at byte offsets 1-2

	assert.Equal(t, "h", cutAtRune(s, 2))
	assert.Equal(t, "hé", cutAtRune(s, 3))
	assert.Equal(t, s, cutAtRune(s, 100))
	for n := 0; n <= len(s); n++ {
		assert.True(t, utf8.ValidString(cutAtRune(s, n)))
	}
}

func TestAssembleEmptyHits(t *testing.T) {
	bundle := Assemble(Query{Question: "q"}, nil, 1000)

	assert.Empty(t, bundle.Text)
	assert.Zero(t, bundle.Size)
	assert.False(t, bundle.Truncated)
}

func TestAssembleDeterministic(t *testing.T) {
	hits := makeHits("one", "two", "three")

	a := Assemble(Query{Question: "q"}, hits, 150)
	b := Assemble(Query{Question: "q"}, hits, 150)

	assert.Equal(t, a.Text, b.Text)
	assert.Equal(t, a.Size, b.Size)
	assert.Equal(t, a.Truncated, b.Truncated)
}
