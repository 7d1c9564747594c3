package biz

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/courselab/course-qa/internal/qa/store"
)

// entrySeparator joins rendered documents in the assembled context.
const entrySeparator = "\n\n"

// Assemble renders hits into a context bundle bounded by budget characters.
// Documents are appended in rank order and never split, with one exception:
// when the first hit alone exceeds the budget its answer text is truncated so
// the request can still proceed, and the bundle is flagged.
//
// Assemble is pure: equal inputs produce equal bundles.
func Assemble(query Query, hits []store.SearchHit, budget int) *ContextBundle {
	bundle := &ContextBundle{
		Query: query,
		Hits:  hits,
	}

	var b strings.Builder
	for i, hit := range hits {
		entry := renderEntry(hit.Document)

		sep := ""
		if i > 0 {
			sep = entrySeparator
		}

		if b.Len()+len(sep)+len(entry) > budget {
			if i == 0 {
				entry = truncateEntry(hit.Document, budget)
				b.WriteString(entry)
				bundle.Truncated = true
			}
			break
		}

		b.WriteString(sep)
		b.WriteString(entry)
	}

	bundle.Text = b.String()
	bundle.Size = len(bundle.Text)
	return bundle
}

func renderEntry(doc store.Document) string {
	return fmt.Sprintf("course: %s\nsection: %s\nquestion: %s\nanswer: %s",
		doc.Course, doc.Section, doc.Question, doc.AnswerText)
}

// truncateEntry shortens the answer text until the rendered entry fits
// budget. The header fields stay intact; a header alone already over budget
// yields a hard cut of the full entry.
func truncateEntry(doc store.Document, budget int) string {
	full := renderEntry(doc)
	overflow := len(full) - budget
	if overflow <= 0 {
		return full
	}

	if overflow >= len(doc.AnswerText) {
		if budget < 0 {
			budget = 0
		}
		return cutAtRune(full, budget)
	}

	doc.AnswerText = cutAtRune(doc.AnswerText, len(doc.AnswerText)-overflow)
	return renderEntry(doc)
}

// cutAtRune shortens s to at most n bytes, backing off to a rune boundary so
// the cut never leaves invalid UTF-8.
func cutAtRune(s string, n int) string {
	if n >= len(s) {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
