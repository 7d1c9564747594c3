// Package qa provides question-answering pipeline configuration options.
package qa

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"

	"github.com/courselab/course-qa/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

// DefaultPromptTemplate is the instruction template rendered for each answer.
// {{question}} and {{context}} are replaced before the provider call.
const DefaultPromptTemplate = `You're a course teaching assistant. Answer the QUESTION based on the CONTEXT from the FAQ database.
Use only the facts from the CONTEXT when answering the QUESTION.

QUESTION: {{question}}

CONTEXT:
{{context}}`

// DefaultCourses is the course catalog served when none is configured.
var DefaultCourses = []string{
	"data-engineering-zoomcamp",
	"machine-learning-zoomcamp",
	"mlops-zoomcamp",
}

// Options contains pipeline configuration.
type Options struct {
	// TopK is the number of documents retrieved per question.
	TopK int `json:"top-k" mapstructure:"top-k"`

	// MaxTopK caps caller-supplied top-k values.
	MaxTopK int `json:"max-top-k" mapstructure:"max-top-k"`

	// QuestionBoost is the relevance boost applied to the question field.
	QuestionBoost float64 `json:"question-boost" mapstructure:"question-boost"`

	// ContextBudget bounds the assembled context, in characters.
	ContextBudget int `json:"context-budget" mapstructure:"context-budget"`

	// AnswerMaxChars caps the sanitized answer length.
	AnswerMaxChars int `json:"answer-max-chars" mapstructure:"answer-max-chars"`

	// PromptTemplate is the instruction template with {{question}} and
	// {{context}} placeholders.
	PromptTemplate string `json:"prompt-template" mapstructure:"prompt-template"`

	// Courses is the set of course identifiers accepted as filters.
	Courses []string `json:"courses" mapstructure:"courses"`

	// DatasetPath is the course documents JSON file loaded by the indexer.
	DatasetPath string `json:"dataset-path" mapstructure:"dataset-path"`

	// Workers bounds concurrent pipeline runs.
	Workers int `json:"workers" mapstructure:"workers"`
}

// NewOptions creates new Options with defaults.
func NewOptions() *Options {
	return &Options{
		TopK:           5,
		MaxTopK:        50,
		QuestionBoost:  3.0,
		ContextBudget:  8000,
		AnswerMaxChars: 16000,
		PromptTemplate: DefaultPromptTemplate,
		Courses:        append([]string(nil), DefaultCourses...),
		DatasetPath:    "data/documents.json",
		Workers:        32,
	}
}

// AddFlags adds flags for pipeline options to the specified FlagSet.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.IntVar(&o.TopK, options.Join(prefixes...)+"qa.top-k", o.TopK, "Number of documents retrieved per question.")
	fs.IntVar(&o.MaxTopK, options.Join(prefixes...)+"qa.max-top-k", o.MaxTopK, "Upper bound for caller-supplied top-k.")
	fs.Float64Var(&o.QuestionBoost, options.Join(prefixes...)+"qa.question-boost", o.QuestionBoost, "Relevance boost for the question field.")
	fs.IntVar(&o.ContextBudget, options.Join(prefixes...)+"qa.context-budget", o.ContextBudget, "Assembled context budget in characters.")
	fs.IntVar(&o.AnswerMaxChars, options.Join(prefixes...)+"qa.answer-max-chars", o.AnswerMaxChars, "Maximum sanitized answer length.")
	fs.StringVar(&o.PromptTemplate, options.Join(prefixes...)+"qa.prompt-template", o.PromptTemplate, "Instruction template with {{question}} and {{context}} placeholders.")
	fs.StringSliceVar(&o.Courses, options.Join(prefixes...)+"qa.courses", o.Courses, "Accepted course identifiers.")
	fs.StringVar(&o.DatasetPath, options.Join(prefixes...)+"qa.dataset-path", o.DatasetPath, "Course documents JSON file for indexing.")
	fs.IntVar(&o.Workers, options.Join(prefixes...)+"qa.workers", o.Workers, "Maximum concurrent pipeline runs.")
}

// Validate validates the pipeline options.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	if o.TopK <= 0 {
		errs = append(errs, fmt.Errorf("qa.top-k must be positive"))
	}
	if o.MaxTopK <= 0 {
		errs = append(errs, fmt.Errorf("qa.max-top-k must be positive"))
	}
	if o.TopK > o.MaxTopK {
		errs = append(errs, fmt.Errorf("qa.top-k must not exceed qa.max-top-k"))
	}
	if o.QuestionBoost <= 0 {
		errs = append(errs, fmt.Errorf("qa.question-boost must be positive"))
	}
	if o.ContextBudget <= 0 {
		errs = append(errs, fmt.Errorf("qa.context-budget must be positive"))
	}
	if !strings.Contains(o.PromptTemplate, "{{question}}") || !strings.Contains(o.PromptTemplate, "{{context}}") {
		errs = append(errs, fmt.Errorf("qa.prompt-template must contain {{question}} and {{context}} placeholders"))
	}
	if len(o.Courses) == 0 {
		errs = append(errs, fmt.Errorf("qa.courses cannot be empty"))
	}
	return errs
}

// Complete completes the pipeline options with defaults.
func (o *Options) Complete() error {
	if o.PromptTemplate == "" {
		o.PromptTemplate = DefaultPromptTemplate
	}
	if o.Workers <= 0 {
		o.Workers = 32
	}
	if o.AnswerMaxChars <= 0 {
		o.AnswerMaxChars = 16000
	}
	return nil
}
