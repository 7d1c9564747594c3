// Package options contains flags and options for initializing the course-qa
// server.
package options

import (
	"errors"
	"fmt"

	qasvc "github.com/courselab/course-qa/internal/qa"
	elasticopts "github.com/courselab/course-qa/pkg/options/elastic"
	httpopts "github.com/courselab/course-qa/pkg/options/http"
	llmopts "github.com/courselab/course-qa/pkg/options/llm"
	logopts "github.com/courselab/course-qa/pkg/options/logger"
	qaopts "github.com/courselab/course-qa/pkg/options/qa"
	redisopts "github.com/courselab/course-qa/pkg/options/redis"
	"github.com/courselab/course-qa/pkg/utils/json"
	"github.com/spf13/pflag"
)

// ServerOptions contains the configuration options for the server.
type ServerOptions struct {
	// HTTPOptions contains HTTP server configuration.
	HTTPOptions *httpopts.Options `json:"http" mapstructure:"http"`

	// LogOptions contains logger configuration.
	LogOptions *logopts.Options `json:"log" mapstructure:"log"`

	// ElasticOptions contains document store configuration.
	ElasticOptions *elasticopts.Options `json:"elastic" mapstructure:"elastic"`

	// LLMOptions contains chat provider configuration.
	LLMOptions *llmopts.ProviderOptions `json:"llm" mapstructure:"llm"`

	// QAOptions contains pipeline configuration.
	QAOptions *qaopts.Options `json:"qa" mapstructure:"qa"`

	// RedisOptions contains answer cache configuration.
	RedisOptions *redisopts.Options `json:"redis" mapstructure:"redis"`
}

// NewServerOptions creates a ServerOptions instance with default values.
func NewServerOptions() *ServerOptions {
	return &ServerOptions{
		HTTPOptions:    httpopts.NewOptions(),
		LogOptions:     logopts.NewOptions(),
		ElasticOptions: elasticopts.NewOptions(),
		LLMOptions:     llmopts.NewProviderOptions(),
		QAOptions:      qaopts.NewOptions(),
		RedisOptions:   redisopts.NewOptions(),
	}
}

// AddFlags adds all server flags to the flagset.
func (o *ServerOptions) AddFlags(fs *pflag.FlagSet) {
	o.HTTPOptions.AddFlags(fs)
	o.LogOptions.AddFlags(fs)
	o.ElasticOptions.AddFlags(fs)
	o.LLMOptions.AddFlags(fs)
	o.QAOptions.AddFlags(fs)
	o.RedisOptions.AddFlags(fs)
}

// Complete completes all the required options.
func (o *ServerOptions) Complete() error {
	if err := o.HTTPOptions.Complete(); err != nil {
		return err
	}
	if err := o.LogOptions.Complete(); err != nil {
		return err
	}
	if err := o.ElasticOptions.Complete(); err != nil {
		return err
	}
	if err := o.LLMOptions.Complete(); err != nil {
		return err
	}
	if err := o.QAOptions.Complete(); err != nil {
		return err
	}
	return o.RedisOptions.Complete()
}

// Validate checks all options and aggregates the failures.
func (o *ServerOptions) Validate() error {
	var errs []error

	errs = append(errs, o.HTTPOptions.Validate()...)
	if err := o.LogOptions.Validate(); err != nil {
		errs = append(errs, err)
	}
	errs = append(errs, o.ElasticOptions.Validate()...)
	errs = append(errs, o.LLMOptions.Validate()...)
	errs = append(errs, o.QAOptions.Validate()...)
	errs = append(errs, o.RedisOptions.Validate()...)

	return errors.Join(errs...)
}

// String returns the JSON representation of the options. Secret fields carry
// a `json:"-"` tag and never appear in the output.
func (o *ServerOptions) String() string {
	data, err := json.Marshal(o)
	if err != nil {
		return fmt.Sprintf("ServerOptions{marshal error: %v}", err)
	}
	return string(data)
}

// Config converts the completed options into the service configuration.
func (o *ServerOptions) Config() (*qasvc.Config, error) {
	return &qasvc.Config{
		HTTP:    o.HTTPOptions,
		Elastic: o.ElasticOptions,
		LLM:     o.LLMOptions,
		QA:      o.QAOptions,
		Redis:   o.RedisOptions,
	}, nil
}
