// Package elastic provides Elasticsearch configuration options.
package elastic

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/courselab/course-qa/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

// redactedPassword is the placeholder used when printing passwords.
const redactedPassword = "[REDACTED]"

// Options contains Elasticsearch client configuration.
type Options struct {
	// Address is the Elasticsearch base URL.
	Address string `json:"address" mapstructure:"address"`

	// Index is the name of the question-answer index.
	Index string `json:"index" mapstructure:"index"`

	// Username for basic auth, empty disables auth.
	Username string `json:"username" mapstructure:"username"`

	// Password for basic auth.
	Password string `json:"-" mapstructure:"password"`

	// Timeout is the per-request HTTP timeout.
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`

	// MaxRetries is the retry ceiling for transient store failures.
	MaxRetries int `json:"max-retries" mapstructure:"max-retries"`

	// BulkBatchSize bounds documents per _bulk request during indexing.
	BulkBatchSize int `json:"bulk-batch-size" mapstructure:"bulk-batch-size"`

	// NumberOfShards for index creation.
	NumberOfShards int `json:"number-of-shards" mapstructure:"number-of-shards"`

	// NumberOfReplicas for index creation.
	NumberOfReplicas int `json:"number-of-replicas" mapstructure:"number-of-replicas"`
}

// NewOptions creates a new Options with default values.
func NewOptions() *Options {
	return &Options{
		Address:          "http://localhost:9200",
		Index:            "course-questions",
		Timeout:          10 * time.Second,
		MaxRetries:       3,
		BulkBatchSize:    500,
		NumberOfShards:   1,
		NumberOfReplicas: 0,
	}
}

// String returns a string representation with password redacted.
func (o *Options) String() string {
	password := ""
	if o.Password != "" {
		password = redactedPassword
	}
	return fmt.Sprintf("Elastic{address=%s, index=%s, username=%s, password=%s}",
		o.Address, o.Index, o.Username, password)
}

// AddFlags adds flags for Elasticsearch options to the specified FlagSet.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Address, options.Join(prefixes...)+"elastic.address", o.Address, "Elasticsearch base URL.")
	fs.StringVar(&o.Index, options.Join(prefixes...)+"elastic.index", o.Index, "Name of the question-answer index.")
	fs.StringVar(&o.Username, options.Join(prefixes...)+"elastic.username", o.Username, "Elasticsearch basic auth username.")
	fs.StringVar(&o.Password, options.Join(prefixes...)+"elastic.password", o.Password, "Elasticsearch basic auth password (DEPRECATED: use ELASTIC_PASSWORD env var instead).")
	fs.DurationVar(&o.Timeout, options.Join(prefixes...)+"elastic.timeout", o.Timeout, "Elasticsearch request timeout.")
	fs.IntVar(&o.MaxRetries, options.Join(prefixes...)+"elastic.max-retries", o.MaxRetries, "Maximum retries for transient store failures.")
	fs.IntVar(&o.BulkBatchSize, options.Join(prefixes...)+"elastic.bulk-batch-size", o.BulkBatchSize, "Documents per bulk indexing request.")
	fs.IntVar(&o.NumberOfShards, options.Join(prefixes...)+"elastic.number-of-shards", o.NumberOfShards, "Primary shards for index creation.")
	fs.IntVar(&o.NumberOfReplicas, options.Join(prefixes...)+"elastic.number-of-replicas", o.NumberOfReplicas, "Replicas for index creation.")
}

// Validate validates the Elasticsearch options.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	if o.Address == "" {
		errs = append(errs, fmt.Errorf("elastic.address cannot be empty"))
	}
	if o.Index == "" {
		errs = append(errs, fmt.Errorf("elastic.index cannot be empty"))
	}
	if o.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("elastic.timeout must be positive"))
	}
	if o.BulkBatchSize <= 0 {
		errs = append(errs, fmt.Errorf("elastic.bulk-batch-size must be positive"))
	}
	return errs
}

// Complete completes the Elasticsearch options with defaults.
func (o *Options) Complete() error {
	if o.Password == "" {
		o.Password = os.Getenv("ELASTIC_PASSWORD")
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = 3
	}
	return nil
}
