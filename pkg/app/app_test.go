package app

import (
	"bytes"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type printableOptions struct {
	Name string
}

func (o *printableOptions) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.Name, "name", o.Name, "Name option")
}

func (o *printableOptions) Validate() error { return nil }

func (o *printableOptions) Complete() error { return nil }

func (o *printableOptions) String() string { return "options{name=" + o.Name + "}" }

func TestRunCommandPrintsPrintableOptions(t *testing.T) {
	opts := &printableOptions{Name: "course-qa-test"}

	ran := false
	a := NewApp(
		WithName("test-app"),
		WithOptions(opts),
		WithNoConfig(),
		WithNoVersion(),
		WithRunFunc(func() error {
			ran = true
			return nil
		}),
	)

	var out bytes.Buffer
	cmd := a.Command()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{})

	require.NoError(t, cmd.Execute())
	assert.True(t, ran)
	assert.Contains(t, out.String(), "options{name=course-qa-test}")
}

func TestRunCommandSilenceSkipsConfigPrint(t *testing.T) {
	opts := &printableOptions{Name: "quiet"}

	a := NewApp(
		WithName("test-app"),
		WithOptions(opts),
		WithNoConfig(),
		WithNoVersion(),
		WithSilence(),
	)

	var out bytes.Buffer
	cmd := a.Command()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{})

	require.NoError(t, cmd.Execute())
	assert.NotContains(t, out.String(), "quiet")
}
