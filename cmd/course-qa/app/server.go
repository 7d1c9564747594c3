// Package app provides the course-qa server application.
package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/kart-io/logger"

	"github.com/courselab/course-qa/cmd/course-qa/app/options"
	qasvc "github.com/courselab/course-qa/internal/qa"
	"github.com/courselab/course-qa/pkg/app"
)

const (
	// Name is the name of the application.
	Name = "course-qa"

	commandDesc = `Course question-answering service.

Answers course FAQ questions with retrieval-augmented generation:
  - full-text retrieval over the course Q&A corpus (Elasticsearch)
  - budgeted context assembly
  - answer generation through an OpenAI-compatible chat provider
  - optional Redis answer cache`
)

// NewApp creates and returns a new App object with default parameters.
func NewApp() *app.App {
	opts := options.NewServerOptions()
	return app.NewApp(
		app.WithName(Name),
		app.WithShortDescription("Course question-answering service"),
		app.WithDescription(commandDesc),
		app.WithOptions(opts),
		app.WithRunFunc(run(opts)),
	)
}

func run(opts *options.ServerOptions) app.RunFunc {
	return func() error {
		if err := opts.LogOptions.Init(); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		cfg, err := opts.Config()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		ctx := setupSignalContext()

		server, err := qasvc.NewServer(ctx, cfg)
		if err != nil {
			return fmt.Errorf("failed to create server: %w", err)
		}

		logger.Infow("starting server", "name", Name)
		return server.Run(ctx)
	}
}

// setupSignalContext returns a context cancelled on SIGINT or SIGTERM. A
// second signal exits immediately.
func setupSignalContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	c := make(chan os.Signal, 2)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-c
		cancel()
		<-c
		os.Exit(1)
	}()
	return ctx
}
