package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/charlie42/facets-validity/pipeline"
	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(execute(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

// usageError marks bad flags or configuration; the process exits 2 for it
// and 1 for everything else.
type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := newRootCmd(stdout, stderr)
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(stderr, err.Error())
		var ue usageError
		if errors.As(err, &ue) {
			return 2
		}
		return 1
	}
	return 0
}

func noArgs(cmd *cobra.Command, args []string) error {
	if err := cobra.NoArgs(cmd, args); err != nil {
		return usageError{err}
	}
	return nil
}

type globalOptions struct {
	SchemaPath string
	Verbose    bool
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:           "facets-validity",
		Short:         "Score, link and analyse SDQ checklists against FACETS clinician assessments",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError{err}
	})
	root.PersistentFlags().StringVar(&opts.SchemaPath, "schema", "", "YAML instrument schema (defaults to the built-in SDQ + FACETS schema)")
	root.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "Log debug detail")

	root.AddCommand(
		newRunCmd(opts),
		newVerifyCmd(opts),
		newReportCmd(opts),
		newSchemaCmd(),
		newInspectCmd(opts),
	)
	return root
}

func (o *globalOptions) logger(w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if o.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// schema loads and validates the instrument schema. Warnings are logged.
func (o *globalOptions) schema(log *slog.Logger) (*pipeline.Schema, error) {
	s := pipeline.DefaultSchema()
	if o.SchemaPath != "" {
		var err error
		if s, err = pipeline.LoadSchema(o.SchemaPath); err != nil {
			return nil, usageError{err}
		}
	}
	d := s.Validate()
	for _, w := range d.Warnings {
		log.Warn("schema", "diagnostic", w.String())
	}
	if err := d.Err(); err != nil {
		return nil, usageError{fmt.Errorf("invalid schema: %w", err)}
	}
	return s, nil
}
