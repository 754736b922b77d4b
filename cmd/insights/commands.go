package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/charmbracelet/glamour"
	"github.com/google/subcommands"
	"github.com/rs/zerolog"

	"github.com/aristath/sentinel-insights/internal/config"
	"github.com/aristath/sentinel-insights/internal/di"
	"github.com/aristath/sentinel-insights/pkg/logger"
)

var (
	logLevel = flag.String("log-level", "warn", "Log level written to stderr (debug, info, warn, error)")
	plain    = flag.Bool("plain", false, "Print raw Markdown instead of rendering it")
)

func newLogger() zerolog.Logger {
	return logger.New(logger.Config{Level: *logLevel, Pretty: true, Output: os.Stderr})
}

// openHistory opens the databases and repositories without broker or provider clients
func openHistory(log zerolog.Logger) (*di.Container, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	container, err := di.InitializeDatabases(cfg, log)
	if err != nil {
		return nil, err
	}
	if err := di.InitializeRepositories(container, cfg, log); err != nil {
		container.Close()
		return nil, err
	}
	return container, nil
}

func printMarkdown(md string) {
	if *plain {
		fmt.Print(md)
		return
	}
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100))
	if err == nil {
		var out string
		if out, err = r.Render(md); err == nil {
			fmt.Print(out)
			return
		}
	}
	fmt.Fprintf(os.Stderr, "Warning: cannot render markdown: %v\n", err)
	fmt.Print(md)
}

type runCmd struct{}

func (*runCmd) Name() string     { return "run" }
func (*runCmd) Synopsis() string { return "run one monitoring cycle now and print its result" }
func (*runCmd) Usage() string {
	return `insights run

  Fetches holdings, compares them with the previous snapshot and prints the
  insights emitted by this cycle. The cycle is recorded like a scheduled one.
`
}
func (*runCmd) SetFlags(*flag.FlagSet) {}

func (*runCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	log := newLogger()
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitUsageError
	}

	container, _, err := di.Wire(ctx, cfg, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	defer container.Close()

	record, err := container.Monitor.RunCycle(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}

	printMarkdown(CycleMarkdown(record))
	if record.Outcome.Failed() {
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

type cyclesCmd struct {
	limit int
}

func (*cyclesCmd) Name() string     { return "cycles" }
func (*cyclesCmd) Synopsis() string { return "list recent monitoring cycles" }
func (*cyclesCmd) Usage() string {
	return `insights cycles [-n <count>]

  Lists the most recent cycle records, newest first.
`
}

func (c *cyclesCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.limit, "n", 10, "Number of cycles to show")
}

func (c *cyclesCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.limit <= 0 {
		fmt.Fprintln(os.Stderr, "Error: -n must be positive")
		return subcommands.ExitUsageError
	}
	container, err := openHistory(newLogger())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	defer container.Close()

	records, err := container.CycleRepo.List(ctx, c.limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	printMarkdown(CyclesMarkdown(records))
	return subcommands.ExitSuccess
}

type insightsCmd struct {
	limit  int
	symbol string
}

func (*insightsCmd) Name() string     { return "insights" }
func (*insightsCmd) Synopsis() string { return "list recently emitted insights" }
func (*insightsCmd) Usage() string {
	return `insights insights [-n <count>] [-s <symbol>]

  Lists emitted insights, newest first, optionally for one symbol.
`
}

func (c *insightsCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.limit, "n", 20, "Number of insights to show")
	f.StringVar(&c.symbol, "s", "", "Only show insights for this symbol")
}

func (c *insightsCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.limit <= 0 {
		fmt.Fprintln(os.Stderr, "Error: -n must be positive")
		return subcommands.ExitUsageError
	}
	container, err := openHistory(newLogger())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	defer container.Close()

	list, err := container.InsightRepo.List(ctx, c.limit, c.symbol)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	printMarkdown(InsightsMarkdown(list))
	return subcommands.ExitSuccess
}
