// Package commands implements the rbtree command line.
package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sumatoshi-tech/rbtree/pkg/config"
	"github.com/Sumatoshi-tech/rbtree/pkg/observability"
	"github.com/Sumatoshi-tech/rbtree/pkg/rbtree"
	"github.com/Sumatoshi-tech/rbtree/pkg/version"
)

const (
	flagConfig   = "config"
	flagVerbose  = "verbose"
	flagOutput   = "output"
	flagNoColor  = "no-color"
	flagMetrics  = "metrics"
	flagMaxNodes = "max-nodes"

	spanPrefix = "rbtree."
)

// App holds the state shared by all commands of one invocation.
type App struct {
	root        *cobra.Command
	cfg         *config.Config
	logger      *slog.Logger
	ops         *observability.OpMetrics
	providers   observability.Providers
	treeMetrics []*observability.TreeMetrics

	configPath string
	output     string
	maxNodes   int
	verbose    bool
	noColor    bool
	metrics    bool
}

// NewApp builds the command tree.
func NewApp() *App {
	app := &App{}

	root := &cobra.Command{
		Use:   "rbtree",
		Short: "Red-black tree multiset engine",
		Long: `rbtree stores int64 keys in an arena-backed red-black tree.

Commands:
  sort      Sort keys through the tree
  run       Execute an operation script
  check     Run a randomized workload against an oracle
  shape     Print the tree structure
  stats     Print rebalancing and arena counters`,
		SilenceUsage:       true,
		SilenceErrors:      true,
		PersistentPreRunE:  app.setup,
		PersistentPostRunE: app.finish,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&app.configPath, flagConfig, "", "config file (default: rbtree.yaml in ., ./config, /etc/rbtree)")
	flags.BoolVarP(&app.verbose, flagVerbose, "v", false, "debug logging")
	flags.StringVarP(&app.output, flagOutput, "o", config.OutputTable, "output format: table, json or yaml")
	flags.BoolVar(&app.noColor, flagNoColor, false, "disable colored output")
	flags.BoolVar(&app.metrics, flagMetrics, false, "print prometheus metrics after the command")
	flags.IntVar(&app.maxNodes, flagMaxNodes, 0, "node limit per tree, 0 for unlimited")

	root.AddCommand(
		app.newSortCommand(),
		app.newRunCommand(),
		app.newCheckCommand(),
		app.newShapeCommand(),
		app.newStatsCommand(),
		newVersionCommand(),
	)

	app.root = root

	return app
}

// Command returns the root command.
func (app *App) Command() *cobra.Command {
	return app.root
}

// Close releases metric callbacks and flushes telemetry.
func (app *App) Close(ctx context.Context) error {
	var errs []error

	for _, tm := range app.treeMetrics {
		errs = append(errs, tm.Close())
	}

	app.treeMetrics = nil

	if app.providers.Shutdown != nil {
		errs = append(errs, app.providers.Shutdown(ctx))
		app.providers.Shutdown = nil
	}

	return errors.Join(errs...)
}

func (app *App) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadConfig(app.configPath)
	if err != nil {
		return err
	}

	flags := cmd.Flags()

	if flags.Changed(flagOutput) {
		cfg.Output.Format = app.output
	}

	if flags.Changed(flagNoColor) {
		cfg.Output.NoColor = app.noColor
	}

	if flags.Changed(flagMaxNodes) {
		cfg.Tree.MaxNodes = app.maxNodes
	}

	if app.verbose {
		cfg.Logging.Level = "debug"
	}

	err = cfg.Validate()
	if err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	if cfg.Output.NoColor {
		color.NoColor = true //nolint:reassign // intentional override of library global
	}

	headers, err := observability.ParseHeaders(cfg.Telemetry.OTLPHeaders)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	obsCfg := observability.DefaultConfig()
	obsCfg.ServiceName = cfg.Telemetry.ServiceName
	obsCfg.ServiceVersion = version.Version
	obsCfg.Environment = cfg.Telemetry.Environment
	obsCfg.OTLPEndpoint = cfg.Telemetry.OTLPEndpoint
	obsCfg.OTLPInsecure = cfg.Telemetry.Insecure
	obsCfg.OTLPHeaders = headers
	obsCfg.SampleRatio = cfg.Telemetry.SampleRatio
	obsCfg.LogJSON = cfg.Logging.Format == config.LogFormatJSON
	obsCfg.LogOutput = cmd.ErrOrStderr()
	obsCfg.Prometheus = app.metrics

	if cmd.Name() == runCmdName {
		obsCfg.Mode = observability.ModeScript
	}

	err = obsCfg.LogLevel.UnmarshalText([]byte(cfg.Logging.Level))
	if err != nil {
		return fmt.Errorf("parse log level: %w", err)
	}

	providers, err := observability.Init(cmd.Context(), obsCfg)
	if err != nil {
		return fmt.Errorf("init observability: %w", err)
	}

	ops, err := observability.NewOpMetrics(providers.Meter)
	if err != nil {
		return errors.Join(err, providers.Shutdown(cmd.Context()))
	}

	app.cfg = cfg
	app.providers = providers
	app.logger = providers.Logger
	app.ops = ops

	app.logger.DebugContext(cmd.Context(), "command started",
		slog.String("command", cmd.Name()),
		slog.String("output", cfg.Output.Format))

	return nil
}

func (app *App) finish(cmd *cobra.Command, _ []string) error {
	if !app.metrics || app.providers.Registry == nil {
		return nil
	}

	return observability.WriteText(cmd.OutOrStdout(), app.providers.Registry)
}

// newTree creates a tree bound to a fresh arena configured from the loaded config.
func (app *App) newTree() *rbtree.Tree {
	alloc := rbtree.NewAllocator()
	alloc.HibernationThreshold = app.cfg.Tree.HibernationThreshold

	var opts []rbtree.Option
	if app.cfg.Tree.MaxNodes > 0 {
		opts = append(opts, rbtree.WithMaxNodes(app.cfg.Tree.MaxNodes))
	}

	return rbtree.NewWithAllocator(alloc, opts...)
}

// observeTree exports the current counters of tree under name.
func (app *App) observeTree(ctx context.Context, name string, tree *rbtree.Tree) {
	tm, err := observability.NewTreeMetrics(app.providers.Meter, name)
	if err != nil {
		app.logger.WarnContext(ctx, "tree metrics unavailable", slog.String("tree", name), slog.Any("error", err))

		return
	}

	tm.Observe(tree)
	app.treeMetrics = append(app.treeMetrics, tm)

	app.logger.DebugContext(ctx, "tree observed", observability.TreeAttr(name, tree))
}

// startOp opens a span for op. The returned function ends it and records
// the operation metrics; pass it the final error.
func (app *App) startOp(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	ctx, span := app.providers.Tracer.Start(observability.WithOp(ctx, op), spanPrefix+op, trace.WithAttributes(attrs...))
	start := time.Now()

	return ctx, func(err error) {
		status := observability.StatusOK

		if err != nil {
			status = observability.StatusError

			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}

		app.ops.RecordOp(ctx, op, status, time.Since(start))
		span.End()
	}
}
