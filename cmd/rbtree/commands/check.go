package commands

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"

	"github.com/Sumatoshi-tech/rbtree/internal/check"
	"github.com/Sumatoshi-tech/rbtree/pkg/rbtree"
)

const (
	checkCmdUse   = "check"
	checkCmdShort = "Run a randomized insert/erase workload against a sorted-slice oracle"

	defaultCheckOps      = 10000
	defaultCheckSeed     = 1
	defaultCheckKeyRange = 1000
)

type checkResult struct {
	Error          string       `json:"error,omitempty"  yaml:"error,omitempty"`
	Report         check.Report `json:"report"           yaml:"report"`
	Seed           int64        `json:"seed"             yaml:"seed"`
	Ops            int          `json:"ops"              yaml:"ops"`
	KeyRange       int64        `json:"key_range"        yaml:"key_range"`
	HibernateEvery int          `json:"hibernate_every"  yaml:"hibernate_every"`
	Shards         int          `json:"shards"           yaml:"shards"`
	Passed         bool         `json:"passed"           yaml:"passed"`
}

func (app *App) newCheckCommand() *cobra.Command {
	opts := check.Options{}
	shards := 1

	cmd := &cobra.Command{
		Use:   checkCmdUse,
		Short: checkCmdShort,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.runCheck(cmd, opts, shards)
		},
	}

	cmd.Flags().IntVar(&opts.Ops, "ops", defaultCheckOps, "number of operations")
	cmd.Flags().Int64Var(&opts.Seed, "seed", defaultCheckSeed, "pseudo-random seed")
	cmd.Flags().Int64Var(&opts.KeyRange, "key-range", defaultCheckKeyRange, "keys are drawn from [-R, R]")
	cmd.Flags().IntVar(&opts.HibernateEvery, "hibernate-every", 0, "hibernate and boot the arena every N operations")
	cmd.Flags().IntVar(&shards, "shards", shards, "run one workload per shard concurrently, each on its own arena")

	return cmd
}

func (app *App) runCheck(cmd *cobra.Command, opts check.Options, shards int) (err error) {
	opts.MaxNodes = app.cfg.Tree.MaxNodes
	opts.HibernationThreshold = app.cfg.Tree.HibernationThreshold

	ctx, done := app.startOp(cmd.Context(), checkCmdUse,
		attribute.Int("ops", opts.Ops), attribute.Int64("seed", opts.Seed), attribute.Int("shards", shards))
	defer func() { done(err) }()

	var (
		report check.Report
		runErr error
	)

	if shards == 1 {
		report, runErr = check.Run(ctx, opts, func(tree *rbtree.Tree) {
			app.observeTree(ctx, checkCmdUse, tree)
		})
	} else {
		report, runErr = check.RunSharded(ctx, opts, shards)
	}

	result := checkResult{
		Report:         report,
		Seed:           opts.Seed,
		Ops:            opts.Ops,
		KeyRange:       opts.KeyRange,
		HibernateEvery: opts.HibernateEvery,
		Shards:         shards,
		Passed:         runErr == nil,
	}

	if runErr != nil {
		result.Error = runErr.Error()
	}

	err = app.render(cmd.OutOrStdout(), result, func(w io.Writer) error {
		return writeCheckTable(w, result)
	})
	if err != nil {
		return err
	}

	if runErr != nil {
		return fmt.Errorf("check failed: %w", runErr)
	}

	return nil
}

func writeCheckTable(w io.Writer, result checkResult) error {
	if result.Passed {
		color.New(color.FgGreen).Fprintf(w, "PASS %s operations (seed %d)\n",
			humanize.Comma(int64(result.Report.Steps)), result.Seed)
	} else {
		color.New(color.FgRed).Fprintf(w, "FAIL after %s operations (seed %d): %s\n",
			humanize.Comma(int64(result.Report.Steps)), result.Seed, result.Error)
	}

	report := result.Report

	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleLight)
	tbl.AppendHeader(table.Row{"Counter", "Value"})
	tbl.AppendRows([]table.Row{
		{"shards", result.Shards},
		{"inserts", humanize.Comma(int64(report.Inserts))},
		{"erases", humanize.Comma(int64(report.Erases))},
		{"misses", humanize.Comma(int64(report.Misses))},
		{"rejected", humanize.Comma(int64(report.Rejected))},
		{"hibernations", humanize.Comma(int64(report.Hibernates))},
		{"peak keys", humanize.Comma(int64(report.PeakLen))},
		{"max height", report.MaxHeight},
		{"final keys", humanize.Comma(int64(report.FinalLen))},
		{"arena", humanize.Bytes(report.Footprint)},
	})
	tbl.AppendSeparator()
	appendStatsRows(tbl, report.Stats)

	_, err := fmt.Fprintln(w, tbl.Render())

	return err
}

// appendStatsRows adds one row per rebalancing counter.
func appendStatsRows(tbl table.Writer, stats rbtree.Stats) {
	tbl.AppendRows([]table.Row{
		{"rotations", humanize.Comma(int64(stats.Rotations))},
		{"insert: recolor", humanize.Comma(int64(stats.InsertRecolors))},
		{"insert: zigzag", humanize.Comma(int64(stats.InsertZigZags))},
		{"insert: line", humanize.Comma(int64(stats.InsertLines))},
		{"erase: red sibling", humanize.Comma(int64(stats.EraseRedSiblings))},
		{"erase: black nephews", humanize.Comma(int64(stats.EraseBlackNephews))},
		{"erase: near nephew", humanize.Comma(int64(stats.EraseNearNephews))},
		{"erase: far nephew", humanize.Comma(int64(stats.EraseFarNephews))},
	})
}
