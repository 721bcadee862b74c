package commands

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"

	"github.com/Sumatoshi-tech/rbtree/pkg/rbtree"
)

const (
	runCmdName  = "run"
	runCmdUse   = "run <script|->"
	runCmdShort = "Execute an operation script against one tree ('-' reads stdin)"
	stdinPath   = "-"
)

// OpResult is the outcome of one script operation.
type OpResult struct {
	Line   int    `json:"line"             yaml:"line"`
	Op     string `json:"op"               yaml:"op"`
	Args   string `json:"args,omitempty"   yaml:"args,omitempty"`
	Result string `json:"result,omitempty" yaml:"result,omitempty"`
	Error  string `json:"error,omitempty"  yaml:"error,omitempty"`
	err    error
}

type runReport struct {
	Results []OpResult `json:"results" yaml:"results"`
	Failed  int        `json:"failed"  yaml:"failed"`
}

func (app *App) newRunCommand() *cobra.Command {
	return &cobra.Command{
		Use:   runCmdUse,
		Short: runCmdShort,
		Args:  cobra.ExactArgs(1),
		RunE:  app.runScript,
	}
}

func (app *App) runScript(cmd *cobra.Command, args []string) (err error) {
	ops, err := loadScript(cmd, args[0])
	if err != nil {
		return err
	}

	ctx, done := app.startOp(cmd.Context(), runCmdName, attribute.Int("ops", len(ops)))
	defer func() { done(err) }()

	tree := app.newTree()
	report := runReport{Results: make([]OpResult, 0, len(ops))}

	for _, op := range ops {
		opCtx, opDone := app.startOp(ctx, op.Name, attribute.Int("line", op.Line))

		result, opErr := executeOp(tree, op)
		opDone(opErr)

		entry := OpResult{Line: op.Line, Op: op.Name, Args: formatKeys(op.Keys), Result: result, err: opErr}
		if opErr != nil {
			entry.Error = opErr.Error()
			report.Failed++

			app.logger.DebugContext(opCtx, "operation failed", slog.Int("line", op.Line), slog.Any("error", opErr))
		}

		report.Results = append(report.Results, entry)
	}

	if !tree.Allocator().Hibernated() {
		app.observeTree(ctx, "run", tree)
		tree.Destroy()
	}

	err = app.render(cmd.OutOrStdout(), report, func(w io.Writer) error {
		return writeRunTable(w, report)
	})
	if err != nil {
		return err
	}

	// A broken tree fails the command; other operation errors are results.
	for _, entry := range report.Results {
		if errors.Is(entry.err, rbtree.ErrInvariant) {
			return fmt.Errorf("line %d: %w", entry.Line, entry.err)
		}
	}

	return nil
}

func loadScript(cmd *cobra.Command, path string) ([]ScriptOp, error) {
	if path == stdinPath {
		return ParseScript(cmd.InOrStdin())
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open script: %w", err)
	}

	defer file.Close()

	return ParseScript(file)
}

func writeRunTable(w io.Writer, report runReport) error {
	failure := color.New(color.FgRed)

	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleLight)
	tbl.AppendHeader(table.Row{"Line", "Op", "Args", "Result"})

	for _, entry := range report.Results {
		result := entry.Result
		if entry.Error != "" {
			result = failure.Sprint("error: " + entry.Error)
		}

		tbl.AppendRow(table.Row{entry.Line, entry.Op, entry.Args, result})
	}

	tbl.AppendFooter(table.Row{"", "", "Total", fmt.Sprintf("%s ops, %s failed",
		humanize.Comma(int64(len(report.Results))), humanize.Comma(int64(report.Failed)))})

	_, err := fmt.Fprintln(w, tbl.Render())

	return err
}
