package commands

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"

	"github.com/Sumatoshi-tech/rbtree/pkg/rbtree"
)

const (
	statsCmdUse   = "stats [keys...]"
	statsCmdShort = "Insert keys and print rebalancing and arena counters"
)

type statsResult struct {
	Stats          rbtree.Stats `json:"stats"                     yaml:"stats"`
	Len            int          `json:"len"                       yaml:"len"`
	Height         int          `json:"height"                    yaml:"height"`
	BlackHeight    int          `json:"black_height"              yaml:"black_height"`
	ArenaSlots     int          `json:"arena_slots"               yaml:"arena_slots"`
	Allocs         uint64       `json:"allocs"                    yaml:"allocs"`
	Frees          uint64       `json:"frees"                     yaml:"frees"`
	Footprint      uint64       `json:"footprint"                 yaml:"footprint"`
	Hibernated     uint64       `json:"hibernated,omitempty"      yaml:"hibernated,omitempty"`
	BelowThreshold bool         `json:"below_threshold,omitempty" yaml:"below_threshold,omitempty"`
}

func (app *App) newStatsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   statsCmdUse,
		Short: statsCmdShort,
		RunE:  app.runStats,
	}
}

func (app *App) runStats(cmd *cobra.Command, args []string) (err error) {
	keys, err := readKeys(args, cmd.InOrStdin())
	if err != nil {
		return err
	}

	ctx, done := app.startOp(cmd.Context(), "stats", attribute.Int("keys", len(keys)))
	defer func() { done(err) }()

	tree := app.newTree()
	defer tree.Destroy()

	for _, key := range keys {
		_, err = tree.Insert(key)
		if err != nil {
			return err
		}
	}

	result, err := collectStats(tree)
	if err != nil {
		return err
	}

	app.observeTree(ctx, "stats", tree)

	return app.render(cmd.OutOrStdout(), result, func(w io.Writer) error {
		return writeStatsTable(w, result)
	})
}

// collectStats reads the counters of tree and measures its arena once
// hibernated. The arena is booted again before returning.
func collectStats(tree *rbtree.Tree) (statsResult, error) {
	alloc := tree.Allocator()

	result := statsResult{
		Stats:       tree.Stats(),
		Len:         tree.Len(),
		Height:      tree.Height(),
		BlackHeight: tree.BlackHeight(),
		ArenaSlots:  alloc.Size(),
		Allocs:      alloc.Allocs(),
		Frees:       alloc.Frees(),
		Footprint:   alloc.Footprint(),
	}

	err := alloc.Hibernate()
	if err != nil {
		return result, err
	}

	if !alloc.Hibernated() {
		result.BelowThreshold = true

		return result, nil
	}

	result.Hibernated = alloc.Footprint()

	err = alloc.Boot()
	if err != nil {
		return result, err
	}

	return result, nil
}

func writeStatsTable(w io.Writer, result statsResult) error {
	hibernated := humanize.Bytes(result.Hibernated)
	if result.BelowThreshold {
		hibernated = "below threshold"
	}

	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleLight)
	tbl.AppendHeader(table.Row{"Counter", "Value"})
	tbl.AppendRows([]table.Row{
		{"keys", humanize.Comma(int64(result.Len))},
		{"height", result.Height},
		{"black height", result.BlackHeight},
		{"inserts", humanize.Comma(int64(result.Stats.Inserts))},
	})
	tbl.AppendSeparator()
	appendStatsRows(tbl, result.Stats)
	tbl.AppendSeparator()
	tbl.AppendRows([]table.Row{
		{"arena slots", humanize.Comma(int64(result.ArenaSlots))},
		{"allocs", humanize.Comma(int64(result.Allocs))},
		{"frees", humanize.Comma(int64(result.Frees))},
		{"arena", humanize.Bytes(result.Footprint)},
		{"hibernated", hibernated},
	})

	_, err := fmt.Fprintln(w, tbl.Render())

	return err
}
