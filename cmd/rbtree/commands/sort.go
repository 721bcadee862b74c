package commands

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"

	"github.com/Sumatoshi-tech/rbtree/pkg/rbtree"
)

const (
	sortCmdUse   = "sort [keys...]"
	sortCmdShort = "Sort keys through the tree (reads stdin when no keys are given)"
)

type sortResult struct {
	Keys []int64 `json:"keys" yaml:"keys,flow"`
}

func (app *App) newSortCommand() *cobra.Command {
	return &cobra.Command{
		Use:   sortCmdUse,
		Short: sortCmdShort,
		RunE:  app.runSort,
	}
}

func (app *App) runSort(cmd *cobra.Command, args []string) (err error) {
	keys, err := readKeys(args, cmd.InOrStdin())
	if err != nil {
		return err
	}

	ctx, done := app.startOp(cmd.Context(), "sort", attribute.Int("keys", len(keys)))
	defer func() { done(err) }()

	sorted, err := sortKeys(app.newTree(), keys, func(tree *rbtree.Tree) {
		app.observeTree(ctx, "sort", tree)
	})
	if err != nil {
		return err
	}

	return app.render(cmd.OutOrStdout(), sortResult{Keys: sorted}, func(w io.Writer) error {
		_, printErr := fmt.Fprintln(w, formatKeys(sorted))

		return printErr
	})
}

// sortKeys inserts every key, exports them in order and releases the tree.
func sortKeys(tree *rbtree.Tree, keys []int64, observe func(tree *rbtree.Tree)) ([]int64, error) {
	defer tree.Destroy()

	for _, key := range keys {
		_, err := tree.Insert(key)
		if err != nil {
			return nil, err
		}
	}

	sorted, err := tree.SortedKeys()

	observe(tree)

	if err != nil {
		return nil, fmt.Errorf("sort: %w", err)
	}

	return sorted, nil
}
