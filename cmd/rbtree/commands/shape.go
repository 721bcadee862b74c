package commands

import (
	"fmt"
	"io"
	"strconv"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/list"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"

	"github.com/Sumatoshi-tech/rbtree/pkg/rbtree"
)

const (
	shapeCmdUse   = "shape [keys...]"
	shapeCmdShort = "Print the tree built from keys (reads stdin when no keys are given)"

	leftMark  = "L "
	rightMark = "R "
	nilChild  = "nil"
)

func (app *App) newShapeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   shapeCmdUse,
		Short: shapeCmdShort,
		RunE:  app.runShape,
	}
}

func (app *App) runShape(cmd *cobra.Command, args []string) (err error) {
	keys, err := readKeys(args, cmd.InOrStdin())
	if err != nil {
		return err
	}

	ctx, done := app.startOp(cmd.Context(), "shape", attribute.Int("keys", len(keys)))
	defer func() { done(err) }()

	tree := app.newTree()
	defer tree.Destroy()

	for _, key := range keys {
		_, err = tree.Insert(key)
		if err != nil {
			return err
		}
	}

	shape := tree.Shape()
	if shape == nil {
		return fmt.Errorf("shape: %w", rbtree.ErrEmptyTree)
	}

	app.observeTree(ctx, "shape", tree)

	return app.render(cmd.OutOrStdout(), shape, func(w io.Writer) error {
		lw := list.NewWriter()
		lw.SetStyle(list.StyleConnectedLight)
		appendShape(lw, shape, "")

		_, printErr := fmt.Fprintln(w, lw.Render())

		return printErr
	})
}

// appendShape draws shape as a nested list: each node is followed by its
// left and right subtrees, indented one level.
func appendShape(lw list.Writer, shape *rbtree.Shape, mark string) {
	label := strconv.FormatInt(shape.Key, 10)
	if shape.Color == rbtree.ColorRed {
		label = color.New(color.FgRed).Sprint(label)
	}

	lw.AppendItem(fmt.Sprintf("%s%s (%s)", mark, label, shape.Color))

	if shape.Left == nil && shape.Right == nil {
		return
	}

	lw.Indent()

	for _, child := range []struct {
		shape *rbtree.Shape
		mark  string
	}{{shape.Left, leftMark}, {shape.Right, rightMark}} {
		if child.shape == nil {
			lw.AppendItem(child.mark + nilChild)

			continue
		}

		appendShape(lw, child.shape, child.mark)
	}

	lw.UnIndent()
}
