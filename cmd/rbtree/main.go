// Package main provides the entry point for the rbtree CLI tool.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/Sumatoshi-tech/rbtree/cmd/rbtree/commands"
	"github.com/Sumatoshi-tech/rbtree/pkg/version"
)

func main() {
	version.InitBinaryVersion()

	app := commands.NewApp()

	err := app.Command().Execute()

	closeErr := app.Close(context.Background())
	if closeErr != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", closeErr)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
