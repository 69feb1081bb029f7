// Command hastemap builds a haste map index for a source tree and prints a
// summary of the result. It is a thin wrapper around pkg/hastemap/builder,
// pkg/hastemap/config, and pkg/hastemap/watch for standalone or scripted use;
// embedding programs should use those packages directly instead.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCommand = &cobra.Command{
	Use:   "hastemap",
	Short: "hastemap builds an incremental, cache-backed index of a source tree",
	Run: func(command *cobra.Command, arguments []string) {
		command.Help()
	},
}

func init() {
	cobra.EnableCommandSorting = false
	rootCommand.AddCommand(buildCommand)
}

func main() {
	if err := rootCommand.Execute(); err != nil {
		os.Exit(1)
	}
}
