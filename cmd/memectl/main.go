// Package main provides memectl, the command-line tool for maintaining the
// meme database without going through chat.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"

	jsonOutput bool
	globals    configFlags
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "memectl",
		Short: "Maintain the feiju meme database",
		Long: `memectl runs library operations directly against the meme database:
migrations, statistics, reindexing, cross-context sync, alias management
and exports.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().BoolVarP(&jsonOutput, "json", "j", false, "Output as JSON")
	globals.register(rootCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version info",
		Run: func(cmd *cobra.Command, args []string) {
			if jsonOutput {
				printJSON(map[string]string{"version": version})
				return
			}
			fmt.Printf("memectl %s\n", version)
		},
	})

	rootCmd.AddCommand(
		newMigrateCmd(),
		newStatsCmd(),
		newReindexCmd(),
		newSyncCmd(),
		newAddCmd(),
		newAliasCmd(),
		newLibrariesCmd(),
		newExportCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		printError(err)
		os.Exit(1)
	}
}
