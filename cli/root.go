// Package cli implements the memorybank command line: the serve
// command that runs the full service, and client commands that talk to
// a running server over its HTTP API.
package cli

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "memorybank",
	Short: "Semantic memory with an Ebbinghaus forgetting curve",
	Long: "Memorybank stores agent memories as embeddings, retrieves them by\n" +
		"meaning weighted by how well they are retained, and gradually\n" +
		"forgets what goes unused.",
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(storeCmd)
	rootCmd.AddCommand(retrieveCmd)
	rootCmd.AddCommand(forgetCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(sweepCmd)
}
