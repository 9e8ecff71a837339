// automa is the sovereign automaton runtime: one process that wakes,
// thinks in turns, pays for its own inference, and sleeps when idle.
// The root command runs the automaton; `status` queries a running one.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	homeDir string
	port    int
	debug   bool

	// version is stamped by the build; "dev" otherwise.
	version = "dev"
)

var rootCmd = &cobra.Command{
	Use:   "automa",
	Short: "automa - sovereign automaton runtime",
	Long: `automa runs a single autonomous agent. The agent thinks in turns,
spends credits on every inference call, drops to cheaper models as the
balance shrinks, and halts when it hits zero. Everything it does is
persisted under its home directory and observable over a loopback HTTP
API.

Run without arguments to start the automaton.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runAutomaton,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&homeDir, "home", "", "Automaton home directory (default: AUTOMA_HOME or ~/.automa)")
	rootCmd.PersistentFlags().IntVar(&port, "port", 0, "Observability API port (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")

	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Print the raw overview JSON")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
