package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"automa/internal/kernel"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the automaton (same as the bare root command)",
	RunE:  runAutomaton,
}

// runAutomaton boots the kernel and supervises it until a signal arrives
// or a subsystem fails unrecoverably.
func runAutomaton(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "shutting down")
		cancel()
	}()

	k, err := kernel.Boot(ctx, kernel.Options{HomeDir: homeDir, Port: port, Debug: debug})
	if err != nil {
		return err
	}
	defer k.Close()

	fmt.Printf("%s online: http://127.0.0.1:%d\n", k.Identity.Name, k.Config.Runtime.Port)
	return k.Run(ctx)
}
