// Command tasksync is an offline-first task list that syncs across devices
// through a hub server. Tasks are always written locally first; a sync
// engine pushes pending changes to the hub and merges remote edits back in
// whenever the device is online.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var dataDirFlag string

var rootCmd = &cobra.Command{
	Use:   "tasksync",
	Short: "Offline-first synced task list",
	Long: `tasksync keeps a local task list that works with or without a network
and converges across devices through a sync hub.

Every command reads and writes the local database immediately. Changes made
offline are queued and pushed by 'tasksync flush' or the background daemon
the next time the hub is reachable. Conflicting edits from other devices
resolve last-writer-wins on the hub's clock.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dataDirFlag, "data-dir", "",
		"data directory (default ~/.tasksync)")

	rootCmd.AddGroup(
		&cobra.Group{ID: "tasks", Title: "Task Commands:"},
		&cobra.Group{ID: "sync", Title: "Sync Commands:"},
		&cobra.Group{ID: "server", Title: "Server Commands:"},
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
