package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/taskwell/tasksync/internal/remote"
)

var hubCmd = &cobra.Command{
	Use:     "hub",
	GroupID: "server",
	Short:   "Run a sync hub server",
	Long: `Run a self-hosted sync hub.

The hub holds each user's task collection and streams changes to every
connected device over WebSocket. Point clients at it with remote.url in
config.yaml or TASKSYNC_REMOTE_URL.

Endpoints:
  ws://host:port/sync     sync protocol
  http://host:port/health health check (also used as the connectivity probe)

Example usage:
  tasksync hub                # default port 7432
  tasksync hub --port 9000`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.close()

		port, _ := cmd.Flags().GetInt("port")
		if !cmd.Flags().Changed("port") {
			port = a.cfg.Hub.Port
		}

		hub := remote.NewHub(nil, &remote.HubConfig{
			Port:   port,
			Logger: a.cfg.Log.NewLogger("[hub] "),
		})
		if err := hub.Start(); err != nil {
			return fmt.Errorf("failed to start hub: %w", err)
		}

		fmt.Printf("Hub listening on %s\n", hub.Addr())
		fmt.Printf("Sync endpoint: %s\n", hub.URL())
		fmt.Printf("Health check: http://%s/health\n", hub.Addr())
		fmt.Println("\nPress Ctrl+C to stop...")

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()
		<-ctx.Done()

		fmt.Println("\nShutting down hub...")
		if err := hub.Stop(); err != nil {
			return err
		}
		fmt.Println("Hub stopped")
		return nil
	},
}

func init() {
	hubCmd.Flags().IntP("port", "p", 7432, "port to listen on")
	rootCmd.AddCommand(hubCmd)
}
