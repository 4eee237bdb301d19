package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/taskwell/tasksync/internal/config"
	"github.com/taskwell/tasksync/internal/connectivity"
	"github.com/taskwell/tasksync/internal/localstore"
	"github.com/taskwell/tasksync/internal/ui"
)

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "sync",
	Short:   "Show sync status",
	Long: `Show the signed-in user, connectivity to the hub, and how many local
changes are still waiting to sync.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.close()

		fmt.Printf("\n%s tasksync status\n\n", ui.RenderAccent("⇅"))

		session, err := config.LoadSession(a.cfg.SessionPath())
		if err != nil {
			return err
		}
		if session == nil {
			fmt.Printf("User:      %s\n", ui.RenderWarn("signed out"))
		} else {
			fmt.Printf("User:      %s\n", session.UserID)
		}

		probe := connectivity.NewProbeMonitor(&connectivity.ProbeConfig{
			ProbeURL: a.cfg.Connectivity.ProbeURL,
			Timeout:  a.cfg.Connectivity.ProbeTimeout,
			Logger:   a.cfg.Log.NewLogger("[connectivity] "),
		})
		if probe.FetchOnce(context.Background()) {
			fmt.Printf("Hub:       %s (%s)\n", ui.RenderPass("online"), a.cfg.Remote.URL)
		} else {
			fmt.Printf("Hub:       %s (%s)\n", ui.RenderFail("offline"), a.cfg.Remote.URL)
		}

		if session != nil {
			pending, err := a.store.List(localstore.Query{
				OwnerID:        session.UserID,
				DirtyOnly:      true,
				IncludeDeleted: true,
			})
			if err != nil {
				return err
			}
			switch len(pending) {
			case 0:
				fmt.Printf("Pending:   %s\n", ui.RenderPass("everything synced"))
			default:
				fmt.Printf("Pending:   %s\n",
					ui.RenderWarn(fmt.Sprintf("%d change(s) queued", len(pending))))
			}
		}

		fmt.Printf("Database:  %s\n", a.cfg.DBPath())
		if term.IsTerminal(int(os.Stdout.Fd())) {
			fmt.Println()
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
