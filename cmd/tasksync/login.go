package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/taskwell/tasksync/internal/config"
	"github.com/taskwell/tasksync/internal/ui"
)

var loginCmd = &cobra.Command{
	Use:     "login <user-id>",
	GroupID: "sync",
	Short:   "Sign in",
	Long: `Sign in as a user. The session persists across commands and daemon
restarts until 'tasksync logout'.

All task commands and sync run against the signed-in user's collection.
Signing in as a different user switches collections; local data of the
previous user stays on disk.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.close()

		// First sign-in seeds the config file with defaults for editing.
		if _, err := os.Stat(config.Path(a.cfg.DataDir)); errors.Is(err, fs.ErrNotExist) {
			seed := config.DefaultConfig()
			seed.DataDir = a.cfg.DataDir
			if err := config.WriteDefault(seed); err != nil {
				return err
			}
		}
		s := &config.Session{UserID: args[0], SignedIn: time.Now().UTC()}
		if err := config.SaveSession(a.cfg.SessionPath(), s); err != nil {
			return err
		}
		fmt.Printf("%s Signed in as %s\n", ui.RenderPass("✓"), args[0])
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:     "logout",
	GroupID: "sync",
	Short:   "Sign out",
	Long: `Sign out. Local task data stays on disk and reattaches on the next
sign-in; nothing is pushed or deleted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.close()

		if err := config.ClearSession(a.cfg.SessionPath()); err != nil {
			return err
		}
		fmt.Printf("%s Signed out\n", ui.RenderPass("✓"))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
}
