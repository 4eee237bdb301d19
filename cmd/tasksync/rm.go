package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/taskwell/tasksync/internal/localstore"
	"github.com/taskwell/tasksync/internal/ui"
)

var rmCmd = &cobra.Command{
	Use:     "rm <id>",
	Aliases: []string{"delete"},
	GroupID: "tasks",
	Short:   "Delete a task",
	Long: `Delete a task.

The task disappears from listings immediately. Under the hood it becomes a
tombstone until the deletion reaches the hub, so removing a task offline
still propagates to other devices later.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.close()

		userID, err := a.requireUser()
		if err != nil {
			return err
		}

		tk, err := a.findTask(userID, args[0])
		if err != nil {
			return err
		}

		err = a.store.Update(func(tx *localstore.Tx) error {
			current, err := tx.Get(tk.ID)
			if err != nil {
				return err
			}
			current.Deleted = true
			current.Touch(time.Now().UTC())
			return tx.Put(current)
		})
		if err != nil {
			return err
		}

		fmt.Printf("%s Deleted %s %s\n", ui.RenderPass("✓"), ui.RenderMuted(shortID(tk.ID)), tk.Title)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(rmCmd)
}
