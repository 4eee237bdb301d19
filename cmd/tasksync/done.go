package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/taskwell/tasksync/internal/localstore"
	"github.com/taskwell/tasksync/internal/ui"
)

var doneCmd = &cobra.Command{
	Use:     "done <id>",
	GroupID: "tasks",
	Short:   "Mark a task complete",
	Long: `Mark a task complete (or reopen it with --undo).

The id may be any unique prefix shown by 'tasksync list'.`,
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

		undo, _ := cmd.Flags().GetBool("undo")
		tk, err := a.findTask(userID, args[0])
		if err != nil {
			return err
		}
		if tk.Completed == !undo {
			fmt.Printf("%s already in that state\n", shortID(tk.ID))
			return nil
		}

		err = a.store.Update(func(tx *localstore.Tx) error {
			current, err := tx.Get(tk.ID)
			if err != nil {
				return err
			}
			current.Completed = !undo
			current.Touch(time.Now().UTC())
			return tx.Put(current)
		})
		if err != nil {
			return err
		}

		if undo {
			fmt.Printf("%s Reopened %s %s\n", ui.RenderPass("✓"), ui.RenderMuted(shortID(tk.ID)), tk.Title)
		} else {
			fmt.Printf("%s Completed %s %s\n", ui.RenderPass("✓"), ui.RenderMuted(shortID(tk.ID)), tk.Title)
		}
		return nil
	},
}

func init() {
	doneCmd.Flags().Bool("undo", false, "reopen a completed task")
	rootCmd.AddCommand(doneCmd)
}
