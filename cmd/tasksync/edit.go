package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/taskwell/tasksync/internal/localstore"
	"github.com/taskwell/tasksync/internal/task"
	"github.com/taskwell/tasksync/internal/ui"
)

var editCmd = &cobra.Command{
	Use:     "edit <id>",
	GroupID: "tasks",
	Short:   "Edit a task",
	Long: `Edit a task's title, priority, or due date.

Only the flags you pass change; the rest of the task is untouched.
Use --due "" to clear the due date.`,
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

		if !cmd.Flags().Changed("title") &&
			!cmd.Flags().Changed("priority") &&
			!cmd.Flags().Changed("due") {
			return fmt.Errorf("nothing to change (pass --title, --priority, or --due)")
		}

		titleFlag, _ := cmd.Flags().GetString("title")
		priorityFlag, _ := cmd.Flags().GetString("priority")
		dueFlag, _ := cmd.Flags().GetString("due")

		var priority task.Priority
		if cmd.Flags().Changed("priority") {
			priority, err = task.ParsePriority(priorityFlag)
			if err != nil {
				return err
			}
		}
		var due *time.Time
		if cmd.Flags().Changed("due") && dueFlag != "" {
			d, err := parseDue(dueFlag, time.Now())
			if err != nil {
				return err
			}
			due = &d
		}

		err = a.store.Update(func(tx *localstore.Tx) error {
			current, err := tx.Get(tk.ID)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("title") {
				if strings.TrimSpace(titleFlag) == "" {
					return fmt.Errorf("title cannot be empty")
				}
				current.Title = strings.TrimSpace(titleFlag)
			}
			if cmd.Flags().Changed("priority") {
				current.Priority = priority
			}
			if cmd.Flags().Changed("due") {
				current.DueAt = due
			}
			current.Touch(time.Now().UTC())
			return tx.Put(current)
		})
		if err != nil {
			return err
		}

		fmt.Printf("%s Updated %s\n", ui.RenderPass("✓"), ui.RenderMuted(shortID(tk.ID)))
		return nil
	},
}

func init() {
	editCmd.Flags().StringP("title", "t", "", "new title")
	editCmd.Flags().StringP("priority", "p", "", "priority: high, medium, low, or none")
	editCmd.Flags().StringP("due", "d", "", "due date (natural language or RFC 3339; empty clears)")
	rootCmd.AddCommand(editCmd)
}
