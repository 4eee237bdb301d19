package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/taskwell/tasksync/internal/localstore"
	"github.com/taskwell/tasksync/internal/task"
	"github.com/taskwell/tasksync/internal/ui"
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	GroupID: "tasks",
	Short:   "List tasks",
	Long: `List the signed-in user's tasks from the local database.

Tasks marked with • have local changes that have not reached the hub yet.
Pending deletions are hidden; they disappear for good once synced.`,
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

		openOnly, _ := cmd.Flags().GetBool("open")
		tasks, err := a.store.List(localstore.Query{OwnerID: userID})
		if err != nil {
			return err
		}

		now := time.Now()
		shown := 0
		for _, tk := range tasks {
			if openOnly && tk.Completed {
				continue
			}
			printTask(tk, now)
			shown++
		}
		if shown == 0 {
			fmt.Println(ui.RenderMuted("No tasks. Add one with 'tasksync add'."))
		}
		return nil
	},
}

func printTask(tk *task.Task, now time.Time) {
	box := "[ ]"
	title := tk.Title
	if tk.Completed {
		box = "[" + ui.RenderPass("x") + "]"
		title = ui.RenderDone(title)
	}

	line := fmt.Sprintf("%s %s %s", box, ui.RenderMuted(shortID(tk.ID)), title)
	if tk.Priority != task.PriorityNone {
		line += "  " + ui.RenderPriority(string(tk.Priority))
	}
	if tk.DueAt != nil {
		text, overdue := formatDue(*tk.DueAt, now)
		if overdue && !tk.Completed {
			line += "  " + ui.RenderFail("due "+text)
		} else {
			line += "  " + ui.RenderMuted("due "+text)
		}
	}
	if tk.Dirty {
		line += "  " + ui.RenderWarn("•")
	}
	fmt.Println(line)
}

func init() {
	listCmd.Flags().BoolP("open", "o", false, "show only open (not completed) tasks")
	rootCmd.AddCommand(listCmd)
}
