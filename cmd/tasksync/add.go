package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/taskwell/tasksync/internal/localstore"
	"github.com/taskwell/tasksync/internal/task"
	"github.com/taskwell/tasksync/internal/ui"
)

var addCmd = &cobra.Command{
	Use:     "add [title]",
	GroupID: "tasks",
	Short:   "Add a task",
	Long: `Add a task to the local list.

The task is written locally right away and queued for sync; it reaches
other devices on the next flush. With no title argument an interactive
form opens.

Examples:
  tasksync add "buy milk"
  tasksync add "file taxes" --priority high --due "next friday"
  tasksync add                        # interactive`,
	Args: cobra.ArbitraryArgs,
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

		title := strings.Join(args, " ")
		priorityFlag, _ := cmd.Flags().GetString("priority")
		dueFlag, _ := cmd.Flags().GetString("due")

		if title == "" {
			title, priorityFlag, dueFlag, err = promptForTask()
			if err != nil {
				return err
			}
		}
		if strings.TrimSpace(title) == "" {
			return fmt.Errorf("title is required")
		}

		priority, err := task.ParsePriority(priorityFlag)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		tk := task.New(userID, strings.TrimSpace(title), now)
		tk.Priority = priority
		if dueFlag != "" {
			due, err := parseDue(dueFlag, time.Now())
			if err != nil {
				return err
			}
			tk.DueAt = &due
		}

		if err := a.store.Update(func(tx *localstore.Tx) error { return tx.Put(tk) }); err != nil {
			return err
		}

		fmt.Printf("%s Added %s %s\n", ui.RenderPass("✓"), ui.RenderMuted(shortID(tk.ID)), tk.Title)
		return nil
	},
}

// promptForTask collects task fields interactively.
func promptForTask() (title, priority, due string, err error) {
	priority = string(task.PriorityNone)
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Title").
				Value(&title).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("title is required")
					}
					return nil
				}),
			huh.NewSelect[string]().
				Title("Priority").
				Options(
					huh.NewOption("none", string(task.PriorityNone)),
					huh.NewOption("low", string(task.PriorityLow)),
					huh.NewOption("medium", string(task.PriorityMedium)),
					huh.NewOption("high", string(task.PriorityHigh)),
				).
				Value(&priority),
			huh.NewInput().
				Title("Due (optional, e.g. \"tomorrow 5pm\")").
				Value(&due),
		),
	)
	if err := form.Run(); err != nil {
		return "", "", "", err
	}
	return title, priority, strings.TrimSpace(due), nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func init() {
	addCmd.Flags().StringP("priority", "p", "", "priority: high, medium, low, or none")
	addCmd.Flags().StringP("due", "d", "", "due date (natural language or RFC 3339)")
	rootCmd.AddCommand(addCmd)
}
