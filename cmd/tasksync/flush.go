package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/spf13/cobra"

	"github.com/taskwell/tasksync/internal/connectivity"
	"github.com/taskwell/tasksync/internal/engine"
	"github.com/taskwell/tasksync/internal/localstore"
	"github.com/taskwell/tasksync/internal/remote"
	"github.com/taskwell/tasksync/internal/task"
	"github.com/taskwell/tasksync/internal/ui"
)

var flushCmd = &cobra.Command{
	Use:     "flush",
	GroupID: "sync",
	Short:   "Push pending changes to the hub",
	Long: `Push every pending local change (edits and deletions) to the hub in one
batch, then pull any changes made on other devices.

If the hub is unreachable nothing is lost: changes stay queued and the
command can be rerun. The background daemon does this automatically on
every reconnect.`,
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

		before, err := a.store.List(localstore.Query{
			OwnerID: userID, DirtyOnly: true, IncludeDeleted: true,
		})
		if err != nil {
			return err
		}
		if len(before) == 0 {
			fmt.Println(ui.RenderMuted("Nothing to flush."))
			return nil
		}

		quiet := log.New(io.Discard, "", 0)
		client := remote.NewClient(a.cfg.Remote.URL, quiet)
		defer client.Close()

		// Start online so the engine attaches and pulls remote changes while
		// we hold the connection open.
		eng, err := engine.New(&engine.Config{
			Store:   a.store,
			Remote:  client,
			Monitor: connectivity.NewManual(true),
			Logger:  quiet,
		})
		if err != nil {
			return err
		}
		if err := eng.Start(userID); err != nil {
			return err
		}
		defer eng.Stop()

		timeout, _ := cmd.Flags().GetDuration("timeout")
		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()

		if err := eng.FlushPendingToRemote(ctx); err != nil {
			return fmt.Errorf("flush failed (changes remain queued): %w", err)
		}

		// Let the attached listener finish merging remote changes before
		// tearing down. Bounded by the command timeout.
		waitForMergeQuiet(ctx, a.store, userID, mergeQuietWindow)

		fmt.Printf("%s Flushed %d pending change(s) to %s\n",
			ui.RenderPass("✓"), len(before), a.cfg.Remote.URL)
		return nil
	},
}

// mergeQuietWindow is how long the store must go without a change
// notification before a one-shot flush considers the pull side settled.
const mergeQuietWindow = 300 * time.Millisecond

// waitForMergeQuiet blocks until no committed write has touched userID's
// records for the given window, or ctx expires. The flush's own
// confirmation has already committed by the time this is called, so further
// notifications mean the remote listener is still merging pulled changes;
// each one extends the wait.
func waitForMergeQuiet(ctx context.Context, store *localstore.Store, userID string, window time.Duration) {
	ticks := make(chan struct{}, 1)
	sub := store.Subscribe(localstore.Query{OwnerID: userID, IncludeDeleted: true})
	defer sub.Close()
	sub.AddListener(func([]*task.Task) {
		select {
		case ticks <- struct{}{}:
		default:
		}
	})

	timer := time.NewTimer(window)
	defer timer.Stop()
	for {
		select {
		case <-ticks:
			if !timer.Stop() {
				<-timer.C
			}
			timer.Reset(window)
		case <-timer.C:
			return
		case <-ctx.Done():
			return
		}
	}
}

func init() {
	flushCmd.Flags().Duration("timeout", 30*time.Second, "give up after this long")
	rootCmd.AddCommand(flushCmd)
}
