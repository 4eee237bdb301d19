package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/taskwell/tasksync/internal/config"
	"github.com/taskwell/tasksync/internal/connectivity"
	"github.com/taskwell/tasksync/internal/engine"
	"github.com/taskwell/tasksync/internal/identity"
	"github.com/taskwell/tasksync/internal/localstore"
	"github.com/taskwell/tasksync/internal/remote"
	"github.com/taskwell/tasksync/internal/status"
)

// session is the daemon's sync stack for one signed-in user: the engine
// moves data, the projection tracks online/pending, and the binder pairs
// both with the session lifecycle.
type session struct {
	binder      *identity.Binder
	projection  *status.Projection
	unsubscribe func()
}

// startSession wires engine, status projection, and identity binder, then
// signs userID in. newLogger builds the per-component loggers.
func startSession(ctx context.Context, store *localstore.Store, rem remote.Store, monitor connectivity.Monitor, userID string, newLogger func(prefix string) *log.Logger) (*session, error) {
	eng, err := engine.New(&engine.Config{
		Store:   store,
		Remote:  rem,
		Monitor: monitor,
		Logger:  newLogger("[sync] "),
	})
	if err != nil {
		return nil, err
	}

	projection := status.New(store, monitor)
	binder := identity.New(eng, projection, newLogger("[identity] "))
	if err := binder.SignIn(ctx, userID); err != nil {
		projection.Close()
		return nil, err
	}

	statusLog := newLogger("[status] ")
	unsubscribe := projection.OnChange(func(s status.Snapshot) {
		statusLog.Printf("online=%v pending=%d", s.Online, s.PendingCount)
	})
	return &session{binder: binder, projection: projection, unsubscribe: unsubscribe}, nil
}

func (s *session) stop() {
	s.unsubscribe()
	s.binder.SignOut()
	s.projection.Close()
}

var daemonCmd = &cobra.Command{
	Use:     "daemon",
	GroupID: "sync",
	Short:   "Run the sync daemon (foreground)",
	Long: `Run the sync daemon in the foreground.

The daemon keeps the local database converged with the hub: it probes
connectivity, flushes queued changes on every reconnect, and merges remote
edits as they arrive. Logs go to the rotating log file configured in
config.yaml.

Run it under a process manager for background operation:
  tasksync daemon`,
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

		logger := a.cfg.Log.NewLogger("[daemon] ")
		logger.Printf("Daemon starting for user %s", userID)

		client := remote.NewClient(a.cfg.Remote.URL, a.cfg.Log.NewLogger("[remote] "))
		defer client.Close()

		monitor := connectivity.NewProbeMonitor(&connectivity.ProbeConfig{
			ProbeURL: a.cfg.Connectivity.ProbeURL,
			Interval: a.cfg.Connectivity.ProbeInterval,
			Timeout:  a.cfg.Connectivity.ProbeTimeout,
			Logger:   a.cfg.Log.NewLogger("[connectivity] "),
		})
		monitor.Start()
		defer monitor.Stop()

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		sess, err := startSession(ctx, a.store, client, monitor, userID, a.cfg.Log.NewLogger)
		if err != nil {
			return err
		}
		defer sess.stop()

		// Config edits take effect on the next restart; the watcher makes
		// that visible in the log instead of silently ignoring them.
		if err := config.Watch(a.cfg.DataDir, func(fresh *config.Config) {
			logger.Printf("Config file changed; restart the daemon to apply")
		}); err != nil {
			logger.Printf("Warning: config watching disabled: %v", err)
		}

		fmt.Printf("Sync daemon running for %s (hub %s)\n", userID, a.cfg.Remote.URL)
		fmt.Println("Press Ctrl+C to stop...")

		<-ctx.Done()

		fmt.Println("\nShutting down...")
		logger.Printf("Daemon stopping")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(daemonCmd)
}
