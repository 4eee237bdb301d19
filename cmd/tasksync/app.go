package main

import (
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/taskwell/tasksync/internal/config"
	"github.com/taskwell/tasksync/internal/localstore"
	"github.com/taskwell/tasksync/internal/task"
)

// app bundles what every command needs: configuration, the signed-in user,
// and the local store.
type app struct {
	cfg   *config.Config
	store *localstore.Store
}

// loadApp reads configuration and prepares the local store. The database is
// opened lazily on first use.
func loadApp() (*app, error) {
	cfg, err := config.Load(dataDirFlag)
	if err != nil {
		return nil, err
	}
	// CLI commands log quietly; the daemon attaches real logging itself.
	logger := log.New(io.Discard, "", 0)
	return &app{
		cfg:   cfg,
		store: localstore.New(cfg.DBPath(), logger),
	}, nil
}

func (a *app) close() {
	_ = a.store.Close()
}

// requireUser returns the signed-in user id or an error telling the user to
// log in.
func (a *app) requireUser() (string, error) {
	s, err := config.LoadSession(a.cfg.SessionPath())
	if err != nil {
		return "", err
	}
	if s == nil {
		return "", fmt.Errorf("not signed in (run 'tasksync login <user-id>')")
	}
	return s.UserID, nil
}

// findTask resolves an id or unique id prefix to one of the user's live
// tasks.
func (a *app) findTask(userID, ref string) (*task.Task, error) {
	tasks, err := a.store.List(localstore.Query{OwnerID: userID})
	if err != nil {
		return nil, err
	}

	var matches []*task.Task
	for _, tk := range tasks {
		if tk.ID == ref {
			return tk, nil
		}
		if strings.HasPrefix(tk.ID, ref) {
			matches = append(matches, tk)
		}
	}

	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("no task matches %q", ref)
	case 1:
		return matches[0], nil
	default:
		return nil, fmt.Errorf("%q is ambiguous (%d matches); use more of the id", ref, len(matches))
	}
}
