package main

import (
	"fmt"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/driftlabs/scopesync/engine"
	"github.com/driftlabs/scopesync/scope"
	"github.com/driftlabs/scopesync/store"
)

var (
	flags   Flags
	logger  = logrus.New()
	program *tea.Program
)

func main() {
	flags = parseFlags()

	logFile, debugLogFile, err := setupLogger(logger)
	if err != nil {
		fmt.Printf("Failed to set up logger: %s\n", err)
		os.Exit(1)
	}
	defer closeLogFiles(logFile, debugLogFile)
	if flags.Debug {
		logger.SetLevel(logrus.DebugLevel)
	}

	// The journal lets edits made offline survive a restart.
	journal, err := store.Open(filepath.Join(stateDir(), flags.Scope+".journal"))
	if err != nil {
		logger.Warnf("journal unavailable, running without persistence: %v", err)
		journal = nil
	} else {
		defer journal.Close()
	}

	graph := scope.NewGraph("root")
	if journal != nil {
		if snap, ok, err := journal.LastSnapshot(); err == nil && ok {
			if err := graph.Restore(snap); err != nil {
				logger.Warnf("stale checkpoint ignored: %v", err)
			}
		}
	}

	transport := &wsTransport{}
	cfg := engine.Config{
		ScopeID:   flags.Scope,
		ClientID:  uuid.New(),
		Graph:     graph,
		Transport: transport,
		Logger:    logger,
		OnReject: func(r engine.Rejection) {
			if program != nil {
				program.Send(rejectionMsg(r))
			}
		},
	}
	if journal != nil {
		cfg.Journal = journal
	}
	coord := engine.NewCoordinator(cfg)

	// Re-seed the speculative suffix persisted by an earlier session.
	if journal != nil {
		entries, err := journal.Pending()
		if err != nil {
			logger.Warnf("journal read failed: %v", err)
		}
		for _, e := range entries {
			if err := coord.Restore(e.Seq, e.Fragments); err != nil {
				logger.Warnf("could not restore seq %d: %v", e.Seq, err)
				break
			}
		}
	}

	if err := UI(coord, flags, transport); err != nil {
		fmt.Printf("UI error: %s\n", err)
		os.Exit(1)
	}
}
