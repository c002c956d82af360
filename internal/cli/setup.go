package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/opsgate/opsgate/internal/audit"
	"github.com/opsgate/opsgate/internal/engine"
	"github.com/opsgate/opsgate/internal/rules"
)

// session bundles the pieces most commands need: the loaded config, the open
// trail, and an engine wired to the terminal approver.
type session struct {
	cfg    *rules.Config
	trail  *audit.Log
	engine *engine.Engine
}

// openSession loads config, opens the trail, and builds the engine. The
// approver may be nil for commands that never reach interactive approval.
func openSession(approver engine.Approver) (*session, error) {
	cfg, err := rules.Load(configPath)
	if err != nil {
		return nil, err
	}
	set, err := cfg.Compile()
	if err != nil {
		return nil, err
	}
	trail, err := audit.Open(cfg.Audit.LogPath)
	if err != nil {
		return nil, err
	}
	return &session{
		cfg:    cfg,
		trail:  trail,
		engine: engine.New(set, trail, approver),
	}, nil
}

func (s *session) close() {
	if err := s.trail.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: close audit log: %v\n", err)
	}
}

// saveRules persists the engine's live pattern lists back to the config file,
// so blacklist changes made at runtime survive the process.
func (s *session) saveRules() error {
	path := configPath
	if path == "" {
		path = rules.DefaultConfigPath()
	}
	s.cfg.ApplySet(s.engine.Rules())
	return s.cfg.Save(path)
}

// signalContext returns a context cancelled by SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	return ctx, cancel
}
