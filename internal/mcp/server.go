// Package mcp provides an MCP (Model Context Protocol) server for evosim.
package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nvandessel/evosim/internal/config"
	"github.com/nvandessel/evosim/internal/constants"
	"github.com/nvandessel/evosim/internal/logging"
	"github.com/nvandessel/evosim/internal/ratelimit"
	"github.com/nvandessel/evosim/internal/runner"
)

// Tool names.
const (
	ToolRun   = "evosim_run"
	ToolRuns  = "evosim_runs"
	ToolPhase = "evosim_phase"
)

// Server wraps the MCP SDK server and provides evosim tools.
type Server struct {
	server   *sdk.Server
	root     string
	settings *config.EvosimConfig
	logger   *slog.Logger

	// open creates the runner for a scope; replaced in tests
	open func(scope constants.Scope) (*runner.Runner, error)

	mu      sync.Mutex
	runners map[constants.Scope]*runner.Runner

	toolLimiters ratelimit.ToolLimiters
	auditLogger  *AuditLogger
}

// Config holds server configuration.
type Config struct {
	Name    string // Server name (e.g., "evosim")
	Version string // Server version
	Root    string // Project root directory

	// Settings defaults to config.Default().
	Settings *config.EvosimConfig

	// Logger receives operational logs. It must not write to stdout,
	// which carries the protocol.
	Logger *slog.Logger
}

// NewServer creates a new MCP server with evosim tools. Run stores are
// opened on first use per scope.
func NewServer(cfg *Config) (*Server, error) {
	settings := cfg.Settings
	if settings == nil {
		settings = config.Default()
	}
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	mcpServer := sdk.NewServer(&sdk.Implementation{
		Name:    cfg.Name,
		Version: cfg.Version,
	}, &sdk.ServerOptions{
		InitializedHandler: func(ctx context.Context, req *sdk.InitializedRequest) {
			logger.Debug("mcp client initialized")
		},
	})

	// Without a home directory only the project audit log is written
	home, _ := os.UserHomeDir()

	s := &Server{
		server:   mcpServer,
		root:     cfg.Root,
		settings: settings,
		logger:   logger,
		runners:  make(map[constants.Scope]*runner.Runner),
		toolLimiters: ratelimit.NewToolLimiters(map[string]ratelimit.Limit{
			ToolRun:   {PerMinute: settings.Server.RunsPerMinute, Burst: settings.Server.RunBurst},
			ToolRuns:  {PerMinute: settings.Server.QueriesPerMinute, Burst: settings.Server.QueryBurst},
			ToolPhase: {PerMinute: settings.Server.QueriesPerMinute, Burst: settings.Server.QueryBurst},
		}),
		auditLogger: NewAuditLogger(cfg.Root, home),
	}
	s.open = func(scope constants.Scope) (*runner.Runner, error) {
		return runner.Open(s.settings, s.root, scope, s.logger)
	}

	s.registerTools()
	s.registerResources()

	return s, nil
}

// runnerFor returns the runner for scope, opening it on first use.
func (s *Server) runnerFor(scope constants.Scope) (*runner.Runner, error) {
	if scope == "" {
		scope = constants.ScopeLocal
	}
	if !scope.Valid() {
		return nil, fmt.Errorf("invalid scope %q (valid: local, global)", scope)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if r, ok := s.runners[scope]; ok {
		return r, nil
	}
	r, err := s.open(scope)
	if err != nil {
		return nil, err
	}
	s.runners[scope] = r
	return r, nil
}

// Run starts the MCP server over stdio transport.
// This blocks until the client disconnects or the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	notifySignals(sigChan)

	go func() {
		select {
		case <-sigChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	err := s.server.Run(ctx, &sdk.StdioTransport{})

	if cerr := s.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// Close closes every opened runner and the audit log.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	for scope, r := range s.runners {
		if err := r.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(s.runners, scope)
	}
	if err := s.auditLogger.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	s.auditLogger = nil
	return firstErr
}
