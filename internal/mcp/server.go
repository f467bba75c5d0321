// Package mcp exposes the scenario catalog and the runner as MCP tools so an
// agent can list and run end-to-end scenarios over stdio.
package mcp

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/mark3labs/mcp-go/server"

	"github.com/acolita/qemu-e2e/internal/driver"
	"github.com/acolita/qemu-e2e/internal/environment"
	"github.com/acolita/qemu-e2e/internal/runner"
	"github.com/acolita/qemu-e2e/internal/scenario"
)

const serverName = "qemu-e2e"

// ScenarioRunner runs one scenario to completion.
type ScenarioRunner interface {
	Run(ctx context.Context, sc scenario.Scenario) runner.Result
}

// RunnerFactory builds a runner for one run. Progress lines go to out and
// step verdicts to rep.
type RunnerFactory func(mode environment.Mode, out io.Writer, rep driver.Reporter) ScenarioRunner

// CatalogFunc returns the current scenario catalog. It is called on every
// request so edited scenario files are picked up without a restart.
type CatalogFunc func() (*scenario.Catalog, error)

// Server wraps the MCP server implementation.
type Server struct {
	mcpServer   *server.MCPServer
	catalog     CatalogFunc
	newRunner   RunnerFactory
	defaultMode environment.Mode

	// Only one emulator can own the console ports at a time.
	runMu   sync.Mutex
	stateMu sync.Mutex
	running string
}

// ServerOption configures a Server.
type ServerOption func(*serverOptions)

type serverOptions struct {
	version string
	mode    environment.Mode
}

// WithVersion sets the version reported to clients.
func WithVersion(v string) ServerOption {
	return func(o *serverOptions) {
		o.version = v
	}
}

// WithDefaultMode sets the mode used when a request does not name one.
func WithDefaultMode(m environment.Mode) ServerOption {
	return func(o *serverOptions) {
		o.mode = m
	}
}

// NewServer creates a new MCP server.
func NewServer(catalog CatalogFunc, newRunner RunnerFactory, opts ...ServerOption) *Server {
	o := serverOptions{version: "dev", mode: environment.ModeContainer}
	for _, opt := range opts {
		opt(&o)
	}

	s := &Server{
		mcpServer: server.NewMCPServer(
			serverName,
			o.version,
			server.WithToolCapabilities(false),
			server.WithLogging(),
		),
		catalog:     catalog,
		newRunner:   newRunner,
		defaultMode: o.mode,
	}
	s.registerTools()
	return s
}

// Run serves MCP on stdio until the client disconnects.
func (s *Server) Run() error {
	slog.Info("starting MCP server on stdio transport")
	return server.ServeStdio(s.mcpServer)
}

// Running returns the scenario currently running, or "".
func (s *Server) Running() string {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.running
}

func (s *Server) setRunning(name string) {
	s.stateMu.Lock()
	s.running = name
	s.stateMu.Unlock()
}
