package tui

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/charmbracelet/ssh"
	"github.com/charmbracelet/wish"
	"github.com/charmbracelet/wish/activeterm"
	"github.com/charmbracelet/wish/bubbletea"
)

// SSHServerConfig holds configuration for the remote console.
type SSHServerConfig struct {
	// Address is the host:port to listen on (e.g., ":23235").
	Address string

	// HostKeyPath is the path to the host key file.
	// If empty, a key will be auto-generated at ~/.pilot/host_key.
	HostKeyPath string

	// IdleTimeout disconnects consoles without input for this long.
	IdleTimeout time.Duration
}

// DefaultSSHServerConfig returns a config with sensible defaults.
func DefaultSSHServerConfig() SSHServerConfig {
	return SSHServerConfig{
		Address:     ":23235",
		IdleTimeout: 30 * time.Minute,
	}
}

// SSHServer serves the operator console of one running agent. Every
// connection gets its own ConsoleModel over the shared Agent; quitting a
// remote console detaches it without stopping the agent.
type SSHServer struct {
	config   SSHServerConfig
	server   *ssh.Server
	agent    Agent
	console  ConsoleOptions
	logger   *log.Logger
	attached atomic.Int64
}

// NewSSHServer creates a remote console server for agent.
func NewSSHServer(cfg SSHServerConfig, agent Agent, console ConsoleOptions, logger *log.Logger) (*SSHServer, error) {
	if logger == nil {
		logger = log.NewWithOptions(os.Stderr, log.Options{
			ReportTimestamp: true,
			Prefix:          "pilot-ssh",
		})
	}
	console.QuitStops = false

	hostKeyPath, err := resolveHostKey(cfg.HostKeyPath)
	if err != nil {
		return nil, err
	}

	srv := &SSHServer{
		config:  cfg,
		agent:   agent,
		console: console,
		logger:  logger,
	}

	// Middlewares run last to first: logging wraps the PTY check wraps the console
	server, err := wish.NewServer(
		wish.WithAddress(cfg.Address),
		wish.WithHostKeyPath(hostKeyPath),
		wish.WithIdleTimeout(cfg.IdleTimeout),
		wish.WithMiddleware(
			bubbletea.Middleware(srv.consoleHandler),
			activeterm.Middleware(),
			srv.loggingMiddleware,
		),
	)
	if err != nil {
		return nil, fmt.Errorf("cannot create SSH server: %w", err)
	}

	srv.server = server
	return srv, nil
}

// resolveHostKey returns the host key path, creating its directory.
func resolveHostKey(path string) (string, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("cannot get home directory: %w", err)
		}
		path = filepath.Join(home, ".pilot", "host_key")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return "", fmt.Errorf("cannot create host key directory: %w", err)
	}
	return path, nil
}

// consoleHandler sizes a console to the session's terminal.
func (s *SSHServer) consoleHandler(sess ssh.Session) (tea.Model, []tea.ProgramOption) {
	pty, _, _ := sess.Pty()
	model := NewConsoleModel(s.agent, s.console, pty.Window.Width, pty.Window.Height)
	return model, []tea.ProgramOption{tea.WithAltScreen()}
}

// loggingMiddleware logs console attach and detach.
func (s *SSHServer) loggingMiddleware(next ssh.Handler) ssh.Handler {
	return func(sess ssh.Session) {
		n := s.attached.Add(1)
		s.logger.Info("console attached",
			"user", sess.User(),
			"remote", sess.RemoteAddr().String(),
			"consoles", n,
		)
		started := time.Now()
		next(sess)
		n = s.attached.Add(-1)
		s.logger.Info("console detached",
			"user", sess.User(),
			"after", time.Since(started).Round(time.Second),
			"consoles", n,
		)
	}
}

// Start serves in the background until Shutdown.
func (s *SSHServer) Start() {
	s.logger.Info("serving operator console", "address", s.config.Address)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, ssh.ErrServerClosed) {
			s.logger.Error("SSH console stopped", "error", err)
		}
	}()
}

// Attached returns the number of connected consoles.
func (s *SSHServer) Attached() int {
	return int(s.attached.Load())
}

// Shutdown disconnects consoles and stops listening.
func (s *SSHServer) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// Addr returns the server's listen address string.
func (s *SSHServer) Addr() string {
	return s.config.Address
}
