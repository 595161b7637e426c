package mcp

import (
	"context"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/agentkanban/internal/feature"
	"github.com/fyrsmithlabs/agentkanban/internal/reattribution"
	"github.com/fyrsmithlabs/agentkanban/internal/tracker"
)

// ErrInvalidInput indicates a tool argument failed validation.
var ErrInvalidInput = errors.New("invalid input")

// Config configures the MCP server.
type Config struct {
	// Name is the server implementation name (default: "agentkanban").
	Name string

	// Version is the server version (default: "dev").
	Version string

	// Logger for structured logging.
	Logger *zap.Logger

	// MinScore is the reattribution threshold used when a preview does not
	// give one.
	MinScore int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Name:     "agentkanban",
		Version:  "dev",
		Logger:   zap.NewNop(),
		MinScore: reattribution.DefaultMinScore,
	}
}

// Server serves feature tools over MCP.
type Server struct {
	mcp      *mcp.Server
	router   *tracker.Router
	features feature.Repository
	job      *reattribution.Job
	metrics  *Metrics
	config   *Config
	logger   *zap.Logger
}

// NewServer creates the server and registers its tools.
func NewServer(cfg *Config, router *tracker.Router, features feature.Repository, job *reattribution.Job) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if router == nil {
		return nil, fmt.Errorf("router is required")
	}
	if features == nil {
		return nil, fmt.Errorf("feature repository is required")
	}
	if job == nil {
		return nil, fmt.Errorf("reattribution job is required")
	}

	s := &Server{
		mcp: mcp.NewServer(&mcp.Implementation{
			Name:    cfg.Name,
			Version: cfg.Version,
		}, nil),
		router:   router,
		features: features,
		job:      job,
		metrics:  NewMetrics(cfg.Logger),
		config:   cfg,
		logger:   cfg.Logger,
	}
	s.registerTools()
	return s, nil
}

// Run serves on stdio until ctx is done or the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting MCP server on stdio transport")
	if err := s.mcp.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("server run failed: %w", err)
	}
	return nil
}

// Connect serves one session on transport.
func (s *Server) Connect(ctx context.Context, transport mcp.Transport) (*mcp.ServerSession, error) {
	return s.mcp.Connect(ctx, transport, nil)
}
