// Kanband is the agentkanban daemon.
//
// It serves the event ingest API, consumes hook events published to NATS,
// re-publishes stored events for other subscribers, ends stale sessions on a
// schedule and re-imports feature lists when they change on disk.
//
// Configuration is read from ~/.config/agentkanban/config.yaml and
// AGENTKANBAN_* environment variables. See internal/config for details.
//
// Usage:
//
//	# Start the daemon
//	kanband
//
//	# Listen on another port
//	AGENTKANBAN_SERVER_PORT=4100 kanband
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/agentkanban/internal/config"
	httpserver "github.com/fyrsmithlabs/agentkanban/internal/http"
	"github.com/fyrsmithlabs/agentkanban/internal/logging"
	"github.com/fyrsmithlabs/agentkanban/internal/session"
	"github.com/fyrsmithlabs/agentkanban/internal/sink"
	"github.com/fyrsmithlabs/agentkanban/internal/store"
	"github.com/fyrsmithlabs/agentkanban/internal/telemetry"
	"github.com/fyrsmithlabs/agentkanban/internal/tracker"
	"github.com/fyrsmithlabs/agentkanban/internal/watch"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	flag.Parse()
	args := flag.Args()

	if len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  kanband           Start the agentkanban daemon\n")
			fmt.Fprintf(os.Stderr, "  kanband version   Show version information\n")
			os.Exit(1)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "kanband: %v\n", err)
		os.Exit(1)
	}

	if err := run(ctx, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "kanband: %v\n", err)
		os.Exit(1)
	}
}

func printVersion() {
	fmt.Printf("kanband by Fyrsmith Labs\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run starts the daemon and blocks until ctx is cancelled.
//
// Startup order:
//  1. Logger and telemetry
//  2. SQLite store
//  3. NATS connection, consumer and re-publisher (when sink.nats_url is set)
//  4. Session janitor
//  5. Feature list watcher
//  6. HTTP ingest server
func run(ctx context.Context, cfg *config.Config) error {
	logCfg, err := logging.FromSettings(cfg.Logging)
	if err != nil {
		return fmt.Errorf("invalid logging config: %w", err)
	}
	logger, err := logging.NewLogger(logCfg, nil)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()
	zl := logger.Underlying()

	tel, err := telemetry.New(ctx, telemetry.FromSettings(cfg.Observability, version), zl)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			zl.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}()

	logger.Info(ctx, "starting kanband",
		zap.String("version", version),
		zap.String("addr", cfg.Server.Addr()),
		zap.Bool("telemetry", tel.IsEnabled()))

	deps, err := initDependencies(cfg, zl)
	if err != nil {
		return fmt.Errorf("failed to initialize dependencies: %w", err)
	}
	defer deps.Close()

	janitor, err := session.NewJanitor(deps.db.Sessions(), session.JanitorConfig{
		StaleAfter: cfg.Sessions.StaleAfter.Duration(),
		Schedule:   cfg.Sessions.CleanupSchedule,
	}, zl.Named("janitor"))
	if err != nil {
		return fmt.Errorf("failed to create session janitor: %w", err)
	}
	if err := janitor.Start(ctx); err != nil {
		return fmt.Errorf("failed to start session janitor: %w", err)
	}
	defer janitor.Stop()

	router := tracker.NewRouter(deps.db.Features(), deps.ingest, tracker.Config{
		SourceAgent: cfg.Tracker.SourceAgent,
		MaxRetries:  cfg.Tracker.MaxRetries,
	}, tracker.WithLogger(zl.Named("tracker")))

	if cfg.Watcher.IsEnabled() {
		w, err := startWatcher(ctx, deps.db, router, zl.Named("watch"))
		if err != nil {
			logger.Warn(ctx, "feature list watcher disabled", zap.Error(err))
		} else {
			go func() {
				if err := w.Run(ctx); err != nil {
					zl.Error("feature list watcher stopped", zap.Error(err))
				}
			}()
		}
	}

	srv, err := httpserver.NewServer(httpserver.Deps{
		Ingest:   deps.ingest,
		Features: deps.db.Features(),
		Sessions: deps.db.Sessions(),
		Publish:  deps.publish,
	}, zl.Named("http"), &httpserver.Config{
		Host:      cfg.Server.Host,
		Port:      cfg.Server.Port,
		RateLimit: cfg.Server.RateLimit,
		Burst:     cfg.Server.Burst,
	})
	if err != nil {
		return fmt.Errorf("failed to create http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info(context.Background(), "shutting down", zap.Duration("timeout", cfg.Server.ShutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return <-errCh
}

// dependencies holds the daemon's infrastructure.
type dependencies struct {
	db       *store.SQLite
	ingest   *sink.Store
	publish  sink.Sink
	natsConn *nats.Conn
	consumer *sink.Consumer
	logger   *zap.Logger
}

// Close releases all infrastructure resources.
func (d *dependencies) Close() {
	if d.consumer != nil {
		if err := d.consumer.Stop(); err != nil {
			d.logger.Warn("draining nats consumer failed", zap.Error(err))
		}
	}
	if d.natsConn != nil {
		d.natsConn.Close()
	}
	if d.db != nil {
		if err := d.db.Close(); err != nil {
			d.logger.Warn("closing store failed", zap.Error(err))
		}
	}
}

func initDependencies(cfg *config.Config, logger *zap.Logger) (*dependencies, error) {
	path, err := config.ExpandPath(cfg.Store.Path)
	if err != nil {
		return nil, err
	}
	db, err := store.OpenSQLite(path)
	if err != nil {
		return nil, err
	}
	logger.Info("store opened", zap.String("path", path))

	deps := &dependencies{
		db:      db,
		ingest:  sink.NewStore(db.Events(), db.Sessions(), logger.Named("ingest")),
		publish: sink.Nop{},
		logger:  logger,
	}

	if cfg.Sink.NATSURL == "" {
		return deps, nil
	}

	nc, err := nats.Connect(cfg.Sink.NATSURL,
		nats.Name("kanband"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		deps.Close()
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", cfg.Sink.NATSURL, err)
	}
	deps.natsConn = nc
	deps.publish = sink.NewNATS(nc, sink.IngestedSubject(cfg.Sink.Subject))

	deps.consumer = sink.NewConsumer(nc, cfg.Sink.Subject, deps.ingest, deps.publish, logger.Named("nats"))
	if err := deps.consumer.Start(); err != nil {
		deps.Close()
		return nil, err
	}
	logger.Info("connected to NATS",
		zap.String("url", cfg.Sink.NATSURL),
		zap.String("subject", cfg.Sink.Subject))
	return deps, nil
}

// startWatcher watches every project that already has features.
func startWatcher(ctx context.Context, db *store.SQLite, router *tracker.Router, logger *zap.Logger) (*watch.Watcher, error) {
	w, err := watch.New(func(ctx context.Context, projectDir string) error {
		_, err := router.ImportList(ctx, projectDir)
		return err
	}, watch.DefaultDebounce, logger)
	if err != nil {
		return nil, err
	}

	projects, err := db.Features().Projects(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing projects: %w", err)
	}
	for _, dir := range projects {
		if err := w.Watch(dir); err != nil {
			logger.Warn("cannot watch project", zap.String("project_dir", dir), zap.Error(err))
		}
	}
	return w, nil
}
