package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// JanitorConfig configures stale-session cleanup.
type JanitorConfig struct {
	// StaleAfter is how long a session may be idle before it is ended.
	StaleAfter time.Duration

	// Schedule is a cron spec ("@every 2m", "*/5 * * * *").
	Schedule string
}

// DefaultJanitorConfig ends sessions idle for 15 minutes, checking every 2.
func DefaultJanitorConfig() JanitorConfig {
	return JanitorConfig{
		StaleAfter: 15 * time.Minute,
		Schedule:   "@every 2m",
	}
}

// Janitor periodically ends stale sessions.
type Janitor struct {
	repo   Repository
	cfg    JanitorConfig
	logger *zap.Logger
	now    func() time.Time

	mu   sync.Mutex
	cron *cronlib.Cron
}

// NewJanitor creates a janitor. The schedule is validated here so a bad spec
// fails at startup.
func NewJanitor(repo Repository, cfg JanitorConfig, logger *zap.Logger) (*Janitor, error) {
	if cfg.StaleAfter <= 0 {
		return nil, fmt.Errorf("stale_after must be positive")
	}
	if _, err := cronlib.ParseStandard(cfg.Schedule); err != nil {
		return nil, fmt.Errorf("invalid cleanup schedule %q: %w", cfg.Schedule, err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Janitor{repo: repo, cfg: cfg, logger: logger, now: time.Now}, nil
}

// Sweep ends every session idle longer than StaleAfter.
func (j *Janitor) Sweep(ctx context.Context) (int, error) {
	cutoff := j.now().Add(-j.cfg.StaleAfter)
	n, err := j.repo.EndStale(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("ending stale sessions: %w", err)
	}
	if n > 0 {
		j.logger.Info("ended stale sessions",
			zap.Int("count", n),
			zap.Duration("stale_after", j.cfg.StaleAfter))
	}
	return n, nil
}

// Start sweeps once immediately and then on the configured schedule until
// Stop is called or ctx is done.
func (j *Janitor) Start(ctx context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.cron != nil {
		return nil
	}

	if _, err := j.Sweep(ctx); err != nil {
		j.logger.Warn("initial session sweep failed", zap.Error(err))
	}

	c := cronlib.New()
	if _, err := c.AddFunc(j.cfg.Schedule, func() {
		if _, err := j.Sweep(ctx); err != nil {
			j.logger.Warn("session sweep failed", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("scheduling session sweep: %w", err)
	}
	c.Start()
	j.cron = c

	go func() {
		<-ctx.Done()
		j.Stop()
	}()

	j.logger.Info("session janitor started", zap.String("schedule", j.cfg.Schedule))
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (j *Janitor) Stop() {
	j.mu.Lock()
	c := j.cron
	j.cron = nil
	j.mu.Unlock()

	if c != nil {
		<-c.Stop().Done()
	}
}
