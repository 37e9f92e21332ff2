package sessionsworker

import (
	"context"
	"time"

	"github.com/wolfman30/wa-navigator/pkg/logging"
)

const (
	defaultJanitorInterval = time.Hour
	defaultMaxIdle         = 24 * time.Hour
)

type idleCleaner interface {
	CleanupIdle(ctx context.Context, maxIdle time.Duration) (int64, error)
}

// Janitor periodically deactivates conversation sessions that have gone quiet.
type Janitor struct {
	cleaner  idleCleaner
	logger   *logging.Logger
	interval time.Duration
	maxIdle  time.Duration
}

func NewJanitor(cleaner idleCleaner, logger *logging.Logger) *Janitor {
	if cleaner == nil {
		panic("sessionsworker: cleaner required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Janitor{
		cleaner:  cleaner,
		logger:   logger,
		interval: defaultJanitorInterval,
		maxIdle:  defaultMaxIdle,
	}
}

func (j *Janitor) WithInterval(d time.Duration) *Janitor {
	if d > 0 {
		j.interval = d
	}
	return j
}

// WithMaxIdle sets how long a session may sit untouched before it is ended.
func (j *Janitor) WithMaxIdle(d time.Duration) *Janitor {
	if d > 0 {
		j.maxIdle = d
	}
	return j
}

// Run sweeps once immediately and then on every tick until ctx is done.
func (j *Janitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.sweep(ctx)
		}
	}
}

func (j *Janitor) sweep(ctx context.Context) {
	n, err := j.cleaner.CleanupIdle(ctx, j.maxIdle)
	if err != nil {
		if ctx.Err() == nil {
			j.logger.Error("session janitor: cleanup failed", "error", err)
		}
		return
	}
	if n > 0 {
		j.logger.Debug("session janitor: sweep complete", "count", n, "max_idle", j.maxIdle.String())
	}
}
