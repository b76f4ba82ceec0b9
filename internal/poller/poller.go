package poller

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/comfforts/logger"

	"github.com/hankgalt/load-orchestra/pkg/domain"
)

const (
	DefaultInterval    = 3000 * time.Millisecond
	DefaultMaxAttempts = 200
)

const (
	ERR_POLL_BUDGET_EXHAUSTED = "poller: job did not complete within the polling budget"
	ERR_POLL_STOPPED          = "poller: polling stopped"
	ERR_MISSING_FETCH_FUNC    = "poller: missing fetch function"
)

var (
	ErrPollBudgetExhausted = errors.New(ERR_POLL_BUDGET_EXHAUSTED)
	ErrPollStopped         = errors.New(ERR_POLL_STOPPED)
	ErrMissingFetchFunc    = errors.New(ERR_MISSING_FETCH_FUNC)
)

// FetchFunc fetches the current job snapshot.
type FetchFunc func() (*domain.JobInfo, error)

// SleepFunc waits for d. A non nil error stops polling.
type SleepFunc func(d time.Duration) error

// ObserveFunc receives every reconciled snapshot and its attempt number.
type ObserveFunc func(job *domain.JobInfo, attempt int)

// Logger is satisfied by *slog.Logger and by the workflow logger.
type Logger interface {
	Debug(msg string, keyvals ...any)
	Error(msg string, keyvals ...any)
}

// Config bounds the polling loop.
type Config struct {
	Interval    time.Duration
	MaxAttempts int
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	return c
}

// Result is the outcome of a poll loop.
type Result struct {
	Job      *domain.JobInfo
	Attempts int
}

// Poller fetches job status until it is done or the attempt budget is spent.
// Only one fetch is outstanding at a time.
type Poller struct {
	cfg     Config
	fetch   FetchFunc
	sleep   SleepFunc
	observe ObserveFunc
	logger  Logger
}

func New(cfg Config, fetch FetchFunc, sleep SleepFunc, observe ObserveFunc, l Logger) *Poller {
	if l == nil {
		l = logger.GetSlogLogger()
	}
	return &Poller{
		cfg:     cfg.withDefaults(),
		fetch:   fetch,
		sleep:   sleep,
		observe: observe,
		logger:  l,
	}
}

// Run polls until IsJobDone holds for the reconciled job.
// Attempt MaxAttempts that is still not done returns ErrPollBudgetExhausted with the last snapshot.
// A failed fetch consumes one attempt.
func (p *Poller) Run(order map[string]int) (*Result, error) {
	if p.fetch == nil {
		return nil, ErrMissingFetchFunc
	}

	res := &Result{}
	for attempt := 1; attempt <= p.cfg.MaxAttempts; attempt++ {
		res.Attempts = attempt

		job, err := p.fetch()
		if err != nil {
			p.logger.Error("Poller.Run - fetch failed", "attempt", attempt, "error", err.Error())
		} else {
			job = Reconcile(job, order)
			res.Job = job
			if p.observe != nil {
				p.observe(job, attempt)
			}
			if IsJobDone(job, order) {
				p.logger.Debug("Poller.Run - job done", "job-id", job.ID, "attempt", attempt, "state", job.State)
				return res, nil
			}
		}

		if attempt == p.cfg.MaxAttempts {
			break
		}
		if p.sleep != nil {
			if err := p.sleep(p.cfg.Interval); err != nil {
				p.logger.Debug("Poller.Run - stopped", "attempt", attempt, "error", err.Error())
				return res, fmt.Errorf("%w: %w", ErrPollStopped, err)
			}
		}
	}

	p.logger.Error("Poller.Run - polling budget exhausted", "attempts", res.Attempts)
	return res, ErrPollBudgetExhausted
}

// Reconcile returns a copy of job with batches sorted into submission order.
// Batches unknown to order follow the known ones, in remote order.
func Reconcile(job *domain.JobInfo, order map[string]int) *domain.JobInfo {
	if job == nil {
		return nil
	}
	out := job.Clone()
	slices.SortStableFunc(out.Batches, func(a, b domain.BatchInfo) int {
		na, okA := order[a.ID]
		nb, okB := order[b.ID]
		switch {
		case okA && okB:
			return na - nb
		case okA:
			return -1
		case okB:
			return 1
		}
		return 0
	})
	return out
}

// IsJobDone reports whether the job failed, or all of its batches are terminal
// and every submitted batch id is present.
func IsJobDone(job *domain.JobInfo, order map[string]int) bool {
	if job == nil {
		return false
	}
	if job.State == domain.JobStateFailed {
		return true
	}
	if len(job.Batches) == 0 {
		return false
	}
	seen := domain.NewSet[string]()
	for _, b := range job.Batches {
		if !b.State.IsTerminal() {
			return false
		}
		seen.Add(b.ID)
	}
	for id := range order {
		if !seen.Has(id) {
			return false
		}
	}
	return true
}

// ContextSleep returns a SleepFunc on the wall clock that stops when ctx is done.
func ContextSleep(ctx context.Context) SleepFunc {
	return func(d time.Duration) error {
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			return nil
		}
	}
}
