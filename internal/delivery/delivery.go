package delivery

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rhysr01/jobping/internal/logger"
	"github.com/rhysr01/jobping/internal/matching"
	"github.com/rhysr01/jobping/internal/model"
	"github.com/rhysr01/jobping/internal/sendconfig"
	"github.com/rhysr01/jobping/internal/store"
)

// Store is the persistence a delivery run reads and writes.
type Store interface {
	ActiveJobs(ctx context.Context, q store.PoolQuery) ([]model.Job, error)
	GetUserPreferences(ctx context.Context, email string) (*model.UserPreferences, error)
	ActiveUserEmails(ctx context.Context) ([]string, error)
	SaveMatches(ctx context.Context, email string, run store.MatchRun, matches []model.MatchResult) error
	LatestLedger(ctx context.Context, email string) (*model.SendLedgerEntry, error)
	UpsertLedger(ctx context.Context, entry model.SendLedgerEntry) error
}

// Matcher computes one user's matches.
type Matcher interface {
	ComputeMatches(ctx context.Context, prefs *model.UserPreferences, pool []model.Job) matching.Outcome
}

type Status string

const (
	StatusSent           Status = "sent"
	StatusSkipped        Status = "skipped"
	StatusQuotaExhausted Status = "quota_exhausted"
	StatusNotSendDay     Status = "not_send_day"
	StatusDryRun         Status = "dry_run"
	StatusDeclined       Status = "declined"
	StatusFailed         Status = "failed"
)

type Config struct {
	// PoolLimit caps the number of active jobs loaded per run. Zero loads everything.
	PoolLimit uint `mapstructure:"pool-limit"`
	// PoolMaxAge drops jobs ingested earlier than this. Zero keeps everything.
	PoolMaxAge  time.Duration `mapstructure:"pool-max-age"`
	Concurrency int           `mapstructure:"concurrency"`
	// UserTimeout bounds one user's matching run. The ladder returns its best level when it expires.
	UserTimeout time.Duration `mapstructure:"user-timeout"`
	// RespectSendDays skips users whose tier has no digest today.
	RespectSendDays bool `mapstructure:"respect-send-days"`
}

func DefaultConfig() Config {
	return Config{
		Concurrency: 4,
		UserTimeout: 60 * time.Second,
	}
}

// Options control one invocation.
type Options struct {
	DryRun bool
	// Confirm is asked before matches are persisted. Nil approves everything.
	Confirm func(Report) (bool, error)
}

// Report describes what happened for one user.
type Report struct {
	Email   string
	Tier    model.Tier
	Status  Status
	Outcome matching.Outcome
	Ledger  *model.SendLedgerEntry
	Err     error
}

type Runner struct {
	store   Store
	matcher Matcher
	send    sendconfig.Config
	cfg     Config
	logger  *zap.Logger
	now     func() time.Time
	// confirmMu serializes Confirm, which usually talks to a terminal.
	confirmMu sync.Mutex
}

func NewRunner(st Store, matcher Matcher, send sendconfig.Config, cfg Config, log *zap.Logger) *Runner {
	d := DefaultConfig()
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = d.Concurrency
	}
	if cfg.UserTimeout <= 0 {
		cfg.UserTimeout = d.UserTimeout
	}
	if send.Tiers == nil {
		send = sendconfig.Default()
	}

	return &Runner{
		store:   st,
		matcher: matcher,
		send:    send,
		cfg:     cfg,
		logger:  logger.WithFields(log, logger.Stage("delivery")),
		now:     time.Now,
	}
}

// LoadPool reads the active job pool shared by every user of a run.
func (r *Runner) LoadPool(ctx context.Context) ([]model.Job, error) {
	q := store.PoolQuery{Limit: r.cfg.PoolLimit}
	if r.cfg.PoolMaxAge > 0 {
		q.Since = r.now().Add(-r.cfg.PoolMaxAge)
	}

	pool, err := r.store.ActiveJobs(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("load job pool: %w", err)
	}
	r.logger.Info("job pool loaded", zap.Int("jobs", len(pool)))
	return pool, nil
}

// RunUser computes and, unless told otherwise, persists one user's send.
func (r *Runner) RunUser(ctx context.Context, email string, pool []model.Job, opts Options) (Report, error) {
	report := Report{Email: email}
	log := r.logger.With(zap.String(logger.FieldUser, email))

	prefs, err := r.store.GetUserPreferences(ctx, email)
	if err != nil {
		return report, fmt.Errorf("load preferences of %s: %w", email, err)
	}
	report.Tier = prefs.Tier

	ledger, err := r.store.LatestLedger(ctx, email)
	if err != nil {
		return report, fmt.Errorf("load send ledger of %s: %w", email, err)
	}
	report.Ledger = ledger

	now := r.now()
	if r.cfg.RespectSendDays && !r.send.IsSendDay(prefs.Tier, now) {
		report.Status = StatusNotSendDay
		log.Debug("no digest today", zap.String("tier", string(prefs.Tier)), zap.String("weekday", now.Weekday().String()))
		return report, nil
	}
	if !r.send.CanUserReceiveSend(ledger, now, prefs.Tier) {
		report.Status = StatusQuotaExhausted
		log.Info("weekly send quota used up", zap.String("tier", string(prefs.Tier)))
		return report, nil
	}

	runCtx, cancel := context.WithTimeout(ctx, r.cfg.UserTimeout)
	report.Outcome = r.matcher.ComputeMatches(runCtx, prefs, pool)
	cancel()

	matches := report.Outcome.Matches
	if r.send.ShouldSkipSend(len(matches), prefs.Tier) {
		report.Status = StatusSkipped
		log.Info("too few matches for a send",
			zap.Int("matches", len(matches)),
			zap.Int("target", r.send.JobsPerSend(prefs.Tier)),
		)
		return report, nil
	}

	if opts.DryRun {
		report.Status = StatusDryRun
		return report, nil
	}

	if opts.Confirm != nil {
		r.confirmMu.Lock()
		ok, err := opts.Confirm(report)
		r.confirmMu.Unlock()
		if err != nil {
			return report, fmt.Errorf("confirm send to %s: %w", email, err)
		}
		if !ok {
			report.Status = StatusDeclined
			return report, nil
		}
	}

	next, ok := r.send.RecordSend(ledger, email, prefs.Tier, len(matches), now)
	if !ok {
		report.Status = StatusQuotaExhausted
		return report, nil
	}

	meta := report.Outcome.Metadata
	run := store.MatchRun{
		RunID:           meta.RunID,
		MatchingMethod:  string(meta.MatchingMethod),
		RelaxationLevel: string(meta.RelaxationLevel),
	}
	if err := r.store.SaveMatches(ctx, email, run, matches); err != nil {
		return report, fmt.Errorf("save matches of %s: %w", email, err)
	}
	if err := r.store.UpsertLedger(ctx, next); err != nil {
		return report, fmt.Errorf("record send of %s: %w", email, err)
	}

	report.Ledger = &next
	report.Status = StatusSent
	log.Info("send recorded",
		zap.String(logger.FieldRunID, meta.RunID),
		zap.Int("matches", len(matches)),
		zap.Int("sends_used", next.SendsUsed),
	)
	return report, nil
}

// RunAll runs every active user against one shared pool. Per-user failures are
// reported with StatusFailed and never stop the others.
func (r *Runner) RunAll(ctx context.Context, opts Options) ([]Report, error) {
	pool, err := r.LoadPool(ctx)
	if err != nil {
		return nil, err
	}

	emails, err := r.store.ActiveUserEmails(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active users: %w", err)
	}

	reports := make([]Report, len(emails))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Concurrency)

	for i, email := range emails {
		g.Go(func() error {
			report, err := r.RunUser(gctx, email, pool, opts)
			if err != nil {
				report.Status = StatusFailed
				report.Err = err
				r.logger.Error("delivery failed", zap.String(logger.FieldUser, email), zap.Error(err))
			}
			reports[i] = report

			if errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	err = g.Wait()
	r.logger.Info("delivery run finished", zap.Any("statuses", Summarize(reports)))
	return reports, err
}

// Summarize counts reports per status.
func Summarize(reports []Report) map[Status]int {
	out := make(map[Status]int)
	for _, rep := range reports {
		if rep.Status != "" {
			out[rep.Status]++
		}
	}
	return out
}
