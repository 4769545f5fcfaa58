package schedule

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/rhysr01/jobping/internal/logger"
)

// Job is a unit of periodic work.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// FuncJob adapts a function to Job.
type FuncJob struct {
	JobName string
	Fn      func(ctx context.Context) error
}

func (f FuncJob) Name() string { return f.JobName }

func (f FuncJob) Run(ctx context.Context) error { return f.Fn(ctx) }

type Scheduler struct {
	cron    *cron.Cron
	entries map[string]cron.EntryID
	ctx     context.Context
	logger  *zap.Logger
}

// New returns a scheduler accepting standard five-field cron specs.
func New(log *zap.Logger) *Scheduler {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	return &Scheduler{
		cron:    cron.New(cron.WithParser(parser)),
		entries: make(map[string]cron.EntryID),
		logger:  logger.WithFields(log, logger.Stage("schedule")),
	}
}

// AddJob registers job under spec. Job names must be unique.
func (s *Scheduler) AddJob(job Job, spec string) error {
	name := job.Name()
	log := s.logger.With(zap.String("job", name), zap.String("spec", spec))
	if _, ok := s.entries[name]; ok {
		return fmt.Errorf("job %q already scheduled", name)
	}

	entryID, err := s.cron.AddFunc(spec, s.wrap(job, spec))
	if err != nil {
		log.Error("schedule job failed", zap.Error(err))
		return fmt.Errorf("schedule %s: %w", name, err)
	}
	s.entries[name] = entryID
	log.Info("job scheduled")
	return nil
}

// Next returns the next activation time of a scheduled job.
func (s *Scheduler) Next(name string) (time.Time, bool) {
	id, ok := s.entries[name]
	if !ok {
		return time.Time{}, false
	}
	return s.cron.Entry(id).Next, true
}

// Start runs jobs in the background. ctx is handed to every job run.
func (s *Scheduler) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.ctx = ctx
	s.cron.Start()
}

// Stop prevents new runs and waits for running jobs to return.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// wrap skips a tick while the previous run of the same job is still going.
func (s *Scheduler) wrap(job Job, spec string) func() {
	var running atomic.Bool
	return func() {
		log := s.logger.With(zap.String("job", job.Name()), zap.String("spec", spec))
		if !running.CompareAndSwap(false, true) {
			log.Info("job skipped: still running")
			return
		}
		defer running.Store(false)

		ctx := s.ctx
		if ctx == nil {
			ctx = context.Background()
		}

		start := time.Now()
		log.Info("job started")
		err := job.Run(ctx)
		elapsed := time.Since(start)
		if err != nil {
			log.Error("job finished", zap.Error(err), zap.Duration("duration", elapsed))
			return
		}
		log.Info("job finished", zap.Duration("duration", elapsed))
	}
}
