package filtering

import (
	"context"
	"strconv"

	"go.uber.org/zap"

	"github.com/rhysr01/jobping/internal/model"
)

const NameSentHistory = "sent_history"

type sentHistoryFilter struct {
	toggle
	sent map[string]struct{}
}

// NewSentHistory creates a filter that removes jobs already delivered to the user.
func NewSentHistory() Filter {
	return &sentHistoryFilter{}
}

func (f *sentHistoryFilter) Name() string { return NameSentHistory }

func (f *sentHistoryFilter) Validate(cfg *Config) error {
	f.sent = nil
	if cfg == nil || len(cfg.SentJobs) == 0 {
		return nil
	}
	f.sent = make(map[string]struct{}, len(cfg.SentJobs))
	for _, hash := range cfg.SentJobs {
		f.sent[hash] = struct{}{}
	}
	return nil
}

func (f *sentHistoryFilter) Apply(_ context.Context, deps Deps, jobs []model.Job) ([]model.Job, Step, error) {
	if len(f.sent) == 0 {
		return jobs, step(len(jobs), jobs), nil
	}

	left, dropped := keep(jobs, func(j *model.Job) bool {
		_, seen := f.sent[j.JobHash]
		return !seen
	})
	if deps.Logger != nil && len(dropped) > 0 {
		deps.Logger.Debug("excluding jobs already sent to the user",
			zap.Strings("excluded_jobs", dropped),
			zap.Int("jobs_left", len(left)),
		)
	}
	return left, step(len(jobs), left), nil
}

func (f *sentHistoryFilter) Status() Status {
	return Status{
		Name:    f.Name(),
		Enabled: f.IsEnabled(),
		Reason:  f.reason,
		Details: map[string]string{"sent_jobs": strconv.Itoa(len(f.sent))},
	}
}
