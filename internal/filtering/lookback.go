package filtering

import (
	"context"
	"errors"
	"time"

	"github.com/rhysr01/jobping/internal/model"
)

const NameLookback = "lookback"

type lookbackFilter struct {
	toggle
	window time.Duration
}

// NewLookback creates a filter that removes jobs posted before the lookback window.
func NewLookback() Filter {
	return &lookbackFilter{}
}

func (f *lookbackFilter) Name() string { return NameLookback }

func (f *lookbackFilter) Validate(cfg *Config) error {
	f.window = 0
	if cfg == nil {
		return nil
	}
	if cfg.Lookback < 0 {
		return errors.New("lookback window must not be negative")
	}
	f.window = cfg.Lookback
	return nil
}

func (f *lookbackFilter) Apply(_ context.Context, deps Deps, jobs []model.Job) ([]model.Job, Step, error) {
	if f.window == 0 || deps.Now.IsZero() {
		return jobs, step(len(jobs), jobs), nil
	}

	cutoff := deps.Now.Add(-f.window)
	left, _ := keep(jobs, func(j *model.Job) bool {
		fresh := j.Freshness()
		return !fresh.IsZero() && !fresh.Before(cutoff)
	})
	return left, step(len(jobs), left), nil
}

func (f *lookbackFilter) Status() Status {
	return Status{
		Name:    f.Name(),
		Enabled: f.IsEnabled(),
		Reason:  f.reason,
		Details: map[string]string{"window": f.window.String()},
	}
}
