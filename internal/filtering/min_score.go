package filtering

import (
	"context"
	"errors"
	"fmt"

	"github.com/rhysr01/jobping/internal/model"
)

const NameMinScore = "min_score"

type minScoreFilter struct {
	toggle
	min float64
}

// NewMinScore creates a filter that removes jobs whose rule-based score is below MinScore.
func NewMinScore() Filter {
	return &minScoreFilter{}
}

func (f *minScoreFilter) Name() string { return NameMinScore }

func (f *minScoreFilter) Validate(cfg *Config) error {
	f.min = 0
	if cfg == nil {
		return nil
	}
	if cfg.MinScore < 0 || cfg.MinScore > 100 {
		return fmt.Errorf("minimum score %.2f is outside 0..100", cfg.MinScore)
	}
	f.min = cfg.MinScore
	return nil
}

func (f *minScoreFilter) Apply(_ context.Context, deps Deps, jobs []model.Job) ([]model.Job, Step, error) {
	if f.min == 0 {
		return jobs, step(len(jobs), jobs), nil
	}
	if deps.Scorer == nil {
		return nil, Step{}, errors.New("scorer is required")
	}

	left, _ := keep(jobs, func(j *model.Job) bool {
		return deps.Scorer.Score(deps.Prefs, j, 0, deps.Now).Total >= f.min
	})
	return left, step(len(jobs), left), nil
}

func (f *minScoreFilter) Status() Status {
	return Status{
		Name:    f.Name(),
		Enabled: f.IsEnabled(),
		Reason:  f.reason,
		Details: map[string]string{"min_score": fmt.Sprintf("%.2f", f.min)},
	}
}
