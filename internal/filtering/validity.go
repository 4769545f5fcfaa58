package filtering

import (
	"context"

	"go.uber.org/zap"

	"github.com/rhysr01/jobping/internal/model"
)

const NameValidity = "validity"

type validityFilter struct{}

// NewValidity creates a filter that removes inactive jobs and jobs without hash, title or company.
// It cannot be disabled.
func NewValidity() Filter {
	return &validityFilter{}
}

func (f *validityFilter) Name() string { return NameValidity }

func (f *validityFilter) Disable(string) {}

func (f *validityFilter) IsEnabled() bool { return true }

func (f *validityFilter) Validate(*Config) error { return nil }

func (f *validityFilter) Apply(_ context.Context, deps Deps, jobs []model.Job) ([]model.Job, Step, error) {
	left, dropped := keep(jobs, func(j *model.Job) bool { return j.IsValid() })
	if deps.Logger != nil && len(dropped) > 0 {
		deps.Logger.Debug("excluding invalid or inactive jobs", zap.Int("excluded", len(dropped)))
	}
	return left, step(len(jobs), left), nil
}
