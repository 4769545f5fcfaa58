package filtering

import (
	"context"
	"errors"
	"strings"

	"github.com/rhysr01/jobping/internal/category"
	"github.com/rhysr01/jobping/internal/model"
	"github.com/rhysr01/jobping/internal/scoring"
)

const (
	NameCategory        = "category"
	NameWorkEnvironment = "work_environment"
)

type categoryFilter struct {
	toggle
}

// NewCategory creates a filter that keeps jobs sharing a category with the user's career paths.
// Users without career paths, or with all categories selected, keep every job.
func NewCategory() Filter {
	return &categoryFilter{}
}

func (f *categoryFilter) Name() string { return NameCategory }

func (f *categoryFilter) Validate(*Config) error { return nil }

func (f *categoryFilter) Apply(_ context.Context, deps Deps, jobs []model.Job) ([]model.Job, Step, error) {
	if deps.Prefs == nil || category.IsAllCategories(deps.Prefs.CareerPaths) {
		return jobs, step(len(jobs), jobs), nil
	}
	if deps.Mapper == nil {
		return nil, Step{}, errors.New("category mapper is required")
	}

	wanted := deps.Mapper.ExpandForm(deps.Prefs.CareerPaths)
	if len(wanted) == 0 {
		return jobs, step(len(jobs), jobs), nil
	}
	set := make(map[string]struct{}, len(wanted))
	for _, c := range wanted {
		set[c] = struct{}{}
	}

	left, _ := keep(jobs, func(j *model.Job) bool {
		for _, c := range j.Categories {
			if _, ok := set[c]; ok {
				return true
			}
		}
		return false
	})
	return left, step(len(jobs), left), nil
}

func (f *categoryFilter) Status() Status {
	return Status{Name: f.Name(), Enabled: f.IsEnabled(), Reason: f.reason}
}

type workEnvironmentFilter struct {
	toggle
}

// NewWorkEnvironment creates a filter that keeps jobs with the preferred work environment.
// Jobs that do not state one are kept.
func NewWorkEnvironment() Filter {
	return &workEnvironmentFilter{}
}

func (f *workEnvironmentFilter) Name() string { return NameWorkEnvironment }

func (f *workEnvironmentFilter) Validate(*Config) error { return nil }

func (f *workEnvironmentFilter) Apply(_ context.Context, deps Deps, jobs []model.Job) ([]model.Job, Step, error) {
	if deps.Prefs == nil || scoring.AcceptsAnyWorkEnvironment(deps.Prefs.WorkEnvironment) {
		return jobs, step(len(jobs), jobs), nil
	}

	want := strings.TrimSpace(deps.Prefs.WorkEnvironment)
	left, _ := keep(jobs, func(j *model.Job) bool {
		env := strings.TrimSpace(j.WorkEnvironment)
		return env == "" || strings.EqualFold(env, want)
	})
	return left, step(len(jobs), left), nil
}

func (f *workEnvironmentFilter) Status() Status {
	return Status{Name: f.Name(), Enabled: f.IsEnabled(), Reason: f.reason}
}
