package filtering

import (
	"context"
	"strings"

	"github.com/rhysr01/jobping/internal/model"
	"github.com/rhysr01/jobping/internal/scoring"
)

const NameCity = "city"

type cityFilter struct {
	toggle
}

// NewCity creates a filter that keeps jobs located in one of the user's target cities.
// Users without target cities keep every job.
func NewCity() Filter {
	return &cityFilter{}
}

func (f *cityFilter) Name() string { return NameCity }

func (f *cityFilter) Validate(*Config) error { return nil }

func (f *cityFilter) Apply(_ context.Context, deps Deps, jobs []model.Job) ([]model.Job, Step, error) {
	cities := targetCities(deps.Prefs)
	if len(cities) == 0 {
		return jobs, step(len(jobs), jobs), nil
	}

	left, _ := keep(jobs, func(j *model.Job) bool { return scoring.MatchesCity(cities, j) })
	return left, step(len(jobs), left), nil
}

func (f *cityFilter) Status() Status {
	return Status{Name: f.Name(), Enabled: f.IsEnabled(), Reason: f.reason}
}

func targetCities(prefs *model.UserPreferences) []string {
	if prefs == nil {
		return nil
	}
	var out []string
	for _, c := range prefs.Cities {
		if c = strings.TrimSpace(c); c != "" {
			out = append(out, c)
		}
	}
	return out
}
