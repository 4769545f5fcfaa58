package filtering

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/rhysr01/jobping/internal/model"
)

const NameCompanies = "companies"

type companiesFilter struct {
	toggle
	companies []string
}

// NewCompanies creates a filter that removes jobs by companies excluded in the config.
func NewCompanies() Filter {
	return &companiesFilter{}
}

func (f *companiesFilter) Name() string { return NameCompanies }

func (f *companiesFilter) Validate(cfg *Config) error {
	f.companies = nil
	if cfg != nil {
		for _, c := range cfg.ExcludedCompanies {
			if c = strings.TrimSpace(c); c != "" {
				f.companies = append(f.companies, c)
			}
		}
	}
	return nil
}

func (f *companiesFilter) Apply(_ context.Context, deps Deps, jobs []model.Job) ([]model.Job, Step, error) {
	if len(f.companies) == 0 {
		return jobs, step(len(jobs), jobs), nil
	}

	left, dropped := keep(jobs, func(j *model.Job) bool {
		for _, c := range f.companies {
			if strings.EqualFold(strings.TrimSpace(j.Company), c) {
				return false
			}
		}
		return true
	})
	if deps.Logger != nil && len(dropped) > 0 {
		deps.Logger.Debug("excluding jobs by companies",
			zap.Strings("excluded_companies", f.companies),
			zap.Strings("excluded_jobs", dropped),
			zap.Int("jobs_left", len(left)),
		)
	}
	return left, step(len(jobs), left), nil
}

func (f *companiesFilter) Status() Status {
	details := map[string]string{}
	if len(f.companies) > 0 {
		details["companies"] = strings.Join(f.companies, ",")
	}
	return Status{Name: f.Name(), Enabled: f.IsEnabled(), Reason: f.reason, Details: details}
}
