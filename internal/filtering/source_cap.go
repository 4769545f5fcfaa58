package filtering

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/rhysr01/jobping/internal/model"
)

const NameSourceCap = "source_cap"

type sourceCapFilter struct {
	toggle
	max int
}

// NewSourceCap creates a filter that keeps at most MaxJobsPerSource of the freshest jobs of each source.
func NewSourceCap() Filter {
	return &sourceCapFilter{}
}

func (f *sourceCapFilter) Name() string { return NameSourceCap }

func (f *sourceCapFilter) Validate(cfg *Config) error {
	f.max = 0
	if cfg == nil {
		return nil
	}
	if cfg.MaxJobsPerSource < 0 {
		return errors.New("max jobs per source must not be negative")
	}
	f.max = cfg.MaxJobsPerSource
	return nil
}

func (f *sourceCapFilter) Apply(_ context.Context, deps Deps, jobs []model.Job) ([]model.Job, Step, error) {
	if f.max == 0 {
		return jobs, step(len(jobs), jobs), nil
	}

	order := make([]int, len(jobs))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		ja, jb := &jobs[order[a]], &jobs[order[b]]
		if fa, fb := ja.Freshness(), jb.Freshness(); !fa.Equal(fb) {
			return fa.After(fb)
		}
		return ja.JobHash < jb.JobHash
	})

	allowed := make([]bool, len(jobs))
	perSource := make(map[string]int)
	capped := make(map[string]struct{})
	for _, idx := range order {
		src := strings.ToLower(strings.TrimSpace(jobs[idx].Source))
		if perSource[src] >= f.max {
			capped[src] = struct{}{}
			continue
		}
		perSource[src]++
		allowed[idx] = true
	}

	left := make([]model.Job, 0, len(jobs))
	for i := range jobs {
		if allowed[i] {
			left = append(left, jobs[i])
		}
	}

	if deps.Logger != nil && len(capped) > 0 {
		sources := make([]string, 0, len(capped))
		for src := range capped {
			sources = append(sources, src)
		}
		sort.Strings(sources)
		deps.Logger.Debug("capping jobs per source", zap.Strings("sources", sources), zap.Int("max", f.max))
	}
	return left, step(len(jobs), left), nil
}

func (f *sourceCapFilter) Status() Status {
	return Status{
		Name:    f.Name(),
		Enabled: f.IsEnabled(),
		Reason:  f.reason,
		Details: map[string]string{"max_jobs_per_source": strconv.Itoa(f.max)},
	}
}
