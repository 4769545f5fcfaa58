package filtering

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/rhysr01/jobping/internal/category"
	"github.com/rhysr01/jobping/internal/model"
	"github.com/rhysr01/jobping/internal/scoring"
)

// Filter represents a single filtering step applied to the job pool.
type Filter interface {
	Name() string
	Disable(reason string)
	IsEnabled() bool

	Validate(cfg *Config) error
	Apply(ctx context.Context, deps Deps, jobs []model.Job) ([]model.Job, Step, error)
}

// Deps aggregates dependencies shared across all filtering steps.
type Deps struct {
	Logger *zap.Logger
	Prefs  *model.UserPreferences
	Mapper *category.Mapper
	Scorer *scoring.Scorer
	Now    time.Time
}

// Step describes the result of executing a filtering step.
type Step struct {
	Initial int
	Dropped int
	Left    int
}

// Config contains the thresholds consumed by the filters.
type Config struct {
	MinScore          float64
	Lookback          time.Duration
	MaxJobsPerSource  int
	ExcludedCompanies []string
	SentJobs          []string
}

// Status represents runtime information about a filter.
type Status struct {
	Name    string
	Enabled bool
	Reason  string
	Details map[string]string
}

// statusProvider is implemented by filters that can supply detailed status information.
type statusProvider interface {
	Status() Status
}

// Default returns a fresh pipeline in evaluation order.
func Default() []Filter {
	return []Filter{
		NewValidity(),
		NewSentHistory(),
		NewCompanies(),
		NewLookback(),
		NewCity(),
		NewCategory(),
		NewWorkEnvironment(),
		NewSourceCap(),
		NewMinScore(),
	}
}

// DisableByName marks a filter with the provided name as disabled while keeping it in the list.
func DisableByName(steps []Filter, name, reason string) {
	for _, step := range steps {
		if step.Name() == name {
			step.Disable(reason)
		}
	}
}

// Run executes the supplied filters sequentially and returns the jobs left.
// The input slice is never modified.
func Run(ctx context.Context, cfg *Config, deps Deps, steps []Filter, jobs []model.Job) ([]model.Job, error) {
	for _, step := range steps {
		if !step.IsEnabled() {
			continue
		}
		if err := step.Validate(cfg); err != nil {
			return nil, fmt.Errorf("%s: %w", step.Name(), err)
		}
	}

	for _, step := range steps {
		if !step.IsEnabled() {
			if deps.Logger != nil {
				deps.Logger.Debug("filter disabled", zap.String("name", step.Name()))
			}
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		next, info, err := step.Apply(ctx, deps, jobs)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", step.Name(), err)
		}

		if deps.Logger != nil {
			deps.Logger.Debug("filter step",
				zap.String("name", step.Name()),
				zap.Int("initial", info.Initial),
				zap.Int("dropped", info.Dropped),
				zap.Int("left", info.Left),
			)
		}

		jobs = next
	}

	return jobs, nil
}

// Describe returns status entries for the provided filters.
func Describe(steps []Filter) []Status {
	statuses := make([]Status, 0, len(steps))
	for _, step := range steps {
		if reporter, ok := step.(statusProvider); ok {
			statuses = append(statuses, reporter.Status())
			continue
		}

		statuses = append(statuses, Status{
			Name:    step.Name(),
			Enabled: step.IsEnabled(),
		})
	}
	return statuses
}

type toggle struct {
	disabled bool
	reason   string
}

func (t *toggle) Disable(reason string) {
	t.disabled = true
	t.reason = reason
}

func (t *toggle) IsEnabled() bool { return !t.disabled }

// keep returns the jobs matching pred and the hashes of the others.
func keep(jobs []model.Job, pred func(j *model.Job) bool) ([]model.Job, []string) {
	out := make([]model.Job, 0, len(jobs))
	var dropped []string
	for i := range jobs {
		if pred(&jobs[i]) {
			out = append(out, jobs[i])
			continue
		}
		dropped = append(dropped, jobs[i].JobHash)
	}
	return out, dropped
}

func step(initial int, left []model.Job) Step {
	return Step{Initial: initial, Dropped: initial - len(left), Left: len(left)}
}
