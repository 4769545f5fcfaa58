package matching

import (
	"time"

	"github.com/rhysr01/jobping/internal/filtering"
	"github.com/rhysr01/jobping/internal/sendconfig"
)

// Level is one step of the relaxation ladder.
type Level string

const (
	LevelStrict          Level = "strict"
	LevelCityRelaxed     Level = "city_relaxed"
	LevelCategoryRelaxed Level = "category_relaxed"
	LevelScoreRelaxed    Level = "score_relaxed"
	LevelFullyRelaxed    Level = "fully_relaxed"
	// LevelExhausted is the terminal state of a run that stayed below target on every level.
	LevelExhausted Level = "exhausted"
)

// ConstraintSet lists the constraints enforced on one level. Validity is always enforced.
type ConstraintSet struct {
	Level Level
	City  bool
	// Category covers both the career path categories and the work environment.
	Category         bool
	MinScore         float64
	Lookback         time.Duration
	MaxJobsPerSource int
}

// Ladder returns the levels from tightest to loosest.
func Ladder(rules sendconfig.MatchRules) []ConstraintSet {
	lookback := time.Duration(rules.LookbackDays) * 24 * time.Hour
	return []ConstraintSet{
		{Level: LevelStrict, City: true, Category: true, MinScore: rules.MinScore, Lookback: lookback, MaxJobsPerSource: rules.MaxJobsPerSource},
		{Level: LevelCityRelaxed, Category: true, MinScore: rules.MinScore, Lookback: lookback, MaxJobsPerSource: rules.MaxJobsPerSource},
		{Level: LevelCategoryRelaxed, City: true, MinScore: rules.MinScore, Lookback: lookback, MaxJobsPerSource: rules.MaxJobsPerSource},
		{Level: LevelScoreRelaxed, City: true, Category: true, MinScore: rules.RelaxedMinScore, Lookback: lookback, MaxJobsPerSource: rules.MaxJobsPerSource},
		{Level: LevelFullyRelaxed},
	}
}

// Pipeline returns a fresh filter pipeline with the constraints this level drops disabled.
func (cs ConstraintSet) Pipeline() []filtering.Filter {
	steps := filtering.Default()
	reason := "relaxed at level " + string(cs.Level)

	if !cs.City {
		filtering.DisableByName(steps, filtering.NameCity, reason)
	}
	if !cs.Category {
		filtering.DisableByName(steps, filtering.NameCategory, reason)
		filtering.DisableByName(steps, filtering.NameWorkEnvironment, reason)
	}
	if cs.MinScore <= 0 {
		filtering.DisableByName(steps, filtering.NameMinScore, reason)
	}
	if cs.Lookback <= 0 {
		filtering.DisableByName(steps, filtering.NameLookback, reason)
	}
	if cs.MaxJobsPerSource <= 0 {
		filtering.DisableByName(steps, filtering.NameSourceCap, reason)
	}
	return steps
}

// FilterConfig returns the thresholds of this level merged with the run-wide exclusions.
func (cs ConstraintSet) FilterConfig(excludedCompanies, sentJobs []string) *filtering.Config {
	return &filtering.Config{
		MinScore:          cs.MinScore,
		Lookback:          cs.Lookback,
		MaxJobsPerSource:  cs.MaxJobsPerSource,
		ExcludedCompanies: excludedCompanies,
		SentJobs:          sentJobs,
	}
}
