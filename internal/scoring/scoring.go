// Package scoring computes the rule-based match score of a job for a user.
package scoring

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rhysr01/jobping/internal/category"
	"github.com/rhysr01/jobping/internal/model"
)

// Weights are the maximum points of each signal. The signal weights add up to 100.
type Weights struct {
	Category        float64 `mapstructure:"category"`
	Location        float64 `mapstructure:"location"`
	Experience      float64 `mapstructure:"experience"`
	WorkEnvironment float64 `mapstructure:"work-environment"`
	Recency         float64 `mapstructure:"recency"`
	// LanguagePenalty is subtracted when the job requires a language the user does not speak.
	LanguagePenalty float64 `mapstructure:"language-penalty"`
	// SemanticBlend is the share of the final score taken from semantic similarity, when present.
	SemanticBlend float64 `mapstructure:"semantic-blend"`
	FreshDays     int     `mapstructure:"fresh-days"`
	MaxAgeDays    int     `mapstructure:"max-age-days"`
}

func DefaultWeights() Weights {
	return Weights{
		Category:        35,
		Location:        25,
		Experience:      20,
		WorkEnvironment: 10,
		Recency:         10,
		LanguagePenalty: 15,
		SemanticBlend:   0.3,
		FreshDays:       7,
		MaxAgeDays:      30,
	}
}

// Breakdown holds the points each signal contributed.
type Breakdown struct {
	Category        float64
	Location        float64
	Experience      float64
	WorkEnvironment float64
	Recency         float64
	LanguagePenalty float64
	Semantic        float64
}

type Score struct {
	Total     float64
	Breakdown Breakdown
	Reason    string
}

type Scorer struct {
	mapper  *category.Mapper
	weights Weights
}

func New(mapper *category.Mapper, weights Weights) *Scorer {
	if mapper == nil {
		mapper = category.New()
	}
	if weights.MaxAgeDays <= weights.FreshDays {
		weights.MaxAgeDays = weights.FreshDays + 1
	}
	return &Scorer{mapper: mapper, weights: weights}
}

// Score rates job for prefs at now. semantic is the cosine similarity in 0..1, or 0 when unknown.
// The result is a pure function of its arguments.
func (s *Scorer) Score(prefs *model.UserPreferences, job *model.Job, semantic float64, now time.Time) Score {
	if prefs == nil || job == nil {
		return Score{}
	}
	w := s.weights
	var b Breakdown

	unscoped := len(s.mapper.ExpandForm(prefs.CareerPaths)) == 0 || category.IsAllCategories(prefs.CareerPaths)
	if unscoped {
		b.Category = w.Category
	} else {
		b.Category = w.Category * s.mapper.GetStudentSatisfactionScore(job.Categories, prefs.CareerPaths) / 100
	}

	city, cityOK := matchCity(prefs.Cities, job)
	switch {
	case len(prefs.Cities) == 0:
		b.Location = w.Location
	case cityOK:
		b.Location = w.Location
	case strings.EqualFold(job.WorkEnvironment, "remote"):
		b.Location = w.Location * 0.6
	}

	b.Experience = w.Experience * experienceCredit(prefs.EntryLevelPreference, job.ExperienceLevel())
	b.WorkEnvironment = w.WorkEnvironment * workEnvironmentCredit(prefs.WorkEnvironment, job.WorkEnvironment)

	ageDays := -1.0
	if fresh := job.Freshness(); !fresh.IsZero() {
		ageDays = math.Max(0, now.Sub(fresh).Hours()/24)
		b.Recency = w.Recency * recencyCredit(ageDays, float64(w.FreshDays), float64(w.MaxAgeDays))
	}

	if missing := missingLanguages(prefs.Languages, job.LanguageRequirements); len(missing) > 0 {
		b.LanguagePenalty = w.LanguagePenalty
	}

	total := b.Category + b.Location + b.Experience + b.WorkEnvironment + b.Recency - b.LanguagePenalty
	if semantic > 0 && w.SemanticBlend > 0 {
		b.Semantic = math.Min(semantic, 1) * 100
		total = total*(1-w.SemanticBlend) + b.Semantic*w.SemanticBlend
	}
	total = clamp(total)

	return Score{
		Total:     math.Round(total*100) / 100,
		Breakdown: b,
		Reason:    s.reason(prefs, job, b, unscoped, city, ageDays),
	}
}

func (s *Scorer) reason(prefs *model.UserPreferences, job *model.Job, b Breakdown, unscoped bool, city string, ageDays float64) string {
	w := s.weights
	var parts []string

	if !unscoped && b.Category > 0 {
		matched := overlap(job.Categories, s.mapper.ExpandForm(prefs.CareerPaths))
		parts = append(parts, "Matches your "+strings.Join(matched, ", ")+" career path")
	}
	if city != "" {
		parts = append(parts, "Located in "+city)
	} else if len(prefs.Cities) > 0 && b.Location > 0 {
		parts = append(parts, "Remote role")
	}
	if level := job.ExperienceLevel(); level != "" && b.Experience >= w.Experience/2 {
		parts = append(parts, experienceLabel(level))
	}
	if job.WorkEnvironment != "" && b.WorkEnvironment == w.WorkEnvironment && prefs.WorkEnvironment != "" {
		parts = append(parts, titleCase(job.WorkEnvironment)+" working")
	}
	if ageDays >= 0 && ageDays <= float64(w.FreshDays) {
		parts = append(parts, "Posted recently")
	}
	if b.Semantic > 0 {
		parts = append(parts, fmt.Sprintf("Strong profile similarity (%.0f%%)", b.Semantic))
	}
	if b.LanguagePenalty > 0 {
		parts = append(parts, "Requires "+strings.Join(missingLanguages(prefs.Languages, job.LanguageRequirements), ", "))
	}

	if len(parts) == 0 {
		return "General match for your profile"
	}
	return strings.Join(parts, "; ")
}

func matchCity(cities []string, job *model.Job) (string, bool) {
	for _, c := range cities {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if strings.EqualFold(job.City, c) || containsFold(job.Location, c) {
			return c, true
		}
	}
	return "", false
}

// MatchesCity reports whether the job is located in one of the cities.
func MatchesCity(cities []string, job *model.Job) bool {
	_, ok := matchCity(cities, job)
	return ok
}

func normalizeLevel(level string) string {
	l := strings.ToLower(strings.TrimSpace(level))
	switch {
	case l == "":
		return ""
	case strings.Contains(l, "intern"):
		return "internship"
	case strings.Contains(l, "grad"):
		return "graduate"
	case strings.Contains(l, "entry"), strings.Contains(l, "early"), strings.Contains(l, "junior"):
		return "early-career"
	}
	return l
}

func experienceCredit(preference, level string) float64 {
	pref := normalizeLevel(preference)
	switch {
	case level == "":
		return 0.25
	case pref == "" || pref == level:
		return 1
	}
	return 0.5
}

func experienceLabel(level string) string {
	switch level {
	case "internship":
		return "Internship"
	case "graduate":
		return "Graduate programme"
	}
	return "Entry-level role"
}

// AcceptsAnyWorkEnvironment reports whether a preference leaves the work environment open.
func AcceptsAnyWorkEnvironment(preference string) bool {
	switch strings.ToLower(strings.TrimSpace(preference)) {
	case "", "any", "flexible", "no preference", "no-preference":
		return true
	}
	return false
}

func workEnvironmentCredit(preference, jobEnv string) float64 {
	switch {
	case AcceptsAnyWorkEnvironment(preference):
		return 1
	case strings.TrimSpace(jobEnv) == "":
		return 0.5
	case strings.EqualFold(strings.TrimSpace(preference), strings.TrimSpace(jobEnv)):
		return 1
	case strings.EqualFold(jobEnv, "hybrid"):
		return 0.5
	}
	return 0
}

func recencyCredit(ageDays, freshDays, maxAgeDays float64) float64 {
	switch {
	case ageDays <= freshDays:
		return 1
	case ageDays >= maxAgeDays:
		return 0
	}
	return (maxAgeDays - ageDays) / (maxAgeDays - freshDays)
}

func missingLanguages(spoken, required []string) []string {
	if len(spoken) == 0 || len(required) == 0 {
		return nil
	}
	known := make(map[string]struct{}, len(spoken))
	for _, l := range spoken {
		known[strings.ToLower(strings.TrimSpace(l))] = struct{}{}
	}
	var missing []string
	for _, l := range required {
		if _, ok := known[strings.ToLower(strings.TrimSpace(l))]; !ok && strings.TrimSpace(l) != "" {
			missing = append(missing, l)
		}
	}
	return missing
}

func overlap(jobCategories, userCategories []string) []string {
	set := make(map[string]struct{}, len(jobCategories))
	for _, c := range jobCategories {
		set[c] = struct{}{}
	}
	var out []string
	for _, c := range userCategories {
		if _, ok := set[c]; ok {
			out = append(out, c)
		}
	}
	return out
}

func containsFold(s, substr string) bool {
	return substr != "" && strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

func titleCase(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	}
	return v
}
