// Package distributor selects the final, tier-capped list of jobs for a send.
package distributor

import (
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/rhysr01/jobping/internal/category"
	"github.com/rhysr01/jobping/internal/model"
)

// RichnessFunc is a cheap content quality proxy. Higher is better.
type RichnessFunc func(j *model.Job) int

// CharacterRichness sums the rune lengths of title, company and description.
func CharacterRichness(j *model.Job) int {
	return utf8.RuneCountInString(j.Title) + utf8.RuneCountInString(j.Company) + utf8.RuneCountInString(j.Description)
}

// Satisfaction bands used in TierDistribution.
const (
	BandPerfect  = "perfect"
	BandStrong   = "strong"
	BandPartial  = "partial"
	BandNone     = "none"
	BandUnscoped = "unscoped"
)

// Metrics describe one distribution run.
type Metrics struct {
	Tier             model.Tier
	TotalJobs        int
	ValidJobCount    int
	SelectedJobCount int
	ProcessingTime   time.Duration
	TierDistribution map[string]int
}

// Ranked is a selected job with the sort signals that placed it.
type Ranked struct {
	Job           model.Job
	Satisfaction  float64
	CategoryMatch int
	Completeness  int
	Richness      int
}

type Result struct {
	Jobs    []Ranked
	Metrics Metrics
}

type Distributor struct {
	mapper            *category.Mapper
	richness          RichnessFunc
	maxJobsPerCompany int
	logger            *zap.Logger
}

type Option func(*Distributor)

func WithRichness(fn RichnessFunc) Option {
	return func(d *Distributor) {
		if fn != nil {
			d.richness = fn
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(d *Distributor) {
		if l != nil {
			d.logger = l
		}
	}
}

// New creates a distributor. maxJobsPerCompany <= 0 disables the company cap.
func New(mapper *category.Mapper, maxJobsPerCompany int, opts ...Option) *Distributor {
	if mapper == nil {
		mapper = category.New()
	}
	d := &Distributor{
		mapper:            mapper,
		richness:          CharacterRichness,
		maxJobsPerCompany: maxJobsPerCompany,
		logger:            zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Distribute returns at most perSend of the valid jobs, ordered by the ranking keys.
// The output size is min(valid jobs, perSend) and identical input yields identical output.
func (d *Distributor) Distribute(prefs *model.UserPreferences, jobs []model.Job, tier model.Tier, perSend int) Result {
	start := time.Now()
	if prefs == nil {
		prefs = &model.UserPreferences{}
	}

	ranked := d.Rank(prefs, jobs)
	selected := d.selectDiverse(ranked, perSend)

	metrics := d.Summarize(prefs, tier, len(jobs), len(ranked), selected)
	metrics.ProcessingTime = time.Since(start)

	d.logger.Debug("jobs distributed",
		zap.String("tier", string(tier)),
		zap.Int("total_jobs", metrics.TotalJobs),
		zap.Int("valid_jobs", metrics.ValidJobCount),
		zap.Int("selected_jobs", metrics.SelectedJobCount),
		zap.Any("tier_distribution", metrics.TierDistribution),
	)

	return Result{Jobs: selected, Metrics: metrics}
}

// Rank drops invalid jobs and sorts the rest. The order is total: the job hash breaks
// any tie left by the ranking keys.
func (d *Distributor) Rank(prefs *model.UserPreferences, jobs []model.Job) []Ranked {
	scoped := !category.IsAllCategories(prefs.CareerPaths)
	wanted := d.mapper.ExpandForm(prefs.CareerPaths)
	if len(wanted) == 0 {
		scoped = false
	}
	wantedSet := make(map[string]struct{}, len(wanted))
	for _, c := range wanted {
		wantedSet[c] = struct{}{}
	}

	ranked := make([]Ranked, 0, len(jobs))
	for i := range jobs {
		j := &jobs[i]
		if !j.IsValid() {
			continue
		}
		ranked = append(ranked, Ranked{
			Job:           *j,
			Satisfaction:  d.mapper.GetStudentSatisfactionScore(j.Categories, prefs.CareerPaths),
			CategoryMatch: categoryMatch(j.Categories, scoped, wantedSet),
			Completeness:  completeness(j),
			Richness:      d.richness(j),
		})
	}

	sort.SliceStable(ranked, func(a, b int) bool {
		return less(&ranked[a], &ranked[b])
	})
	return ranked
}

func less(a, b *Ranked) bool {
	if a.Satisfaction != b.Satisfaction {
		return a.Satisfaction > b.Satisfaction
	}
	if a.CategoryMatch != b.CategoryMatch {
		return a.CategoryMatch > b.CategoryMatch
	}
	if a.Completeness != b.Completeness {
		return a.Completeness > b.Completeness
	}
	if a.Richness != b.Richness {
		return a.Richness > b.Richness
	}
	if fa, fb := a.Job.Freshness(), b.Job.Freshness(); !fa.Equal(fb) {
		return fa.After(fb)
	}
	return a.Job.JobHash < b.Job.JobHash
}

// categoryMatch counts exact matches against the user's mapped career paths, or, for users
// who accept every category, the job categories that belong to the canonical vocabulary.
func categoryMatch(jobCategories []string, scoped bool, wanted map[string]struct{}) int {
	n := 0
	for _, c := range jobCategories {
		if scoped {
			if _, ok := wanted[c]; ok {
				n++
			}
			continue
		}
		if category.IsCanonical(c) {
			n++
		}
	}
	return n
}

func completeness(j *model.Job) int {
	n := 0
	if strings.TrimSpace(j.City) != "" {
		n++
	}
	if strings.TrimSpace(j.WorkEnvironment) != "" {
		n++
	}
	if j.ExperienceLevel() != "" {
		n++
	}
	return n
}

// SelectDiverse takes up to limit jobs from an already ordered list, at most maxPerCompany
// per company in a first pass, then backfills from the skipped jobs. The selection keeps
// the input order.
func SelectDiverse[T any](ordered []T, limit, maxPerCompany int, company func(T) string) []T {
	if limit <= 0 || len(ordered) == 0 {
		return nil
	}
	if limit > len(ordered) {
		limit = len(ordered)
	}

	picked := make([]bool, len(ordered))
	count := 0
	perCompany := make(map[string]int)
	for i, item := range ordered {
		if count == limit {
			break
		}
		key := strings.ToLower(strings.TrimSpace(company(item)))
		if maxPerCompany > 0 && perCompany[key] >= maxPerCompany {
			continue
		}
		perCompany[key]++
		picked[i] = true
		count++
	}
	for i := range ordered {
		if count == limit {
			break
		}
		if !picked[i] {
			picked[i] = true
			count++
		}
	}

	out := make([]T, 0, limit)
	for i, item := range ordered {
		if picked[i] {
			out = append(out, item)
		}
	}
	return out
}

func (d *Distributor) selectDiverse(ranked []Ranked, perSend int) []Ranked {
	return SelectDiverse(ranked, perSend, d.maxJobsPerCompany, func(r Ranked) string { return r.Job.Company })
}

// MaxJobsPerCompany is the company cap applied by the first selection pass.
func (d *Distributor) MaxJobsPerCompany() int {
	return d.maxJobsPerCompany
}

// Summarize builds the metrics of a selection made from total input jobs, valid of which passed validation.
func (d *Distributor) Summarize(prefs *model.UserPreferences, tier model.Tier, total, valid int, selected []Ranked) Metrics {
	if prefs == nil {
		prefs = &model.UserPreferences{}
	}
	return Metrics{
		Tier:             tier,
		TotalJobs:        total,
		ValidJobCount:    valid,
		SelectedJobCount: len(selected),
		TierDistribution: d.bands(prefs, selected),
	}
}

func (d *Distributor) bands(prefs *model.UserPreferences, selected []Ranked) map[string]int {
	out := map[string]int{}
	unscoped := len(d.mapper.ExpandForm(prefs.CareerPaths)) == 0
	for _, r := range selected {
		switch {
		case unscoped:
			out[BandUnscoped]++
		case r.Satisfaction >= 100:
			out[BandPerfect]++
		case r.Satisfaction >= 60:
			out[BandStrong]++
		case r.Satisfaction > 0:
			out[BandPartial]++
		default:
			out[BandNone]++
		}
	}
	return out
}
