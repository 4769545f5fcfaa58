package scoring

import (
	"strings"
	"testing"
	"time"

	"github.com/rhysr01/jobping/internal/model"
)

var now = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

func daysAgo(d int) time.Time {
	return now.AddDate(0, 0, -d)
}

func berlinJob() model.Job {
	posted := daysAgo(2)
	return model.Job{
		JobHash:         "h1",
		Title:           "Investment Analyst",
		Company:         "Acme Capital",
		City:            "Berlin",
		WorkEnvironment: "hybrid",
		Categories:      []string{"finance-investment", "early-career"},
		IsGraduate:      true,
		IsActive:        true,
		PostedAt:        &posted,
	}
}

func TestScorePerfectMatch(t *testing.T) {
	s := New(nil, DefaultWeights())
	prefs := &model.UserPreferences{
		Cities:               []string{"berlin"},
		CareerPaths:          []string{"Finance & Investment"},
		WorkEnvironment:      "Hybrid",
		EntryLevelPreference: "Graduate Programmes",
	}
	job := berlinJob()

	got := s.Score(prefs, &job, 0, now)
	if got.Total != 100 {
		t.Fatalf("expected 100, got %v (%+v)", got.Total, got.Breakdown)
	}
	for _, want := range []string{"finance-investment", "Located in berlin", "Graduate programme", "Hybrid working", "Posted recently"} {
		if !strings.Contains(got.Reason, want) {
			t.Fatalf("reason %q does not mention %q", got.Reason, want)
		}
	}
}

func TestScoreSignals(t *testing.T) {
	base := &model.UserPreferences{Cities: []string{"Berlin"}, CareerPaths: []string{"finance-investment"}, WorkEnvironment: "hybrid"}

	tests := []struct {
		name   string
		prefs  *model.UserPreferences
		mutate func(j *model.Job)
		want   float64
	}{
		{name: "other city", prefs: base, mutate: func(j *model.Job) { j.City = "Paris" }, want: 75},
		{name: "other city remote", prefs: base, mutate: func(j *model.Job) { j.City = "Paris"; j.WorkEnvironment = "remote" }, want: 80},
		{name: "no category overlap", prefs: base, mutate: func(j *model.Job) { j.Categories = []string{"retail-luxury"} }, want: 65},
		{name: "no experience flags", prefs: base, mutate: func(j *model.Job) { j.IsGraduate = false }, want: 85},
		{name: "stale posting", prefs: base, mutate: func(j *model.Job) { p := daysAgo(45); j.PostedAt = &p }, want: 90},
		{name: "half way through recency window", prefs: base, mutate: func(j *model.Job) { p := daysAgo(18).Add(-12 * time.Hour); j.PostedAt = &p }, want: 95},
		{name: "unscoped user", prefs: &model.UserPreferences{}, mutate: func(j *model.Job) { j.Categories = nil }, want: 100},
		{name: "all categories", prefs: &model.UserPreferences{CareerPaths: []string{"all-categories"}}, mutate: func(j *model.Job) { j.Categories = []string{"retail-luxury"} }, want: 100},
		{name: "missing language", prefs: &model.UserPreferences{Languages: []string{"English"}}, mutate: func(j *model.Job) { j.LanguageRequirements = []string{"German"} }, want: 85},
	}

	s := New(nil, DefaultWeights())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := berlinJob()
			tt.mutate(&job)
			got := s.Score(tt.prefs, &job, 0, now)
			if got.Total != tt.want {
				t.Fatalf("expected %v, got %v (%+v)", tt.want, got.Total, got.Breakdown)
			}
		})
	}
}

func TestSemanticBlend(t *testing.T) {
	s := New(nil, DefaultWeights())
	prefs := &model.UserPreferences{Cities: []string{"Paris"}, CareerPaths: []string{"finance-investment"}}
	job := berlinJob()

	rule := s.Score(prefs, &job, 0, now)
	blended := s.Score(prefs, &job, 0.9, now)

	want := rule.Total*0.7 + 90*0.3
	if diff := blended.Total - want; diff > 0.01 || diff < -0.01 {
		t.Fatalf("expected %v, got %v", want, blended.Total)
	}
	if !strings.Contains(blended.Reason, "similarity (90%)") {
		t.Fatalf("unexpected reason %q", blended.Reason)
	}
}

func TestScoreIsDeterministic(t *testing.T) {
	s := New(nil, DefaultWeights())
	prefs := &model.UserPreferences{Cities: []string{"Berlin"}, CareerPaths: []string{"finance", "data"}}
	job := berlinJob()
	first := s.Score(prefs, &job, 0.7, now)
	for i := 0; i < 5; i++ {
		if got := s.Score(prefs, &job, 0.7, now); got != first {
			t.Fatalf("score changed between calls: %+v vs %+v", first, got)
		}
	}
}

func TestGeneralReason(t *testing.T) {
	s := New(nil, DefaultWeights())
	job := model.Job{JobHash: "x", Title: "T", Company: "C"}
	got := s.Score(&model.UserPreferences{}, &job, 0, now)
	if got.Reason != "General match for your profile" {
		t.Fatalf("unexpected reason %q", got.Reason)
	}
}
