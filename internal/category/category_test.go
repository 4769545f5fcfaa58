package category

import (
	"reflect"
	"testing"
)

func TestMapFormLabelToDatabase(t *testing.T) {
	t.Parallel()

	m := New()
	tests := []struct {
		label  string
		expect string
	}{
		{label: "Finance & Investment", expect: FinanceInvestment},
		{label: "tech", expect: TechTransformation},
		{label: "finance-investment", expect: FinanceInvestment},
		{label: "Underwater Basket Weaving", expect: "Underwater Basket Weaving"},
		{label: "", expect: ""},
	}

	for _, tt := range tests {
		if got := m.MapFormLabelToDatabase(tt.label); got != tt.expect {
			t.Fatalf("label %q: expected %q, got %q", tt.label, tt.expect, got)
		}
	}
}

func TestGetDatabaseCategoriesForFormAllCategories(t *testing.T) {
	t.Parallel()

	m := New()
	got := m.GetDatabaseCategoriesForForm(AllCategories)
	if len(got) != len(CanonicalCategories()) {
		t.Fatalf("expected %d categories, got %d", len(CanonicalCategories()), len(got))
	}
	for _, c := range got {
		if !IsCanonical(c) {
			t.Fatalf("unexpected non canonical category %q", c)
		}
	}

	if got := m.GetDatabaseCategoriesForForm(DataAnalytics); !reflect.DeepEqual(got, []string{DataAnalytics}) {
		t.Fatalf("expected identity mapping, got %v", got)
	}
}

func TestGetStudentSatisfactionScore(t *testing.T) {
	t.Parallel()

	m := New()
	tests := []struct {
		name   string
		job    []string
		user   []string
		expect float64
	}{
		{name: "no preferences is neutral", job: []string{FinanceInvestment}, user: nil, expect: 1},
		{name: "blank preferences is neutral", job: nil, user: []string{" "}, expect: 1},
		{name: "no overlap", job: []string{DataAnalytics}, user: []string{FinanceInvestment}, expect: 0},
		{name: "full overlap", job: []string{FinanceInvestment, DataAnalytics}, user: []string{"Finance & Investment"}, expect: 100},
		{name: "half overlap", job: []string{FinanceInvestment}, user: []string{FinanceInvestment, DataAnalytics}, expect: 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := m.GetStudentSatisfactionScore(tt.job, tt.user); got != tt.expect {
				t.Fatalf("expected %v, got %v", tt.expect, got)
			}
		})
	}
}

func TestSatisfactionIsMonotonicAndBounded(t *testing.T) {
	t.Parallel()

	m := New()
	user := []string{FinanceInvestment, DataAnalytics, TechTransformation, MarketingGrowth}
	job := []string{}
	prev := -1.0
	for _, c := range user {
		job = append(job, c)
		score := m.GetStudentSatisfactionScore(job, user)
		if score < 0 || score > 100 {
			t.Fatalf("score %v out of range", score)
		}
		if score < prev {
			t.Fatalf("score decreased from %v to %v", prev, score)
		}
		prev = score
	}
}

func TestCustomSatisfactionIsClamped(t *testing.T) {
	t.Parallel()

	m := New(WithSatisfaction(func(overlap, _ int) float64 { return float64(overlap) * 1000 }))
	if got := m.GetStudentSatisfactionScore([]string{FinanceInvestment}, []string{FinanceInvestment}); got != 100 {
		t.Fatalf("expected clamp to 100, got %v", got)
	}
}

func TestCleanCategories(t *testing.T) {
	t.Parallel()

	m := New()
	tests := []struct {
		name   string
		input  []string
		expect []string
	}{
		{name: "empty falls back to unsure", input: nil, expect: []string{Unsure}},
		{name: "drops experience levels", input: []string{"internship", FinanceInvestment, "graduate"}, expect: []string{FinanceInvestment}},
		{name: "maps labels and dedupes", input: []string{"Finance & Investment", FinanceInvestment, "tech"}, expect: []string{FinanceInvestment, TechTransformation}},
		{name: "unsure dropped when a path exists", input: []string{Unsure, DataAnalytics}, expect: []string{DataAnalytics}},
		{name: "unknown values removed", input: []string{"general", "astrology"}, expect: []string{Unsure}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := m.CleanCategories(tt.input)
			if !reflect.DeepEqual(got, tt.expect) {
				t.Fatalf("expected %v, got %v", tt.expect, got)
			}
			if again := m.CleanCategories(got); !reflect.DeepEqual(again, got) {
				t.Fatalf("cleanup is not idempotent: %v then %v", got, again)
			}
		})
	}
}

func TestCanonicalInputPassesThrough(t *testing.T) {
	t.Parallel()

	m := New()
	for _, c := range CanonicalCategories() {
		if got := m.MapFormLabelToDatabase(c); got != c {
			t.Fatalf("expected %q to pass through, got %q", c, got)
		}
	}
}
