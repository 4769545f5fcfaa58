package gemini

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/rhysr01/jobping/internal/model"
)

type stubGenerator struct {
	response    string
	err         error
	lastSystem  string
	lastMessage string
}

func (s *stubGenerator) GenerateContent(_ context.Context, system, message string) (string, error) {
	s.lastSystem = system
	s.lastMessage = message
	if s.err != nil {
		return "", s.err
	}
	return s.response, nil
}

func (s *stubGenerator) Model() string {
	return "stub-model"
}

func rerankJobs() []model.Job {
	return []model.Job{
		{JobHash: "a", Title: "Graduate Analyst", Company: "Acme", City: "Berlin", Description: strings.Repeat("x", 1000)},
		{JobHash: "b", Title: "Finance Intern", Company: "Bank", City: "Berlin", IsInternship: true},
		{JobHash: "c", Title: "Ops Trainee", Company: "Logi", City: "Munich"},
	}
}

func TestRerankerOrdersAndFilters(t *testing.T) {
	stub := &stubGenerator{response: "```json\n" + `{"matches": [
		{"job_hash": "a", "score": 70, "reason": "Berlin analyst role"},
		{"job_hash": "b", "score": "92", "reason": " Finance internship in Berlin "},
		{"job_hash": "ghost", "score": 99, "reason": "invented"},
		{"job_hash": "c", "score": 0.3, "reason": "wrong city"},
		{"job_hash": "a", "score": 10, "reason": "duplicate"}
	]}` + "\n```"}
	reranker := NewReranker(stub, 50, 0, 0, zap.NewNop())

	prefs := &model.UserPreferences{Cities: []string{"Berlin"}, CareerPaths: []string{"finance-investment"}}
	matches, err := reranker.Rerank(context.Background(), prefs, rerankJobs(), 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %+v", matches)
	}
	if matches[0].JobHash != "b" || matches[0].Score != 92 || matches[0].Reason != "Finance internship in Berlin" {
		t.Fatalf("unexpected first match: %+v", matches[0])
	}
	if matches[1].JobHash != "a" || matches[1].Score != 70 {
		t.Fatalf("unexpected second match: %+v", matches[1])
	}

	if stub.lastSystem != systemPrompt {
		t.Fatalf("expected embedded system prompt to be sent")
	}
	if !strings.Contains(stub.lastMessage, `"job_hash":"b"`) || !strings.Contains(stub.lastMessage, `"experience":"internship"`) {
		t.Fatalf("unexpected message: %s", stub.lastMessage)
	}
	if strings.Contains(stub.lastMessage, strings.Repeat("x", maxDescriptionRunes+1)) {
		t.Fatalf("expected description to be truncated")
	}
}

func TestRerankerAcceptsBareArrayAndLimit(t *testing.T) {
	stub := &stubGenerator{response: `[{"job_hash": "c", "score": 80}, {"job_hash": "a", "score": 80}, {"job_hash": "b", "score": 60}]`}
	reranker := NewReranker(stub, 0, 0, 0, nil)

	matches, err := reranker.Rerank(context.Background(), &model.UserPreferences{}, rerankJobs(), 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(matches) != 2 || matches[0].JobHash != "a" || matches[1].JobHash != "c" {
		t.Fatalf("expected ties broken by job hash, got %+v", matches)
	}
}

func TestRerankerErrors(t *testing.T) {
	tests := []struct {
		name string
		stub *stubGenerator
	}{
		{name: "generator failure", stub: &stubGenerator{err: errors.New("boom")}},
		{name: "not json", stub: &stubGenerator{response: "I think job a is great"}},
		{name: "missing matches", stub: &stubGenerator{response: `{"result": []}`}},
		{name: "wrong shape", stub: &stubGenerator{response: `{"matches": "none"}`}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reranker := NewReranker(tt.stub, 0, 0, 0, nil)
			if _, err := reranker.Rerank(context.Background(), &model.UserPreferences{}, rerankJobs(), 5); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestRerankerSkipsEmptyInput(t *testing.T) {
	stub := &stubGenerator{}
	matches, err := NewReranker(stub, 0, 0, 0, nil).Rerank(context.Background(), &model.UserPreferences{}, nil, 5)
	if err != nil || matches != nil {
		t.Fatalf("expected no matches and no error, got %v %v", matches, err)
	}
	if stub.lastMessage != "" {
		t.Fatalf("expected no model call")
	}
}

func TestNormalizeScore(t *testing.T) {
	tests := []struct {
		score float64
		scale float64
		want  float64
	}{
		{score: -5, scale: 1, want: 0},
		{score: 42, scale: 1, want: 42},
		{score: 250, scale: 1, want: 100},
		{score: 1, scale: 1, want: 1},
		{score: 0.5, scale: 100, want: 50},
		{score: 1, scale: 100, want: 100},
	}
	for _, tt := range tests {
		if got := normalizeScore(tt.score, tt.scale); got != tt.want {
			t.Fatalf("normalizeScore(%v, %v): expected %v, got %v", tt.score, tt.scale, tt.want, got)
		}
	}
}

func TestResponseScale(t *testing.T) {
	tests := []struct {
		name   string
		scores []float64
		want   float64
	}{
		{name: "percent scale", scores: []float64{90, 1, 40}, want: 1},
		{name: "fractional scale", scores: []float64{0.9, 1, 0.4}, want: 100},
		{name: "only zero and one", scores: []float64{1, 0, 1}, want: 1},
		{name: "empty", want: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items := make([]rankedItem, 0, len(tt.scores))
			for _, s := range tt.scores {
				items = append(items, rankedItem{Score: s})
			}
			if got := responseScale(items); got != tt.want {
				t.Fatalf("expected scale %v, got %v", tt.want, got)
			}
		})
	}
}

func TestRerankerKeepsScoreOfOneOnPercentScale(t *testing.T) {
	stub := &stubGenerator{response: `{"matches": [{"job_hash": "a", "score": 80}, {"job_hash": "b", "score": 1}]}`}
	reranker := NewReranker(stub, 0, 0, 0, zap.NewNop())

	matches, err := reranker.Rerank(context.Background(), &model.UserPreferences{}, rerankJobs(), 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(matches) != 2 || matches[0].JobHash != "a" || matches[1].Score != 1 {
		t.Fatalf("unexpected matches %+v", matches)
	}
}
