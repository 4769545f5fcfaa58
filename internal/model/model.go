package model

import (
	"strings"
	"time"
)

type Tier string

const (
	TierFree    Tier = "free"
	TierPremium Tier = "premium"
)

// ParseTier maps free-form tier names onto a known tier. Unknown values are treated as free.
func ParseTier(s string) Tier {
	if strings.EqualFold(strings.TrimSpace(s), string(TierPremium)) {
		return TierPremium
	}
	return TierFree
}

// UserPreferences is the read-only profile a matching run is computed for.
type UserPreferences struct {
	Email                string   `db:"email" json:"email"`
	Cities               []string `db:"target_cities" json:"cities"`
	CareerPaths          []string `db:"career_path" json:"career_paths"`
	Roles                []string `db:"roles_selected" json:"roles"`
	WorkEnvironment      string   `db:"work_environment" json:"work_environment"`
	EntryLevelPreference string   `db:"entry_level_preference" json:"entry_level_preference"`
	Languages            []string `db:"languages_spoken" json:"languages"`
	CompanyTypes         []string `db:"company_types" json:"company_types"`
	VisaSponsorship      bool     `db:"visa_sponsorship" json:"visa_sponsorship"`
	Tier                 Tier     `db:"subscription_tier" json:"tier"`
}

// Job is a normalized posting from the job pool.
type Job struct {
	ID                   int64      `db:"id" json:"id"`
	JobHash              string     `db:"job_hash" json:"job_hash"`
	Title                string     `db:"title" json:"title"`
	Company              string     `db:"company" json:"company"`
	Location             string     `db:"location" json:"location"`
	City                 string     `db:"city" json:"city"`
	Country              string     `db:"country" json:"country"`
	Description          string     `db:"description" json:"description"`
	WorkEnvironment      string     `db:"work_environment" json:"work_environment"`
	Source               string     `db:"source" json:"source"`
	PostedAt             *time.Time `db:"posted_at" json:"posted_at,omitempty"`
	CreatedAt            time.Time  `db:"created_at" json:"created_at"`
	Categories           []string   `db:"categories" json:"categories"`
	LanguageRequirements []string   `db:"language_requirements" json:"language_requirements"`
	IsInternship         bool       `db:"is_internship" json:"is_internship"`
	IsGraduate           bool       `db:"is_graduate" json:"is_graduate"`
	IsEarlyCareer        bool       `db:"is_early_career" json:"is_early_career"`
	IsActive             bool       `db:"is_active" json:"is_active"`
	Embedding            []float32  `db:"-" json:"-"`
}

// IsValid reports whether the job carries the fields required for delivery.
func (j *Job) IsValid() bool {
	if j == nil {
		return false
	}
	return j.IsActive &&
		strings.TrimSpace(j.JobHash) != "" &&
		strings.TrimSpace(j.Title) != "" &&
		strings.TrimSpace(j.Company) != ""
}

// ExperienceLevel returns the most specific experience flag set on the job, or "".
func (j *Job) ExperienceLevel() string {
	switch {
	case j.IsInternship:
		return "internship"
	case j.IsGraduate:
		return "graduate"
	case j.IsEarlyCareer:
		return "early-career"
	default:
		return ""
	}
}

// Freshness returns the posting date, falling back to the ingestion date.
func (j *Job) Freshness() time.Time {
	if j.PostedAt != nil && !j.PostedAt.IsZero() {
		return *j.PostedAt
	}
	return j.CreatedAt
}

// SemanticJob is a job returned by similarity search. It is never persisted.
type SemanticJob struct {
	Job
	SemanticScore     float64 `db:"semantic_score" json:"semantic_score"`
	EmbeddingDistance float64 `db:"embedding_distance" json:"embedding_distance"`
}

type Provenance string

const (
	ProvenanceAI       Provenance = "ai_success"
	ProvenanceFallback Provenance = "fallback"
	ProvenanceSemantic Provenance = "semantic"
)

// MatchResult is one selected job for a user.
type MatchResult struct {
	Job         Job        `json:"job"`
	MatchScore  float64    `json:"match_score"`
	MatchReason string     `json:"match_reason"`
	Provenance  Provenance `json:"provenance"`
}

// SendLedgerEntry tracks sends for one user in one ISO week.
type SendLedgerEntry struct {
	Email        string     `db:"user_email" json:"email"`
	Tier         Tier       `db:"tier" json:"tier"`
	WeekStart    time.Time  `db:"week_start" json:"week_start"`
	SendsUsed    int        `db:"sends_used" json:"sends_used"`
	JobsSent     int        `db:"jobs_sent" json:"jobs_sent"`
	LastSendDate *time.Time `db:"last_send_date" json:"last_send_date,omitempty"`
}
