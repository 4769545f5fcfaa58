package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	_ "embed"

	"github.com/mitchellh/mapstructure"
	"go.uber.org/zap"

	"github.com/rhysr01/jobping/internal/ai"
	"github.com/rhysr01/jobping/internal/model"
	"github.com/rhysr01/jobping/internal/utils"
)

//go:embed prompt.md
var systemPrompt string

const (
	defaultMaxLogLength     = 200
	maxDescriptionRunes     = 400
	defaultRerankCandidates = 50
)

type contentGenerator interface {
	GenerateContent(ctx context.Context, system, message string) (string, error)
	Model() string
}

// Reranker asks Gemini to score a candidate list against a profile.
type Reranker struct {
	generator     contentGenerator
	minScore      float64
	maxCandidates int
	logger        *zap.Logger
	maxLogLen     int
}

func NewReranker(generator contentGenerator, minScore float64, maxCandidates, maxLogLength int, logger *zap.Logger) *Reranker {
	if maxLogLength <= 0 {
		maxLogLength = defaultMaxLogLength
	}
	if maxCandidates <= 0 {
		maxCandidates = defaultRerankCandidates
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Reranker{
		generator:     generator,
		minScore:      minScore,
		maxCandidates: maxCandidates,
		logger:        logger,
		maxLogLen:     maxLogLength,
	}
}

type profilePayload struct {
	Cities          []string `json:"cities,omitempty"`
	CareerPaths     []string `json:"career_paths,omitempty"`
	Roles           []string `json:"roles,omitempty"`
	WorkEnvironment string   `json:"work_environment,omitempty"`
	EntryLevel      string   `json:"entry_level,omitempty"`
	Languages       []string `json:"languages,omitempty"`
	CompanyTypes    []string `json:"company_types,omitempty"`
	Visa            bool     `json:"visa_sponsorship"`
}

type jobPayload struct {
	JobHash         string   `json:"job_hash"`
	Title           string   `json:"title"`
	Company         string   `json:"company"`
	City            string   `json:"city,omitempty"`
	Country         string   `json:"country,omitempty"`
	WorkEnvironment string   `json:"work_environment,omitempty"`
	Experience      string   `json:"experience,omitempty"`
	Categories      []string `json:"categories,omitempty"`
	Languages       []string `json:"language_requirements,omitempty"`
	Description     string   `json:"description,omitempty"`
}

type rankedItem struct {
	JobHash string  `mapstructure:"job_hash"`
	Score   float64 `mapstructure:"score"`
	Reason  string  `mapstructure:"reason"`
}

// Rerank returns at most limit matches ordered by score. Jobs the model did not return,
// or scored below the minimum, are left out.
func (r *Reranker) Rerank(ctx context.Context, prefs *model.UserPreferences, jobs []model.Job, limit int) ([]ai.RankedMatch, error) {
	if prefs == nil {
		return nil, errors.New("preferences are required")
	}
	if len(jobs) == 0 {
		return nil, nil
	}
	if len(jobs) > r.maxCandidates {
		jobs = jobs[:r.maxCandidates]
	}

	message, err := buildMessage(prefs, jobs)
	if err != nil {
		return nil, err
	}

	r.logger.Debug("gemini rerank request",
		zap.Int("jobs", len(jobs)),
		zap.Int("message_length", utf8.RuneCountInString(message)),
		zap.String("message_preview", utils.TruncateForLog(message, r.maxLogLen)),
	)

	raw, err := r.generator.GenerateContent(ctx, systemPrompt, message)
	if err != nil {
		return nil, err
	}

	r.logger.Debug("gemini rerank response",
		zap.Int("response_length", utf8.RuneCountInString(raw)),
		zap.String("response_preview", utils.TruncateForLog(raw, r.maxLogLen)),
	)

	items, err := parseResponse(raw)
	if err != nil {
		return nil, err
	}

	known := make(map[string]struct{}, len(jobs))
	for _, j := range jobs {
		known[j.JobHash] = struct{}{}
	}

	scale := responseScale(items)
	seen := make(map[string]struct{}, len(items))
	matches := make([]ai.RankedMatch, 0, len(items))
	for _, item := range items {
		hash := strings.TrimSpace(item.JobHash)
		if _, ok := known[hash]; !ok {
			r.logger.Debug("dropping unknown job returned by model", zap.String("job_hash", hash))
			continue
		}
		if _, dup := seen[hash]; dup {
			continue
		}
		seen[hash] = struct{}{}

		score := normalizeScore(item.Score, scale)
		if score < r.minScore {
			continue
		}
		matches = append(matches, ai.RankedMatch{JobHash: hash, Score: score, Reason: strings.TrimSpace(item.Reason)})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].JobHash < matches[j].JobHash
	})

	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

func buildMessage(prefs *model.UserPreferences, jobs []model.Job) (string, error) {
	payload := struct {
		Profile profilePayload `json:"profile"`
		Jobs    []jobPayload   `json:"jobs"`
	}{
		Profile: profilePayload{
			Cities:          prefs.Cities,
			CareerPaths:     prefs.CareerPaths,
			Roles:           prefs.Roles,
			WorkEnvironment: prefs.WorkEnvironment,
			EntryLevel:      prefs.EntryLevelPreference,
			Languages:       prefs.Languages,
			CompanyTypes:    prefs.CompanyTypes,
			Visa:            prefs.VisaSponsorship,
		},
		Jobs: make([]jobPayload, 0, len(jobs)),
	}

	for _, j := range jobs {
		payload.Jobs = append(payload.Jobs, jobPayload{
			JobHash:         j.JobHash,
			Title:           j.Title,
			Company:         j.Company,
			City:            j.City,
			Country:         j.Country,
			WorkEnvironment: j.WorkEnvironment,
			Experience:      j.ExperienceLevel(),
			Categories:      j.Categories,
			Languages:       j.LanguageRequirements,
			Description:     truncateRunes(j.Description, maxDescriptionRunes),
		})
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal rerank payload: %w", err)
	}
	return string(data), nil
}

func parseResponse(raw string) ([]rankedItem, error) {
	cleaned := extractJSON(raw)

	var data any
	if err := json.Unmarshal([]byte(cleaned), &data); err != nil {
		return nil, fmt.Errorf("parse gemini response: %w", err)
	}

	if obj, ok := data.(map[string]any); ok {
		data = obj["matches"]
	}
	if data == nil {
		return nil, errors.New("parse gemini response: no matches")
	}

	var items []rankedItem
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &items,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(data); err != nil {
		return nil, fmt.Errorf("decode gemini matches: %w", err)
	}

	return items, nil
}

func extractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSpace(raw)
		if idx := strings.LastIndex(raw, "```"); idx != -1 {
			raw = raw[:idx]
		}
	}
	raw = strings.Trim(raw, "`")
	return strings.TrimSpace(raw)
}

// responseScale returns the multiplier that brings the scores of one response onto 0..100.
// A response is read as 0..1 only when every score is within [0,1] and at least one is
// fractional. Anything else, including a response of only 0 and 1, stays on 0..100.
func responseScale(items []rankedItem) float64 {
	fractional := false
	for _, item := range items {
		if item.Score < 0 || item.Score > 1 {
			return 1
		}
		if item.Score > 0 && item.Score < 1 {
			fractional = true
		}
	}
	if fractional {
		return 100
	}
	return 1
}

// normalizeScore applies scale and clamps into 0..100.
func normalizeScore(score, scale float64) float64 {
	score *= scale
	switch {
	case score < 0:
		return 0
	case score > 100:
		return 100
	}
	return score
}

func truncateRunes(s string, limit int) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
