package retrieval

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/rhysr01/jobping/internal/ai"
	"github.com/rhysr01/jobping/internal/category"
	"github.com/rhysr01/jobping/internal/embedding"
	"github.com/rhysr01/jobping/internal/logger"
	"github.com/rhysr01/jobping/internal/model"
	"github.com/rhysr01/jobping/internal/store"
)

type Status string

const (
	StatusOK          Status = "ok"
	StatusUnavailable Status = "unavailable"
	StatusFailed      Status = "failed"
)

// Result separates "no semantic candidates" (OK with zero candidates) from
// "semantic signal missing" (Unavailable) and errors (Failed).
type Result struct {
	Status     Status
	Candidates []model.SemanticJob
	Reason     string
}

func (r Result) OK() bool {
	return r.Status == StatusOK
}

func unavailable(reason string) Result {
	return Result{Status: StatusUnavailable, Reason: reason}
}

func failed(reason string) Result {
	return Result{Status: StatusFailed, Reason: reason}
}

// Searcher is the vector search surface of the job pool.
type Searcher interface {
	EmbeddingCoverage(ctx context.Context) (store.Coverage, error)
	SimilaritySearch(ctx context.Context, q store.SimilarityQuery) ([]model.SemanticJob, error)
}

type ProfileEmbedder interface {
	EmbedProfile(ctx context.Context, prefs *model.UserPreferences) ([]float32, error)
}

type Config struct {
	// Threshold is the inclusive minimum cosine similarity.
	Threshold float64       `mapstructure:"threshold"`
	Limit     int           `mapstructure:"limit"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

func DefaultConfig() Config {
	return Config{Threshold: 0.65, Limit: 200, Timeout: 10 * time.Second}
}

type Service struct {
	searcher Searcher
	embedder ProfileEmbedder
	mapper   *category.Mapper
	cfg      Config
	logger   *zap.Logger
}

func NewService(searcher Searcher, embedder ProfileEmbedder, mapper *category.Mapper, cfg Config, log *zap.Logger) *Service {
	d := DefaultConfig()
	if cfg.Threshold <= 0 {
		cfg.Threshold = d.Threshold
	}
	if cfg.Limit <= 0 {
		cfg.Limit = d.Limit
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = d.Timeout
	}
	if mapper == nil {
		mapper = category.New()
	}
	return &Service{
		searcher: searcher,
		embedder: embedder,
		mapper:   mapper,
		cfg:      cfg,
		logger:   logger.WithFields(log, logger.Stage("semantic_retrieval")),
	}
}

// GetSemanticCandidates returns up to limit active jobs similar to the profile, filtered by
// the user's cities and career path categories. limit <= 0 uses the configured default.
// It never returns an error; failures are reported through the result status.
func (s *Service) GetSemanticCandidates(ctx context.Context, prefs *model.UserPreferences, limit int) Result {
	if s == nil || s.searcher == nil || s.embedder == nil {
		return unavailable("semantic retrieval is not configured")
	}
	if prefs == nil {
		return failed("preferences are required")
	}
	if limit <= 0 {
		limit = s.cfg.Limit
	}

	coverageCtx, cancelCoverage := context.WithTimeout(ctx, s.cfg.Timeout)
	coverage, err := s.searcher.EmbeddingCoverage(coverageCtx)
	cancelCoverage()
	if err != nil {
		if errors.Is(err, store.ErrVectorUnsupported) {
			s.logger.Warn("vector search unsupported, semantic retrieval disabled", zap.Error(err))
			return unavailable("vector search unsupported")
		}
		s.logger.Error("embedding coverage check failed", zap.Error(err))
		return failed("coverage check: " + err.Error())
	}
	if coverage.Embedded == 0 {
		s.logger.Warn("embedding coverage is zero, falling back to rule-based retrieval",
			zap.Int("active_jobs", coverage.Active),
		)
		return unavailable("no active job has an embedding")
	}

	vec, err := s.embedder.EmbedProfile(ctx, prefs)
	switch {
	case errors.Is(err, embedding.ErrInputTooShort), errors.Is(err, ai.ErrUnavailable):
		s.logger.Info("user embedding unavailable", zap.Error(err))
		return unavailable("user embedding unavailable")
	case err != nil:
		s.logger.Warn("user embedding failed", zap.Error(err))
		return failed("user embedding: " + err.Error())
	case len(vec) == 0:
		s.logger.Info("user embedding is empty")
		return unavailable("user embedding is empty")
	}

	q := store.SimilarityQuery{
		Vector:        vec,
		Cities:        nonEmpty(prefs.Cities),
		Categories:    s.mapper.ExpandForm(prefs.CareerPaths),
		MinSimilarity: s.cfg.Threshold,
		Limit:         limit,
	}

	searchCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	found, err := s.searcher.SimilaritySearch(searchCtx, q)
	if err != nil {
		if errors.Is(err, store.ErrVectorUnsupported) {
			s.logger.Warn("vector search unsupported, semantic retrieval disabled", zap.Error(err))
			return unavailable("vector search unsupported")
		}
		s.logger.Error("similarity search failed", zap.Error(err))
		return failed("similarity search: " + err.Error())
	}

	candidates := make([]model.SemanticJob, 0, len(found))
	for _, c := range found {
		if !c.IsActive || c.SemanticScore < s.cfg.Threshold {
			continue
		}
		candidates = append(candidates, c)
		if len(candidates) == limit {
			break
		}
	}

	s.logger.Info("semantic candidates retrieved",
		zap.Int("candidates", len(candidates)),
		zap.Float64("coverage", coverage.Ratio()),
		zap.Int("cities", len(q.Cities)),
		zap.Int("categories", len(q.Categories)),
	)
	return Result{Status: StatusOK, Candidates: candidates}
}

func nonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
