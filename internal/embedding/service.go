package embedding

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rhysr01/jobping/internal/ai"
	"github.com/rhysr01/jobping/internal/model"
	"github.com/rhysr01/jobping/internal/store"
	"github.com/rhysr01/jobping/internal/utils"
)

var (
	// ErrInputTooShort marks input with too little content to be worth embedding.
	ErrInputTooShort = errors.New("embedding input too short")
	// ErrInputTooLarge marks input that cannot be brought under the model's token ceiling.
	ErrInputTooLarge = errors.New("embedding input too large")
)

// JobStore is the part of the job pool the service reads and writes.
type JobStore interface {
	EmbeddingCoverage(ctx context.Context) (store.Coverage, error)
	JobsMissingEmbeddings(ctx context.Context, limit uint) ([]model.Job, error)
	UpdateJobEmbedding(ctx context.Context, jobHash string, embedding []float32) error
}

type Config struct {
	BatchSize      int           `mapstructure:"batch-size"`
	BatchDelay     time.Duration `mapstructure:"batch-delay"`
	Concurrency    int           `mapstructure:"concurrency"`
	RequestTimeout time.Duration `mapstructure:"request-timeout"`
	// MaxTokens is the model's hard context ceiling.
	MaxTokens int `mapstructure:"max-tokens"`
	// SafetyRatio is the share of MaxTokens input is truncated to.
	SafetyRatio        float64       `mapstructure:"safety-ratio"`
	MinMeaningfulChars int           `mapstructure:"min-meaningful-chars"`
	StoreRetries       int           `mapstructure:"store-retries"`
	StoreRetryDelay    time.Duration `mapstructure:"store-retry-delay"`
}

func DefaultConfig() Config {
	return Config{
		BatchSize:          100,
		BatchDelay:         time.Second,
		Concurrency:        4,
		RequestTimeout:     15 * time.Second,
		MaxTokens:          2048,
		SafetyRatio:        0.9,
		MinMeaningfulChars: 10,
		StoreRetries:       3,
		StoreRetryDelay:    500 * time.Millisecond,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.BatchSize <= 0 {
		c.BatchSize = d.BatchSize
	}
	if c.BatchDelay < 0 {
		c.BatchDelay = 0
	}
	if c.Concurrency <= 0 {
		c.Concurrency = d.Concurrency
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = d.RequestTimeout
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = d.MaxTokens
	}
	if c.SafetyRatio <= 0 || c.SafetyRatio > 1 {
		c.SafetyRatio = d.SafetyRatio
	}
	if c.MinMeaningfulChars <= 0 {
		c.MinMeaningfulChars = d.MinMeaningfulChars
	}
	if c.StoreRetries <= 0 {
		c.StoreRetries = 1
	}
	return c
}

// Service generates and stores embeddings for jobs and user profiles.
type Service struct {
	embedder ai.Embedder
	store    JobStore
	cfg      Config
	logger   *zap.Logger
}

func NewService(embedder ai.Embedder, store JobStore, cfg Config, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		embedder: embedder,
		store:    store,
		cfg:      cfg.withDefaults(),
		logger:   logger,
	}
}

// PrepareText rejects near-empty input and truncates to the safety margin below MaxTokens.
func (s *Service) PrepareText(text string) (string, error) {
	if meaningfulChars(text) < s.cfg.MinMeaningfulChars {
		return "", ErrInputTooShort
	}

	limit := int(math.Floor(float64(s.cfg.MaxTokens) * s.cfg.SafetyRatio))
	if limit < 1 {
		return "", fmt.Errorf("%w: token budget %d", ErrInputTooLarge, limit)
	}

	truncated := truncateToTokens(text, limit)
	if tokens := estimateTokens([]rune(truncated)); tokens > s.cfg.MaxTokens {
		return "", fmt.Errorf("%w: %d tokens", ErrInputTooLarge, tokens)
	}
	return truncated, nil
}

func (s *Service) embed(ctx context.Context, text string, task ai.TaskType) ([]float32, error) {
	if s.embedder == nil {
		return nil, ai.ErrUnavailable
	}
	prepared, err := s.PrepareText(text)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()

	vec, err := s.embedder.Embed(callCtx, prepared, task)
	if err != nil {
		return nil, err
	}
	if len(vec) == 0 {
		return nil, errors.New("embedding model returned an empty vector")
	}
	return vec, nil
}

// EmbedProfile returns the query vector of a user profile.
func (s *Service) EmbedProfile(ctx context.Context, prefs *model.UserPreferences) ([]float32, error) {
	return s.embed(ctx, BuildProfileText(prefs), ai.TaskQuery)
}

// Generated is a vector produced for one job and not yet stored.
type Generated struct {
	JobHash string
	Vector  []float32
}

type BatchStats struct {
	Total     int
	Generated int
	Skipped   int
	Failed    int
}

// GenerateJobEmbeddings embeds jobs in batches. Failures and skipped inputs are counted
// and never abort the remaining items. A cancelled ctx stops before the next batch and
// returns what was generated so far together with the context error.
func (s *Service) GenerateJobEmbeddings(ctx context.Context, jobs []model.Job) ([]Generated, BatchStats, error) {
	stats := BatchStats{Total: len(jobs)}
	out := make([]Generated, 0, len(jobs))

	for start := 0; start < len(jobs); start += s.cfg.BatchSize {
		if start > 0 {
			if err := utils.WaitFor(ctx, s.cfg.BatchDelay); err != nil {
				return out, stats, err
			}
		}

		end := min(start+s.cfg.BatchSize, len(jobs))
		batch := jobs[start:end]
		results := make([]Generated, len(batch))

		var (
			mu sync.Mutex
			g  errgroup.Group
		)
		g.SetLimit(s.cfg.Concurrency)
		for i := range batch {
			job := &batch[i]
			g.Go(func() error {
				vec, err := s.embed(ctx, BuildJobText(job), ai.TaskDocument)

				mu.Lock()
				defer mu.Unlock()
				switch {
				case errors.Is(err, ErrInputTooShort):
					stats.Skipped++
					s.logger.Debug("skipping job with near-empty text", zap.String("job_hash", job.JobHash))
				case err != nil:
					stats.Failed++
					s.logger.Warn("embedding generation failed", zap.String("job_hash", job.JobHash), zap.Error(err))
				default:
					stats.Generated++
					results[i] = Generated{JobHash: job.JobHash, Vector: vec}
				}
				return nil
			})
		}
		_ = g.Wait()

		for _, r := range results {
			if r.JobHash != "" {
				out = append(out, r)
			}
		}

		s.logger.Info("embedding batch done",
			zap.Int("batch_start", start),
			zap.Int("batch_size", len(batch)),
			zap.Int("generated", stats.Generated),
			zap.Int("skipped", stats.Skipped),
			zap.Int("failed", stats.Failed),
		)
	}

	return out, stats, ctx.Err()
}

type StoreStats struct {
	Stored int
	Failed []string
}

// StoreEmbeddings writes vectors back to the job pool. Only failed writes are retried.
func (s *Service) StoreEmbeddings(ctx context.Context, items []Generated) (StoreStats, error) {
	var stats StoreStats
	pending := items

	for attempt := 1; attempt <= s.cfg.StoreRetries && len(pending) > 0; attempt++ {
		if attempt > 1 {
			if err := utils.WaitFor(ctx, s.cfg.StoreRetryDelay*time.Duration(attempt-1)); err != nil {
				stats.Failed = appendHashes(stats.Failed, pending)
				return stats, err
			}
		}

		var retry []Generated
		for _, item := range pending {
			err := s.store.UpdateJobEmbedding(ctx, item.JobHash, item.Vector)
			switch {
			case err == nil:
				stats.Stored++
			case errors.Is(err, store.ErrNotFound):
				stats.Failed = append(stats.Failed, item.JobHash)
				s.logger.Warn("job disappeared before its embedding was stored", zap.String("job_hash", item.JobHash))
			default:
				retry = append(retry, item)
				s.logger.Warn("storing embedding failed",
					zap.String("job_hash", item.JobHash),
					zap.Int("attempt", attempt),
					zap.Error(err),
				)
			}
		}
		pending = retry
	}

	stats.Failed = appendHashes(stats.Failed, pending)
	return stats, nil
}

func appendHashes(dst []string, items []Generated) []string {
	for _, item := range items {
		dst = append(dst, item.JobHash)
	}
	return dst
}

// Coverage is the share of active jobs with a stored embedding.
func (s *Service) Coverage(ctx context.Context) (float64, error) {
	c, err := s.store.EmbeddingCoverage(ctx)
	if err != nil {
		return 0, err
	}
	return c.Ratio(), nil
}

type BackfillReport struct {
	Generation BatchStats
	Storage    StoreStats
	Coverage   float64
}

// Backfill embeds up to limit active jobs that have no vector yet.
func (s *Service) Backfill(ctx context.Context, limit uint) (BackfillReport, error) {
	var report BackfillReport

	jobs, err := s.store.JobsMissingEmbeddings(ctx, limit)
	if err != nil {
		return report, fmt.Errorf("list jobs missing embeddings: %w", err)
	}
	if len(jobs) == 0 {
		report.Coverage, err = s.Coverage(ctx)
		return report, err
	}

	generated, genStats, genErr := s.GenerateJobEmbeddings(ctx, jobs)
	report.Generation = genStats

	storeStats, storeErr := s.StoreEmbeddings(ctx, generated)
	report.Storage = storeStats
	if err := errors.Join(genErr, storeErr); err != nil {
		return report, err
	}

	report.Coverage, err = s.Coverage(ctx)
	return report, err
}
