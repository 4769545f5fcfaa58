package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/rhysr01/jobping/internal/ai"
	"github.com/rhysr01/jobping/internal/ai/gemini"
	"github.com/rhysr01/jobping/internal/ai/openai"
	"github.com/rhysr01/jobping/internal/category"
	"github.com/rhysr01/jobping/internal/delivery"
	"github.com/rhysr01/jobping/internal/distributor"
	"github.com/rhysr01/jobping/internal/embedcache"
	"github.com/rhysr01/jobping/internal/embedding"
	"github.com/rhysr01/jobping/internal/logger"
	"github.com/rhysr01/jobping/internal/matching"
	"github.com/rhysr01/jobping/internal/retrieval"
	"github.com/rhysr01/jobping/internal/scoring"
	"github.com/rhysr01/jobping/internal/secrets"
	"github.com/rhysr01/jobping/internal/sendconfig"
	"github.com/rhysr01/jobping/internal/store"
)

// application holds the wired components shared by the commands.
type application struct {
	config      *Config
	logger      *zap.Logger
	db          *sqlx.DB
	redis       *redis.Client
	store       *store.Store
	embeddings  *embedding.Service
	coordinator *matching.Coordinator
	runner      *delivery.Runner
}

// setup builds the logger and config the way every command needs them.
func setup() (*Config, *zap.Logger) {
	logger, err := logger.New(logger.Options{
		JSON:    viper.GetBool("json"),
		Debug:   viper.GetBool("debug"),
		App:     app,
		Version: resolvedVersion(),
	})
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	logger.Info("starting jobping")

	// Credentials are masked before the config is dumped.
	pretty, _ := json.MarshalIndent(redacted(config), "", "  ")
	logger.Debug(fmt.Sprintf("starting with config: \n %s", pretty))

	return config, logger
}

func redacted(config *Config) Config {
	c := *config
	c.Database.DSN = mask(c.Database.DSN)
	if c.Gemini != nil {
		g := *c.Gemini
		g.APIKey = mask(g.APIKey)
		c.Gemini = &g
	}
	if c.OpenAI != nil {
		o := *c.OpenAI
		o.APIKey = mask(o.APIKey)
		c.OpenAI = &o
	}
	if c.Redis != nil {
		r := *c.Redis
		r.URL = mask(r.URL)
		c.Redis = &r
	}
	return c
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return "***"
}

func newApplication(ctx context.Context, config *Config, log *zap.Logger) (*application, error) {
	if config.Embedding == nil {
		config.Embedding = &EmbeddingConfig{Batch: embedding.DefaultConfig()}
	}

	dsn, err := secrets.Load(secrets.Source{
		Name:  "database dsn",
		Value: config.Database.DSN,
		Env:   "JOBPING_DATABASE_DSN",
	})
	if err != nil {
		return nil, fmt.Errorf("%w (set database.dsn or JOBPING_DATABASE_DSN)", err)
	}
	dbConfig := config.Database
	dbConfig.DSN = dsn

	db, err := store.Open(ctx, dbConfig)
	if err != nil {
		return nil, err
	}

	a := &application{config: config, logger: log, db: db, store: store.New(db)}

	if config.Redis != nil && strings.TrimSpace(config.Redis.URL) != "" {
		a.redis, err = embedcache.NewRedisClient(ctx, config.Redis.URL)
		if err != nil {
			// A missing shared cache only costs extra model calls.
			log.Warn("redis cache unavailable", zap.Error(err))
		}
	}

	var genaiClient *genai.Client
	if needsGemini(config) {
		genaiClient, err = newGeminiClient(ctx, config.Gemini)
		if err != nil {
			a.Close()
			return nil, err
		}
	}

	embedder, err := newEmbedder(config, genaiClient, a.redis, log)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.embeddings = embedding.NewService(embedder, a.store, config.Embedding.Batch, logger.WithFields(log, logger.Stage("embedding")))

	send := sendconfig.Default()
	send.Rules = config.Rules
	mapper := category.New()

	deps := matching.Deps{
		Send:        send,
		Mapper:      mapper,
		Scorer:      scoring.New(mapper, config.Scoring),
		Distributor: distributor.New(mapper, send.Rules.MaxJobsPerCompany, distributor.WithLogger(log)),
		History:     a.store,
		Logger:      log,
	}
	if embedder != nil {
		deps.Retriever = retrieval.NewService(a.store, a.embeddings, mapper, config.Retrieval, log)
	}
	if config.AI != nil && config.AI.Enabled {
		reranker, err := newReranker(config.AI, config.Matching.AIMaxCandidates, genaiClient, log)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("building ai reranker: %w", err)
		}
		deps.Reranker = reranker
	}

	a.coordinator = matching.New(deps, config.Matching)
	a.runner = delivery.NewRunner(a.store, a.coordinator, send, config.Delivery, log)

	return a, nil
}

func (a *application) Close() {
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
}

func needsGemini(config *Config) bool {
	if config.AI != nil && config.AI.Enabled {
		return true
	}
	return config.Embedding != nil && providerName(config.Embedding.Provider) == "gemini"
}

func providerName(provider string) string {
	return strings.TrimSpace(strings.ToLower(provider))
}

func newGeminiClient(ctx context.Context, cfg *GeminiConfig) (*genai.Client, error) {
	if cfg == nil {
		cfg = &GeminiConfig{}
	}

	apiKey, err := secrets.Load(secrets.Source{
		Name:  "gemini api key",
		Value: cfg.APIKey,
		File:  cfg.APIKeyFile,
	})
	if err != nil {
		return nil, fmt.Errorf("%w (set gemini.api-key-file or GEMINI_API_KEY_FILE)", err)
	}

	return gemini.NewClient(ctx, apiKey)
}

// newEmbedder returns nil when no embedding provider is configured.
func newEmbedder(config *Config, client *genai.Client, rdb *redis.Client, logger *zap.Logger) (ai.Embedder, error) {
	cfg := config.Embedding
	if cfg == nil {
		return nil, nil
	}

	var (
		embedder ai.Embedder
		err      error
	)

	switch providerName(cfg.Provider) {
	case "":
		logger.Info("no embedding provider configured, semantic retrieval disabled")
		return nil, nil
	case "gemini":
		embedder, err = gemini.NewEmbedder(client, cfg.Model, cfg.Dimensions, logger)
	case "openai":
		embedder, err = newOpenAIEmbedder(config.OpenAI, cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("building %s embedder: %w", cfg.Provider, err)
	}

	if rdb != nil {
		embedder = embedcache.WrapRedis(embedder, rdb, config.Redis.TTL, logger)
	}
	if cfg.Cache != nil && cfg.Cache.Size > 0 {
		embedder = embedcache.WrapLRU(embedder, cfg.Cache.Size, cfg.Cache.TTL, logger)
	}

	return embedder, nil
}

func newOpenAIEmbedder(cfg *OpenAIConfig, embeddingCfg *EmbeddingConfig, logger *zap.Logger) (ai.Embedder, error) {
	if cfg == nil {
		cfg = &OpenAIConfig{}
	}

	token, err := secrets.Load(secrets.Source{
		Name:  "openai api key",
		Value: cfg.APIKey,
		File:  cfg.APIKeyFile,
	})
	if err != nil {
		return nil, fmt.Errorf("%w (set openai.api-key-file or OPENAI_API_KEY_FILE)", err)
	}

	return openai.New(openai.Config{
		BaseURL:    cfg.BaseURL,
		Token:      token,
		Model:      embeddingCfg.Model,
		Dimensions: embeddingCfg.Dimensions,
		UserAgent:  cfg.UserAgent,
		Timeout:    cfg.Timeout,
	}, logger)
}

func newReranker(cfg *AIConfig, maxCandidates int, client *genai.Client, logger *zap.Logger) (ai.Reranker, error) {
	provider := providerName(cfg.Provider)
	if provider != "" && provider != "gemini" {
		return nil, fmt.Errorf("unsupported ai provider: %s", cfg.Provider)
	}

	genLogger := logger.With(
		zap.String("provider", "gemini"),
		zap.String("model", cfg.Model),
		zap.Int("ai_retry_attempts", cfg.MaxRetries),
	)

	generator, err := gemini.NewGenerator(client, cfg.Model, cfg.MaxRetries, genLogger)
	if err != nil {
		return nil, err
	}

	minScore := cfg.MinimumFitScore
	if minScore < 0 {
		minScore = 0
	}

	rerankerLogger := logger.With(
		zap.String("provider", "gemini"),
		zap.String("model", cfg.Model),
		zap.Float64("minimum_fit_score", minScore),
	)

	return gemini.NewReranker(generator, minScore, maxCandidates, cfg.MaxLogLength, rerankerLogger), nil
}
