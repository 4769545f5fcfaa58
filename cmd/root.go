package cmd

import (
	"errors"
	"log"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/rhysr01/jobping/internal/delivery"
	"github.com/rhysr01/jobping/internal/embedding"
	"github.com/rhysr01/jobping/internal/matching"
	"github.com/rhysr01/jobping/internal/retrieval"
	"github.com/rhysr01/jobping/internal/scoring"
	"github.com/rhysr01/jobping/internal/sendconfig"
	"github.com/rhysr01/jobping/internal/store"
)

const (
	app = "jobping"
)

type Config struct {
	Database  store.Config          `mapstructure:"database"`
	Redis     *RedisConfig          `mapstructure:"redis"`
	Gemini    *GeminiConfig         `mapstructure:"gemini"`
	OpenAI    *OpenAIConfig         `mapstructure:"openai"`
	Embedding *EmbeddingConfig      `mapstructure:"embedding"`
	Retrieval retrieval.Config      `mapstructure:"retrieval"`
	AI        *AIConfig             `mapstructure:"ai"`
	Matching  matching.Config       `mapstructure:"matching"`
	Rules     sendconfig.MatchRules `mapstructure:"rules"`
	Scoring   scoring.Weights       `mapstructure:"scoring"`
	Delivery  delivery.Config       `mapstructure:"delivery"`
	Schedule  *ScheduleConfig       `mapstructure:"schedule"`
}

type RedisConfig struct {
	URL string        `mapstructure:"url"`
	TTL time.Duration `mapstructure:"ttl"`
}

type GeminiConfig struct {
	APIKey     string `mapstructure:"api-key"`
	APIKeyFile string `mapstructure:"api-key-file"`
}

type OpenAIConfig struct {
	APIKey     string        `mapstructure:"api-key"`
	APIKeyFile string        `mapstructure:"api-key-file"`
	BaseURL    string        `mapstructure:"base-url"`
	UserAgent  string        `mapstructure:"user-agent"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type EmbeddingConfig struct {
	// Provider is gemini or openai. Empty disables embeddings and semantic retrieval.
	Provider   string           `mapstructure:"provider"`
	Model      string           `mapstructure:"model"`
	Dimensions int              `mapstructure:"dimensions"`
	Cache      *CacheConfig     `mapstructure:"cache"`
	Batch      embedding.Config `mapstructure:"batch"`
}

type CacheConfig struct {
	Size int           `mapstructure:"size"`
	TTL  time.Duration `mapstructure:"ttl"`
}

type AIConfig struct {
	Enabled         bool    `mapstructure:"enabled"`
	Provider        string  `mapstructure:"provider"`
	MinimumFitScore float64 `mapstructure:"minimum-fit-score"`
	Model           string  `mapstructure:"model"`
	MaxRetries      int     `mapstructure:"max-retries"`
	MaxLogLength    int     `mapstructure:"max-log-length"`
}

type ScheduleConfig struct {
	Backfill      string `mapstructure:"backfill"`
	BackfillLimit uint   `mapstructure:"backfill-limit"`
	Delivery      string `mapstructure:"delivery"`
}

func defaultConfig() *Config {
	return &Config{
		Database:  store.Config{MaxOpenConns: 10, ConnMaxLifetime: 30 * time.Minute},
		Embedding: &EmbeddingConfig{Batch: embedding.DefaultConfig()},
		Retrieval: retrieval.DefaultConfig(),
		Matching:  matching.DefaultConfig(),
		Rules:     sendconfig.DefaultRules(),
		Scoring:   scoring.DefaultWeights(),
		Delivery:  delivery.DefaultConfig(),
		Schedule:  &ScheduleConfig{Backfill: "*/30 * * * *", BackfillLimit: 500},
	}
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "jobping matches early-career job postings to users and plans their weekly sends",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	envs := map[string]string{
		"database.dsn":        "JOBPING_DATABASE_DSN",
		"redis.url":           "JOBPING_REDIS_URL",
		"gemini.api-key-file": "GEMINI_API_KEY_FILE",
		"openai.api-key-file": "OPENAI_API_KEY_FILE",
	}
	for key, env := range envs {
		if err := viper.BindEnv(key, env); err != nil {
			log.Fatalf("binding %s environment variable: %v", env, err)
		}
	}

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is jobping.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func initConfig() {
	if versionCmd.CalledAs() != "" {
		return
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app)
		viper.SetConfigType("yaml")
	}

	// Without an explicit --config a missing file is fine: defaults and env are used.
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			log.Fatal(err)
		}
	}
}

func getConfig() (*Config, error) {
	config := defaultConfig()
	err := viper.Unmarshal(config)
	if err != nil {
		return config, err
	}

	return config, nil
}
