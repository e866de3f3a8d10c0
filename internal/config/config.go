// Package config loads the service configuration from a yaml file with
// environment overrides for secrets.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/ewfx/sradg-ai-innovators/internal/llm"
	"github.com/ewfx/sradg-ai-innovators/internal/notify"
	"github.com/ewfx/sradg-ai-innovators/internal/ticketing"
)

// DataConfig holds the detection pipeline tunables and artifact paths.
type DataConfig struct {
	QuantityThreshold float64 `yaml:"quantity_threshold"`
	ContaminationRate float64 `yaml:"contamination_rate"`
	NClusters         int     `yaml:"n_clusters"`
	ModelSeed         int64   `yaml:"model_seed"`
	DetectorPath      string  `yaml:"detector_path"`
	ClusterPath       string  `yaml:"cluster_path"`
	VocabPath         string  `yaml:"vocab_path"`
	AnomalyOutput     string  `yaml:"anomaly_output"`
	LLMWorkers        int     `yaml:"llm_workers"`
}

// LLMConfig wraps the capability client settings plus the enable flag.
type LLMConfig struct {
	Enabled          bool `yaml:"enabled"`
	llm.OpenAIConfig `yaml:",inline"`
}

// CacheConfig selects the LLM response cache backend.
type CacheConfig struct {
	Backend   string        `yaml:"backend"` // memory | redis
	RedisAddr string        `yaml:"redis_addr"`
	RedisDB   int           `yaml:"redis_db"`
	TTL       time.Duration `yaml:"ttl"`
}

// ServerConfig holds the HTTP/websocket server settings.
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// PostgresConfig holds the optional reporting sink settings.
type PostgresConfig struct {
	Enabled bool          `yaml:"enabled"`
	DSN     string        `yaml:"-"`
	Timeout time.Duration `yaml:"timeout"`
}

// Config is the full configuration surface.
type Config struct {
	Data     DataConfig       `yaml:"data"`
	LLM      LLMConfig        `yaml:"llm"`
	Cache    CacheConfig      `yaml:"cache"`
	Server   ServerConfig     `yaml:"server"`
	Email    notify.Config    `yaml:"email"`
	Jira     ticketing.Config `yaml:"jira"`
	Postgres PostgresConfig   `yaml:"postgres"`
}

// Default returns the configuration used when no config file is present.
func Default() Config {
	return Config{
		Data: DataConfig{
			QuantityThreshold: 10,
			ContaminationRate: 0.05,
			NClusters:         5,
			ModelSeed:         42,
			DetectorPath:      "artifacts/isolation_forest.json",
			ClusterPath:       "artifacts/kmeans.json",
			VocabPath:         "artifacts/desk_vocab.json",
			AnomalyOutput:     "out/detected_anomalies_{timestamp}.csv",
			LLMWorkers:        8,
		},
		LLM: LLMConfig{
			Enabled:      true,
			OpenAIConfig: llm.DefaultOpenAIConfig(),
		},
		Cache: CacheConfig{
			Backend: "memory",
			TTL:     24 * time.Hour,
		},
		Server: ServerConfig{
			Host:         "127.0.0.1",
			Port:         8000,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 120 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Email:    notify.DefaultConfig(),
		Postgres: PostgresConfig{Timeout: 10 * time.Second},
	}
}

// Load reads the yaml config at path, falling back to defaults when the
// file does not exist, then applies environment secrets. A present but
// malformed file is an error.
func Load(path string) (Config, error) {
	// Secrets may live in a local .env during development.
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg(".env file not found, relying on actual environment variables")
	}

	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		log.Warn().Str("path", path).Msg("config file not found, using defaults")
	case err != nil:
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
	cfg.Email.Password = os.Getenv("SMTP_PASSWORD")
	cfg.Jira.APIToken = os.Getenv("JIRA_API_TOKEN")
	cfg.Postgres.DSN = os.Getenv("PG_DSN")

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Data.ContaminationRate <= 0 || c.Data.ContaminationRate >= 0.5 {
		return fmt.Errorf("contamination_rate %v outside (0, 0.5)", c.Data.ContaminationRate)
	}
	if c.Data.NClusters <= 0 {
		return fmt.Errorf("n_clusters must be positive")
	}
	if c.LLM.Enabled {
		// A zero or negative limiter rate would block every capability call.
		if c.LLM.RequestsPerMinute <= 0 {
			return fmt.Errorf("llm requests_per_minute must be positive, got %d", c.LLM.RequestsPerMinute)
		}
		if c.LLM.Burst <= 0 {
			return fmt.Errorf("llm burst must be positive, got %d", c.LLM.Burst)
		}
	}
	if c.Cache.Backend != "memory" && c.Cache.Backend != "redis" {
		return fmt.Errorf("unknown cache backend %q", c.Cache.Backend)
	}
	if c.Postgres.Enabled && c.Postgres.DSN == "" {
		return fmt.Errorf("postgres enabled but PG_DSN is not set")
	}
	return nil
}
