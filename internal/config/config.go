// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type WebConfig struct {
	Port          int           `yaml:"port"`
	SubscriberJWT string        `yaml:"subscriber_jwt_secret"`
	TokenTTL      time.Duration `yaml:"token_ttl"`
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	// SubscriptionTTL bounds how long a job's channel set survives without
	// a resubscribe.
	SubscriptionTTL time.Duration `yaml:"subscription_ttl"`
	ArtifactTTL     time.Duration `yaml:"artifact_ttl"`
	// PreviewTTL bounds the memoized preview results keyed by drawing hash
	// and model version.
	PreviewTTL time.Duration `yaml:"preview_ttl"`
}

type EndpointConfig struct {
	ID           string        `yaml:"id"`
	URL          string        `yaml:"url"`
	APIKey       string        `yaml:"api_key"`
	ModelVersion string        `yaml:"model_version"`
	Timeout      time.Duration `yaml:"timeout"`
}

type InferenceConfig struct {
	Preview      EndpointConfig `yaml:"preview"`
	Intermediate EndpointConfig `yaml:"intermediate"`
	Final        EndpointConfig `yaml:"final"`
}

type PipelineConfig struct {
	MaxAttempts         int           `yaml:"max_attempts"` // retries per stage
	BackoffBase         time.Duration `yaml:"backoff_base"`
	BackoffMax          time.Duration `yaml:"backoff_max"`
	ConfidenceThreshold float64       `yaml:"confidence_threshold"`
	OverlapThreshold    float64       `yaml:"overlap_threshold"`
	PreciseBoundaries   bool          `yaml:"precise_boundaries"` // polygons on the final stage
	BudgetSeconds       float64       `yaml:"budget_seconds"`     // end-to-end wall clock target
	Workers             int           `yaml:"workers"`
	PollInterval        time.Duration `yaml:"poll_interval"`
}

type BlobConfig struct {
	Dir string `yaml:"dir"`
}

type Config struct {
	Log       LogConfig       `yaml:"log"`
	Web       WebConfig       `yaml:"web"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Inference InferenceConfig `yaml:"inference"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Blob      BlobConfig      `yaml:"blob"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads the YAML file, applies .env/environment overrides and
// defaults, and validates the result.
func LoadConfig(path string, dev bool) (*Config, error) {
	// .env is optional; environment wins over yaml for secrets and URLs.
	_ = godotenv.Load()

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("SUBSCRIBER_JWT_SECRET"); v != "" {
		cfg.Web.SubscriberJWT = v
	}

	// defaults
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Web.Port == 0 {
		cfg.Web.Port = 8080
	}
	if cfg.Web.TokenTTL <= 0 {
		cfg.Web.TokenTTL = 30 * time.Minute
	}
	if cfg.Redis.SubscriptionTTL <= 0 {
		cfg.Redis.SubscriptionTTL = 15 * time.Minute
	}
	if cfg.Redis.ArtifactTTL <= 0 {
		cfg.Redis.ArtifactTTL = time.Hour
	}
	if cfg.Redis.PreviewTTL <= 0 {
		cfg.Redis.PreviewTTL = 24 * time.Hour
	}
	if cfg.Pipeline.MaxAttempts <= 0 {
		cfg.Pipeline.MaxAttempts = 3
	}
	if cfg.Pipeline.BackoffBase <= 0 {
		cfg.Pipeline.BackoffBase = time.Second
	}
	if cfg.Pipeline.BackoffMax <= 0 {
		cfg.Pipeline.BackoffMax = 8 * time.Second
	}
	if cfg.Pipeline.ConfidenceThreshold <= 0 {
		cfg.Pipeline.ConfidenceThreshold = 0.7
	}
	if cfg.Pipeline.OverlapThreshold <= 0 {
		cfg.Pipeline.OverlapThreshold = 0.5
	}
	if cfg.Pipeline.BudgetSeconds <= 0 {
		cfg.Pipeline.BudgetSeconds = 30
	}
	if cfg.Pipeline.Workers <= 0 {
		cfg.Pipeline.Workers = 4
	}
	if cfg.Pipeline.PollInterval <= 0 {
		cfg.Pipeline.PollInterval = 500 * time.Millisecond
	}
	if cfg.Blob.Dir == "" {
		cfg.Blob.Dir = "./data/blueprints"
	}
	for _, ep := range []*EndpointConfig{&cfg.Inference.Preview, &cfg.Inference.Intermediate, &cfg.Inference.Final} {
		if ep.ModelVersion == "" {
			ep.ModelVersion = "1.0.0"
		}
		if ep.Timeout <= 0 {
			ep.Timeout = 30 * time.Second
		}
	}

	// Minimal validation
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.Redis.URL == "" {
		return nil, errors.New("redis.url is required")
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}
