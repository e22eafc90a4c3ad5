package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Retrieval RetrievalConfig `yaml:"retrieval" mapstructure:"retrieval"`
	Session   SessionConfig   `yaml:"session" mapstructure:"session"`
	Verify    VerifyConfig    `yaml:"verify" mapstructure:"verify"`
	Cache     CacheConfig     `yaml:"cache" mapstructure:"cache"`
	Batch     BatchConfig     `yaml:"batch" mapstructure:"batch"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key            string `yaml:"key" mapstructure:"key"`
	VisionModel    string `yaml:"vision_model" mapstructure:"vision_model"`
	ReasoningModel string `yaml:"reasoning_model" mapstructure:"reasoning_model"`
}

// RetrievalConfig holds geo retrieval service settings.
type RetrievalConfig struct {
	BaseURL   string  `yaml:"base_url" mapstructure:"base_url"`
	Key       string  `yaml:"key" mapstructure:"key"`
	RateLimit float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// SessionConfig configures the reasoning loop.
type SessionConfig struct {
	LoopEnabled         bool    `yaml:"loop_enabled" mapstructure:"loop_enabled"`
	MaxIterations       int     `yaml:"max_iterations" mapstructure:"max_iterations"`
	ConfidenceThreshold float64 `yaml:"confidence_threshold" mapstructure:"confidence_threshold"`
	TopK                int     `yaml:"top_k" mapstructure:"top_k"`
	Strategy            string  `yaml:"strategy" mapstructure:"strategy"`
	UseJudge            bool    `yaml:"use_judge" mapstructure:"use_judge"`
	MaxHypotheses       int     `yaml:"max_hypotheses" mapstructure:"max_hypotheses"`
	EXIFFallback        bool    `yaml:"exif_fallback" mapstructure:"exif_fallback"`
}

// VerifyConfig configures evidence verification and scoring.
type VerifyConfig struct {
	Enabled        []string `yaml:"enabled" mapstructure:"enabled"`
	PriorWeight    float64  `yaml:"prior_weight" mapstructure:"prior_weight"`
	EvidenceWeight float64  `yaml:"evidence_weight" mapstructure:"evidence_weight"`
}

// CacheConfig configures the local prediction cache.
type CacheConfig struct {
	Path     string `yaml:"path" mapstructure:"path"`
	TTLHours int    `yaml:"ttl_hours" mapstructure:"ttl_hours"`
}

// BatchConfig configures batch processing.
type BatchConfig struct {
	MaxConcurrentImages int `yaml:"max_concurrent_images" mapstructure:"max_concurrent_images"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Validate checks that the fields the given command depends on are set.
// Mode is the command name: locate, batch, or serve.
func (c *Config) Validate(mode string) error {
	var problems []string

	switch mode {
	case "locate", "batch":
		if c.Anthropic.Key == "" {
			problems = append(problems, "anthropic.key is required")
		}
		if c.Retrieval.BaseURL == "" {
			problems = append(problems, "retrieval.base_url is required")
		}
	case "serve":
		if c.Anthropic.Key == "" {
			problems = append(problems, "anthropic.key is required")
		}
		if c.Server.Port < 1 || c.Server.Port > 65535 {
			problems = append(problems, "server.port must be between 1 and 65535")
		}
	}

	if c.Session.MaxIterations < 1 {
		problems = append(problems, "session.max_iterations must be at least 1")
	}
	if c.Session.ConfidenceThreshold < 0 || c.Session.ConfidenceThreshold > 1 {
		problems = append(problems, "session.confidence_threshold must be in [0, 1]")
	}
	if c.Verify.PriorWeight <= 0 || c.Verify.EvidenceWeight <= 0 {
		problems = append(problems, "verify weights must be positive")
	}

	if len(problems) > 0 {
		return eris.New("config: " + strings.Join(problems, "; "))
	}
	return nil
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("GEOMIND")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("batch.max_concurrent_images", 4)
	v.SetDefault("anthropic.vision_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.reasoning_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("retrieval.base_url", "http://localhost:7880")
	v.SetDefault("retrieval.rate_limit", 10.0)
	v.SetDefault("session.loop_enabled", true)
	v.SetDefault("session.max_iterations", 3)
	v.SetDefault("session.confidence_threshold", 0.7)
	v.SetDefault("session.top_k", 10)
	v.SetDefault("session.strategy", "fallback")
	v.SetDefault("session.use_judge", false)
	v.SetDefault("session.max_hypotheses", 5)
	v.SetDefault("session.exif_fallback", true)
	v.SetDefault("verify.enabled", []string{"gps_prior", "language_prior", "ocr_poi", "road_topology"})
	v.SetDefault("verify.prior_weight", 0.6)
	v.SetDefault("verify.evidence_weight", 0.4)
	v.SetDefault("cache.path", "geomind.db")
	v.SetDefault("cache.ttl_hours", 168)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
