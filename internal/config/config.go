package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Nominatim NominatimConfig `yaml:"nominatim" mapstructure:"nominatim"`
	OSRM      OSRMConfig      `yaml:"osrm" mapstructure:"osrm"`
	Wikipedia WikipediaConfig `yaml:"wikipedia" mapstructure:"wikipedia"`
	Suggest   SuggestConfig   `yaml:"suggest" mapstructure:"suggest"`
	Resolver  ResolverConfig  `yaml:"resolver" mapstructure:"resolver"`
	Content   ContentConfig   `yaml:"content" mapstructure:"content"`
	Render    RenderConfig    `yaml:"render" mapstructure:"render"`
	Pipeline  PipelineConfig  `yaml:"pipeline" mapstructure:"pipeline"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// NominatimConfig holds geocoding provider settings. ContactEmail is
// embedded in the User-Agent; Nominatim hard-rejects requests without a
// distinguishing client identifier.
type NominatimConfig struct {
	BaseURL         string  `yaml:"base_url" mapstructure:"base_url"`
	ContactEmail    string  `yaml:"contact_email" mapstructure:"contact_email"`
	MinIntervalSecs float64 `yaml:"min_interval_secs" mapstructure:"min_interval_secs"`
	TimeoutSecs     int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxCandidates   int     `yaml:"max_candidates" mapstructure:"max_candidates"`
}

// OSRMConfig holds routing provider settings.
type OSRMConfig struct {
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// WikipediaConfig holds encyclopedia content provider settings.
type WikipediaConfig struct {
	BaseURL      string `yaml:"base_url" mapstructure:"base_url"`
	ContactEmail string `yaml:"contact_email" mapstructure:"contact_email"`
	TimeoutSecs  int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	ThumbSize    int    `yaml:"thumb_size" mapstructure:"thumb_size"`
}

// SuggestConfig holds the name-variant suggestion collaborator settings.
type SuggestConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// ResolverConfig holds the place-resolution scoring knobs. The numeric
// values are empirical; they are configuration, not law.
type ResolverConfig struct {
	AcceptScore      float64 `yaml:"accept_score" mapstructure:"accept_score"`
	MediumScore      float64 `yaml:"medium_score" mapstructure:"medium_score"`
	FallbackScore    float64 `yaml:"fallback_score" mapstructure:"fallback_score"`
	NameMatchBonus   float64 `yaml:"name_match_bonus" mapstructure:"name_match_bonus"`
	CityHintBonus    float64 `yaml:"city_hint_bonus" mapstructure:"city_hint_bonus"`
	CountryHintBonus float64 `yaml:"country_hint_bonus" mapstructure:"country_hint_bonus"`
	ImportanceWeight float64 `yaml:"importance_weight" mapstructure:"importance_weight"`
	MaxRetries       int     `yaml:"max_retries" mapstructure:"max_retries"`
}

// ContentConfig holds the content-matching distance knobs.
type ContentConfig struct {
	AgreementRadiusM float64 `yaml:"agreement_radius_m" mapstructure:"agreement_radius_m"`
	AcceptCeilingM   float64 `yaml:"accept_ceiling_m" mapstructure:"accept_ceiling_m"`
	GeoSearchRadiusM int     `yaml:"geo_search_radius_m" mapstructure:"geo_search_radius_m"`
	MaxTextResults   int     `yaml:"max_text_results" mapstructure:"max_text_results"`
	MaxDescWords     int     `yaml:"max_desc_words" mapstructure:"max_desc_words"`
	Concurrency      int     `yaml:"concurrency" mapstructure:"concurrency"`
}

// RenderConfig configures the travel-book artifact output.
type RenderConfig struct {
	OutputDir string `yaml:"output_dir" mapstructure:"output_dir"`
}

// PipelineConfig configures orchestration behavior.
type PipelineConfig struct {
	StageTimeoutSecs int `yaml:"stage_timeout_secs" mapstructure:"stage_timeout_secs"`
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

// MinInterval returns the configured spacing between geocoding requests.
func (c NominatimConfig) MinInterval() time.Duration {
	return time.Duration(c.MinIntervalSecs * float64(time.Second))
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("TRAVELBOOK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "travelbook.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("nominatim.base_url", "https://nominatim.openstreetmap.org")
	v.SetDefault("nominatim.contact_email", "travelbook@localhost.local")
	v.SetDefault("nominatim.min_interval_secs", 1.0)
	v.SetDefault("nominatim.timeout_secs", 15)
	v.SetDefault("nominatim.max_candidates", 5)
	v.SetDefault("osrm.base_url", "https://router.project-osrm.org")
	v.SetDefault("osrm.timeout_secs", 15)
	v.SetDefault("wikipedia.base_url", "https://en.wikipedia.org/w/api.php")
	v.SetDefault("wikipedia.contact_email", "travelbook@localhost.local")
	v.SetDefault("wikipedia.timeout_secs", 10)
	v.SetDefault("wikipedia.thumb_size", 800)
	v.SetDefault("suggest.model", "claude-haiku-4-5-20251001")
	v.SetDefault("resolver.accept_score", 60)
	v.SetDefault("resolver.medium_score", 40)
	v.SetDefault("resolver.fallback_score", 20)
	v.SetDefault("resolver.name_match_bonus", 50)
	v.SetDefault("resolver.city_hint_bonus", 20)
	v.SetDefault("resolver.country_hint_bonus", 20)
	v.SetDefault("resolver.importance_weight", 10)
	v.SetDefault("resolver.max_retries", 3)
	v.SetDefault("content.agreement_radius_m", 100)
	v.SetDefault("content.accept_ceiling_m", 2000)
	v.SetDefault("content.geo_search_radius_m", 10000)
	v.SetDefault("content.max_text_results", 5)
	v.SetDefault("content.max_desc_words", 150)
	v.SetDefault("content.concurrency", 4)
	v.SetDefault("render.output_dir", "data/books")
	v.SetDefault("pipeline.stage_timeout_secs", 600)

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
