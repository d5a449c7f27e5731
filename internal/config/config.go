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
	Store       StoreConfig       `yaml:"store" mapstructure:"store"`
	Server      ServerConfig      `yaml:"server" mapstructure:"server"`
	Log         LogConfig         `yaml:"log" mapstructure:"log"`
	Trust       TrustConfig       `yaml:"trust" mapstructure:"trust"`
	Reach       ReachConfig       `yaml:"reach" mapstructure:"reach"`
	Match       MatchConfig       `yaml:"match" mapstructure:"match"`
	Negotiation NegotiationConfig `yaml:"negotiation" mapstructure:"negotiation"`
	Profile     ProfileConfig     `yaml:"profile" mapstructure:"profile"`
	Cache       CacheConfig       `yaml:"cache" mapstructure:"cache"`
	Batch       BatchConfig       `yaml:"batch" mapstructure:"batch"`
	Monitoring  MonitoringConfig  `yaml:"monitoring" mapstructure:"monitoring"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string     `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string     `yaml:"database_url" mapstructure:"database_url"`
	Pool        PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// PoolConfig holds optional postgres connection pool tuning.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// TrustConfig configures transitive trust propagation. The edge-trust floor
// trades recall for running time and must stay configurable.
type TrustConfig struct {
	MaxHops      int     `yaml:"max_hops" mapstructure:"max_hops"`
	MinEdgeTrust float64 `yaml:"min_edge_trust" mapstructure:"min_edge_trust"`
	DecayFactor  float64 `yaml:"decay_factor" mapstructure:"decay_factor"`
	TopKPaths    int     `yaml:"top_k_paths" mapstructure:"top_k_paths"`
	CacheTTLSecs int     `yaml:"cache_ttl_secs" mapstructure:"cache_ttl_secs"`
}

// ReachConfig configures path search and network analytics. The staleness
// discount devalues edges with no recent interaction during routing; it is
// off by default because it makes path quality depend on wall-clock time.
type ReachConfig struct {
	MaxHops              int     `yaml:"max_hops" mapstructure:"max_hops"`
	MinEdgeTrust         float64 `yaml:"min_edge_trust" mapstructure:"min_edge_trust"`
	CacheTTLSecs         int     `yaml:"cache_ttl_secs" mapstructure:"cache_ttl_secs"`
	ConnectorReachHops   int     `yaml:"connector_reach_hops" mapstructure:"connector_reach_hops"`
	BetweennessSamples   int     `yaml:"betweenness_samples" mapstructure:"betweenness_samples"`
	StaleDiscountEnabled bool    `yaml:"stale_discount_enabled" mapstructure:"stale_discount_enabled"`
	StaleAfterDays       int     `yaml:"stale_after_days" mapstructure:"stale_after_days"`
}

// MatchConfig configures need-satisfaction scoring. ScoringVersion names
// the formula in effect; stored candidates record it, so weight changes
// require an explicit version bump rather than a silent swap.
type MatchConfig struct {
	ScoringVersion      string  `yaml:"scoring_version" mapstructure:"scoring_version"`
	MinSimilarity       float64 `yaml:"min_similarity" mapstructure:"min_similarity"`
	ExplicitWeight      float64 `yaml:"explicit_weight" mapstructure:"explicit_weight"`
	InferredWeight      float64 `yaml:"inferred_weight" mapstructure:"inferred_weight"`
	MutualityWeight     float64 `yaml:"mutuality_weight" mapstructure:"mutuality_weight"`
	ValueExchangeWeight float64 `yaml:"value_exchange_weight" mapstructure:"value_exchange_weight"`
	BalanceWeight       float64 `yaml:"balance_weight" mapstructure:"balance_weight"`
	ReachabilityWeight  float64 `yaml:"reachability_weight" mapstructure:"reachability_weight"`
	MinMutuality        float64 `yaml:"min_mutuality" mapstructure:"min_mutuality"`
	MinOverall          float64 `yaml:"min_overall" mapstructure:"min_overall"`
}

// NegotiationConfig configures the facilitator and agent defaults.
type NegotiationConfig struct {
	MaxRounds          int     `yaml:"max_rounds" mapstructure:"max_rounds"`
	TimeoutSecs        int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MinAcceptableScore float64 `yaml:"min_acceptable_score" mapstructure:"min_acceptable_score"`
	DefaultStrategy    string  `yaml:"default_strategy" mapstructure:"default_strategy"`
	BaseConcession     float64 `yaml:"base_concession" mapstructure:"base_concession"`
	Forgiveness        float64 `yaml:"forgiveness" mapstructure:"forgiveness"`
}

// ProfileConfig holds the external profile/text service settings.
type ProfileConfig struct {
	BaseURL      string  `yaml:"base_url" mapstructure:"base_url"`
	Key          string  `yaml:"key" mapstructure:"key"`
	RateLimitRPS float64 `yaml:"rate_limit_rps" mapstructure:"rate_limit_rps"`
	TimeoutSecs  int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// CacheConfig toggles the in-process result cache.
type CacheConfig struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
}

// BatchConfig configures batch fan-out (match-all, network statistics).
type BatchConfig struct {
	MaxConcurrent int `yaml:"max_concurrent" mapstructure:"max_concurrent"`
}

// MonitoringConfig configures negotiation health checks and webhook alerts.
type MonitoringConfig struct {
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	TimeoutRateThreshold float64 `yaml:"timeout_rate_threshold" mapstructure:"timeout_rate_threshold"`
	MinAgreementRate     float64 `yaml:"min_agreement_rate" mapstructure:"min_agreement_rate"`
	MinSessionsForAlert  int     `yaml:"min_sessions_for_alert" mapstructure:"min_sessions_for_alert"`
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("NETWORK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("trust.max_hops", 4)
	v.SetDefault("trust.min_edge_trust", 0.3)
	v.SetDefault("trust.decay_factor", 0.85)
	v.SetDefault("trust.top_k_paths", 5)
	v.SetDefault("trust.cache_ttl_secs", 300)
	v.SetDefault("reach.max_hops", 6)
	v.SetDefault("reach.min_edge_trust", 0.05)
	v.SetDefault("reach.cache_ttl_secs", 300)
	v.SetDefault("reach.connector_reach_hops", 3)
	v.SetDefault("reach.betweenness_samples", 32)
	v.SetDefault("reach.stale_discount_enabled", false)
	v.SetDefault("reach.stale_after_days", 365)
	v.SetDefault("match.scoring_version", "v2-unbiased")
	v.SetDefault("match.min_similarity", 0.3)
	v.SetDefault("match.explicit_weight", 0.7)
	v.SetDefault("match.inferred_weight", 0.3)
	v.SetDefault("match.mutuality_weight", 0.50)
	v.SetDefault("match.value_exchange_weight", 0.30)
	v.SetDefault("match.balance_weight", 0.15)
	v.SetDefault("match.reachability_weight", 0.05)
	v.SetDefault("match.min_mutuality", 0.5)
	v.SetDefault("match.min_overall", 0.70)
	v.SetDefault("negotiation.max_rounds", 10)
	v.SetDefault("negotiation.timeout_secs", 300)
	v.SetDefault("negotiation.min_acceptable_score", 0.6)
	v.SetDefault("negotiation.default_strategy", "adaptive")
	v.SetDefault("negotiation.base_concession", 0.08)
	v.SetDefault("negotiation.forgiveness", 0.02)
	v.SetDefault("profile.rate_limit_rps", 10)
	v.SetDefault("profile.timeout_secs", 15)
	v.SetDefault("cache.enabled", true)
	v.SetDefault("batch.max_concurrent", 8)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.timeout_rate_threshold", 0.5)
	v.SetDefault("monitoring.min_agreement_rate", 0.2)
	v.SetDefault("monitoring.min_sessions_for_alert", 5)

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
