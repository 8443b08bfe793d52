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
	Store     StoreConfig      `yaml:"store" mapstructure:"store"`
	Anthropic AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Weaviate  WeaviateConfig   `yaml:"weaviate" mapstructure:"weaviate"`
	Validate  ValidationConfig `yaml:"validate" mapstructure:"validate"`
	Reconcile ReconcileConfig  `yaml:"reconcile" mapstructure:"reconcile"`
	Retry     RetryConfig      `yaml:"retry" mapstructure:"retry"`
	Process   ProcessConfig    `yaml:"process" mapstructure:"process"`
	Server    ServerConfig     `yaml:"server" mapstructure:"server"`
	Log       LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the retry-queue persistence backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // file | sqlite | postgres
	Dir         string `yaml:"dir" mapstructure:"dir"`       // file driver: directory for queue JSON files
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// AnthropicConfig holds Anthropic API settings for extraction and answering.
type AnthropicConfig struct {
	Key         string `yaml:"key" mapstructure:"key"`
	VisionModel string `yaml:"vision_model" mapstructure:"vision_model"`
	AnswerModel string `yaml:"answer_model" mapstructure:"answer_model"`
	MaxTokens   int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// WeaviateConfig holds hybrid search engine settings.
type WeaviateConfig struct {
	BaseURL       string  `yaml:"base_url" mapstructure:"base_url"`
	APIKey        string  `yaml:"api_key" mapstructure:"api_key"`
	VectorizerKey string  `yaml:"vectorizer_key" mapstructure:"vectorizer_key"`
	Collection    string  `yaml:"collection" mapstructure:"collection"`
	Alpha         float64 `yaml:"alpha" mapstructure:"alpha"`
	Limit         int     `yaml:"limit" mapstructure:"limit"`
}

// ValidationConfig holds the quality-gate thresholds and scoring weights.
// Defaults live in validate.DefaultConfig; a standalone YAML rules file can
// override individual values per run.
type ValidationConfig struct {
	// Deal count thresholds.
	MinDealsPerPage int `yaml:"min_deals_per_page" mapstructure:"min_deals_per_page"`
	MaxDealsPerPage int `yaml:"max_deals_per_page" mapstructure:"max_deals_per_page"`
	OptimalDealsMin int `yaml:"optimal_deals_min" mapstructure:"optimal_deals_min"`
	OptimalDealsMax int `yaml:"optimal_deals_max" mapstructure:"optimal_deals_max"`

	// Data quality thresholds.
	MinSKUCoveragePct float64 `yaml:"min_sku_coverage_pct" mapstructure:"min_sku_coverage_pct"`
	MinPrice          float64 `yaml:"min_price" mapstructure:"min_price"`
	MaxPrice          float64 `yaml:"max_price" mapstructure:"max_price"`

	// Extraction quality thresholds.
	MaxCategoryConcentration float64 `yaml:"max_category_concentration" mapstructure:"max_category_concentration"`
	MaxDuplicateRate         float64 `yaml:"max_duplicate_rate" mapstructure:"max_duplicate_rate"`
	MaxPriceOutlierRate      float64 `yaml:"max_price_outlier_rate" mapstructure:"max_price_outlier_rate"`

	// Decision thresholds on the 0-100 score.
	ExcellentThreshold int `yaml:"excellent_threshold" mapstructure:"excellent_threshold"`
	GoodThreshold      int `yaml:"good_threshold" mapstructure:"good_threshold"`
	RetryThreshold     int `yaml:"retry_threshold" mapstructure:"retry_threshold"`

	// Criterion weights (sum = 100).
	DealCountWeight      int `yaml:"deal_count_weight" mapstructure:"deal_count_weight"`
	RequiredFieldsWeight int `yaml:"required_fields_weight" mapstructure:"required_fields_weight"`
	PriceQualityWeight   int `yaml:"price_quality_weight" mapstructure:"price_quality_weight"`
	CategoryWeight       int `yaml:"category_weight" mapstructure:"category_weight"`
	CompletenessWeight   int `yaml:"completeness_weight" mapstructure:"completeness_weight"`
	DuplicateWeight      int `yaml:"duplicate_weight" mapstructure:"duplicate_weight"`

	// Per-unit deductions.
	DeductPerMissingDeal  int `yaml:"deduct_per_missing_deal" mapstructure:"deduct_per_missing_deal"`
	DeductPerExcessDeal   int `yaml:"deduct_per_excess_deal" mapstructure:"deduct_per_excess_deal"`
	DeductPerMissingField int `yaml:"deduct_per_missing_field" mapstructure:"deduct_per_missing_field"`
	DeductPerOutlier      int `yaml:"deduct_per_outlier" mapstructure:"deduct_per_outlier"`
	DeductForBias         int `yaml:"deduct_for_bias" mapstructure:"deduct_for_bias"`
	DeductForLowSKU       int `yaml:"deduct_for_low_sku" mapstructure:"deduct_for_low_sku"`
	DeductPerDuplicate    int `yaml:"deduct_per_duplicate" mapstructure:"deduct_per_duplicate"`
}

// ReconcileConfig configures answer-time relevance filtering.
type ReconcileConfig struct {
	// NoDealsPhrases force an empty deal set when present in the answer.
	NoDealsPhrases []string `yaml:"no_deals_phrases" mapstructure:"no_deals_phrases"`

	// MinRelevantFraction, when > 0, enables the confidence-floor policy:
	// a parsed relevant set covering less than this fraction of candidates
	// is discarded in favor of the top candidates. Zero means strict trust.
	MinRelevantFraction float64 `yaml:"min_relevant_fraction" mapstructure:"min_relevant_fraction"`

	// TopFallback caps how many candidates the confidence-floor fallback shows.
	TopFallback int `yaml:"top_fallback" mapstructure:"top_fallback"`
}

// RetryConfig configures extraction retry bookkeeping.
type RetryConfig struct {
	MaxAttempts int    `yaml:"max_attempts" mapstructure:"max_attempts"`
	ArtifactDir string `yaml:"artifact_dir" mapstructure:"artifact_dir"`
}

// ProcessConfig configures the flyer processing run.
type ProcessConfig struct {
	InputDir    string  `yaml:"input_dir" mapstructure:"input_dir"`
	OutputFile  string  `yaml:"output_file" mapstructure:"output_file"`
	Concurrency int     `yaml:"concurrency" mapstructure:"concurrency"`
	RatePerMin  float64 `yaml:"rate_per_min" mapstructure:"rate_per_min"`
	FTPTimeout  int     `yaml:"ftp_timeout_secs" mapstructure:"ftp_timeout_secs"`
}

// ServerConfig configures the chat server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	MaxQueryLen    int      `yaml:"max_query_len" mapstructure:"max_query_len"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("DEALZEN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "file")
	v.SetDefault("store.dir", "logs")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8090)
	v.SetDefault("server.allowed_origins", []string{"http://localhost:5173"})
	v.SetDefault("server.max_query_len", 250)
	v.SetDefault("anthropic.vision_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.answer_model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 4096)
	v.SetDefault("weaviate.base_url", "http://localhost:8080")
	v.SetDefault("weaviate.collection", "Deal")
	v.SetDefault("weaviate.alpha", 0.5)
	v.SetDefault("weaviate.limit", 20)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.artifact_dir", "logs/failed_extractions")
	v.SetDefault("process.input_dir", "flyer-images")
	v.SetDefault("process.output_file", "deals.json")
	v.SetDefault("process.concurrency", 3)
	v.SetDefault("process.rate_per_min", 20)
	v.SetDefault("process.ftp_timeout_secs", 30)
	v.SetDefault("reconcile.min_relevant_fraction", 0.0)
	v.SetDefault("reconcile.top_fallback", 5)
	v.SetDefault("reconcile.no_deals_phrases", []string{
		"couldn't find any deals",
		"couldn't find any specific deals",
		"no deals",
		"not find any deals",
		"don't have any deals",
	})

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
