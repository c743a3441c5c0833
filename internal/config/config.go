package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App        App        `mapstructure:"app"`
	AI         AI         `mapstructure:"ai"`
	Search     Search     `mapstructure:"search"`
	Storage    Storage    `mapstructure:"storage"`
	FactCheck  FactCheck  `mapstructure:"factcheck"`
	TitleIndex TitleIndex `mapstructure:"titleindex"`
	Server     Server     `mapstructure:"server"`
	Logging    Logging    `mapstructure:"logging"`
}

// App holds general application configuration
type App struct {
	Debug      bool   `mapstructure:"debug"`
	DataDir    string `mapstructure:"data_dir"`
	ConfigFile string `mapstructure:"config_file"`
}

// AI holds AI/LLM configuration
type AI struct {
	Gemini GeminiConfig `mapstructure:"gemini"`
}

// GeminiConfig holds Google Gemini configuration
type GeminiConfig struct {
	APIKey           string `mapstructure:"api_key"`
	Model            string `mapstructure:"model"`
	EmbeddingModel   string `mapstructure:"embedding_model"`
	EmbeddingTimeout string `mapstructure:"embedding_timeout"`
}

// Search holds search provider configuration
type Search struct {
	Primary    string          `mapstructure:"primary"`
	Secondary  string          `mapstructure:"secondary"`
	MaxResults int             `mapstructure:"max_results"`
	Timeout    string          `mapstructure:"timeout"`
	Providers  SearchProviders `mapstructure:"providers"`
}

// SearchProviders holds configuration for all search providers
type SearchProviders struct {
	Naver  NaverSearchConfig  `mapstructure:"naver"`
	Google GoogleSearchConfig `mapstructure:"google"`
}

// NaverSearchConfig holds Naver Open API search configuration
type NaverSearchConfig struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
}

// GoogleSearchConfig holds Google Custom Search configuration
type GoogleSearchConfig struct {
	APIKey   string `mapstructure:"api_key"`
	SearchID string `mapstructure:"search_id"`
	Country  string `mapstructure:"country"`
	Language string `mapstructure:"language"`
}

// Storage holds object-store and local cache configuration
type Storage struct {
	S3Bucket          string `mapstructure:"s3_bucket"`
	ArticlePrefix     string `mapstructure:"article_prefix"`
	PartitionPrefix   string `mapstructure:"partition_prefix"`
	LocalCacheDir     string `mapstructure:"local_cache_dir"`
	PartitionLocalDir string `mapstructure:"partition_local_dir"`
	Timeout           string `mapstructure:"timeout"`
}

// FactCheck holds the pipeline limits and thresholds
type FactCheck struct {
	MaxClaims              int     `mapstructure:"max_claims"`
	MaxArticlesPerClaim    int     `mapstructure:"max_articles_per_claim"`
	DistanceThreshold      float64 `mapstructure:"distance_threshold"`
	MaxConcurrentClaims    int     `mapstructure:"max_concurrent_claims"`
	MaxConcurrentJudgments int     `mapstructure:"max_concurrent_judgments"`
	MaxEvidencesPerClaim   int     `mapstructure:"max_evidences_per_claim"`
	PartitionStopHits      int     `mapstructure:"partition_stop_hits"`
	LowConfidenceThreshold int     `mapstructure:"low_confidence_threshold"`
}

// TitleIndex holds title-partition configuration
type TitleIndex struct {
	OverflowPartition string `mapstructure:"overflow_partition"`
	WatchInterval     string `mapstructure:"watch_interval"`
}

// Server holds HTTP server configuration
type Server struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// Logging holds logging configuration
type Logging struct {
	Level string `mapstructure:"level"`
}

var globalConfig *Config

// Load loads the configuration from .env, an optional YAML file, and the
// environment, in that order of increasing precedence.
func Load(configFile string) (*Config, error) {
	if globalConfig != nil {
		return globalConfig, nil
	}

	// Load .env file if it exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: Error loading .env file: %v\n", err)
		}
	}

	// Configure viper
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME")
		viper.SetConfigName(".factseeker")
		viper.SetConfigType("yaml")
	}

	setDefaults()
	bindEnvironmentVariables()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := postProcessConfig(config); err != nil {
		return nil, fmt.Errorf("error post-processing config: %w", err)
	}

	if err := validateConfig(config); err != nil {
		return nil, err
	}

	globalConfig = config
	return config, nil
}

// Get returns the global configuration, loading it if necessary
func Get() *Config {
	if globalConfig == nil {
		config, err := Load("")
		if err != nil {
			panic(fmt.Sprintf("Failed to load configuration: %v", err))
		}
		return config
	}
	return globalConfig
}

// setDefaults sets default configuration values
func setDefaults() {
	// App defaults
	viper.SetDefault("app.debug", false)
	viper.SetDefault("app.data_dir", "data")

	// AI defaults
	viper.SetDefault("ai.gemini.model", "gemini-flash-lite-latest")
	viper.SetDefault("ai.gemini.embedding_model", "gemini-embedding-001")
	viper.SetDefault("ai.gemini.embedding_timeout", "60s")

	// Search defaults
	viper.SetDefault("search.primary", "naver")
	viper.SetDefault("search.secondary", "google")
	viper.SetDefault("search.max_results", 10)
	viper.SetDefault("search.timeout", "15s")
	viper.SetDefault("search.providers.google.country", "kr")
	viper.SetDefault("search.providers.google.language", "lang_ko")

	// Storage defaults
	viper.SetDefault("storage.article_prefix", "article_faiss_cache")
	viper.SetDefault("storage.partition_prefix", "news_faiss_db_partitions")
	viper.SetDefault("storage.local_cache_dir", "data/article_faiss_cache")
	viper.SetDefault("storage.partition_local_dir", "data/title_partitions")
	viper.SetDefault("storage.timeout", "30s")

	// Fact-check defaults
	viper.SetDefault("factcheck.max_claims", 10)
	viper.SetDefault("factcheck.max_articles_per_claim", 10)
	viper.SetDefault("factcheck.distance_threshold", 0.8)
	viper.SetDefault("factcheck.max_concurrent_claims", 3)
	viper.SetDefault("factcheck.max_concurrent_judgments", 7)
	viper.SetDefault("factcheck.max_evidences_per_claim", 10)
	viper.SetDefault("factcheck.partition_stop_hits", 1)
	viper.SetDefault("factcheck.low_confidence_threshold", 20)

	// Title-index defaults
	viper.SetDefault("titleindex.overflow_partition", "9")
	viper.SetDefault("titleindex.watch_interval", "60s")

	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8000)

	// Logging defaults
	viper.SetDefault("logging.level", "info")
}

// bindEnvironmentVariables sets up flexible environment variable binding
func bindEnvironmentVariables() {
	// Gemini API key - support multiple formats
	bindEnvKeys("ai.gemini.api_key", []string{
		"GEMINI_API_KEY",
		"GOOGLE_GEMINI_API_KEY",
		"GOOGLE_AI_API_KEY",
	})

	// Naver Open API search
	bindEnvKeys("search.providers.naver.client_id", []string{
		"NAVER_CLIENT_ID",
	})
	bindEnvKeys("search.providers.naver.client_secret", []string{
		"NAVER_CLIENT_SECRET",
	})

	// Google Custom Search - support multiple formats
	bindEnvKeys("search.providers.google.api_key", []string{
		"GOOGLE_CSE_API_KEY",
		"GOOGLE_CUSTOM_SEARCH_API_KEY",
	})
	bindEnvKeys("search.providers.google.search_id", []string{
		"GOOGLE_CSE_CX",
		"GOOGLE_CSE_CX_ID",
		"GOOGLE_CUSTOM_SEARCH_ID",
	})

	// Object store
	bindEnvKeys("storage.s3_bucket", []string{
		"S3_BUCKET_NAME",
	})

	// Pipeline limits
	bindIntEnvKeys("factcheck.max_claims", []string{"MAX_CLAIMS_TO_FACT_CHECK"})
	bindIntEnvKeys("factcheck.max_articles_per_claim", []string{"MAX_ARTICLES_PER_CLAIM"})
	bindFloatEnvKeys("factcheck.distance_threshold", []string{"DISTANCE_THRESHOLD"})
	bindIntEnvKeys("factcheck.max_concurrent_claims", []string{"MAX_CONCURRENT_CLAIMS"})
	bindIntEnvKeys("factcheck.max_concurrent_judgments", []string{"MAX_CONCURRENT_JUDGMENTS"})
	bindIntEnvKeys("factcheck.max_evidences_per_claim", []string{"MAX_EVIDENCES_PER_CLAIM"})
	bindIntEnvKeys("factcheck.partition_stop_hits", []string{"PARTITION_STOP_HITS"})
	bindIntEnvKeys("factcheck.low_confidence_threshold", []string{"LOW_CONFIDENCE_THRESHOLD"})

	// Overflow partition key
	bindEnvKeys("titleindex.overflow_partition", []string{
		"OVERFLOW_PARTITION",
	})

	// General settings
	bindEnvKeys("app.debug", []string{
		"DEBUG",
		"FACTSEEKER_DEBUG",
	})
	bindEnvKeys("logging.level", []string{
		"FACTSEEKER_LOG_LEVEL",
	})
}

// bindEnvKeys binds the first found environment variable to a viper key
func bindEnvKeys(viperKey string, envKeys []string) {
	for _, envKey := range envKeys {
		if value := os.Getenv(envKey); value != "" {
			viper.Set(viperKey, value)
			return
		}
	}
}

// bindIntEnvKeys binds the first found environment variable, parsed as an
// integer. Unparseable values are ignored so the default stands.
func bindIntEnvKeys(viperKey string, envKeys []string) {
	for _, envKey := range envKeys {
		if value := os.Getenv(envKey); value != "" {
			n, err := strconv.Atoi(strings.TrimSpace(value))
			if err != nil {
				fmt.Fprintf(os.Stderr, "Warning: ignoring %s=%q: %v\n", envKey, value, err)
				return
			}
			viper.Set(viperKey, n)
			return
		}
	}
}

// bindFloatEnvKeys binds the first found environment variable, parsed as a
// float. Unparseable values are ignored so the default stands.
func bindFloatEnvKeys(viperKey string, envKeys []string) {
	for _, envKey := range envKeys {
		if value := os.Getenv(envKey); value != "" {
			f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Warning: ignoring %s=%q: %v\n", envKey, value, err)
				return
			}
			viper.Set(viperKey, f)
			return
		}
	}
}

// postProcessConfig applies post-processing to configuration values
func postProcessConfig(config *Config) error {
	// Expand paths
	if config.App.DataDir != "" {
		config.App.DataDir = expandPath(config.App.DataDir)
	}
	if config.Storage.LocalCacheDir != "" {
		config.Storage.LocalCacheDir = expandPath(config.Storage.LocalCacheDir)
	}
	if config.Storage.PartitionLocalDir != "" {
		config.Storage.PartitionLocalDir = expandPath(config.Storage.PartitionLocalDir)
	}

	// Validate durations
	durations := map[string]string{
		"ai.gemini.embedding_timeout": config.AI.Gemini.EmbeddingTimeout,
		"search.timeout":              config.Search.Timeout,
		"storage.timeout":             config.Storage.Timeout,
		"titleindex.watch_interval":   config.TitleIndex.WatchInterval,
	}

	for key, duration := range durations {
		if duration != "" {
			if _, err := time.ParseDuration(duration); err != nil {
				return fmt.Errorf("invalid duration for %s: %s", key, duration)
			}
		}
	}

	return nil
}

// expandPath expands ~ and environment variables in paths
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return os.ExpandEnv(path)
}

// validateConfig ensures required configuration is present and sane
func validateConfig(config *Config) error {
	var errors []string

	positives := map[string]int{
		"factcheck.max_claims":               config.FactCheck.MaxClaims,
		"factcheck.max_articles_per_claim":   config.FactCheck.MaxArticlesPerClaim,
		"factcheck.max_concurrent_claims":    config.FactCheck.MaxConcurrentClaims,
		"factcheck.max_concurrent_judgments": config.FactCheck.MaxConcurrentJudgments,
		"factcheck.max_evidences_per_claim":  config.FactCheck.MaxEvidencesPerClaim,
		"factcheck.partition_stop_hits":      config.FactCheck.PartitionStopHits,
	}
	for key, v := range positives {
		if v <= 0 {
			errors = append(errors, fmt.Sprintf("%s must be positive, got %d", key, v))
		}
	}

	if config.FactCheck.DistanceThreshold <= 0 {
		errors = append(errors, fmt.Sprintf("factcheck.distance_threshold must be positive, got %g", config.FactCheck.DistanceThreshold))
	}
	if config.FactCheck.LowConfidenceThreshold < 0 || config.FactCheck.LowConfidenceThreshold > 100 {
		errors = append(errors, fmt.Sprintf("factcheck.low_confidence_threshold must be within [0,100], got %d", config.FactCheck.LowConfidenceThreshold))
	}

	for _, name := range []string{config.Search.Primary, config.Search.Secondary} {
		switch name {
		case "naver", "google", "mock", "":
		default:
			errors = append(errors, fmt.Sprintf("unknown search provider: %s. Supported: naver, google, mock", name))
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration errors:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// Convenience getters for commonly used configuration values
func GetApp() App               { return Get().App }
func GetAI() AI                 { return Get().AI }
func GetSearch() Search         { return Get().Search }
func GetStorage() Storage       { return Get().Storage }
func GetFactCheck() FactCheck   { return Get().FactCheck }
func GetTitleIndex() TitleIndex { return Get().TitleIndex }
func GetServer() Server         { return Get().Server }

// Specific convenience getters for frequently accessed values
func GetGeminiAPIKey() string { return Get().AI.Gemini.APIKey }
func GetGeminiModel() string  { return Get().AI.Gemini.Model }
func IsDebugMode() bool       { return Get().App.Debug }

// GetNaverSearchConfig returns the Naver Open API credentials.
func GetNaverSearchConfig() (string, string) {
	c := Get().Search.Providers.Naver
	return c.ClientID, c.ClientSecret
}

// GetGoogleSearchConfig returns the Google CSE credentials.
func GetGoogleSearchConfig() (string, string) {
	c := Get().Search.Providers.Google
	return c.APIKey, c.SearchID
}

// SearchTimeout returns the per-call search timeout.
func SearchTimeout() time.Duration {
	return durationOr(Get().Search.Timeout, 15*time.Second)
}

// EmbeddingTimeout returns the per-call embedding timeout.
func EmbeddingTimeout() time.Duration {
	return durationOr(Get().AI.Gemini.EmbeddingTimeout, 60*time.Second)
}

// StorageTimeout returns the per-call object store timeout.
func StorageTimeout() time.Duration {
	return durationOr(Get().Storage.Timeout, 30*time.Second)
}

// WatchInterval returns the partition watcher poll interval.
func WatchInterval() time.Duration {
	return durationOr(Get().TitleIndex.WatchInterval, time.Minute)
}

func durationOr(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// Reset clears the global configuration (useful for testing)
func Reset() {
	globalConfig = nil
	viper.Reset()
}
