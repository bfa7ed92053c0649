package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the aetheris engine configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Weather   WeatherConfig   `yaml:"weather"`
	Planner   PlannerConfig   `yaml:"planner"`
	Thermal   ThermalConfig   `yaml:"thermal"`
	Intent    IntentConfig    `yaml:"intent"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds store backend settings.
// Driver "redis" uses a Redis 8 instance for vectors and metadata;
// "embedded" runs chromem-go vectors plus a SQLite metadata file in-process.
type DatabaseConfig struct {
	Driver           string   `yaml:"driver"` // redis, embedded (default: redis)
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
	Path             string   `yaml:"path"`   // embedded driver data file
	KeyPrefix        string   `yaml:"key_prefix"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	APIKey          string `yaml:"api_key"`
	BaseURL         string `yaml:"base_url"`
	Model           string `yaml:"model"`
	Dimensions      int    `yaml:"dimensions"`
	CacheTTLSec     int    `yaml:"cache_ttl_sec"`
	Instruction     string `yaml:"instruction"` // optional prefix for document embeddings
	ChatModel       string `yaml:"chat_model"`  // narration model, empty disables narration
	HNSWM           int    `yaml:"hnsw_m"`      // vector index build parameter
	HNSWEFConstruct int    `yaml:"hnsw_ef_construction"`
}

// WeatherConfig holds forecast provider settings.
type WeatherConfig struct {
	BaseURL    string  `yaml:"base_url"`
	Latitude   float64 `yaml:"latitude"`
	Longitude  float64 `yaml:"longitude"`
	TimeoutSec int     `yaml:"timeout_sec"`
}

// PlannerConfig holds the tunable thresholds of the 72h planner.
// The similarity/threshold numbers are configuration, not derived values.
type PlannerConfig struct {
	ColdBelowC         float64 `yaml:"cold_below_c"`
	HotAboveC          float64 `yaml:"hot_above_c"`
	OvercastCloudPct   float64 `yaml:"overcast_cloud_pct"`
	NeedPerDegree      float64 `yaml:"need_per_degree"`  // intensity units per °C beyond threshold
	ContinuityBonus    float64 `yaml:"continuity_bonus"` // ranking bonus for previously active systems
	HeatAffinityWeight float64 `yaml:"heat_affinity_weight"`
}

// ThermalConfig holds sustainability accounting settings.
type ThermalConfig struct {
	CO2FactorKgPerKWh      float64 `yaml:"co2_factor_kg_per_kwh"`
	BaselineKWh            float64 `yaml:"baseline_kwh"`
	WattsPerIntensityPoint float64 `yaml:"watts_per_intensity_point"`
	MaxIntervalSec         int     `yaml:"max_interval_sec"`
}

// IntentConfig holds intent resolution settings.
type IntentConfig struct {
	MinConfidence float64 `yaml:"min_confidence"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 30
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "redis"
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Database.Path == "" {
		c.Database.Path = "aetheris.db"
	}
	if c.Database.KeyPrefix == "" {
		c.Database.KeyPrefix = "aetheris:"
	}
	if c.Embedding.Model == "" {
		c.Embedding.Model = "text-embedding-3-large"
	}
	if c.Embedding.Dimensions <= 0 {
		c.Embedding.Dimensions = 3072
	}
	if c.Embedding.CacheTTLSec <= 0 {
		c.Embedding.CacheTTLSec = 86400
	}
	if c.Embedding.HNSWM <= 0 {
		c.Embedding.HNSWM = 16
	}
	if c.Embedding.HNSWEFConstruct <= 0 {
		c.Embedding.HNSWEFConstruct = 200
	}
	if c.Weather.BaseURL == "" {
		c.Weather.BaseURL = "https://api.open-meteo.com"
	}
	if c.Weather.TimeoutSec <= 0 {
		c.Weather.TimeoutSec = 15
	}
	if c.Planner.ColdBelowC == 0 {
		c.Planner.ColdBelowC = 15
	}
	if c.Planner.HotAboveC == 0 {
		c.Planner.HotAboveC = 26
	}
	if c.Planner.OvercastCloudPct == 0 {
		c.Planner.OvercastCloudPct = 60
	}
	if c.Planner.NeedPerDegree <= 0 {
		c.Planner.NeedPerDegree = 12
	}
	if c.Planner.ContinuityBonus <= 0 {
		c.Planner.ContinuityBonus = 15
	}
	if c.Planner.HeatAffinityWeight <= 0 {
		c.Planner.HeatAffinityWeight = 0.5
	}
	if c.Thermal.CO2FactorKgPerKWh <= 0 {
		c.Thermal.CO2FactorKgPerKWh = 0.4
	}
	if c.Thermal.BaselineKWh <= 0 {
		c.Thermal.BaselineKWh = 1.56 // 65W server running a full day
	}
	if c.Thermal.WattsPerIntensityPoint <= 0 {
		c.Thermal.WattsPerIntensityPoint = 0.65
	}
	if c.Thermal.MaxIntervalSec <= 0 {
		c.Thermal.MaxIntervalSec = 900
	}
	if c.Intent.MinConfidence <= 0 {
		c.Intent.MinConfidence = 0.45
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	switch c.Database.Driver {
	case "redis":
		if len(c.Database.Addrs) == 0 {
			return fmt.Errorf("database.addrs is required for the redis driver")
		}
	case "embedded":
		// file path has a default
	default:
		return fmt.Errorf("database.driver must be \"redis\" or \"embedded\", got %q", c.Database.Driver)
	}
	if c.Planner.ColdBelowC >= c.Planner.HotAboveC {
		return fmt.Errorf(
			"planner.cold_below_c (%.1f) must be below planner.hot_above_c (%.1f)",
			c.Planner.ColdBelowC, c.Planner.HotAboveC,
		)
	}
	if c.Intent.MinConfidence < 0 || c.Intent.MinConfidence > 1 {
		return fmt.Errorf("intent.min_confidence must be within [0,1], got %g", c.Intent.MinConfidence)
	}
	if c.Weather.Latitude < -90 || c.Weather.Latitude > 90 {
		return fmt.Errorf("weather.latitude %g out of range", c.Weather.Latitude)
	}
	if c.Weather.Longitude < -180 || c.Weather.Longitude > 180 {
		return fmt.Errorf("weather.longitude %g out of range", c.Weather.Longitude)
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
