package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Store backend names.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `json:"server"`
	Store     StoreConfig     `json:"store"`
	Ledger    LedgerConfig    `json:"ledger"`
	RateLimit RateLimitConfig `json:"rate_limit"`
	Tracing   TracingConfig   `json:"tracing"`
	Events    EventsConfig    `json:"events"`
}

// ServerConfig holds server-related configuration.
type ServerConfig struct {
	Port      string `json:"port"`
	Host      string `json:"host"`
	EnableTLS bool   `json:"enable_tls"`
	CertFile  string `json:"cert_file"`
	KeyFile   string `json:"key_file"`
	// Max request body size in bytes (default: 1MB)
	MaxRequestBodySize int64 `json:"max_request_body_size"`
	// Allowed CORS origins (comma-separated)
	AllowedOrigins string `json:"allowed_origins"`
}

// StoreConfig selects and configures the storage backend. The backend is
// chosen once at startup; nothing sniffs the platform at call sites.
type StoreConfig struct {
	Backend       string `json:"backend"` // memory | sqlite | redis
	SQLitePath    string `json:"sqlite_path"`
	RedisAddr     string `json:"redis_addr"`
	RedisPassword string `json:"redis_password"`
	RedisDB       int    `json:"redis_db"`
}

// LedgerConfig holds points-ledger configuration.
type LedgerConfig struct {
	// BaseURL anchors shareable referral links.
	BaseURL string `json:"base_url"`
	// ClaimExpiryHours is the default claim grant lifetime.
	ClaimExpiryHours int `json:"claim_expiry_hours"`
	// CacheSize bounds the in-memory wallet cache.
	CacheSize int `json:"cache_size"`
	// ReferralValidation requires conversions to match a stored link.
	ReferralValidation bool `json:"referral_validation"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	Enabled bool `json:"enabled"`
	Rate    int  `json:"rate"`
	Window  int  `json:"window"` // in seconds
}

// TracingConfig holds distributed tracing configuration.
type TracingConfig struct {
	Enabled     bool   `json:"enabled"`
	Endpoint    string `json:"endpoint"`
	ServiceName string `json:"service_name"`
	Environment string `json:"environment"`
}

// EventsConfig holds event hook configuration.
type EventsConfig struct {
	Enabled bool `json:"enabled"`
}

// LoadConfig loads configuration from environment variables and/or config file.
// Environment variables take precedence over config file values.
func LoadConfig(configFile string) (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("SERVER_PORT", "8080"),
			Host:               getEnv("SERVER_HOST", ""),
			EnableTLS:          getEnvBool("SERVER_ENABLE_TLS", false),
			CertFile:           getEnv("SERVER_CERT_FILE", ""),
			KeyFile:            getEnv("SERVER_KEY_FILE", ""),
			MaxRequestBodySize: getEnvInt64("MAX_REQUEST_BODY_SIZE", 1<<20),
			AllowedOrigins:     getEnv("ALLOWED_ORIGINS", "*"),
		},
		Store: StoreConfig{
			Backend:       getEnv("STORE_BACKEND", BackendSQLite),
			SQLitePath:    getEnv("STORE_SQLITE_PATH", "./wallet_points.db"),
			RedisAddr:     getEnv("STORE_REDIS_ADDR", "localhost:6379"),
			RedisPassword: getEnv("STORE_REDIS_PASSWORD", ""),
			RedisDB:       getEnvInt("STORE_REDIS_DB", 0),
		},
		Ledger: LedgerConfig{
			BaseURL:            getEnv("LEDGER_BASE_URL", "http://localhost:8080"),
			ClaimExpiryHours:   getEnvInt("LEDGER_CLAIM_EXPIRY_HOURS", 72),
			CacheSize:          getEnvInt("LEDGER_CACHE_SIZE", 1024),
			ReferralValidation: getEnvBool("LEDGER_REFERRAL_VALIDATION", false),
		},
		RateLimit: RateLimitConfig{
			Enabled: getEnvBool("RATE_LIMIT_ENABLED", true),
			Rate:    getEnvInt("RATE_LIMIT_RATE", 100),
			Window:  getEnvInt("RATE_LIMIT_WINDOW", 60),
		},
		Tracing: TracingConfig{
			Enabled:     getEnvBool("TRACING_ENABLED", false),
			Endpoint:    getEnv("TRACING_ENDPOINT", "http://localhost:14268/api/traces"),
			ServiceName: getEnv("TRACING_SERVICE_NAME", "wallet-points-api"),
			Environment: getEnv("TRACING_ENVIRONMENT", "development"),
		},
		Events: EventsConfig{
			Enabled: getEnvBool("EVENTS_ENABLED", true),
		},
	}

	// Load from config file if provided
	if configFile != "" {
		if err := loadFromFile(configFile, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
		// Environment variables take precedence
		overrideFromEnv(cfg)
	}

	return cfg, nil
}

// loadFromFile loads configuration from a JSON file.
func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	return json.Unmarshal(data, cfg)
}

// overrideFromEnv overrides configuration with environment variables.
func overrideFromEnv(cfg *Config) {
	if port := os.Getenv("SERVER_PORT"); port != "" {
		cfg.Server.Port = port
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		cfg.Server.Host = host
	}
	if enableTLS := os.Getenv("SERVER_ENABLE_TLS"); enableTLS != "" {
		cfg.Server.EnableTLS = enableTLS == "true" || enableTLS == "1"
	}
	if certFile := os.Getenv("SERVER_CERT_FILE"); certFile != "" {
		cfg.Server.CertFile = certFile
	}
	if keyFile := os.Getenv("SERVER_KEY_FILE"); keyFile != "" {
		cfg.Server.KeyFile = keyFile
	}
	if maxBodySize := os.Getenv("MAX_REQUEST_BODY_SIZE"); maxBodySize != "" {
		if size, err := strconv.ParseInt(maxBodySize, 10, 64); err == nil {
			cfg.Server.MaxRequestBodySize = size
		}
	}
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		cfg.Server.AllowedOrigins = origins
	}
	if backend := os.Getenv("STORE_BACKEND"); backend != "" {
		cfg.Store.Backend = backend
	}
	if path := os.Getenv("STORE_SQLITE_PATH"); path != "" {
		cfg.Store.SQLitePath = path
	}
	if addr := os.Getenv("STORE_REDIS_ADDR"); addr != "" {
		cfg.Store.RedisAddr = addr
	}
	if password := os.Getenv("STORE_REDIS_PASSWORD"); password != "" {
		cfg.Store.RedisPassword = password
	}
	if db := os.Getenv("STORE_REDIS_DB"); db != "" {
		if d, err := strconv.Atoi(db); err == nil {
			cfg.Store.RedisDB = d
		}
	}
	if baseURL := os.Getenv("LEDGER_BASE_URL"); baseURL != "" {
		cfg.Ledger.BaseURL = baseURL
	}
	if hours := os.Getenv("LEDGER_CLAIM_EXPIRY_HOURS"); hours != "" {
		if h, err := strconv.Atoi(hours); err == nil {
			cfg.Ledger.ClaimExpiryHours = h
		}
	}
	if size := os.Getenv("LEDGER_CACHE_SIZE"); size != "" {
		if s, err := strconv.Atoi(size); err == nil {
			cfg.Ledger.CacheSize = s
		}
	}
	if strict := os.Getenv("LEDGER_REFERRAL_VALIDATION"); strict != "" {
		cfg.Ledger.ReferralValidation = strict == "true" || strict == "1"
	}
	if enabled := os.Getenv("RATE_LIMIT_ENABLED"); enabled != "" {
		cfg.RateLimit.Enabled = enabled == "true" || enabled == "1"
	}
	if rate := os.Getenv("RATE_LIMIT_RATE"); rate != "" {
		if r, err := strconv.Atoi(rate); err == nil {
			cfg.RateLimit.Rate = r
		}
	}
	if window := os.Getenv("RATE_LIMIT_WINDOW"); window != "" {
		if w, err := strconv.Atoi(window); err == nil {
			cfg.RateLimit.Window = w
		}
	}
	if enabled := os.Getenv("TRACING_ENABLED"); enabled != "" {
		cfg.Tracing.Enabled = enabled == "true" || enabled == "1"
	}
	if endpoint := os.Getenv("TRACING_ENDPOINT"); endpoint != "" {
		cfg.Tracing.Endpoint = endpoint
	}
	if name := os.Getenv("TRACING_SERVICE_NAME"); name != "" {
		cfg.Tracing.ServiceName = name
	}
	if env := os.Getenv("TRACING_ENVIRONMENT"); env != "" {
		cfg.Tracing.Environment = env
	}
	if enabled := os.Getenv("EVENTS_ENABLED"); enabled != "" {
		cfg.Events.Enabled = enabled == "true" || enabled == "1"
	}
}

// getEnv gets an environment variable or returns the default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable or returns the default value.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt gets an integer environment variable or returns the default value.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

// getEnvInt64 gets an int64 environment variable or returns the default value.
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	switch c.Store.Backend {
	case BackendMemory:
	case BackendSQLite:
		if c.Store.SQLitePath == "" {
			return fmt.Errorf("sqlite path is required for the sqlite backend")
		}
	case BackendRedis:
		if c.Store.RedisAddr == "" {
			return fmt.Errorf("redis address is required for the redis backend")
		}
	default:
		return fmt.Errorf("unknown store backend: %s", c.Store.Backend)
	}
	if c.Server.EnableTLS {
		if c.Server.CertFile == "" || c.Server.KeyFile == "" {
			return fmt.Errorf("cert and key files are required when TLS is enabled")
		}
	}
	if c.Ledger.ClaimExpiryHours <= 0 {
		return fmt.Errorf("claim expiry hours must be positive")
	}
	if c.RateLimit.Enabled {
		if c.RateLimit.Rate <= 0 {
			return fmt.Errorf("rate limit rate must be positive")
		}
		if c.RateLimit.Window <= 0 {
			return fmt.Errorf("rate limit window must be positive")
		}
	}
	return nil
}
