package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	JWT       JWTConfig       `yaml:"jwt"`
	Store     StoreConfig     `yaml:"store"`
	Firebase  FirebaseConfig  `yaml:"firebase"`
	CORS      CORSConfig      `yaml:"cors"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Logging   LoggingConfig   `yaml:"logging"`
	Redis     RedisConfig     `yaml:"redis"`
	RabbitMQ  RabbitMQConfig  `yaml:"rabbitmq"`
	Uploads   UploadsConfig   `yaml:"uploads"`
}

type ServerConfig struct {
	Port        string `yaml:"port"`
	Host        string `yaml:"host"`
	Environment string `yaml:"environment"`
}

type JWTConfig struct {
	Secret     string        `yaml:"secret"`
	Expiration time.Duration `yaml:"expiration"`
}

// StoreConfig selects the persistence backend: "firestore" or "memory".
type StoreConfig struct {
	Backend string `yaml:"backend"`
}

type FirebaseConfig struct {
	ProjectID       string `yaml:"project_id"`
	CredentialsPath string `yaml:"credentials_path"`
}

type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type RateLimitConfig struct {
	Requests int           `yaml:"requests"`
	Window   time.Duration `yaml:"window"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// RedisConfig enables the identity cache when Addr is set.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

// RabbitMQConfig enables user event publishing when URL is set.
type RabbitMQConfig struct {
	URL   string `yaml:"url"`
	Queue string `yaml:"queue"`
}

// UploadsConfig bounds request bodies. Uploads are held in memory, so
// MaxMemory must cover MaxBodySize.
type UploadsConfig struct {
	MaxMemory   int64 `yaml:"max_memory"`
	MaxBodySize int64 `yaml:"max_body_size"`
}

const (
	BackendFirestore = "firestore"
	BackendMemory    = "memory"

	devSecret = "dev-secret-key"
)

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        "8080",
			Host:        "0.0.0.0",
			Environment: "development",
		},
		JWT: JWTConfig{
			Secret:     devSecret,
			Expiration: 24 * time.Hour,
		},
		Store: StoreConfig{Backend: BackendFirestore},
		Firebase: FirebaseConfig{
			CredentialsPath: "./serviceAccountKey.json",
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{"http://localhost:5173"},
		},
		RateLimit: RateLimitConfig{
			Requests: 100,
			Window:   60 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Redis: RedisConfig{TTL: 5 * time.Minute},
		RabbitMQ: RabbitMQConfig{
			Queue: "user_events",
		},
		Uploads: UploadsConfig{
			MaxMemory:   64 << 20,
			MaxBodySize: 64 << 20,
		},
	}
}

// Load builds the configuration from defaults, then the YAML file named by
// CONFIG_FILE (if any), then environment variables.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Server.Port = getEnv("PORT", c.Server.Port)
	c.Server.Host = getEnv("HOST", c.Server.Host)
	c.Server.Environment = getEnv("ENVIRONMENT", c.Server.Environment)

	c.JWT.Secret = getEnv("JWT_SECRET", c.JWT.Secret)
	c.JWT.Expiration = parseDuration(os.Getenv("JWT_EXPIRATION"), c.JWT.Expiration)

	c.Store.Backend = getEnv("STORE_BACKEND", c.Store.Backend)

	c.Firebase.ProjectID = getEnv("FIREBASE_PROJECT_ID", c.Firebase.ProjectID)
	c.Firebase.CredentialsPath = getEnv("FIREBASE_CREDENTIALS_PATH", c.Firebase.CredentialsPath)

	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		c.CORS.AllowedOrigins = parseStringSlice(origins)
	}

	c.RateLimit.Requests = parseInt(os.Getenv("RATE_LIMIT_REQUESTS"), c.RateLimit.Requests)
	c.RateLimit.Window = parseDuration(os.Getenv("RATE_LIMIT_WINDOW"), c.RateLimit.Window)

	c.Logging.Level = getEnv("LOG_LEVEL", c.Logging.Level)
	c.Logging.Format = getEnv("LOG_FORMAT", c.Logging.Format)

	c.Redis.Addr = getEnv("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnv("REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = parseInt(os.Getenv("REDIS_DB"), c.Redis.DB)
	c.Redis.TTL = parseDuration(os.Getenv("REDIS_TTL"), c.Redis.TTL)

	c.RabbitMQ.URL = getEnv("RABBITMQ_URL", c.RabbitMQ.URL)
	c.RabbitMQ.Queue = getEnv("RABBITMQ_QUEUE", c.RabbitMQ.Queue)

	c.Uploads.MaxMemory = parseInt64(os.Getenv("UPLOAD_MAX_MEMORY"), c.Uploads.MaxMemory)
	c.Uploads.MaxBodySize = parseInt64(os.Getenv("UPLOAD_MAX_BODY_SIZE"), c.Uploads.MaxBodySize)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseInt(s string, defaultValue int) int {
	if i, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
		return i
	}
	return defaultValue
}

func parseInt64(s string, defaultValue int64) int64 {
	if i, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
		return i
	}
	return defaultValue
}

func parseDuration(s string, defaultValue time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	// Handle simple formats like "30m", "7d", "60"
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	if days, ok := strings.CutSuffix(s, "d"); ok {
		if i, err := strconv.Atoi(days); err == nil {
			return time.Duration(i) * 24 * time.Hour
		}
	}
	// If it's just a number, assume seconds
	if i, err := strconv.Atoi(s); err == nil {
		return time.Duration(i) * time.Second
	}
	return defaultValue
}

func parseStringSlice(s string) []string {
	result := []string{}
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			result = append(result, part)
		}
	}
	return result
}

func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return c.Server.Environment == "development"
}

// Validate reports every configuration problem found.
func (c *Config) Validate() error {
	var errs []error
	if c.JWT.Secret == "" {
		errs = append(errs, errors.New("JWT_SECRET must be set"))
	}
	if c.JWT.Secret == devSecret && c.IsProduction() {
		errs = append(errs, errors.New("JWT_SECRET must be set in production"))
	}

	switch c.Store.Backend {
	case BackendFirestore:
		if c.Firebase.ProjectID == "" {
			errs = append(errs, errors.New("FIREBASE_PROJECT_ID must be set"))
		}
		if _, err := os.Stat(c.Firebase.CredentialsPath); os.IsNotExist(err) {
			errs = append(errs, fmt.Errorf("Firebase credentials file not found: %s", c.Firebase.CredentialsPath))
		}
	case BackendMemory:
		if c.IsProduction() {
			errs = append(errs, errors.New("memory store cannot be used in production"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store backend %q", c.Store.Backend))
	}

	if c.RateLimit.Requests <= 0 || c.RateLimit.Window <= 0 {
		errs = append(errs, errors.New("rate limit requests and window must be positive"))
	}
	if c.Uploads.MaxMemory <= 0 || c.Uploads.MaxBodySize <= 0 {
		errs = append(errs, errors.New("upload limits must be positive"))
	}
	// Multipart parts beyond MaxMemory would be spooled to temp files.
	if c.Uploads.MaxMemory < c.Uploads.MaxBodySize {
		errs = append(errs, errors.New("UPLOAD_MAX_MEMORY must be at least UPLOAD_MAX_BODY_SIZE"))
	}
	if c.RabbitMQ.URL != "" && c.RabbitMQ.Queue == "" {
		errs = append(errs, errors.New("RABBITMQ_QUEUE must be set when RABBITMQ_URL is"))
	}
	return errors.Join(errs...)
}
