package config

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"github.com/zfogg/beacon/internal/logger"
)

// Config is the full runtime configuration of the server and tools.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Auth      AuthConfig
	Google    GoogleConfig
	Facebook  FacebookConfig
	LinkedIn  LinkedInConfig
	Webflow   WebflowConfig
	Storage   StorageConfig
	Email     EmailConfig
	Telemetry TelemetryConfig
	Log       LogConfig
	Cache     CacheConfig
}

type ServerConfig struct {
	Port           string
	Environment    string
	BaseURL        string // public URL of this API, used for OAuth callbacks
	FrontendURL    string // dashboard URL users are redirected to after OAuth
	AllowedOrigins []string
}

type DatabaseConfig struct {
	URL    string
	Driver string // "postgres" or "sqlite"
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type AuthConfig struct {
	JWTSecret     string
	TokenTTL      time.Duration
	EncryptionKey string // base64, enables encryption of stored provider configs
}

type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	APIKey       string // PageSpeed Insights key
}

type FacebookConfig struct {
	AppID        string
	AppSecret    string
	GraphVersion string
}

type LinkedInConfig struct {
	ClientID     string
	ClientSecret string
	APIVersion   string // YYYYMM, sent as LinkedIn-Version on the Posts API
	UsePostsAPI  bool
	OrgPosting   bool
}

type WebflowConfig struct {
	APIBaseURL string
}

type StorageConfig struct {
	Driver        string // "s3" or "local"
	Region        string
	Bucket        string
	PublicBaseURL string
	LocalDir      string
}

type EmailConfig struct {
	Enabled     bool
	Region      string
	FromAddress string
	FromName    string
}

type TelemetryConfig struct {
	Enabled      bool
	ServiceName  string
	OTLPEndpoint string
	SamplingRate float64
}

type LogConfig struct {
	Level string
	File  string
}

type CacheConfig struct {
	TTL time.Duration
}

// IsProduction reports whether the server runs in production mode.
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8787")
	v.SetDefault("environment", "development")
	v.SetDefault("base_url", "http://localhost:8787")
	v.SetDefault("frontend_url", "http://localhost:3000")
	v.SetDefault("allowed_origins", "*")

	v.SetDefault("database_driver", "postgres")
	v.SetDefault("database_url", "host=localhost port=5432 user=postgres dbname=beacon sslmode=disable")

	v.SetDefault("redis_db", 0)

	v.SetDefault("token_ttl", "24h")

	v.SetDefault("facebook_graph_version", "v19.0")
	v.SetDefault("linkedin_api_version", "202405")
	v.SetDefault("linkedin_use_posts_api", true)
	v.SetDefault("linkedin_org_posting", false)
	v.SetDefault("webflow_api_base_url", "https://api.webflow.com")

	v.SetDefault("storage_driver", "local")
	v.SetDefault("storage_local_dir", "./data/og")
	v.SetDefault("aws_region", "us-east-1")

	v.SetDefault("email_enabled", false)
	v.SetDefault("email_from_name", "Beacon")

	v.SetDefault("otel_enabled", false)
	v.SetDefault("otel_service_name", "beacon-api")
	v.SetDefault("otel_exporter_otlp_endpoint", "localhost:4318")
	v.SetDefault("otel_sampling_rate", 1.0)

	v.SetDefault("log_level", "info")
	v.SetDefault("log_file", "beacon.log")

	v.SetDefault("cache_ttl", "10m")
}

// Load reads .env (if present) and the environment into a Config.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logger.Log.Debug("No .env file found, using system environment variables")
	}

	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:           v.GetString("port"),
			Environment:    v.GetString("environment"),
			BaseURL:        strings.TrimSuffix(v.GetString("base_url"), "/"),
			FrontendURL:    strings.TrimSuffix(v.GetString("frontend_url"), "/"),
			AllowedOrigins: splitList(v.GetString("allowed_origins")),
		},
		Database: DatabaseConfig{
			URL:    v.GetString("database_url"),
			Driver: v.GetString("database_driver"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis_addr"),
			Password: v.GetString("redis_password"),
			DB:       v.GetInt("redis_db"),
		},
		Auth: AuthConfig{
			JWTSecret:     v.GetString("jwt_secret"),
			TokenTTL:      v.GetDuration("token_ttl"),
			EncryptionKey: v.GetString("config_encryption_key"),
		},
		Google: GoogleConfig{
			ClientID:     v.GetString("google_client_id"),
			ClientSecret: v.GetString("google_client_secret"),
			APIKey:       v.GetString("google_api_key"),
		},
		Facebook: FacebookConfig{
			AppID:        v.GetString("facebook_app_id"),
			AppSecret:    v.GetString("facebook_app_secret"),
			GraphVersion: v.GetString("facebook_graph_version"),
		},
		LinkedIn: LinkedInConfig{
			ClientID:     v.GetString("linkedin_client_id"),
			ClientSecret: v.GetString("linkedin_client_secret"),
			APIVersion:   v.GetString("linkedin_api_version"),
			UsePostsAPI:  v.GetBool("linkedin_use_posts_api"),
			OrgPosting:   v.GetBool("linkedin_org_posting"),
		},
		Webflow: WebflowConfig{
			APIBaseURL: v.GetString("webflow_api_base_url"),
		},
		Storage: StorageConfig{
			Driver:        v.GetString("storage_driver"),
			Region:        v.GetString("aws_region"),
			Bucket:        v.GetString("aws_bucket"),
			PublicBaseURL: v.GetString("cdn_base_url"),
			LocalDir:      v.GetString("storage_local_dir"),
		},
		Email: EmailConfig{
			Enabled:     v.GetBool("email_enabled"),
			Region:      v.GetString("aws_region"),
			FromAddress: v.GetString("email_from_address"),
			FromName:    v.GetString("email_from_name"),
		},
		Telemetry: TelemetryConfig{
			Enabled:      v.GetBool("otel_enabled"),
			ServiceName:  v.GetString("otel_service_name"),
			OTLPEndpoint: v.GetString("otel_exporter_otlp_endpoint"),
			SamplingRate: v.GetFloat64("otel_sampling_rate"),
		},
		Log: LogConfig{
			Level: v.GetString("log_level"),
			File:  v.GetString("log_file"),
		},
		Cache: CacheConfig{
			TTL: v.GetDuration("cache_ttl"),
		},
	}

	if cfg.Auth.TokenTTL <= 0 {
		cfg.Auth.TokenTTL = 24 * time.Hour
	}
	if cfg.Cache.TTL <= 0 {
		cfg.Cache.TTL = 10 * time.Minute
	}

	return cfg, nil
}

// Validate fails fast on settings the server cannot run without.
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET environment variable is required")
	}
	if c.Auth.EncryptionKey != "" {
		key, err := base64.StdEncoding.DecodeString(c.Auth.EncryptionKey)
		if err != nil {
			return fmt.Errorf("CONFIG_ENCRYPTION_KEY is not valid base64: %w", err)
		}
		if len(key) < 16 {
			return fmt.Errorf("CONFIG_ENCRYPTION_KEY must decode to at least 16 bytes")
		}
	}
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported DATABASE_DRIVER %q", c.Database.Driver)
	}
	switch c.Storage.Driver {
	case "local":
	case "s3":
		if c.Storage.Bucket == "" {
			return fmt.Errorf("AWS_BUCKET is required when STORAGE_DRIVER=s3")
		}
	default:
		return fmt.Errorf("unsupported STORAGE_DRIVER %q", c.Storage.Driver)
	}
	return nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
