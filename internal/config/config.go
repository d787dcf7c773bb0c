package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Referral ReferralConfig `yaml:"referral"`
	Sender   SenderConfig   `yaml:"sender"`
	Snapshot SnapshotConfig `yaml:"snapshot"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port        int      `yaml:"port"`
	Host        string   `yaml:"host"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// GetHost returns the server host, with ECS detection
func (c ServerConfig) GetHost() string {
	// On ECS/container, listen on all interfaces
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	return c.Host
}

// Addr is the listen address.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.GetHost(), c.Port)
}

// DatabaseConfig holds PostgreSQL settings. An empty URL selects the
// in-memory store.
type DatabaseConfig struct {
	URL             string `yaml:"url"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime_seconds"`
}

// RedisConfig holds Redis settings. An empty Addr disables Redis locking.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// ReferralConfig tunes the resend gate.
type ReferralConfig struct {
	CooldownSeconds int `yaml:"cooldown_seconds"`
	// SendDelay is a Go duration string for the simulated sender ("3s", "0s").
	SendDelay      string `yaml:"send_delay"`
	LockTTLSeconds int    `yaml:"lock_ttl_seconds"`
}

// Cooldown returns the resend cooldown.
func (c ReferralConfig) Cooldown() time.Duration {
	return time.Duration(c.CooldownSeconds) * time.Second
}

// SendDelayDuration parses SendDelay, falling back to 3s when unset or invalid.
func (c ReferralConfig) SendDelayDuration() time.Duration {
	d, err := time.ParseDuration(c.SendDelay)
	if err != nil || d < 0 {
		return 3 * time.Second
	}
	return d
}

// LockTTL returns how long a resend lock survives a crashed holder.
func (c ReferralConfig) LockTTL() time.Duration {
	return time.Duration(c.LockTTLSeconds) * time.Second
}

// SenderConfig selects and configures invitation delivery.
type SenderConfig struct {
	Mode             string `yaml:"mode"` // simulated | ses
	FromEmail        string `yaml:"from_email"`
	FromName         string `yaml:"from_name"`
	Subject          string `yaml:"subject"`
	Template         string `yaml:"template"`
	SignupURL        string `yaml:"signup_url"`
	AccessKey        string `yaml:"access_key"`
	SecretKey        string `yaml:"secret_key"`
	Region           string `yaml:"region"`
	ConfigurationSet string `yaml:"configuration_set"`
}

// SnapshotConfig selects the analytics snapshot archive.
type SnapshotConfig struct {
	Backend       string `yaml:"backend"` // none | local | s3 | dynamodb
	S3Bucket      string `yaml:"s3_bucket"`
	DynamoDBTable string `yaml:"dynamodb_table"`
	Region        string `yaml:"region"`
	Profile       string `yaml:"aws_profile"`
	Prefix        string `yaml:"prefix"`
	LocalPath     string `yaml:"local_path"`
	// RetentionDays sets the DynamoDB item TTL; 0 keeps snapshots forever.
	RetentionDays int `yaml:"retention_days"`
}

// LoggingConfig controls the structured logger.
type LoggingConfig struct {
	Level     string `yaml:"level"`
	RedactPII *bool  `yaml:"redact_pii"`
}

// Redact reports whether e-mail addresses are masked in logs. Defaults to true.
func (c LoggingConfig) Redact() bool {
	return c.RedactPII == nil || *c.RedactPII
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8000
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if len(cfg.Server.CORSOrigins) == 0 {
		cfg.Server.CORSOrigins = []string{"http://localhost:3000"}
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 10
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 300
	}
	if cfg.Referral.CooldownSeconds == 0 {
		cfg.Referral.CooldownSeconds = 30
	}
	if cfg.Referral.SendDelay == "" {
		cfg.Referral.SendDelay = "3s"
	}
	if cfg.Referral.LockTTLSeconds == 0 {
		cfg.Referral.LockTTLSeconds = int(cfg.Referral.SendDelayDuration().Seconds()) + 10
	}
	if cfg.Sender.Mode == "" {
		cfg.Sender.Mode = "simulated"
	}
	if cfg.Sender.Region == "" {
		cfg.Sender.Region = "us-east-1"
	}
	if cfg.Snapshot.Region == "" {
		cfg.Snapshot.Region = "us-east-1"
	}
	if cfg.Snapshot.Prefix == "" {
		cfg.Snapshot.Prefix = "analytics"
	}
	if cfg.Snapshot.LocalPath == "" {
		cfg.Snapshot.LocalPath = "./data"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

// Validate rejects combinations the server cannot start with.
func (c *Config) Validate() error {
	switch c.Sender.Mode {
	case "simulated":
	case "ses":
		if c.Sender.FromEmail == "" {
			return errors.New("sender.from_email is required when sender.mode is ses")
		}
	default:
		return fmt.Errorf("sender.mode must be simulated or ses, got %q", c.Sender.Mode)
	}
	switch strings.ToLower(c.Snapshot.Backend) {
	case "", "none", "local":
	case "s3":
		if c.Snapshot.S3Bucket == "" {
			return errors.New("snapshot.s3_bucket is required for the s3 backend")
		}
	case "dynamodb":
		if c.Snapshot.DynamoDBTable == "" {
			return errors.New("snapshot.dynamodb_table is required for the dynamodb backend")
		}
	default:
		return fmt.Errorf("unknown snapshot.backend %q", c.Snapshot.Backend)
	}
	if c.Referral.CooldownSeconds < 0 {
		return errors.New("referral.cooldown_seconds must not be negative")
	}
	return nil
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars on ECS.
// A missing config file is not an error; defaults apply.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		cfg = &Config{}
		applyDefaults(cfg)
	} else if err != nil {
		return nil, err
	}

	// Override with environment variables if present
	if v := os.Getenv("SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("SERVER_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("SERVER_PORT: %w", err)
		}
		cfg.Server.Port = port
	}
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		cfg.Server.CORSOrigins = strings.Split(v, ",")
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("SENDER_MODE"); v != "" {
		cfg.Sender.Mode = v
	}
	if v := os.Getenv("AWS_SES_ACCESS_KEY"); v != "" {
		cfg.Sender.AccessKey = v
	}
	if v := os.Getenv("AWS_SES_SECRET_KEY"); v != "" {
		cfg.Sender.SecretKey = v
	}
	if v := os.Getenv("AWS_SES_REGION"); v != "" {
		cfg.Sender.Region = v
	}
	if v := os.Getenv("SNAPSHOT_BACKEND"); v != "" {
		cfg.Snapshot.Backend = v
	}
	if v := os.Getenv("SNAPSHOT_S3_BUCKET"); v != "" {
		cfg.Snapshot.S3Bucket = v
	}
	if v := os.Getenv("SNAPSHOT_DYNAMODB_TABLE"); v != "" {
		cfg.Snapshot.DynamoDBTable = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	return cfg, nil
}
