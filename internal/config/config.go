package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	AWS      AWSConfig      `yaml:"aws"`
	APNs     APNsConfig     `yaml:"apns"`
	JWT      JWTConfig      `yaml:"jwt"`
	Payment  PaymentConfig  `yaml:"payment"`
	Digest   DigestConfig   `yaml:"digest"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port           int      `yaml:"port"`
	Host           string   `yaml:"host"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

// RedisConfig holds the profile cache configuration
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// AWSConfig holds AWS configuration
type AWSConfig struct {
	Region      string `yaml:"region"`
	S3Bucket    string `yaml:"s3_bucket"`
	AccessKey   string `yaml:"access_key"`
	SecretKey   string `yaml:"secret_key"`
	Endpoint    string `yaml:"endpoint"`
	SenderEmail string `yaml:"sender_email"`
}

// APNsConfig holds push notification configuration
type APNsConfig struct {
	KeyFile    string `yaml:"key_file"`
	KeyID      string `yaml:"key_id"`
	TeamID     string `yaml:"team_id"`
	Topic      string `yaml:"topic"`
	Production bool   `yaml:"production"`
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret string `yaml:"secret"`
}

// PaymentConfig holds payment provider configuration
type PaymentConfig struct {
	BaseURL       string `yaml:"base_url"`
	KeyID         string `yaml:"key_id"`
	KeySecret     string `yaml:"key_secret"`
	WebhookSecret string `yaml:"webhook_secret"`
	Currency      string `yaml:"currency"`
}

// DigestConfig holds the pending request digest schedule
type DigestConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Schedule string `yaml:"schedule"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level   string `yaml:"level"`
	Console bool   `yaml:"console"`
}

// secrets maps environment variables onto config fields.
// Values from the environment win over the YAML file.
func (c *Config) secrets() map[string]*string {
	return map[string]*string{
		"DATABASE_PASSWORD":       &c.Database.Password,
		"REDIS_PASSWORD":          &c.Redis.Password,
		"JWT_SECRET":              &c.JWT.Secret,
		"RAZORPAY_KEY_ID":         &c.Payment.KeyID,
		"RAZORPAY_KEY_SECRET":     &c.Payment.KeySecret,
		"RAZORPAY_WEBHOOK_SECRET": &c.Payment.WebhookSecret,
		"AWS_ACCESS_KEY":          &c.AWS.AccessKey,
		"AWS_SECRET_KEY":          &c.AWS.SecretKey,
		"APNS_KEY_FILE":           &c.APNs.KeyFile,
	}
}

// Load reads configuration from a YAML file, then overlays secrets from
// a .env file (if present) and the process environment.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	dotenv, err := godotenv.Read()
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env file: %w", err)
	}
	cfg.applyEnv(dotenv)

	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Server:   ServerConfig{Host: "0.0.0.0", Port: 7777},
		Database: DatabaseConfig{Port: 5432, SSLMode: "disable"},
		Payment:  PaymentConfig{BaseURL: "https://api.razorpay.com", Currency: "INR"},
		Digest:   DigestConfig{Schedule: "0 8 * * *"},
		Log:      LogConfig{Level: "info"},
	}
}

func (c *Config) applyEnv(dotenv map[string]string) {
	for key, field := range c.secrets() {
		if v, ok := dotenv[key]; ok && v != "" {
			*field = v
		}
		if v := os.Getenv(key); v != "" {
			*field = v
		}
	}
}

// Validate reports missing required settings
func (c *Config) Validate() error {
	var missing []string
	if c.Database.Host == "" {
		missing = append(missing, "database.host")
	}
	if c.Database.DBName == "" {
		missing = append(missing, "database.dbname")
	}
	if c.JWT.Secret == "" {
		missing = append(missing, "jwt.secret")
	}
	if c.Payment.WebhookSecret == "" {
		missing = append(missing, "payment.webhook_secret")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required config: %s", strings.Join(missing, ", "))
	}
	return nil
}

// DSN returns the PostgreSQL connection URL
func (c *DatabaseConfig) DSN() string {
	return c.connURL("postgres")
}

// MigrationURL returns the connection URL used by the migration driver
func (c *DatabaseConfig) MigrationURL() string {
	return c.connURL("pgx5")
}

func (c *DatabaseConfig) connURL(scheme string) string {
	u := url.URL{
		Scheme:   scheme,
		Host:     net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:     "/" + c.DBName,
		RawQuery: url.Values{"sslmode": {c.SSLMode}}.Encode(),
	}
	if c.Password != "" {
		u.User = url.UserPassword(c.User, c.Password)
	} else if c.User != "" {
		u.User = url.User(c.User)
	}
	return u.String()
}
