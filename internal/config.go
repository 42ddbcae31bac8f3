package internal

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Env           string              `mapstructure:"env"`
	Server        ServerConfig        `mapstructure:"http_server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Security      SecurityConfig      `mapstructure:"security"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Payment       PaymentConfig       `mapstructure:"payment"`
}

type ServerConfig struct {
	Port              int           `mapstructure:"port"`
	BaseURL           string        `mapstructure:"base_url"`
	AllowedOrigins    string        `mapstructure:"allowed_origins"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Source          string        `mapstructure:"source"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// SecurityConfig only verifies tokens; issuing them belongs to the identity service.
type SecurityConfig struct {
	JWTPublicKey string `mapstructure:"jwt_public_key"`
	JWTIssuer    string `mapstructure:"jwt_issuer"`
}

type ObservabilityConfig struct {
	Logging LoggingConfig `mapstructure:"logging"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type PaymentConfig struct {
	ReturnURL          string          `mapstructure:"return_url"`
	WebhookBaseURL     string          `mapstructure:"webhook_base_url"`
	RequestTimeout     time.Duration   `mapstructure:"request_timeout"`
	InitiationCooldown time.Duration   `mapstructure:"initiation_cooldown"`
	OpenAPISpecPath    string          `mapstructure:"openapi_spec_path"`
	Reconcile          ReconcileConfig `mapstructure:"reconcile"`
	PhonePe            PhonePeConfig   `mapstructure:"phonepe"`
	Razorpay           RazorpayConfig  `mapstructure:"razorpay"`
	Stripe             StripeConfig    `mapstructure:"stripe"`
}

// ReconcileConfig drives the background status sweep.
type ReconcileConfig struct {
	Interval    time.Duration `mapstructure:"interval"`
	GracePeriod time.Duration `mapstructure:"grace_period"`
	BatchSize   int           `mapstructure:"batch_size"`
	MaxWorkers  int           `mapstructure:"max_workers"`
}

type PhonePeConfig struct {
	ClientID        string `mapstructure:"client_id"`
	ClientSecret    string `mapstructure:"client_secret"`
	ClientVersion   int    `mapstructure:"client_version"`
	MerchantID      string `mapstructure:"merchant_id"`
	WebhookUsername string `mapstructure:"webhook_username"`
	WebhookPassword string `mapstructure:"webhook_password"`
	BaseURL         string `mapstructure:"base_url"`
	AuthURL         string `mapstructure:"auth_url"`
}

type RazorpayConfig struct {
	KeyID         string `mapstructure:"key_id"`
	KeySecret     string `mapstructure:"key_secret"`
	WebhookSecret string `mapstructure:"webhook_secret"`
	BaseURL       string `mapstructure:"base_url"`
}

type StripeConfig struct {
	SecretKey     string `mapstructure:"secret_key"`
	WebhookSecret string `mapstructure:"webhook_secret"`
	BaseURL       string `mapstructure:"base_url"`
	Currency      string `mapstructure:"currency"`
}

// ----------------- ENV LOADING -----------------

func LoadConfigFromEnv() *Config {
	return &Config{
		Env: getEnv("APP_ENV", "production"),
		Server: ServerConfig{
			Port:              getEnvAsInt("HTTP_PORT", 8080),
			BaseURL:           getEnv("HTTP_BASE_URL", ""),
			AllowedOrigins:    getEnv("HTTP_ALLOWED_ORIGINS", "*"),
			ReadHeaderTimeout: getEnvAsDuration("HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
			ReadTimeout:       getEnvAsDuration("HTTP_READ_TIMEOUT", 15*time.Second),
			IdleTimeout:       getEnvAsDuration("HTTP_IDLE_TIMEOUT", 60*time.Second),
			WriteTimeout:      getEnvAsDuration("HTTP_WRITE_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnMaxIdleTime: getEnvAsDuration("DB_CONN_MAX_IDLE_TIME", 5*time.Minute),
			Source:          getEnv("DB_SOURCE", ""),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Security: SecurityConfig{
			JWTPublicKey: getEnv("JWT_PUBLIC_KEY", ""),
			JWTIssuer:    getEnv("JWT_ISSUER", ""),
		},
		Observability: ObservabilityConfig{
			Logging: LoggingConfig{
				Level:  getEnv("LOG_LEVEL", "info"),
				Format: getEnv("LOG_FORMAT", "json"),
			},
		},
		Payment: PaymentConfig{
			ReturnURL:          getEnv("PAYMENT_RETURN_URL", ""),
			WebhookBaseURL:     getEnv("PAYMENT_WEBHOOK_BASE_URL", ""),
			RequestTimeout:     getEnvAsDuration("PAYMENT_REQUEST_TIMEOUT", 15*time.Second),
			InitiationCooldown: getEnvAsDuration("PAYMENT_INITIATION_COOLDOWN", 5*time.Second),
			OpenAPISpecPath:    getEnv("PAYMENT_OPENAPI_SPEC_PATH", "./api/openapi.yml"),
			Reconcile: ReconcileConfig{
				Interval:    getEnvAsDuration("RECONCILE_INTERVAL", time.Minute),
				GracePeriod: getEnvAsDuration("RECONCILE_GRACE_PERIOD", 5*time.Minute),
				BatchSize:   getEnvAsInt("RECONCILE_BATCH_SIZE", 100),
				MaxWorkers:  getEnvAsInt("RECONCILE_MAX_WORKERS", 4),
			},
			PhonePe: PhonePeConfig{
				ClientID:        getEnv("PHONEPE_CLIENT_ID", ""),
				ClientSecret:    getEnv("PHONEPE_CLIENT_SECRET", ""),
				ClientVersion:   getEnvAsInt("PHONEPE_CLIENT_VERSION", 1),
				MerchantID:      getEnv("PHONEPE_MERCHANT_ID", ""),
				WebhookUsername: getEnv("PHONEPE_WEBHOOK_USERNAME", ""),
				WebhookPassword: getEnv("PHONEPE_WEBHOOK_PASSWORD", ""),
				BaseURL:         getEnv("PHONEPE_BASE_URL", ""),
				AuthURL:         getEnv("PHONEPE_AUTH_URL", ""),
			},
			Razorpay: RazorpayConfig{
				KeyID:         getEnv("RAZORPAY_KEY_ID", ""),
				KeySecret:     getEnv("RAZORPAY_KEY_SECRET", ""),
				WebhookSecret: getEnv("RAZORPAY_WEBHOOK_SECRET", ""),
				BaseURL:       getEnv("RAZORPAY_BASE_URL", ""),
			},
			Stripe: StripeConfig{
				SecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
				WebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
				BaseURL:       getEnv("STRIPE_BASE_URL", ""),
				Currency:      getEnv("STRIPE_CURRENCY", "inr"),
			},
		},
	}
}

// ----------------- HELPERS -----------------

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultVal
}

// ----------------- VALIDATION -----------------

func (c *Config) Validate() error {
	var errs []string

	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("server config: %v", err))
	}

	if err := c.Database.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("database config: %v", err))
	}

	if err := c.Security.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("security config: %v", err))
	}

	if err := c.Payment.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("payment config: %v", err))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

func (c *ServerConfig) Validate() error {
	if c.AllowedOrigins != "" {
		origins := strings.Split(c.AllowedOrigins, ",")
		for _, origin := range origins {
			origin = strings.TrimSpace(origin)
			if origin == "*" {
				continue
			}
			if _, err := url.Parse(origin); err != nil {
				return fmt.Errorf("invalid allowed origin %s: %w", origin, err)
			}
		}
	}
	if c.ReadTimeout < c.ReadHeaderTimeout {
		return errors.New("read_timeout must be >= read_header_timeout")
	}
	return nil
}

func (c *DatabaseConfig) Validate() error {
	if c.Source == "" {
		return errors.New("source is required")
	}
	if c.MaxIdleConns > c.MaxOpenConns {
		return errors.New("max_idle_conns cannot be greater than max_open_conns")
	}
	return nil
}

func (c *SecurityConfig) Validate() error {
	if c.JWTPublicKey == "" {
		return nil
	}
	if _, err := c.GetPublicKey(); err != nil {
		return fmt.Errorf("invalid JWT public key: %w", err)
	}
	return nil
}

func (c *SecurityConfig) GetPublicKey() (*rsa.PublicKey, error) {
	keyData, err := base64.StdEncoding.DecodeString(c.JWTPublicKey)
	if err != nil {
		return nil, fmt.Errorf("failed to decode public key: %w", err)
	}
	block, _ := pem.Decode(keyData)
	if block == nil {
		return nil, errors.New("failed to parse PEM block")
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("not an RSA public key")
	}
	return rsaPub, nil
}

func (c *PaymentConfig) Validate() error {
	var errs []string

	if c.ReturnURL != "" {
		if _, err := url.ParseRequestURI(c.ReturnURL); err != nil {
			errs = append(errs, fmt.Sprintf("invalid return_url: %v", err))
		}
	}
	if c.InitiationCooldown < 0 {
		errs = append(errs, "initiation_cooldown cannot be negative")
	}
	if c.PhonePe.ClientID != "" && (c.PhonePe.WebhookUsername == "" || c.PhonePe.WebhookPassword == "") {
		errs = append(errs, "phonepe webhook_username and webhook_password are required when phonepe is configured")
	}
	if c.Razorpay.KeyID != "" && c.Razorpay.KeySecret == "" {
		errs = append(errs, "razorpay key_secret is required when key_id is set")
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// CooldownOrDefault returns the per-user initiation cooldown, 5s when unset.
func (c *PaymentConfig) CooldownOrDefault() time.Duration {
	if c.InitiationCooldown <= 0 {
		return 5 * time.Second
	}
	return c.InitiationCooldown
}
