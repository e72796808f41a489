package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type AppConfig struct {
	Name     string `yaml:"name"`
	Port     string `yaml:"port" validate:"required,numeric"`
	Env      string `yaml:"env" validate:"oneof=development production test"`
	LogLevel string `yaml:"log_level"`
}

type PostgresConfig struct {
	Host            string        `yaml:"host" validate:"required"`
	Port            string        `yaml:"port" validate:"required,numeric"`
	User            string        `yaml:"user" validate:"required"`
	Password        string        `yaml:"password"`
	DBName          string        `yaml:"dbname" validate:"required"`
	SSLMode         string        `yaml:"sslmode"`
	MaxConns        int32         `yaml:"max_conns"`
	MinConns        int32         `yaml:"min_conns"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"`
	MigrationsPath  string        `yaml:"migrations_path"`
	// TxAttempts bounds how many times a conflicting transaction is retried.
	TxAttempts int `yaml:"tx_attempts" validate:"min=1,max=10"`
}

type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret" validate:"required,min=16"`
}

type PaymentConfig struct {
	StripeKey  string `yaml:"stripe_key"`
	Currency   string `yaml:"currency" validate:"required,len=3"`
	SuccessURL string `yaml:"success_url"`
	CancelURL  string `yaml:"cancel_url"`
}

type MailConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from" validate:"omitempty,email"`
}

type AdminConfig struct {
	Name     string `yaml:"name"`
	Email    string `yaml:"email" validate:"omitempty,email"`
	Password string `yaml:"password"`
}

type Config struct {
	App      AppConfig      `yaml:"app"`
	Postgres PostgresConfig `yaml:"postgres"`
	Redis    RedisConfig    `yaml:"redis"`
	Auth     AuthConfig     `yaml:"auth"`
	Payment  PaymentConfig  `yaml:"payment"`
	Mail     MailConfig     `yaml:"mail"`
	Admin    AdminConfig    `yaml:"admin"`
}

func defaults() *Config {
	cfg := &Config{}
	cfg.App.Name = "storefront"
	cfg.App.Port = "8080"
	cfg.App.Env = "development"
	cfg.App.LogLevel = "debug"
	cfg.Postgres.Port = "5432"
	cfg.Postgres.SSLMode = "disable"
	cfg.Postgres.MaxConns = 10
	cfg.Postgres.MinConns = 2
	cfg.Postgres.MaxConnLifetime = time.Hour
	cfg.Postgres.MigrationsPath = "migrations"
	cfg.Postgres.TxAttempts = 3
	cfg.Redis.TTL = 10 * time.Minute
	cfg.Payment.Currency = "usd"
	cfg.Mail.Port = 587
	cfg.Admin.Name = "Super Admin"
	return cfg
}

// NewConfig loads .env (if present), then the YAML file named by CONFIG_FILE (if set),
// then applies environment overrides.
func NewConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: failed to load .env: %w", err)
	}

	cfg := defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := loadYAML(path, cfg); err != nil {
			return nil, err
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("config: invalid configuration: %w", err)
	}

	return cfg, nil
}

func loadYAML(path string, cfg *Config) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("config: failed to open config file: %w", err)
	}
	defer file.Close()

	if err := yaml.NewDecoder(file).Decode(cfg); err != nil {
		return fmt.Errorf("config: invalid config file %s: %w", path, err)
	}

	return nil
}

func applyEnv(cfg *Config) error {
	setString(&cfg.App.Port, "APP_PORT")
	setString(&cfg.App.Env, "APP_ENV")
	setString(&cfg.App.LogLevel, "LOG_LEVEL")

	setString(&cfg.Postgres.Host, "DB_HOST")
	setString(&cfg.Postgres.Port, "DB_PORT")
	setString(&cfg.Postgres.User, "DB_USER")
	setString(&cfg.Postgres.Password, "DB_PASSWORD")
	setString(&cfg.Postgres.DBName, "DB_NAME")
	setString(&cfg.Postgres.SSLMode, "DB_SSLMODE")
	setString(&cfg.Postgres.MigrationsPath, "DB_MIGRATIONS_PATH")

	setString(&cfg.Redis.Addr, "REDIS_ADDR")
	setString(&cfg.Redis.Password, "REDIS_PASSWORD")

	setString(&cfg.Auth.JWTSecret, "JWT_SECRET")

	setString(&cfg.Payment.StripeKey, "STRIPE_SECRET_KEY")
	setString(&cfg.Payment.Currency, "PAYMENT_CURRENCY")
	setString(&cfg.Payment.SuccessURL, "PAYMENT_SUCCESS_URL")
	setString(&cfg.Payment.CancelURL, "PAYMENT_CANCEL_URL")

	setString(&cfg.Mail.Host, "SMTP_HOST")
	setString(&cfg.Mail.Username, "SMTP_USERNAME")
	setString(&cfg.Mail.Password, "SMTP_PASSWORD")
	setString(&cfg.Mail.From, "SMTP_FROM")

	setString(&cfg.Admin.Name, "ADMIN_NAME")
	setString(&cfg.Admin.Email, "ADMIN_EMAIL")
	setString(&cfg.Admin.Password, "ADMIN_PASSWORD")

	ints := []struct {
		key string
		dst *int
	}{
		{"DB_TX_ATTEMPTS", &cfg.Postgres.TxAttempts},
		{"REDIS_DB", &cfg.Redis.DB},
		{"SMTP_PORT", &cfg.Mail.Port},
	}
	for _, item := range ints {
		raw, ok := os.LookupEnv(item.key)
		if !ok || raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("config: %s must be an integer: %w", item.key, err)
		}
		*item.dst = v
	}

	if raw := os.Getenv("REDIS_TTL"); raw != "" {
		ttl, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("config: REDIS_TTL must be a duration: %w", err)
		}
		cfg.Redis.TTL = ttl
	}

	return nil
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}
