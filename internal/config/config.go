package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

type Config struct {
	Server struct {
		Host string `yaml:"host"`
		Port int    `yaml:"port"`
		Env  string `yaml:"env"`
	} `yaml:"server"`

	Database struct {
		DSN          string `yaml:"url"`
		MaxOpenConns int    `yaml:"max_open_conns"`
		MaxIdleConns int    `yaml:"max_idle_conns"`
	} `yaml:"database"`

	Redis struct {
		URL string `yaml:"url"` // пусто = in-memory кэш
	} `yaml:"redis"`

	JWT struct {
		Secret string `yaml:"secret"`
		TTL    int    `yaml:"ttl"` // минуты
	} `yaml:"jwt"`

	VNPay struct {
		TmnCode    string `yaml:"tmn_code"`
		HashSecret string `yaml:"hash_secret"`
		PaymentURL string `yaml:"payment_url"`
		ReturnURL  string `yaml:"return_url"`
	} `yaml:"vnpay"`

	Payments struct {
		Currency          string `yaml:"currency"`
		PendingTTLMinutes int    `yaml:"pending_ttl_minutes"` // отсечка свипера
		SweepSchedule     string `yaml:"sweep_schedule"`      // cron с секундами
		SweepBatchSize    int    `yaml:"sweep_batch_size"`
	} `yaml:"payments"`

	Jobs struct {
		PollIntervalSeconds      int            `yaml:"poll_interval_seconds"`
		BatchSize                int            `yaml:"batch_size"`
		MaxAttempts              int            `yaml:"max_attempts"`
		VisibilityTimeoutSeconds int            `yaml:"visibility_timeout_seconds"`
		RatePerMinute            map[string]int `yaml:"rate_per_minute"` // kind -> задач в минуту
	} `yaml:"jobs"`

	Certificates struct {
		AllowedPrefix   string `yaml:"allowed_prefix"`
		VerificationURL string `yaml:"verification_url"`
	} `yaml:"certificates"`

	Email struct {
		SMTPHost     string `yaml:"smtp_host"`
		SMTPPort     int    `yaml:"smtp_port"`
		SMTPUsername string `yaml:"smtp_user"`
		SMTPPassword string `yaml:"smtp_password"`
		FromEmail    string `yaml:"from_email"`
		FromName     string `yaml:"from_name"`
		UseTLS       bool   `yaml:"use_tls"`
	} `yaml:"email"`

	Storage struct {
		Type       string `yaml:"type"`      // local, s3
		BasePath   string `yaml:"base_path"` // For local storage
		BaseURL    string `yaml:"base_url"`  // Public URL base
		Bucket     string `yaml:"bucket"`
		Region     string `yaml:"region"`
		AccessKey  string `yaml:"access_key"`
		SecretKey  string `yaml:"secret_key"`
		Endpoint   string `yaml:"endpoint"`
		PublicRead bool   `yaml:"public_read"`
	} `yaml:"storage"`

	// Первый администратор: создается при старте, если его еще нет
	Admin struct {
		Email    string `yaml:"email"`
		FullName string `yaml:"full_name"`
	} `yaml:"admin"`

	FrontendURL string `yaml:"frontend_url"`
}

var AppConfig *Config

// LoadConfig грузит .env, затем yaml, затем переменные окружения поверх.
// В режиме test yaml-файл необязателен.
func LoadConfig() {
	cfg, err := Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	AppConfig = cfg
}

// Load - то же самое, но с ошибкой вместо выхода.
func Load(configPath string) (*Config, error) {
	// .env может отсутствовать, это нормально
	_ = godotenv.Load()

	var cfg Config
	if configPath == "" {
		configPath = "config/config.yaml"
	}

	f, err := os.Open(configPath)
	switch {
	case err == nil:
		defer f.Close()
		if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file at %s: %w", configPath, err)
		}
	case os.IsNotExist(err) && (os.Getenv("SERVER_ENV") == "test" || os.Getenv("DATABASE_URL") != ""):
		log.Printf("Config file %s not found, using environment only", configPath)
	default:
		return nil, fmt.Errorf("failed to open config file at %s: %w", configPath, err)
	}

	applyEnv(&cfg)
	applyDefaults(&cfg)
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.Database.DSN, "DATABASE_URL")
	setString(&cfg.Server.Env, "SERVER_ENV")
	setInt(&cfg.Server.Port, "SERVER_PORT")
	setString(&cfg.JWT.Secret, "JWT_SECRET")
	setString(&cfg.Redis.URL, "REDIS_URL")
	setString(&cfg.VNPay.TmnCode, "VNPAY_TMN_CODE")
	setString(&cfg.VNPay.HashSecret, "VNPAY_HASH_SECRET")
	setString(&cfg.VNPay.PaymentURL, "VNPAY_PAYMENT_URL")
	setString(&cfg.VNPay.ReturnURL, "VNPAY_RETURN_URL")
	setString(&cfg.FrontendURL, "FRONTEND_URL")
	setString(&cfg.Admin.Email, "FIRST_ADMIN_EMAIL")
	setString(&cfg.Email.SMTPHost, "SMTP_HOST")
	setString(&cfg.Email.SMTPUsername, "SMTP_USER")
	setString(&cfg.Email.SMTPPassword, "SMTP_PASSWORD")
	setString(&cfg.Storage.AccessKey, "STORAGE_ACCESS_KEY")
	setString(&cfg.Storage.SecretKey, "STORAGE_SECRET_KEY")
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Env == "" {
		cfg.Server.Env = "development"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 4000
	}
	if cfg.JWT.TTL == 0 {
		cfg.JWT.TTL = 60
	}
	if cfg.VNPay.PaymentURL == "" {
		cfg.VNPay.PaymentURL = "https://sandbox.vnpayment.vn/paymentv2/vpcpay.html"
	}
	if cfg.Payments.Currency == "" {
		cfg.Payments.Currency = "VND"
	}
	if cfg.Payments.PendingTTLMinutes == 0 {
		cfg.Payments.PendingTTLMinutes = 30
	}
	if cfg.Payments.SweepSchedule == "" {
		cfg.Payments.SweepSchedule = "0 * * * * *"
	}
	if cfg.Payments.SweepBatchSize == 0 {
		cfg.Payments.SweepBatchSize = 100
	}
	if cfg.Jobs.PollIntervalSeconds == 0 {
		cfg.Jobs.PollIntervalSeconds = 5
	}
	if cfg.Jobs.BatchSize == 0 {
		cfg.Jobs.BatchSize = 20
	}
	if cfg.Jobs.MaxAttempts == 0 {
		cfg.Jobs.MaxAttempts = 5
	}
	if cfg.Jobs.VisibilityTimeoutSeconds == 0 {
		cfg.Jobs.VisibilityTimeoutSeconds = 300
	}
	if cfg.Jobs.RatePerMinute == nil {
		cfg.Jobs.RatePerMinute = map[string]int{
			"certificate.generate": 10,
			"notification.deliver": 20,
		}
	}
	if cfg.Certificates.AllowedPrefix == "" {
		cfg.Certificates.AllowedPrefix = "certificates/"
	}
	if cfg.Admin.FullName == "" {
		cfg.Admin.FullName = "LearnHub Administrator"
	}
	if cfg.Storage.Type == "" {
		cfg.Storage.Type = "local"
	}
	if cfg.Storage.BasePath == "" {
		cfg.Storage.BasePath = "./uploads"
	}
}

// PendingTTL - сколько платеж может висеть в pending до свипа.
func (c *Config) PendingTTL() time.Duration {
	return time.Duration(c.Payments.PendingTTLMinutes) * time.Minute
}

func (c *Config) JobPollInterval() time.Duration {
	return time.Duration(c.Jobs.PollIntervalSeconds) * time.Second
}

func (c *Config) JobVisibilityTimeout() time.Duration {
	return time.Duration(c.Jobs.VisibilityTimeoutSeconds) * time.Second
}

func (c *Config) JWTTTL() time.Duration {
	return time.Duration(c.JWT.TTL) * time.Minute
}

func GetConfig() *Config {
	if AppConfig == nil {
		LoadConfig()
	}
	return AppConfig
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}
