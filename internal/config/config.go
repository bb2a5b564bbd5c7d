package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"   validate:"required"`
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
	Auth     AuthConfig     `mapstructure:"auth"     validate:"required"`
	Queue    QueueConfig    `mapstructure:"queue"    validate:"required"`
	Billing  BillingConfig  `mapstructure:"billing"  validate:"required"`
	Worker   WorkerConfig   `mapstructure:"worker"   validate:"required"`
	LLM      LLMConfig      `mapstructure:"llm"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Retry    RetryConfig    `mapstructure:"retry"    validate:"required"`
	Sweep    SweepConfig    `mapstructure:"sweep"    validate:"required"`
	CORS     CORSConfig     `mapstructure:"cors"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port            int           `mapstructure:"port"             validate:"required,gt=0,lt=65536"`
	LogLevel        string        `mapstructure:"log_level"        validate:"required,oneof=debug info warn error"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"     validate:"gt=0"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"    validate:"gt=0"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL             string        `mapstructure:"url"               validate:"required,url"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"    validate:"gt=0"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"    validate:"gte=0"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// AuthConfig contains all authentication and authorization settings.
type AuthConfig struct {
	JWTSecret                   string `mapstructure:"jwt_secret"                     validate:"required,min=32"`
	BCryptCost                  int    `mapstructure:"bcrypt_cost"                    validate:"gte=4,lte=31"`
	TokenLifetimeMinutes        int    `mapstructure:"token_lifetime_minutes"         validate:"gt=0"`
	RefreshTokenLifetimeMinutes int    `mapstructure:"refresh_token_lifetime_minutes" validate:"gt=0"`
}

// QueueConfig selects and configures the message broker.
type QueueConfig struct {
	Driver         string        `mapstructure:"driver"          validate:"required,oneof=rabbitmq river"`
	Host           string        `mapstructure:"host"            validate:"required_if=Driver rabbitmq"`
	Port           int           `mapstructure:"port"            validate:"gt=0,lt=65536"`
	User           string        `mapstructure:"user"`
	Password       string        `mapstructure:"password"`
	VHost          string        `mapstructure:"vhost"`
	TaskQueue      string        `mapstructure:"task_queue"      validate:"required"`
	ResultQueue    string        `mapstructure:"result_queue"    validate:"required"`
	PublishTimeout time.Duration `mapstructure:"publish_timeout" validate:"gt=0"`
	PublishResults bool          `mapstructure:"publish_results"`
}

// BillingConfig holds per-request pricing.
type BillingConfig struct {
	// PredictionCost is a decimal string so it survives env parsing exactly.
	PredictionCost string `mapstructure:"prediction_cost" validate:"required,numeric"`
}

// WorkerConfig configures the worker process.
type WorkerConfig struct {
	Count       int           `mapstructure:"count"        validate:"gt=0,lte=256"`
	ID          string        `mapstructure:"id"`
	Predictor   string        `mapstructure:"predictor"    validate:"required,oneof=keyword gemini"`
	MinLatency  time.Duration `mapstructure:"min_latency"  validate:"gte=0"`
	MaxLatency  time.Duration `mapstructure:"max_latency"  validate:"gtefield=MinLatency"`
	TaskTimeout time.Duration `mapstructure:"task_timeout" validate:"gt=0"`
}

// LLMConfig contains all LLM integration related settings.
type LLMConfig struct {
	GeminiAPIKey string `mapstructure:"gemini_api_key"`
	ModelName    string `mapstructure:"model_name"`
}

// TelegramConfig configures result push to Telegram chats.
type TelegramConfig struct {
	BotToken string `mapstructure:"bot_token"`
}

// RetryConfig bounds connection and delivery retries.
type RetryConfig struct {
	MaxAttempts  uint64        `mapstructure:"max_attempts"  validate:"gt=0"`
	InitialDelay time.Duration `mapstructure:"initial_delay" validate:"gt=0"`
	MaxDelay     time.Duration `mapstructure:"max_delay"     validate:"gtefield=InitialDelay"`
}

// SweepConfig controls the server's expiry sweep, which fails and refunds
// tasks left pending for longer than ExpireAfter.
type SweepConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Interval    time.Duration `mapstructure:"interval"     validate:"gt=0"`
	ExpireAfter time.Duration `mapstructure:"expire_after" validate:"gtfield=Interval"`
	BatchSize   int           `mapstructure:"batch_size"   validate:"gt=0,lte=10000"`
}

// CORSConfig lists origins allowed to call the HTTP API from a browser.
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}
