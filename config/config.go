package config

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"raiseflow/models"
)

var (
	DB        *gorm.DB
	AppConfig Config
)

type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address" validate:"required_if=Enabled true"`
	Password string `json:"-"`
	DB       int    `json:"db"`
}

type OAuthConfig struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"-"`
	RefreshToken string `json:"-"`
}

// SequenceConfig tunes the outreach sequence engine.
type SequenceConfig struct {
	BatchSize         int           `json:"batch_size" validate:"min=1,max=1000"`
	PollInterval      time.Duration `json:"poll_interval" validate:"min=1s"`
	WorkerEnabled     bool          `json:"worker_enabled"`
	LeaseDuration     time.Duration `json:"lease_duration" validate:"min=1s"`
	GatewayTimeout    time.Duration `json:"gateway_timeout" validate:"min=1s"`
	MaxSendsPerSecond float64       `json:"max_sends_per_second" validate:"min=0"`
	MaxAttempts       int           `json:"max_attempts" validate:"min=1"`
	RetryBackoff      time.Duration `json:"retry_backoff" validate:"min=0s"`
	RetryMaxBackoff   time.Duration `json:"retry_max_backoff" validate:"min=0s"`
	MaxContactSkips   int           `json:"max_contact_skips" validate:"min=0"`
}

type Config struct {
	Environment string `json:"environment" validate:"oneof=development staging production test"`
	ServerPort  string `json:"server_port" validate:"required,numeric"`
	LogLevel    string `json:"log_level"`
	LogFormat   string `json:"log_format" validate:"oneof=text json"`
	SentryDSN   string `json:"-"`

	DBHost         string `json:"db_host" validate:"required"`
	DBPort         string `json:"db_port" validate:"required,numeric"`
	DBUser         string `json:"db_user" validate:"required"`
	DBPassword     string `json:"-" validate:"required"`
	DBName         string `json:"db_name" validate:"required"`
	DBSSLMode      string `json:"db_ssl_mode"`
	DBMaxIdleConns int    `json:"db_max_idle_conns"`
	DBMaxOpenConns int    `json:"db_max_open_conns"`

	Redis RedisConfig `json:"redis"`

	// Outbound delivery
	Gateway      string      `json:"gateway" validate:"oneof=smtp gmail http log"`
	SMTPHost     string      `json:"smtp_host" validate:"required_if=Gateway smtp"`
	SMTPPort     int         `json:"smtp_port"`
	SMTPUsername string      `json:"smtp_username"`
	SMTPPassword string      `json:"-"`
	SMTPSSL      bool        `json:"smtp_ssl"`
	Google       OAuthConfig `json:"google"`
	EmailAPIURL  string      `json:"email_api_url" validate:"omitempty,url"`
	EmailAPIKey  string      `json:"-"`
	FromEmail    string      `json:"from_email" validate:"required,email"`
	FromName     string      `json:"from_name"`

	TrackingBaseURL string `json:"tracking_base_url" validate:"omitempty,url"`
	TrackingSecret  string `json:"-"`

	TriggerRateLimit   int      `json:"trigger_rate_limit" validate:"min=0"`
	CORSAllowedOrigins []string `json:"cors_allowed_origins"`

	Sequence SequenceConfig `json:"sequence"`
}

func init() {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()
}

func LoadConfig() error {
	AppConfig = Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		ServerPort:  getEnv("SERVER_PORT", "5000"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogFormat:   getEnv("LOG_FORMAT", "text"),
		SentryDSN:   getEnv("SENTRY_DSN", ""),

		DBHost:         getEnv("DB_HOST", "localhost"),
		DBPort:         getEnv("DB_PORT", "5432"),
		DBUser:         getEnv("DB_USER", "postgres"),
		DBPassword:     getEnv("DB_PASSWORD", ""),
		DBName:         getEnv("DB_NAME", "raiseflow"),
		DBSSLMode:      getEnv("DB_SSL_MODE", "disable"),
		DBMaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 10),
		DBMaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 50),

		Redis: RedisConfig{
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
			Address:  getEnv("REDIS_ADDRESS", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},

		Gateway:      strings.ToLower(getEnv("GATEWAY", "log")),
		SMTPHost:     getEnv("SMTP_HOST", ""),
		SMTPPort:     getEnvAsInt("SMTP_PORT", 587),
		SMTPUsername: getEnv("SMTP_USERNAME", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),
		SMTPSSL:      getEnvAsBool("SMTP_SSL", false),
		Google: OAuthConfig{
			ClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
			ClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
			RefreshToken: getEnv("GOOGLE_REFRESH_TOKEN", ""),
		},
		EmailAPIURL: getEnv("EMAIL_API_URL", ""),
		EmailAPIKey: getEnv("EMAIL_API_KEY", ""),
		FromEmail:   getEnv("FROM_EMAIL", "outreach@example.com"),
		FromName:    getEnv("FROM_NAME", ""),

		TrackingBaseURL: getEnv("TRACKING_BASE_URL", ""),
		TrackingSecret:  getEnv("TRACKING_SECRET", ""),

		TriggerRateLimit:   getEnvAsInt("TRIGGER_RATE_LIMIT", 6),
		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),

		Sequence: SequenceConfig{
			BatchSize:         getEnvAsInt("SEQUENCE_BATCH_SIZE", 100),
			PollInterval:      getEnvAsDuration("SEQUENCE_POLL_INTERVAL", time.Minute),
			WorkerEnabled:     getEnvAsBool("SEQUENCE_WORKER_ENABLED", true),
			LeaseDuration:     getEnvAsDuration("SEQUENCE_LEASE_DURATION", 10*time.Minute),
			GatewayTimeout:    getEnvAsDuration("GATEWAY_TIMEOUT", 30*time.Second),
			MaxSendsPerSecond: getEnvAsFloat("GATEWAY_MAX_PER_SECOND", 0),
			MaxAttempts:       getEnvAsInt("RETRY_MAX_ATTEMPTS", 5),
			RetryBackoff:      getEnvAsDuration("RETRY_BACKOFF", 0),
			RetryMaxBackoff:   getEnvAsDuration("RETRY_MAX_BACKOFF", 24*time.Hour),
			MaxContactSkips:   getEnvAsInt("MAX_CONTACT_SKIPS", 0),
		},
	}

	if err := Validate(AppConfig); err != nil {
		return err
	}

	logConfig()
	return nil
}

var validate = validator.New()

// Validate checks struct constraints plus the cross-field rules the tags
// cannot express.
func Validate(cfg Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if cfg.Gateway == "gmail" && (cfg.Google.ClientID == "" || cfg.Google.ClientSecret == "" || cfg.Google.RefreshToken == "") {
		return fmt.Errorf("invalid configuration: GOOGLE_CLIENT_ID, GOOGLE_CLIENT_SECRET and GOOGLE_REFRESH_TOKEN are required for the gmail gateway")
	}
	if cfg.Gateway == "http" && cfg.EmailAPIURL == "" {
		return fmt.Errorf("invalid configuration: EMAIL_API_URL is required for the http gateway")
	}
	if cfg.TrackingBaseURL != "" && cfg.TrackingSecret == "" {
		return fmt.Errorf("invalid configuration: TRACKING_SECRET is required when TRACKING_BASE_URL is set")
	}
	if cfg.Sequence.LeaseDuration <= cfg.Sequence.GatewayTimeout {
		return fmt.Errorf("invalid configuration: SEQUENCE_LEASE_DURATION must exceed GATEWAY_TIMEOUT")
	}
	if cfg.Environment == "production" && cfg.Gateway == "log" {
		return fmt.Errorf("invalid configuration: the log gateway cannot be used in production")
	}
	return nil
}

// DSN builds the postgres connection string.
func (c Config) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost,
		c.DBPort,
		c.DBUser,
		c.DBPassword,
		c.DBName,
		c.DBSSLMode,
	)
}

func ConnectDB() error {
	log.Println("Attempting to connect to database...")

	dsn := AppConfig.DSN()
	log.Println("Using connection string:", maskPassword(dsn))

	var err error
	DB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get DB instance: %w", err)
	}

	sqlDB.SetMaxIdleConns(AppConfig.DBMaxIdleConns)
	sqlDB.SetMaxOpenConns(AppConfig.DBMaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Hour)
	sqlDB.SetConnMaxIdleTime(30 * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	log.Println("✅ Successfully connected to the database")
	return nil
}

// NewRedisClient connects to redis, or returns nil when it is disabled.
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

// Migrate creates or updates the engine tables.
func Migrate(db *gorm.DB) error {
	log.Println("🔄 Starting database migration...")
	if err := db.AutoMigrate(
		&models.Template{},
		&models.Campaign{},
		&models.Investor{},
		&models.Sequence{},
		&models.SequenceStep{},
		&models.Enrollment{},
		&models.OutreachEvent{},
	); err != nil {
		return fmt.Errorf("database migration failed: %w", err)
	}
	log.Println("✅ Database migration completed")
	return nil
}

// Helper functions
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	value, err := strconv.Atoi(getEnv(key, ""))
	if err != nil {
		return fallback
	}
	return value
}

func getEnvAsFloat(key string, fallback float64) float64 {
	value, err := strconv.ParseFloat(getEnv(key, ""), 64)
	if err != nil {
		return fallback
	}
	return value
}

func getEnvAsList(key string, fallback []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvAsBool(key string, fallback bool) bool {
	value, err := strconv.ParseBool(getEnv(key, ""))
	if err != nil {
		return fallback
	}
	return value
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	value, err := time.ParseDuration(getEnv(key, ""))
	if err != nil {
		return fallback
	}
	return value
}

func maskPassword(dsn string) string {
	const passwordMarker = "password="
	startIdx := strings.Index(dsn, passwordMarker)
	if startIdx == -1 {
		return dsn
	}

	startIdx += len(passwordMarker)
	endIdx := strings.IndexAny(dsn[startIdx:], " ")
	if endIdx == -1 {
		return dsn[:startIdx] + "*****"
	}
	return dsn[:startIdx] + "*****" + dsn[startIdx+endIdx:]
}

func logConfig() {
	log.Println("🔧 Loaded configuration:")
	log.Printf("Environment: %s", AppConfig.Environment)
	log.Printf("Server Port: %s", AppConfig.ServerPort)
	log.Printf("Database: %s@%s:%s/%s",
		AppConfig.DBUser,
		AppConfig.DBHost,
		AppConfig.DBPort,
		AppConfig.DBName)
	log.Printf("Gateway: %s (from %s)", AppConfig.Gateway, AppConfig.FromEmail)
	log.Printf("Sequence engine: batch=%d poll=%s worker=%t max_attempts=%d",
		AppConfig.Sequence.BatchSize,
		AppConfig.Sequence.PollInterval,
		AppConfig.Sequence.WorkerEnabled,
		AppConfig.Sequence.MaxAttempts)
}
