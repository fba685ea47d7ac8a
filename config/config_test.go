package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	return Config{
		Environment: "development",
		ServerPort:  "5000",
		LogFormat:   "text",
		DBHost:      "localhost",
		DBPort:      "5432",
		DBUser:      "postgres",
		DBPassword:  "secret",
		DBName:      "raiseflow",
		Gateway:     "log",
		FromEmail:   "founder@raiseflow.io",
		Sequence: SequenceConfig{
			BatchSize:      100,
			PollInterval:   time.Minute,
			LeaseDuration:  10 * time.Minute,
			GatewayTimeout: 30 * time.Second,
			MaxAttempts:    5,
		},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "unknown gateway", mutate: func(c *Config) { c.Gateway = "pigeon" }, wantErr: "Gateway"},
		{name: "smtp without host", mutate: func(c *Config) { c.Gateway = "smtp" }, wantErr: "SMTPHost"},
		{name: "smtp with host", mutate: func(c *Config) { c.Gateway, c.SMTPHost = "smtp", "smtp.raiseflow.io" }},
		{name: "gmail without credentials", mutate: func(c *Config) { c.Gateway = "gmail" }, wantErr: "GOOGLE_REFRESH_TOKEN"},
		{name: "http without url", mutate: func(c *Config) { c.Gateway = "http" }, wantErr: "EMAIL_API_URL"},
		{name: "http bad url", mutate: func(c *Config) { c.Gateway, c.EmailAPIURL = "http", "not a url" }, wantErr: "EmailAPIURL"},
		{name: "tracking without secret", mutate: func(c *Config) { c.TrackingBaseURL = "https://t.raiseflow.io" }, wantErr: "TRACKING_SECRET"},
		{name: "log gateway in production", mutate: func(c *Config) { c.Environment = "production" }, wantErr: "production"},
		{name: "batch too large", mutate: func(c *Config) { c.Sequence.BatchSize = 5000 }, wantErr: "BatchSize"},
		{name: "lease too short", mutate: func(c *Config) { c.Sequence.LeaseDuration = time.Millisecond }, wantErr: "LeaseDuration"},
		{name: "lease within gateway timeout", mutate: func(c *Config) { c.Sequence.LeaseDuration = 20 * time.Second }, wantErr: "SEQUENCE_LEASE_DURATION"},
		{name: "redis without address", mutate: func(c *Config) { c.Redis.Enabled = true }, wantErr: "Address"},
		{name: "bad sender", mutate: func(c *Config) { c.FromEmail = "raiseflow" }, wantErr: "FromEmail"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)

			err := Validate(cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadConfig_FromEnv(t *testing.T) {
	t.Setenv("DB_PASSWORD", "secret")
	t.Setenv("GATEWAY", "SMTP")
	t.Setenv("SMTP_HOST", "smtp.raiseflow.io")
	t.Setenv("SEQUENCE_BATCH_SIZE", "25")
	t.Setenv("RETRY_BACKOFF", "90s")
	t.Setenv("GATEWAY_MAX_PER_SECOND", "2.5")
	t.Setenv("SEQUENCE_WORKER_ENABLED", "false")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://app.raiseflow.io, ,https://ops.raiseflow.io")

	require.NoError(t, LoadConfig())
	assert.Equal(t, "smtp", AppConfig.Gateway)
	assert.Equal(t, 25, AppConfig.Sequence.BatchSize)
	assert.Equal(t, 90*time.Second, AppConfig.Sequence.RetryBackoff)
	assert.Equal(t, 2.5, AppConfig.Sequence.MaxSendsPerSecond)
	assert.False(t, AppConfig.Sequence.WorkerEnabled)
	assert.Equal(t, 5, AppConfig.Sequence.MaxAttempts)
	assert.Equal(t, []string{"https://app.raiseflow.io", "https://ops.raiseflow.io"}, AppConfig.CORSAllowedOrigins)
}

func TestEnvHelpersFallBack(t *testing.T) {
	t.Setenv("RAISEFLOW_TEST_INT", "many")
	t.Setenv("RAISEFLOW_TEST_DURATION", "soon")
	t.Setenv("RAISEFLOW_TEST_BOOL", "maybe")

	assert.Equal(t, 7, getEnvAsInt("RAISEFLOW_TEST_INT", 7))
	assert.Equal(t, time.Hour, getEnvAsDuration("RAISEFLOW_TEST_DURATION", time.Hour))
	assert.True(t, getEnvAsBool("RAISEFLOW_TEST_BOOL", true))
	assert.Equal(t, []string{"a"}, getEnvAsList("RAISEFLOW_TEST_UNSET", []string{"a"}))
}

func TestMaskPassword(t *testing.T) {
	cfg := validConfig()
	masked := maskPassword(cfg.DSN())
	assert.NotContains(t, masked, "secret")
	assert.Contains(t, masked, "password=*****")
	assert.Contains(t, masked, "dbname=raiseflow")
}
