package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadWithPath_Defaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("APP_NAME=gate-test\n"), 0o600))

	cfg, err := LoadWithPath(path)
	require.NoError(t, err)

	assert.Equal(t, "gate-test", cfg.App.Name)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 3*time.Second, cfg.Server.RequestTimeout)
	assert.Equal(t, 6, cfg.Gate.OTPLength)
	assert.Equal(t, 5*time.Minute, cfg.Gate.OTPTTL)
	assert.Equal(t, 3, cfg.Gate.OTPMaxAttempts)
	assert.Equal(t, []string{"vip", "vvip"}, cfg.Gate.OTPRequiredTypes)
	assert.Equal(t, "149.99", cfg.Gate.Prices["vip"])
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	assert.True(t, cfg.IsDevelopment())
}

func TestLoadWithPath_FileOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	content := "GATE_TICKET_STORE=memory\nGATE_OTP_REQUIRED_TYPES= VVIP , couple \nGATE_OTP_TTL=90s\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := LoadWithPath(path)
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.Gate.TicketStore)
	assert.Equal(t, []string{"vvip", "couple"}, cfg.Gate.OTPRequiredTypes)
	assert.Equal(t, 90*time.Second, cfg.Gate.OTPTTL)
}

func TestLoadWithPath_MissingFile(t *testing.T) {
	_, err := LoadWithPath(filepath.Join(t.TempDir(), "nope.env"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			App:    AppConfig{Name: "gate", Environment: "development"},
			Server: ServerConfig{Port: 8080, RequestTimeout: time.Second},
			Gate: GateConfig{
				TicketStore:       "memory",
				ChallengeStore:    "memory",
				OTPSender:         "log",
				SigningSecret:     "s3cret",
				OTPLength:         6,
				OTPTTL:            time.Minute,
				OTPMaxAttempts:    3,
				ReservationWindow: time.Hour,
			},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "missing app name", mutate: func(c *Config) { c.App.Name = "" }, wantErr: true},
		{name: "bad port", mutate: func(c *Config) { c.Server.Port = 70000 }, wantErr: true},
		{name: "zero request timeout", mutate: func(c *Config) { c.Server.RequestTimeout = 0 }, wantErr: true},
		{name: "jwt without secret", mutate: func(c *Config) { c.JWT.Enabled = true }, wantErr: true},
		{name: "default secret in production", mutate: func(c *Config) {
			c.App.Environment = "production"
			c.Gate.SigningSecret = defaultSigningSecret
			c.JWT = JWTConfig{Enabled: true, Secret: "prod-jwt"}
		}, wantErr: true},
		{name: "production with jwt", mutate: func(c *Config) {
			c.App.Environment = "production"
			c.JWT = JWTConfig{Enabled: true, Secret: "prod-jwt", Issuer: "ticket-gate"}
		}},
		{name: "trusted operator headers in production", mutate: func(c *Config) {
			c.App.Environment = "production"
			c.JWT = JWTConfig{Enabled: false, Secret: "prod-jwt"}
		}, wantErr: true},
		{name: "default jwt secret in production", mutate: func(c *Config) {
			c.App.Environment = "production"
			c.JWT = JWTConfig{Enabled: true, Secret: defaultJWTSecret}
		}, wantErr: true},
		{name: "default jwt secret outside production", mutate: func(c *Config) {
			c.JWT = JWTConfig{Enabled: true, Secret: defaultJWTSecret}
		}},
		{name: "unknown ticket store", mutate: func(c *Config) { c.Gate.TicketStore = "mongo" }, wantErr: true},
		{name: "unknown challenge store", mutate: func(c *Config) { c.Gate.ChallengeStore = "etcd" }, wantErr: true},
		{name: "unknown sender", mutate: func(c *Config) { c.Gate.OTPSender = "smtp" }, wantErr: true},
		{name: "short otp", mutate: func(c *Config) { c.Gate.OTPLength = 3 }, wantErr: true},
		{name: "zero attempts", mutate: func(c *Config) { c.Gate.OTPMaxAttempts = 0 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
