// Package config loads the security layer configuration.
//
// Values come from an optional YAML file (koanf file provider) layered over
// built-in defaults; a fixed set of environment variables overrides both.
// Load returns every validation problem at once so that operators can fix a
// broken deployment in one pass.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// KeyBytes is the required length of every symmetric key.
const KeyBytes = 32

// Config is the complete security layer configuration.
type Config struct {
	Environment string `koanf:"environment"`

	Server     Server              `koanf:"server"`
	Keys       Keys                `koanf:"keys"`
	Auth       Auth                `koanf:"auth"`
	Audit      Audit               `koanf:"audit"`
	Encryption Encryption          `koanf:"encryption"`
	Monitoring Monitoring          `koanf:"monitoring"`
	Roles      map[string][]string `koanf:"roles"`
	Compliance Compliance          `koanf:"compliance"`

	Postgres PostgresConfig `koanf:"postgres"`
	Redis    RedisConfig    `koanf:"redis"`
	Kafka    KafkaConfig    `koanf:"kafka"`
	Tracing  TracingConfig  `koanf:"tracing"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// Server captures the operational HTTP surface.
type Server struct {
	Addr string `koanf:"addr"`
}

// Keys holds hex-encoded 256-bit secrets.
type Keys struct {
	MasterKey       string `koanf:"master_key"`
	AuditSigningKey string `koanf:"audit_signing_key"`
	SessionTokenKey string `koanf:"session_token_key"`
}

type Auth struct {
	MFARequired map[string]bool `koanf:"mfa_required"`
	Password    PasswordPolicy  `koanf:"password"`
	Session     Session         `koanf:"session"`
	Lockout     Lockout         `koanf:"lockout"`
	TOTPIssuer  string          `koanf:"totp_issuer"`
}

type PasswordPolicy struct {
	MinLength        int  `koanf:"min_length"`
	RequireUppercase bool `koanf:"require_uppercase"`
	RequireLowercase bool `koanf:"require_lowercase"`
	RequireNumbers   bool `koanf:"require_numbers"`
	RequireSymbols   bool `koanf:"require_symbols"`
	MaxAgeDays       int  `koanf:"max_age_days"`
	HistoryCount     int  `koanf:"history_count"`
}

type Session struct {
	MaxDuration        time.Duration `koanf:"max_duration"`
	InactivityTimeout  time.Duration `koanf:"inactivity_timeout"`
	ConcurrentSessions int           `koanf:"concurrent_sessions"`
}

type Lockout struct {
	MaxAttempts int           `koanf:"max_attempts"`
	Duration    time.Duration `koanf:"duration"`
}

type Audit struct {
	// RetentionDays per category: security, audit, system, debug.
	RetentionDays    map[string]int `koanf:"retention_days"`
	HashAlgorithm    string         `koanf:"hash_algorithm"`
	SigningEnabled   bool           `koanf:"signing_enabled"`
	ExportRecipients []string       `koanf:"export_recipients"`
}

type Encryption struct {
	KeyRotationDays int      `koanf:"key_rotation_days"`
	SensitiveFields []string `koanf:"sensitive_fields"`
}

type Threshold struct {
	Count  int           `koanf:"count"`
	Window time.Duration `koanf:"window"`
}

// Monitoring configures alerting. EscalationChannels are notified only once
// an alert has escalated.
type Monitoring struct {
	AlertChannels      []string             `koanf:"alert_channels"`
	EscalationChannels []string             `koanf:"escalation_channels"`
	EscalationSeconds  map[string]int       `koanf:"escalation_seconds"`
	Thresholds         map[string]Threshold `koanf:"thresholds"`
	NotifyRatePerMin   int                  `koanf:"notify_rate_per_min"`
	MetricQueueSize    int                  `koanf:"metric_queue_size"`
}

type Compliance struct {
	Standards []string `koanf:"standards"`
}

type PostgresConfig struct {
	URL          string        `koanf:"url"`
	MaxOpenConns int           `koanf:"max_open_conns"`
	MaxIdleConns int           `koanf:"max_idle_conns"`
	ConnMaxLife  time.Duration `koanf:"conn_max_life"`
}

// RedisConfig configures the session store client.
type RedisConfig struct {
	URL          string        `koanf:"url"`
	PoolSize     int           `koanf:"pool_size"`
	MinIdleConns int           `koanf:"min_idle_conns"`
	DialTimeout  time.Duration `koanf:"dial_timeout"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
}

type KafkaConfig struct {
	Brokers    []string `koanf:"brokers"`
	AlertTopic string   `koanf:"alert_topic"`
}

type TracingConfig struct {
	Enabled      bool    `koanf:"enabled"`
	Endpoint     string  `koanf:"endpoint"`
	SampleRate   float64 `koanf:"sample_rate"`
	ServiceName  string  `koanf:"service_name"`
	InsecureHTTP bool    `koanf:"insecure_http"`
}

type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// Validation errors.
var (
	ErrInvalidEnvironment = errors.New("environment must be development or production")
	ErrMissingKey         = errors.New("key is required in production")
	ErrInvalidKey         = errors.New("key must be 64 hex characters")
	ErrInvalidValue       = errors.New("invalid configuration value")
)

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Environment: EnvDevelopment,
		Server:      Server{Addr: ":8080"},
		Auth: Auth{
			MFARequired: map[string]bool{
				"admin":   true,
				"auditor": true,
				"analyst": true,
				"user":    false,
			},
			Password: PasswordPolicy{
				MinLength:        12,
				RequireUppercase: true,
				RequireLowercase: true,
				RequireNumbers:   true,
				RequireSymbols:   true,
				MaxAgeDays:       90,
				HistoryCount:     5,
			},
			Session: Session{
				MaxDuration:        8 * time.Hour,
				InactivityTimeout:  30 * time.Minute,
				ConcurrentSessions: 3,
			},
			Lockout: Lockout{
				MaxAttempts: 5,
				Duration:    30 * time.Minute,
			},
			TOTPIssuer: "Bastion",
		},
		Audit: Audit{
			RetentionDays: map[string]int{
				"security": 2555,
				"audit":    2555,
				"system":   365,
				"debug":    30,
			},
			HashAlgorithm:  "sha256",
			SigningEnabled: true,
		},
		Encryption: Encryption{
			KeyRotationDays: 90,
			SensitiveFields: []string{
				"password", "email", "phone", "address", "ssn",
				"creditCard", "bankAccount", "personalData",
			},
		},
		Monitoring: Monitoring{
			AlertChannels: []string{"log"},
			EscalationSeconds: map[string]int{
				"critical": 300,
				"high":     900,
				"medium":   3600,
				"low":      86400,
			},
			Thresholds: map[string]Threshold{
				"failedLogins":        {Count: 10, Window: 15 * time.Minute},
				"suspiciousActivity":  {Count: 5, Window: 10 * time.Minute},
				"dataExfiltration":    {Count: 100, Window: time.Hour},
				"privilegeEscalation": {Count: 3, Window: 5 * time.Minute},
			},
			NotifyRatePerMin: 60,
			MetricQueueSize:  1024,
		},
		Roles: map[string][]string{
			"admin":   {"*"},
			"auditor": {"audit:read", "reports:read", "missions:read"},
			"analyst": {"missions:*", "workshops:*", "reports:*"},
			"user":    {"missions:read", "missions:create", "workshops:read", "reports:read"},
		},
		Compliance: Compliance{
			Standards: []string{"ANSSI", "ISO27001", "RGPD", "AI_ACT"},
		},
		Postgres: PostgresConfig{MaxOpenConns: 10, MaxIdleConns: 5, ConnMaxLife: 30 * time.Minute},
		Redis: RedisConfig{
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Kafka:   KafkaConfig{AlertTopic: "security.alerts"},
		Tracing: TracingConfig{SampleRate: 1.0, ServiceName: "bastion"},
		Logging: LoggingConfig{Level: "info", Format: "json"},
	}
}

// Load reads the optional YAML file at path, applies environment overrides
// and validates the result. A nil Config is only returned when the file
// itself cannot be read.
func Load(path string) (*Config, []error) {
	k := koanf.New(".")
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, []error{fmt.Errorf("failed to load config file %s: %w", path, err)}
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, []error{fmt.Errorf("failed to decode config: %w", err)}
	}
	replaceLists(k, cfg)
	applyEnv(cfg)

	return cfg, cfg.Validate()
}

// replaceLists makes file lists replace the defaults instead of being
// decoded element-wise over them.
func replaceLists(k *koanf.Koanf, cfg *Config) {
	lists := map[string]*[]string{
		"encryption.sensitive_fields":    &cfg.Encryption.SensitiveFields,
		"monitoring.alert_channels":      &cfg.Monitoring.AlertChannels,
		"monitoring.escalation_channels": &cfg.Monitoring.EscalationChannels,
		"compliance.standards":           &cfg.Compliance.Standards,
		"audit.export_recipients":        &cfg.Audit.ExportRecipients,
		"kafka.brokers":                  &cfg.Kafka.Brokers,
	}
	for path, dst := range lists {
		if k.Exists(path) {
			*dst = k.Strings(path)
		}
	}
	if k.Exists("roles") {
		roles := make(map[string][]string)
		for _, role := range k.MapKeys("roles") {
			roles[role] = k.Strings("roles." + role)
		}
		cfg.Roles = roles
	}
}

func applyEnv(cfg *Config) {
	setString(&cfg.Environment, "BASTION_ENV")
	setString(&cfg.Server.Addr, "BASTION_ADDR")
	setString(&cfg.Keys.MasterKey, "BASTION_MASTER_KEY")
	setString(&cfg.Keys.AuditSigningKey, "BASTION_AUDIT_SIGNING_KEY")
	setString(&cfg.Keys.SessionTokenKey, "BASTION_SESSION_TOKEN_KEY")
	setString(&cfg.Postgres.URL, "DATABASE_URL")
	setString(&cfg.Redis.URL, "REDIS_URL")
	setString(&cfg.Tracing.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	setString(&cfg.Logging.Level, "LOG_LEVEL")
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
}

func setString(dst *string, envKey string) {
	if v := os.Getenv(envKey); v != "" {
		*dst = v
	}
}

// Validate checks the configuration and returns every problem found.
func (c *Config) Validate() []error {
	var errs []error

	if c.Environment != EnvDevelopment && c.Environment != EnvProduction {
		errs = append(errs, fmt.Errorf("%q: %w", c.Environment, ErrInvalidEnvironment))
	}

	keys := []struct {
		name  string
		value string
	}{
		{"master_key", c.Keys.MasterKey},
		{"audit_signing_key", c.Keys.AuditSigningKey},
		{"session_token_key", c.Keys.SessionTokenKey},
	}
	for _, key := range keys {
		if key.value == "" {
			if c.IsProduction() {
				errs = append(errs, fmt.Errorf("%s: %w", key.name, ErrMissingKey))
			}
			continue
		}
		if b, err := hex.DecodeString(key.value); err != nil || len(b) != KeyBytes {
			errs = append(errs, fmt.Errorf("%s: %w", key.name, ErrInvalidKey))
		}
	}

	if c.Auth.Lockout.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("auth.lockout.max_attempts must be positive: %w", ErrInvalidValue))
	}
	if c.Auth.Session.ConcurrentSessions < 1 {
		errs = append(errs, fmt.Errorf("auth.session.concurrent_sessions must be positive: %w", ErrInvalidValue))
	}
	if c.Auth.Session.MaxDuration <= 0 || c.Auth.Session.InactivityTimeout <= 0 {
		errs = append(errs, fmt.Errorf("auth.session durations must be positive: %w", ErrInvalidValue))
	}
	if c.Auth.Password.MinLength < 1 {
		errs = append(errs, fmt.Errorf("auth.password.min_length must be positive: %w", ErrInvalidValue))
	}
	if !slices.Contains([]string{"sha256", "blake3"}, c.Audit.HashAlgorithm) {
		errs = append(errs, fmt.Errorf("audit.hash_algorithm %q: %w", c.Audit.HashAlgorithm, ErrInvalidValue))
	}
	for category, days := range c.Audit.RetentionDays {
		if days < 1 {
			errs = append(errs, fmt.Errorf("audit.retention_days.%s must be positive: %w", category, ErrInvalidValue))
		}
	}
	if c.Encryption.KeyRotationDays < 1 {
		errs = append(errs, fmt.Errorf("encryption.key_rotation_days must be positive: %w", ErrInvalidValue))
	}
	for name, t := range c.Monitoring.Thresholds {
		if t.Count < 1 || t.Window <= 0 {
			errs = append(errs, fmt.Errorf("monitoring.thresholds.%s: %w", name, ErrInvalidValue))
		}
	}
	for _, ch := range slices.Concat(c.Monitoring.AlertChannels, c.Monitoring.EscalationChannels) {
		if ch != "log" && ch != "kafka" {
			errs = append(errs, fmt.Errorf("monitoring alert channel %q: %w", ch, ErrInvalidValue))
		}
		if ch == "kafka" && len(c.Kafka.Brokers) == 0 {
			errs = append(errs, fmt.Errorf("kafka channel needs kafka.brokers: %w", ErrInvalidValue))
		}
	}
	if len(c.Roles) == 0 {
		errs = append(errs, fmt.Errorf("roles must not be empty: %w", ErrInvalidValue))
	}

	return errs
}

func (c *Config) IsProduction() bool {
	return c.Environment == EnvProduction
}

// FillEphemeralKeys generates random signing and token keys when they are
// missing in development and returns the names of the keys it generated.
// The master key is never generated: without it encryption runs degraded.
func (c *Config) FillEphemeralKeys() ([]string, error) {
	if c.IsProduction() {
		return nil, nil
	}
	var filled []string
	for name, dst := range map[string]*string{
		"audit_signing_key": &c.Keys.AuditSigningKey,
		"session_token_key": &c.Keys.SessionTokenKey,
	} {
		if *dst != "" {
			continue
		}
		b := make([]byte, KeyBytes)
		if _, err := rand.Read(b); err != nil {
			return nil, fmt.Errorf("generating %s: %w", name, err)
		}
		*dst = hex.EncodeToString(b)
		filled = append(filled, name)
	}
	slices.Sort(filled)
	return filled, nil
}

// DecodeKey decodes a hex key, returning nil for an empty value.
func DecodeKey(hexKey string) ([]byte, error) {
	if hexKey == "" {
		return nil, nil
	}
	b, err := hex.DecodeString(hexKey)
	if err != nil || len(b) != KeyBytes {
		return nil, ErrInvalidKey
	}
	return b, nil
}

// Redacted returns a copy with every secret masked, safe to log or serve.
func (c *Config) Redacted() *Config {
	cp := *c
	cp.Keys = Keys{
		MasterKey:       maskSecret(c.Keys.MasterKey),
		AuditSigningKey: maskSecret(c.Keys.AuditSigningKey),
		SessionTokenKey: maskSecret(c.Keys.SessionTokenKey),
	}
	cp.Postgres.URL = maskURL(c.Postgres.URL)
	cp.Redis.URL = maskURL(c.Redis.URL)
	return &cp
}

func maskSecret(s string) string {
	if s == "" {
		return "<not set>"
	}
	return "****"
}

// maskURL hides the password in user:password@host URLs.
func maskURL(s string) string {
	schemeEnd := strings.Index(s, "://")
	if schemeEnd == -1 {
		return s
	}
	rest := s[schemeEnd+3:]
	at := strings.Index(rest, "@")
	if at == -1 {
		return s
	}
	colon := strings.Index(rest[:at], ":")
	if colon == -1 {
		return s
	}
	return s[:schemeEnd+3] + rest[:colon] + ":****" + rest[at:]
}
