package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

const testKey = "00112233445566778899aabbccddeeff00112233445566778899aabbccddeeff"

type ConfigSuite struct {
	suite.Suite
	dir string
}

func TestConfigSuite(t *testing.T) {
	suite.Run(t, new(ConfigSuite))
}

func (s *ConfigSuite) SetupTest() {
	s.dir = s.T().TempDir()
	for _, k := range []string{
		"BASTION_ENV", "BASTION_ADDR", "BASTION_MASTER_KEY", "BASTION_AUDIT_SIGNING_KEY",
		"BASTION_SESSION_TOKEN_KEY", "DATABASE_URL", "REDIS_URL", "KAFKA_BROKERS",
		"OTEL_EXPORTER_OTLP_ENDPOINT", "LOG_LEVEL",
	} {
		s.T().Setenv(k, "")
	}
}

func (s *ConfigSuite) writeFile(body string) string {
	path := filepath.Join(s.dir, "bastion.yaml")
	s.Require().NoError(os.WriteFile(path, []byte(body), 0o600))
	return path
}

func (s *ConfigSuite) TestDefaults() {
	cfg, errs := Load("")
	s.Require().Empty(errs)
	s.Equal(EnvDevelopment, cfg.Environment)
	s.Equal(5, cfg.Auth.Lockout.MaxAttempts)
	s.Equal(30*time.Minute, cfg.Auth.Lockout.Duration)
	s.Equal(3, cfg.Auth.Session.ConcurrentSessions)
	s.True(cfg.Auth.MFARequired["admin"])
	s.False(cfg.Auth.MFARequired["user"])
	s.Equal(2555, cfg.Audit.RetentionDays["security"])
	s.Equal(300, cfg.Monitoring.EscalationSeconds["critical"])
	s.Equal(Threshold{Count: 10, Window: 15 * time.Minute}, cfg.Monitoring.Thresholds["failedLogins"])
	s.Equal([]string{"*"}, cfg.Roles["admin"])
}

func (s *ConfigSuite) TestFileOverridesDefaults() {
	path := s.writeFile(`
environment: development
auth:
  lockout:
    max_attempts: 3
    duration: 10m
encryption:
  sensitive_fields: [iban]
roles:
  viewer: ["reports:read"]
`)
	cfg, errs := Load(path)
	s.Require().Empty(errs)
	s.Equal(3, cfg.Auth.Lockout.MaxAttempts)
	s.Equal(10*time.Minute, cfg.Auth.Lockout.Duration)
	s.Equal(8*time.Hour, cfg.Auth.Session.MaxDuration, "untouched defaults survive")

	s.Run("lists replace defaults", func() {
		s.Equal([]string{"iban"}, cfg.Encryption.SensitiveFields)
		s.Equal(map[string][]string{"viewer": {"reports:read"}}, cfg.Roles)
	})
}

func (s *ConfigSuite) TestEnvOverridesFile() {
	path := s.writeFile("server:\n  addr: \":9000\"\n")
	s.T().Setenv("BASTION_ADDR", ":9100")
	s.T().Setenv("KAFKA_BROKERS", "a:9092,b:9092")

	cfg, errs := Load(path)
	s.Require().Empty(errs)
	s.Equal(":9100", cfg.Server.Addr)
	s.Equal([]string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
}

func (s *ConfigSuite) TestValidation() {
	s.Run("production requires every key", func() {
		s.T().Setenv("BASTION_ENV", EnvProduction)
		_, errs := Load("")
		s.Len(errs, 3)
		for _, err := range errs {
			s.ErrorIs(err, ErrMissingKey)
		}
	})

	s.Run("production accepts well-formed keys", func() {
		s.T().Setenv("BASTION_ENV", EnvProduction)
		s.T().Setenv("BASTION_MASTER_KEY", testKey)
		s.T().Setenv("BASTION_AUDIT_SIGNING_KEY", testKey)
		s.T().Setenv("BASTION_SESSION_TOKEN_KEY", testKey)
		_, errs := Load("")
		s.Empty(errs)
	})

	s.Run("malformed keys are rejected in any environment", func() {
		s.T().Setenv("BASTION_ENV", EnvDevelopment)
		s.T().Setenv("BASTION_MASTER_KEY", "abcd")
		_, errs := Load("")
		s.Require().Len(errs, 1)
		s.ErrorIs(errs[0], ErrInvalidKey)
	})

	s.Run("collects every error", func() {
		s.T().Setenv("BASTION_MASTER_KEY", "")
		path := s.writeFile(`
environment: staging
audit:
  hash_algorithm: md5
monitoring:
  alert_channels: [kafka]
`)
		_, errs := Load(path)
		s.Len(errs, 3)
	})
}

func (s *ConfigSuite) TestFillEphemeralKeys() {
	cfg := Default()
	filled, err := cfg.FillEphemeralKeys()
	s.Require().NoError(err)
	s.Equal([]string{"audit_signing_key", "session_token_key"}, filled)
	s.Len(cfg.Keys.AuditSigningKey, 64)
	s.Empty(cfg.Keys.MasterKey)

	cfg.Environment = EnvProduction
	cfg.Keys.SessionTokenKey = ""
	filled, err = cfg.FillEphemeralKeys()
	s.Require().NoError(err)
	s.Empty(filled)
}

func (s *ConfigSuite) TestRedacted() {
	cfg := Default()
	cfg.Keys.MasterKey = testKey
	cfg.Postgres.URL = "postgres://bastion:hunter2@db:5432/bastion"

	red := cfg.Redacted()
	s.Equal("****", red.Keys.MasterKey)
	s.Equal("<not set>", red.Keys.SessionTokenKey)
	s.False(strings.Contains(red.Postgres.URL, "hunter2"))
	s.Equal(testKey, cfg.Keys.MasterKey, "original untouched")
}
