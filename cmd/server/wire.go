package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"slices"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/twmb/franz-go/pkg/kgo"

	auditmetrics "bastion/internal/audit/metrics"
	auditmodels "bastion/internal/audit/models"
	auditservice "bastion/internal/audit/service"
	"bastion/internal/audit/store/auditlog"
	authnmetrics "bastion/internal/authn/metrics"
	authnservice "bastion/internal/authn/service"
	"bastion/internal/authn/store/lockout"
	"bastion/internal/authn/store/session"
	"bastion/internal/authn/token"
	authzmetrics "bastion/internal/authz/metrics"
	authzservice "bastion/internal/authz/service"
	"bastion/internal/authz/store/resource"
	compmetrics "bastion/internal/compliance/metrics"
	compservice "bastion/internal/compliance/service"
	"bastion/internal/compliance/store/assessment"
	"bastion/internal/compliance/store/report"
	encmetrics "bastion/internal/encryption/metrics"
	encservice "bastion/internal/encryption/service"
	"bastion/internal/encryption/store/key"
	idmodels "bastion/internal/identity/models"
	"bastion/internal/identity/store/group"
	"bastion/internal/identity/store/mfa"
	"bastion/internal/identity/store/user"
	monmetrics "bastion/internal/monitoring/metrics"
	"bastion/internal/monitoring/notify"
	monservice "bastion/internal/monitoring/service"
	"bastion/internal/monitoring/store/alert"
	"bastion/internal/monitoring/store/anomaly"
	"bastion/internal/monitoring/store/incident"
	"bastion/internal/monitoring/store/metric"
	"bastion/internal/platform/config"
	"bastion/internal/platform/kafka"
	"bastion/internal/platform/metrics"
	"bastion/internal/platform/postgres"
	platformredis "bastion/internal/platform/redis"
	"bastion/internal/platform/scheduler"
	"bastion/internal/security"
	httptransport "bastion/internal/transport/http"
)

const (
	alertTopicPartitions = 3
	alertTopicReplicas   = 1
)

// backends are the optional external systems. A nil field means the
// matching stores stay in memory.
type backends struct {
	db    *sql.DB
	redis *platformredis.Client
	kafka *kgo.Client
}

func openBackends(ctx context.Context, cfg *config.Config, log *slog.Logger) (*backends, error) {
	b := &backends{}
	if cfg.Postgres.URL != "" {
		db, err := postgres.Open(ctx, cfg.Postgres)
		if err != nil {
			return nil, err
		}
		b.db = db
		if err := postgres.Migrate(ctx, db); err != nil {
			b.Close()
			return nil, err
		}
		log.Info("postgres stores enabled")
	} else {
		log.Warn("no database configured, every store is in memory")
	}

	client, err := platformredis.New(ctx, cfg.Redis)
	if err != nil {
		b.Close()
		return nil, err
	}
	b.redis = client

	if usesKafka(cfg) {
		producer, err := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.AlertTopic)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.kafka = producer
		if err := kafka.EnsureTopic(ctx, producer, cfg.Kafka.AlertTopic, alertTopicPartitions, alertTopicReplicas); err != nil {
			b.Close()
			return nil, err
		}
	}
	return b, nil
}

func usesKafka(cfg *config.Config) bool {
	return slices.Contains(cfg.Monitoring.AlertChannels, "kafka") ||
		slices.Contains(cfg.Monitoring.EscalationChannels, "kafka")
}

func (b *backends) Close() {
	if b.kafka != nil {
		b.kafka.Close()
	}
	if b.redis != nil {
		_ = b.redis.Close()
	}
	if b.db != nil {
		_ = b.db.Close()
	}
}

func (b *backends) readiness() map[string]httptransport.ReadinessCheck {
	checks := map[string]httptransport.ReadinessCheck{}
	if b.db != nil {
		checks["postgres"] = b.db.PingContext
	}
	if b.redis != nil {
		checks["redis"] = b.redis.Health
	}
	if b.kafka != nil {
		checks["kafka"] = b.kafka.Ping
	}
	return checks
}

type userStore interface {
	authnservice.UserStore
	Create(ctx context.Context, u *idmodels.User) error
}

type app struct {
	authn    *authnservice.Service
	users    userStore
	mfa      authnservice.MFAStore
	security *security.Service
	router   http.Handler
}

func buildApp(ctx context.Context, cfg *config.Config, b *backends, reg *prometheus.Registry, log *slog.Logger) (*app, error) {
	masterKey, err := config.DecodeKey(cfg.Keys.MasterKey)
	if err != nil {
		return nil, fmt.Errorf("master key: %w", err)
	}
	signingKey, err := config.DecodeKey(cfg.Keys.AuditSigningKey)
	if err != nil {
		return nil, fmt.Errorf("audit signing key: %w", err)
	}
	tokenKey, err := config.DecodeKey(cfg.Keys.SessionTokenKey)
	if err != nil {
		return nil, fmt.Errorf("session token key: %w", err)
	}

	var (
		users      userStore
		lockouts   authnservice.LockoutStore
		sessions   authnservice.SessionStore
		auditStore auditservice.Store
		keyStore   encservice.Store
		compliance compservice.Stores
	)
	if b.db != nil {
		users = user.NewPostgres(b.db)
		lockouts = lockout.NewPostgres(b.db)
		auditStore = auditlog.NewPostgres(b.db)
		keyStore = key.NewPostgres(b.db)
		compliance = compservice.Stores{Assessments: assessment.NewPostgres(b.db), Reports: report.NewPostgres(b.db)}
	} else {
		users = user.NewInMemoryUserStore()
		lockouts = lockout.NewInMemoryStore()
		auditStore = auditlog.NewInMemoryStore()
		keyStore = key.NewInMemoryStore()
		compliance = compservice.Stores{Assessments: assessment.NewInMemoryStore(), Reports: report.NewInMemoryStore()}
	}
	if b.redis != nil {
		sessions = session.NewRedis(b.redis.Client)
	} else {
		sessions = session.NewInMemoryStore()
	}

	auditOpts := []auditservice.Option{
		auditservice.WithLogger(componentLogger(log, "audit")),
		auditservice.WithMetrics(auditmetrics.New(reg)),
		auditservice.WithHashAlgorithm(cfg.Audit.HashAlgorithm),
		auditservice.WithRetentionDays(cfg.Audit.RetentionDays),
		auditservice.WithExportRecipients(cfg.Audit.ExportRecipients),
	}
	if cfg.Audit.SigningEnabled {
		auditOpts = append(auditOpts, auditservice.WithSigningKey(signingKey))
	}
	auditSvc, err := auditservice.New(ctx, auditStore, auditOpts...)
	if err != nil {
		return nil, fmt.Errorf("audit service: %w", err)
	}

	encOpts := []encservice.Option{
		encservice.WithLogger(componentLogger(log, "encryption")),
		encservice.WithMetrics(encmetrics.New(reg)),
		encservice.WithRotationDays(cfg.Encryption.KeyRotationDays),
		encservice.WithSensitiveFields(cfg.Encryption.SensitiveFields),
	}
	if !cfg.IsProduction() {
		encOpts = append(encOpts, encservice.WithPassThrough())
	}
	encSvc, err := encservice.New(keyStore, masterKey, encOpts...)
	if err != nil {
		return nil, fmt.Errorf("encryption service: %w", err)
	}

	issuer, err := token.New(tokenKey, token.WithIssuer("bastion"))
	if err != nil {
		return nil, fmt.Errorf("token issuer: %w", err)
	}
	pw := cfg.Auth.Password
	var mfaStore authnservice.MFAStore = mfa.NewInMemoryMFAStore()
	if b.db != nil {
		mfaStore = mfa.NewPostgres(b.db, encSvc)
	}
	authnSvc, err := authnservice.New(authnservice.Stores{
		Users:    users,
		MFA:      mfaStore,
		Lockouts: lockouts,
		Sessions: sessions,
	}, issuer,
		authnservice.WithLogger(componentLogger(log, "authn")),
		authnservice.WithMetrics(authnmetrics.New(reg)),
		authnservice.WithMFARequired(cfg.Auth.MFARequired),
		authnservice.WithPasswordPolicy(authnservice.PasswordPolicy{
			MinLength:        pw.MinLength,
			RequireUppercase: pw.RequireUppercase,
			RequireLowercase: pw.RequireLowercase,
			RequireNumbers:   pw.RequireNumbers,
			RequireSymbols:   pw.RequireSymbols,
		}),
		authnservice.WithSessionLimits(cfg.Auth.Session.MaxDuration, cfg.Auth.Session.InactivityTimeout, cfg.Auth.Session.ConcurrentSessions),
		authnservice.WithLockout(cfg.Auth.Lockout.MaxAttempts, cfg.Auth.Lockout.Duration),
		authnservice.WithTOTPIssuer(cfg.Auth.TOTPIssuer),
	)
	if err != nil {
		return nil, fmt.Errorf("authn service: %w", err)
	}

	authzSvc, err := authzservice.New(users, group.NewInMemoryGroupStore(), cfg.Roles,
		authzservice.WithLogger(componentLogger(log, "authz")),
		authzservice.WithMetrics(authzmetrics.New(reg)),
		authzservice.WithResourceLookup(resource.NewInMemoryStore()),
	)
	if err != nil {
		return nil, fmt.Errorf("authz service: %w", err)
	}

	monLog := componentLogger(log, "monitoring")
	monMetrics := monmetrics.New(reg)
	dispatcher, err := newDispatcher(cfg, b, monMetrics, monLog)
	if err != nil {
		return nil, err
	}
	thresholds := make(map[string]monservice.Threshold, len(cfg.Monitoring.Thresholds))
	for name, t := range cfg.Monitoring.Thresholds {
		thresholds[name] = monservice.Threshold{Count: t.Count, Window: t.Window}
	}
	monSvc, err := monservice.New(monservice.Stores{
		Alerts:    alert.NewInMemoryStore(),
		Anomalies: anomaly.NewInMemoryStore(),
		Incidents: incident.NewInMemoryStore(),
		Metrics:   metric.NewInMemoryStore(),
	}, dispatcher,
		monservice.WithLogger(monLog),
		monservice.WithMetrics(monMetrics),
		monservice.WithThresholds(thresholds),
		monservice.WithEscalationSeconds(cfg.Monitoring.EscalationSeconds),
		monservice.WithQueueSize(cfg.Monitoring.MetricQueueSize),
	)
	if err != nil {
		return nil, fmt.Errorf("monitoring service: %w", err)
	}

	compSvc, err := compservice.New(compliance, cfg.Compliance.Standards,
		compservice.WithLogger(componentLogger(log, "compliance")),
		compservice.WithMetrics(compmetrics.New(reg)),
		compservice.WithSignals(security.NewSignalSource(security.SignalProbes{
			MFARequired:    authnSvc.MFARequired,
			Roles:          cfg.Roles,
			Degraded:       encSvc.Degraded,
			SigningEnabled: auditSvc.SigningEnabled,
			VerifyChain: func(ctx context.Context) (*auditmodels.IntegrityResult, error) {
				return auditSvc.VerifyIntegrity(ctx, "")
			},
			AlertChannels: dispatcher.Channels(),
		})),
	)
	if err != nil {
		return nil, fmt.Errorf("compliance service: %w", err)
	}

	secLog := componentLogger(log, "security")
	secSvc, err := security.New(security.Deps{
		Authn:      authnSvc,
		Authz:      authzSvc,
		Encryption: encSvc,
		Audit:      auditSvc,
		Monitoring: monSvc,
		Compliance: compSvc,
	},
		security.WithLogger(secLog),
		security.WithConfig(cfg),
		security.WithScheduler(scheduler.New(reg, scheduler.WithLogger(componentLogger(log, "scheduler")))),
	)
	if err != nil {
		return nil, fmt.Errorf("security service: %w", err)
	}

	handler, err := httptransport.New(httptransport.Deps{
		Security:   secSvc,
		Sessions:   httptransport.NewSessionResolver(authnSvc, authzSvc, secLog),
		Audit:      auditSvc,
		Alerts:     monSvc,
		Compliance: compSvc,
		Metrics:    metrics.Handler(reg),
		Readiness:  b.readiness(),
	}, httptransport.WithLogger(componentLogger(log, "http")))
	if err != nil {
		return nil, fmt.Errorf("http handler: %w", err)
	}

	return &app{authn: authnSvc, users: users, mfa: mfaStore, security: secSvc, router: handler.Router()}, nil
}

func newDispatcher(cfg *config.Config, b *backends, m *monmetrics.Metrics, log *slog.Logger) (*notify.Dispatcher, error) {
	logChannel := notify.NewLogChannel(log)
	d := notify.NewDispatcher(logChannel,
		notify.WithRatePerMinute(cfg.Monitoring.NotifyRatePerMin),
		notify.WithDispatcherLogger(log),
		notify.WithDispatcherMetrics(m),
	)
	channels := map[string]notify.Channel{"log": logChannel}
	if b.kafka != nil {
		channels["kafka"] = notify.NewKafkaChannel(b.kafka, cfg.Kafka.AlertTopic)
	}
	add := func(names []string, minLevel int) error {
		for _, name := range names {
			ch, ok := channels[name]
			if !ok {
				return fmt.Errorf("alert channel %q is not available", name)
			}
			d.Add(ch, minLevel)
		}
		return nil
	}
	if err := add(cfg.Monitoring.AlertChannels, 0); err != nil {
		return nil, err
	}
	if err := add(cfg.Monitoring.EscalationChannels, 1); err != nil {
		return nil, err
	}
	return d, nil
}
