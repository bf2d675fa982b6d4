// cmd/runtime.go

package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/aegis-security/aegis/pkg/audit"
	"github.com/aegis-security/aegis/pkg/config"
	"github.com/aegis-security/aegis/pkg/governor"
	"github.com/aegis-security/aegis/pkg/identity"
	"github.com/aegis-security/aegis/pkg/promptguard"
	"github.com/aegis-security/aegis/pkg/responseguard"
	"github.com/aegis-security/aegis/pkg/telemetry"
	"github.com/aegis-security/aegis/pkg/usage"
	"github.com/aegis-security/aegis/pkg/vault"
	"github.com/spf13/cobra"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// RuntimeContext carries the per-invocation context and logger into command
// handlers.
type RuntimeContext struct {
	Ctx       context.Context
	Log       *otelzap.LoggerWithCtx
	Timestamp time.Time
}

// Wrap injects a runtime context, a telemetry span and panic recovery around
// a command handler.
func Wrap(fn func(rc *RuntimeContext, cmd *cobra.Command, args []string) error) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) (err error) {
		start := time.Now()
		ctx, span := telemetry.Start(cmd.Context(), cmd.Name())
		defer span.End()

		log := otelzap.Ctx(ctx)
		rc := &RuntimeContext{Ctx: ctx, Log: &log, Timestamp: start}

		defer func() {
			if r := recover(); r != nil {
				log.Error("Panic recovered", zap.Any("panic", r))
				err = fmt.Errorf("panic: %v", r)
			}
			duration := time.Since(start)
			if err != nil {
				log.Error("Command failed",
					zap.String("command", cmd.Name()),
					zap.Duration("duration", duration),
					zap.Error(err))
			} else {
				log.Debug("Command finished",
					zap.String("command", cmd.Name()),
					zap.Duration("duration", duration))
			}
		}()

		return fn(rc, cmd, args)
	}
}

// runtime holds the wired service graph for one CLI invocation.
type runtime struct {
	cfg       *config.Options
	trail     *audit.Trail
	vault     *vault.Service
	governor  *governor.Governor
	prompts   *promptguard.Guard
	responses *responseguard.Sanitizer
	usage     usage.Recorder
}

// buildRuntime wires services from configuration. A postgres DSN selects the
// durable stores, a redis URL the shared quota counters; without them the
// in-memory implementations serve, which only makes sense for development.
func buildRuntime(rc *RuntimeContext) (*runtime, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	var (
		auditStore  audit.Store
		secretStore vault.RecordStore
		policyStore governor.PolicyStore
		counters    governor.CounterStore
		recorder    usage.Recorder
	)

	if cfg.PostgresDSN != "" {
		db, err := gorm.Open(postgres.Open(cfg.PostgresDSN), &gorm.Config{
			Logger: gormlogger.Default.LogMode(gormlogger.Silent),
		})
		if err != nil {
			return nil, fmt.Errorf("postgres connection failed: %w", err)
		}
		if auditStore, err = audit.NewGormStore(db); err != nil {
			return nil, err
		}
		if secretStore, err = vault.NewGormStore(db); err != nil {
			return nil, err
		}
		if policyStore, err = governor.NewGormPolicyStore(db); err != nil {
			return nil, err
		}
		if err := db.AutoMigrate(&usage.Record{}); err != nil {
			return nil, err
		}
		recorder = usage.NewGormRecorder(db)
	} else {
		rc.Log.Warn("No postgres DSN configured, using in-memory stores")
		auditStore = audit.NewMemoryStore()
		secretStore = vault.NewMemoryStore()
		policyStore = governor.NewMemoryPolicyStore()
		recorder = usage.NewMemoryRecorder()
	}

	if cfg.RedisURL != "" {
		counters, err = governor.NewRedisCounterStore(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("redis connection failed: %w", err)
		}
	} else {
		counters = governor.NewMemoryCounterStore()
	}

	rootSecret, err := vault.ResolveRootSecret(rc.Ctx, cfg.RootSecretSource)
	if err != nil {
		return nil, err
	}

	trail := audit.NewTrail(auditStore, cfg.RetentionDays, cfg.AnonymizeAfterDays)
	ident := cliIdentity()

	return &runtime{
		cfg:   cfg,
		trail: trail,
		vault: vault.NewService(secretStore, trail, ident,
			cfg.Namespace, cfg.Pepper, rootSecret, cfg.KDFIterations),
		governor:  governor.New(ident, counters, policyStore, trail, *cfg),
		prompts:   promptguard.New(*cfg, trail, ident),
		responses: responseguard.New(*cfg),
		usage:     recorder,
	}, nil
}

// cliIdentity treats the operator invoking the binary as an administrator.
// Request-path identity comes from the embedding application, not from here.
func cliIdentity() identity.Provider {
	return &identity.StaticProvider{Actor: &identity.Actor{
		ID:    "cli",
		Name:  "aegis-cli",
		Admin: true,
	}}
}
