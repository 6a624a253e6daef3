package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"gorm.io/gorm"

	"github.com/governance-platform/assessment/pkg/assessment"
	"github.com/governance-platform/assessment/pkg/audit"
	"github.com/governance-platform/assessment/pkg/authz"
	"github.com/governance-platform/assessment/pkg/config"
	"github.com/governance-platform/assessment/pkg/criteria"
	"github.com/governance-platform/assessment/pkg/storage"
)

// migrationLockName keys the lock replicas take around schema migrations.
const migrationLockName = "assessment-server-migration"

type dependencies struct {
	backend    storage.Backend
	auditStore *audit.Store
	closers    []func() error
}

func (d *dependencies) close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		_ = d.closers[i]()
	}
}

// wire opens the storage backend and the audit store. The audit store
// shares the evaluation database when the sql backend is selected and no
// separate audit DSN is configured.
func wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*dependencies, error) {
	d := &dependencies{}
	verbose := cfg.Log.Level == "debug"

	var sqlDB *gorm.DB
	switch cfg.Storage.Backend {
	case config.BackendMemory:
		d.backend = storage.NewMemoryBackend()
	case config.BackendFile:
		fb, err := storage.NewFileBackend(cfg.Storage.Dir)
		if err != nil {
			return nil, err
		}
		d.backend = fb
	case config.BackendSQL:
		db, err := storage.OpenDB(cfg.Storage.Dialect, cfg.Storage.DSN, verbose)
		if err != nil {
			return nil, err
		}
		gb := storage.NewGormBackend(db)
		if err := storage.NewMigrationLock(db, migrationLockName).WithLock(ctx, gb.AutoMigrate); err != nil {
			return nil, err
		}
		d.backend = gb
		sqlDB = db
	case config.BackendRedis:
		rb, err := storage.DialRedis(ctx, cfg.Storage.RedisAddr, cfg.Storage.RedisPass, cfg.Storage.RedisDB)
		if err != nil {
			return nil, err
		}
		d.backend = rb
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
	d.closers = append(d.closers, d.backend.Close)
	logger.Info("storage ready", "backend", cfg.Storage.Backend)

	if !cfg.Audit.Enabled {
		logger.Info("audit log disabled")
		return d, nil
	}

	auditDB := sqlDB
	if cfg.Audit.DSN != "" || auditDB == nil {
		dsn := cfg.Audit.DSN
		if dsn == "" {
			dsn = "audit.db"
		}
		db, err := storage.OpenDB(cfg.Audit.Dialect, dsn, verbose)
		if err != nil {
			d.close()
			return nil, fmt.Errorf("open audit database: %w", err)
		}
		if raw, err := db.DB(); err == nil {
			d.closers = append(d.closers, raw.Close)
		}
		auditDB = db
	}
	d.auditStore = audit.NewStore(auditDB)
	if err := storage.NewMigrationLock(auditDB, migrationLockName+"-audit").WithLock(ctx, d.auditStore.AutoMigrate); err != nil {
		d.close()
		return nil, err
	}
	return d, nil
}

func loadCatalog(path string) (*criteria.Catalog, error) {
	if path == "" {
		return criteria.Default(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	c, err := criteria.Load(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

func policy(cfg *config.Config) assessment.Policy {
	return assessment.Policy{
		RequireJustification:        cfg.Review.RequireJustification,
		RequireEvidenceVerification: cfg.Review.RequireEvidenceVerification,
		AllowDeleteAfterSubmit:      cfg.Lifecycle.AllowDeleteAfterSubmit,
		EvidenceLimit:               cfg.Evidence.MaxBytes,
	}
}

func extractor(cfg *config.Config) (authz.Extractor, error) {
	if authz.Mode(cfg.Auth.Mode) == authz.ModeJWT {
		return authz.NewJWTExtractor(cfg.JWT())
	}
	return authz.HeaderExtractor, nil
}
