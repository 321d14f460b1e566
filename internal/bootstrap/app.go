package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	app "github.com/mohammadpnp/archive-migration/internal/application/migration"
	"github.com/mohammadpnp/archive-migration/internal/config"
	"github.com/mohammadpnp/archive-migration/internal/infrastructure/db"
	infrafile "github.com/mohammadpnp/archive-migration/internal/infrastructure/file"
	"github.com/mohammadpnp/archive-migration/internal/infrastructure/repository"
	"github.com/mohammadpnp/archive-migration/internal/infrastructure/spreadsheet"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// App holds the connections and repositories shared by the API server and the CLI.
type App struct {
	Config config.Config
	Log    *logrus.Logger

	DB   *gorm.DB
	Pool *pgxpool.Pool

	Files   app.FileStore
	Parser  *spreadsheet.ExcelParser
	Jobs    *repository.JobRepository
	Sheets  *repository.SheetRepository
	Staging *repository.StagingRepository
	Errors  *repository.ErrorRepository
	Master  *repository.MasterRepository
	Engine  *app.Engine
}

func NewApp(ctx context.Context, cfg config.Config, log *logrus.Logger) (*App, error) {
	if cfg.AutoMigrate {
		if err := db.Migrate(ctx, cfg.DatabaseURL, db.Up, log); err != nil {
			return nil, err
		}
	}

	gormDB, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}

	files, err := newFileStore(ctx, cfg, log)
	if err != nil {
		pool.Close()
		return nil, err
	}

	a := &App{
		Config:  cfg,
		Log:     log,
		DB:      gormDB,
		Pool:    pool,
		Files:   files,
		Parser:  spreadsheet.NewExcelParser(),
		Jobs:    repository.NewJobRepository(gormDB),
		Sheets:  repository.NewSheetRepository(gormDB),
		Staging: repository.NewStagingRepository(gormDB),
		Errors:  repository.NewErrorRepository(gormDB),
		Master:  repository.NewMasterRepository(pool),
	}
	a.Engine = app.NewEngine(a.Jobs, a.Sheets, a.Staging, a.Master, a.Files, a.Parser, log, app.EngineConfig{
		BatchSize:         cfg.BatchSize,
		HeartbeatInterval: heartbeatInterval(cfg),
	})
	return a, nil
}

// NewRecovery builds the recovery service. waker, when set, is told about re-queued
// sheets.
func (a *App) NewRecovery(waker app.Waker) *app.RecoveryService {
	return app.NewRecoveryService(a.Jobs, a.Sheets, a.Staging, a.Files, waker, a.Log, app.RecoveryConfig{
		StaleThreshold: a.Config.StaleThreshold,
		MaxAttempts:    a.Config.MaxRecoveryAttempt,
		Concurrency:    a.Config.Workers,
	})
}

func (a *App) Close() {
	a.Pool.Close()
	if sqlDB, err := a.DB.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

func newFileStore(ctx context.Context, cfg config.Config, log logrus.FieldLogger) (app.FileStore, error) {
	if !cfg.Minio.Enabled() {
		log.WithField("dir", cfg.UploadDir).Info("storing uploads on local disk")
		return infrafile.NewLocalStore(cfg.UploadDir), nil
	}

	store, err := infrafile.NewMinioStore(infrafile.MinioConfig{
		Endpoint:  cfg.Minio.Endpoint,
		AccessKey: cfg.Minio.AccessKey,
		SecretKey: cfg.Minio.SecretKey,
		Bucket:    cfg.Minio.Bucket,
		Region:    cfg.Minio.Region,
		UseSSL:    cfg.Minio.UseSSL,
	})
	if err != nil {
		return nil, err
	}
	if err := store.EnsureBucket(ctx); err != nil {
		return nil, err
	}
	log.WithField("bucket", cfg.Minio.Bucket).Info("storing uploads in minio")
	return store, nil
}

// heartbeatInterval keeps several heartbeats inside one stale threshold.
func heartbeatInterval(cfg config.Config) time.Duration {
	interval := cfg.StaleThreshold / 4
	if interval <= 0 || interval > 15*time.Second {
		return 15 * time.Second
	}
	return interval
}
