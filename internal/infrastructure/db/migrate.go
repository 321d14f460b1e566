package db

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/mohammadpnp/archive-migration/internal/infrastructure/db/migrations"
	"github.com/pressly/goose/v3"
	"github.com/sirupsen/logrus"
)

type Direction string

const (
	Up     Direction = "up"
	Down   Direction = "down"
	Status Direction = "status"
)

// Migrate applies the embedded goose migrations to the database at databaseURL.
func Migrate(ctx context.Context, databaseURL string, direction Direction, log logrus.FieldLogger) error {
	sqlDB, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer sqlDB.Close()

	goose.SetBaseFS(migrations.FS)
	goose.SetLogger(log)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}

	switch direction {
	case Up, "":
		err = goose.UpContext(ctx, sqlDB, ".")
	case Down:
		err = goose.DownContext(ctx, sqlDB, ".")
	case Status:
		err = goose.StatusContext(ctx, sqlDB, ".")
	default:
		return fmt.Errorf("unknown migration direction %q", direction)
	}
	if err != nil {
		return fmt.Errorf("goose %s: %w", direction, err)
	}
	return nil
}
