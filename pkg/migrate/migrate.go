package migrate

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pressly/goose/v3"

	"github.com/angelmondragon/storefront-cart/pkg/logger"
)

// DefaultDir is where `-cmd=create` writes new files; they ship in the binary
// through the embed below.
const DefaultDir = "pkg/migrate/migrations"

const embeddedDir = "migrations"

//go:embed migrations/*.sql
var embedded embed.FS

// gooseLogger routes goose progress lines into the structured log.
type gooseLogger struct {
	ctx  context.Context
	logg *logger.Logger
}

func (g gooseLogger) Printf(format string, v ...any) {
	g.logg.Info(g.ctx, strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (g gooseLogger) Fatalf(format string, v ...any) {
	g.logg.Error(g.ctx, "goose.fatal", fmt.Errorf(format, v...))
	os.Exit(1)
}

func prepare(ctx context.Context, db *sql.DB, logg *logger.Logger) error {
	if db == nil {
		return fmt.Errorf("db is required")
	}
	goose.SetBaseFS(embedded)
	goose.SetLogger(gooseLogger{ctx: ctx, logg: logg})
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	return nil
}

// Run executes up, down or status against the embedded postgres migrations.
func Run(ctx context.Context, db *sql.DB, command string, logg *logger.Logger) error {
	switch command {
	case "up", "down", "status":
	default:
		return fmt.Errorf("unsupported goose command %q", command)
	}
	if err := prepare(ctx, db, logg); err != nil {
		return err
	}
	if err := goose.RunContext(ctx, command, db, embeddedDir); err != nil {
		return fmt.Errorf("goose %s: %w", command, err)
	}
	return nil
}

// MigrateToVersion moves the schema up or down until it sits at target
// (a YYYYMMDDHHMMSS migration version).
func MigrateToVersion(ctx context.Context, db *sql.DB, target string, logg *logger.Logger) error {
	version, err := strconv.ParseInt(strings.TrimSpace(target), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid version %q (expected YYYYMMDDHHMMSS): %w", target, err)
	}
	if err := prepare(ctx, db, logg); err != nil {
		return err
	}

	current, err := goose.GetDBVersion(db)
	if err != nil {
		return fmt.Errorf("get db version: %w", err)
	}
	switch {
	case current < version:
		err = goose.UpToContext(ctx, db, embeddedDir, version)
	case current > version:
		err = goose.DownToContext(ctx, db, embeddedDir, version)
	}
	if err != nil {
		return fmt.Errorf("goose %d -> %d: %w", current, version, err)
	}
	return nil
}
