package store

import (
	"context"
	"database/sql"
	"embed"
	"io/fs"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/sirupsen/logrus"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// GetMigrationsFS returns the migration files for this package
func GetMigrationsFS() fs.FS {
	sub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return migrationsFS
	}
	return sub
}

// Open connects to sqlite or postgres and wraps the pool in a bun.DB.
func Open(driver, dsn string) (*bun.DB, error) {
	switch strings.ToLower(driver) {
	case DriverSQLite, "sqlite3":
		sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to open sqlite database")
		}
		// sqlite serializes writers, a single connection also keeps
		// in-memory databases alive across queries.
		sqldb.SetMaxOpenConns(1)
		return bun.NewDB(sqldb, sqlitedialect.New()), nil
	case DriverPostgres, "postgresql", "pgx":
		sqldb, err := sql.Open("pgx", dsn)
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to open postgres database")
		}
		return bun.NewDB(sqldb, pgdialect.New()), nil
	default:
		return nil, goerrors.New("unsupported database driver: "+driver, goerrors.CategoryBadInput).
			WithMetadata(map[string]any{"driver": driver})
	}
}

// Migrate applies the embedded migrations with goose.
func Migrate(ctx context.Context, db *bun.DB, logger *logrus.Logger) error {
	if db == nil {
		return goerrors.New("database is required", goerrors.CategoryBadInput)
	}

	var gooseDialect goose.Dialect
	switch db.Dialect().Name() {
	case dialect.SQLite:
		gooseDialect = goose.DialectSQLite3
	case dialect.PG:
		gooseDialect = goose.DialectPostgres
	default:
		return goerrors.New("unsupported migration dialect", goerrors.CategoryInternal).
			WithMetadata(map[string]any{"dialect": db.Dialect().Name().String()})
	}

	if logger == nil {
		logger = logrus.StandardLogger()
	}

	provider, err := goose.NewProvider(gooseDialect, db.DB, GetMigrationsFS(), goose.WithLogger(logger))
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create migration provider")
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to apply migrations")
	}

	for _, res := range results {
		if res == nil || res.Source == nil {
			continue
		}
		logger.WithFields(logrus.Fields{
			"version":  res.Source.Version,
			"duration": res.Duration,
		}).Debug("migration applied")
	}

	return nil
}
