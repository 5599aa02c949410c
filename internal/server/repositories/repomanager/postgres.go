// Package repomanager wires repository constructors to a DBTX and runs the
// embedded goose migrations for the primary store and the local tier.
package repomanager

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/songletters/internal/dbx"
	"github.com/dmitrijs2005/songletters/internal/server/migrations"
	"github.com/dmitrijs2005/songletters/internal/server/repositories/letters"
	"github.com/dmitrijs2005/songletters/internal/server/repositories/locals"
	"github.com/dmitrijs2005/songletters/internal/server/repositories/merges"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

// PostgresRepositoryManager vends PostgreSQL-backed repository implementations
// and exposes a schema migration hook.
type PostgresRepositoryManager struct{}

// Letters returns a letters.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) Letters(db dbx.DBTX) letters.Repository {
	return letters.NewPostgresRepository(db)
}

// Merges returns a merges.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) Merges(db dbx.DBTX) merges.Repository {
	return merges.NewPostgresRepository(db)
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// RunMigrations sets up goose with the embedded migrations and runs them
// against the provided database connection.
func (m *PostgresRepositoryManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	if err := gooseUpContext(ctx, db, "."); err != nil {
		return err
	}
	return nil
}

// NewPostgresRepositoryManager constructs a PostgreSQL-backed RepositoryManager.
func NewPostgresRepositoryManager(db *sql.DB) (RepositoryManager, error) {
	return &PostgresRepositoryManager{}, nil
}

// OpenLocal opens (creating if needed) the SQLite file of the local tier,
// migrates it and returns its repository.
func OpenLocal(ctx context.Context, path string) (*sql.DB, locals.Repository, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, nil, fmt.Errorf("open local store: %w", err)
	}
	// one writer keeps SQLite from reporting SQLITE_BUSY under concurrent requests
	db.SetMaxOpenConns(1)

	goose.SetBaseFS(migrations.Local)
	if err := goose.SetDialect("sqlite3"); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	if err := gooseUpContext(ctx, db, "local"); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("migrate local store: %w", err)
	}
	return db, locals.NewSQLiteRepository(db), nil
}
