// Package bunstore implements the stateauth user and session repositories
// on uptrace/bun, so the engine can run against SQLite or PostgreSQL through
// database/sql.
package bunstore

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	// Register the pgx database/sql driver used by OpenPostgres.
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/samber/oops"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

// OpenSQLite opens dsn with the sqlite shim driver. In-memory databases are
// limited to one connection so every query sees the same database.
func OpenSQLite(dsn string) (*bun.DB, error) {
	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	if err != nil {
		return nil, oops.Code("DB_OPEN_FAILED").With("driver", sqliteshim.ShimName).Wrap(err)
	}
	if strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory") {
		sqldb.SetMaxOpenConns(1)
	}

	db := bun.NewDB(sqldb, sqlitedialect.New())
	if _, err := db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
		_ = db.Close()
		return nil, oops.Code("DB_OPEN_FAILED").With("operation", "enable foreign keys").Wrap(err)
	}
	return db, nil
}

// OpenPostgres opens dsn through the pgx database/sql driver. No connection
// is made until first use.
func OpenPostgres(dsn string) (*bun.DB, error) {
	sqldb, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, oops.Code("DB_OPEN_FAILED").With("driver", "pgx").Wrap(err)
	}
	return bun.NewDB(sqldb, pgdialect.New()), nil
}

// CreateSchema creates the users and sessions tables when missing.
func CreateSchema(ctx context.Context, db bun.IDB) error {
	if _, err := db.NewCreateTable().
		Model((*userModel)(nil)).
		IfNotExists().
		Exec(ctx); err != nil {
		return oops.Code("SCHEMA_CREATE_FAILED").With("table", "users").Wrap(err)
	}

	if _, err := db.NewCreateTable().
		Model((*sessionModel)(nil)).
		IfNotExists().
		ForeignKey(`("user_id") REFERENCES "users" ("id") ON DELETE CASCADE`).
		Exec(ctx); err != nil {
		return oops.Code("SCHEMA_CREATE_FAILED").With("table", "sessions").Wrap(err)
	}

	if _, err := db.NewCreateIndex().
		Model((*sessionModel)(nil)).
		Index("sessions_user_id_idx").
		IfNotExists().
		Column("user_id").
		Exec(ctx); err != nil {
		return oops.Code("SCHEMA_CREATE_FAILED").With("index", "sessions_user_id_idx").Wrap(err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.UniqueViolation
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
