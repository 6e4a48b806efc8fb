// Package store implements C6, the versioned resource store: create,
// upsert, read, vread, delete, and the transactional TxContext that the
// bundle processor (C7) drives. Grounded on the teacher's pkg/database
// (connection setup, schema init, transaction helper) generalized from a
// single `database/sql` handle to `sqlx.DB` for named-parameter queries
// and struct-scanning into fhirmodel.Resource / search-row types.
package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/fhirstore/zunder/pkg/logger"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Config holds the Postgres connection configuration.
type Config struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// DSN exposes the connection string so callers that need their own
// connection to Postgres (runtimeconfig's LISTEN/NOTIFY subscriber) don't
// have to duplicate the format.
func (c Config) DSN() string {
	return c.dsn()
}

func (c Config) dsn() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// DB wraps the shared connection pool. Every top-level handler borrows one
// connection for the duration of its operation via the pool and releases it
// on return (per spec §5's "Shared resources" contract); sqlx/database/sql
// already implement this borrow/release discipline internally.
type DB struct {
	Conn *sqlx.DB
}

// Open connects to Postgres and configures the pool bounds from
// config.LimitsConfig.
func Open(cfg Config, maxOpen, maxIdle int) (*DB, error) {
	dsn := cfg.dsn()
	logger.WithFields(logger.Fields{"host": cfg.Host, "port": cfg.Port, "db": cfg.DBName}).
		Info("connecting to PostgreSQL")

	conn, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	conn.SetMaxOpenConns(maxOpen)
	conn.SetMaxIdleConns(maxIdle)
	conn.SetConnMaxLifetime(time.Hour)

	logger.Info("connected to PostgreSQL")
	return &DB{Conn: conn}, nil
}

// Close closes the pool.
func (d *DB) Close() error {
	return d.Conn.Close()
}

// Transaction runs fn inside a database transaction, committing on success
// and rolling back on any error (including a panic, which is re-raised
// after rollback).
func (d *DB) Transaction(fn func(*sqlx.Tx) error) (err error) {
	tx, err := d.Conn.Beginx()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err = fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
			logger.WithFields(logger.Fields{"rollback_error": rbErr}).Error("rollback failed")
		}
		return err
	}

	return tx.Commit()
}
