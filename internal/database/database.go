// Package database owns the Postgres connection pool shared by
// pkg/persistence. It is the only place that opens a connection;
// pkg/persistence imports lib/pq only for its array helpers.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strconv"
	"time"

	// registers the pgx driver under "pgx" for database/sql, as sqlx.Open expects.
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	pipelineerrors "github.com/dioceseharvest/pipeline/pkg/shared/errors"
)

// Config describes how to connect to the relational store.
type Config struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// DefaultConfig returns the baseline connection configuration.
func DefaultConfig() *Config {
	return &Config{
		Host:            "localhost",
		Port:            5432,
		User:            "harvest_user",
		Database:        "diocese_harvest",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: 5 * time.Minute,
	}
}

// LoadFromEnv overrides c with DB_HOST/DB_PORT/DB_USER/DB_PASSWORD/DB_NAME/
// DB_SSL_MODE when set, matching the env-override convention used
// throughout internal/config.
func (c *Config) LoadFromEnv() {
	if v := os.Getenv("DB_HOST"); v != "" {
		c.Host = v
	}
	if v := os.Getenv("DB_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Port = p
		}
	}
	if v := os.Getenv("DB_USER"); v != "" {
		c.User = v
	}
	if v := os.Getenv("DB_PASSWORD"); v != "" {
		c.Password = v
	}
	if v := os.Getenv("DB_NAME"); v != "" {
		c.Database = v
	}
	if v := os.Getenv("DB_SSL_MODE"); v != "" {
		c.SSLMode = v
	}
}

// DSN renders c as a libpq connection string, reusing lib/pq's quoting
// rules so values with spaces or special characters round-trip correctly.
func (c *Config) DSN() string {
	parts := []struct{ key, val string }{
		{"host", c.Host},
		{"port", strconv.Itoa(c.Port)},
		{"user", c.User},
		{"password", c.Password},
		{"dbname", c.Database},
		{"sslmode", c.SSLMode},
	}
	dsn := ""
	for _, p := range parts {
		if p.val == "" {
			continue
		}
		dsn += fmt.Sprintf("%s=%s ", p.key, pq.QuoteLiteral(p.val))
	}
	return dsn
}

// Open establishes the *sqlx.DB pool using the pgx driver, with the
// pooling limits from Config applied.
func Open(ctx context.Context, c *Config) (*sqlx.DB, error) {
	sqlDB, err := sql.Open("pgx", c.DSN())
	if err != nil {
		return nil, pipelineerrors.FailedToWithDetails("open database connection", "database", c.Database, err)
	}
	sqlDB.SetMaxOpenConns(c.MaxOpenConns)
	sqlDB.SetMaxIdleConns(c.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(c.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(c.ConnMaxIdleTime)

	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, pipelineerrors.FailedToWithDetails("ping database", "database", c.Database, err)
	}

	return sqlx.NewDb(sqlDB, "pgx"), nil
}

// OpenDSN establishes the *sqlx.DB pool from a caller-supplied connection
// string (spec §6: "Persistence connection string ... validated on
// startup"), applying the same pooling limits Open does. This is the path
// cmd/harvester uses, since the router binary is configured by one DSN
// value rather than by the discrete Host/Port/User fields LoadFromEnv
// populates.
func OpenDSN(ctx context.Context, dsn string, maxOpenConns, maxIdleConns int, connMaxLifetime, connMaxIdleTime time.Duration) (*sqlx.DB, error) {
	sqlDB, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, pipelineerrors.FailedToWithDetails("open database connection", "database", "", err)
	}
	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetMaxIdleConns(maxIdleConns)
	sqlDB.SetConnMaxLifetime(connMaxLifetime)
	sqlDB.SetConnMaxIdleTime(connMaxIdleTime)

	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, pipelineerrors.FailedToWithDetails("ping database", "database", "", err)
	}

	return sqlx.NewDb(sqlDB, "pgx"), nil
}
