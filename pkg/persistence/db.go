// Copyright Coingro Ltd and/or licensed to Coingro Ltd under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

// Package persistence stores bot, strategy and user records in a relational
// database. Reads and writes are scoped to transactions: the reconciler opens
// one per tick, the API server one per request.
package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"

	mysql "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/coingro/coingro-controller/pkg/cgerr"
	ulog "github.com/coingro/coingro-controller/pkg/utils/log"
)

var log = ulog.Log.WithName("persistence")

// DB wraps the SQL store.
type DB struct {
	conn *sqlx.DB
}

// Open connects to the database identified by dbURL, creating the schema if
// needed. Supported URL schemes are sqlite, postgresql and mysql.
func Open(dbURL string) (*DB, error) {
	driver, dsn, err := parseDBURL(dbURL)
	if err != nil {
		return nil, err
	}

	conn, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "could not connect to database %q", driver)
	}
	if driver == "sqlite3" {
		// a single connection keeps in-memory stores alive and serializes
		// access to the database file
		conn.SetMaxOpenConns(1)
	}

	db := &DB{conn: conn}
	if err := db.createTables(); err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, "could not create database schema")
	}
	return db, nil
}

// Begin opens a new transaction.
func (db *DB) Begin(ctx context.Context) (*Tx, error) {
	tx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "could not begin database transaction")
	}
	return &Tx{tx: tx, driver: db.conn.DriverName()}, nil
}

// Close flushes and closes the underlying connections.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Tx is one transactional session. All query helpers hang off it.
type Tx struct {
	tx     *sqlx.Tx
	driver string
}

// Commit commits the transaction.
func (t *Tx) Commit() error {
	return t.tx.Commit()
}

// Rollback aborts the transaction. Safe to call after Commit.
func (t *Tx) Rollback() {
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		log.V(1).Info("Transaction rollback failed", "error", err.Error())
	}
}

// insert runs an INSERT and returns the generated surrogate id, papering
// over the postgres RETURNING vs LastInsertId split.
func (t *Tx) insert(ctx context.Context, query string, arg interface{}) (int64, error) {
	if t.driver == "postgres" {
		stmt, err := t.tx.PrepareNamedContext(ctx, query+" RETURNING id")
		if err != nil {
			return 0, err
		}
		defer stmt.Close()
		var id int64
		if err := stmt.QueryRowxContext(ctx, arg).Scan(&id); err != nil {
			return 0, err
		}
		return id, nil
	}

	res, err := t.tx.NamedExecContext(ctx, query, arg)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func parseDBURL(dbURL string) (driver, dsn string, err error) {
	switch {
	case dbURL == "sqlite:///":
		return "", "", cgerr.Operationalf(
			"bad db-url %q: for an in-memory database, please use `sqlite://`", dbURL)
	case dbURL == "sqlite://":
		return "sqlite3", ":memory:", nil
	case strings.HasPrefix(dbURL, "sqlite:///"):
		return "sqlite3", strings.TrimPrefix(dbURL, "sqlite:///"), nil
	case strings.HasPrefix(dbURL, "postgresql://"), strings.HasPrefix(dbURL, "postgres://"):
		return "postgres", dbURL, nil
	case strings.HasPrefix(dbURL, "mysql://"):
		dsn, err := mysqlDSN(dbURL)
		return "mysql", dsn, err
	default:
		return "", "", cgerr.Operationalf("given value for db_url %q is no valid database URL", dbURL)
	}
}

// mysqlDSN converts a mysql:// URL into the driver's DSN format.
func mysqlDSN(dbURL string) (string, error) {
	u, err := url.Parse(dbURL)
	if err != nil {
		return "", cgerr.NewOperational(err, "invalid mysql db_url")
	}
	cfg := mysql.NewConfig()
	cfg.User = u.User.Username()
	cfg.Passwd, _ = u.User.Password()
	cfg.Net = "tcp"
	cfg.Addr = u.Host
	cfg.DBName = strings.TrimPrefix(u.Path, "/")
	cfg.ParseTime = true
	if query := u.Query(); len(query) > 0 {
		cfg.Params = make(map[string]string, len(query))
		for key, values := range query {
			if len(values) > 0 {
				cfg.Params[key] = values[0]
			}
		}
	}
	return cfg.FormatDSN(), nil
}

func (db *DB) createTables() error {
	serial := "BIGSERIAL PRIMARY KEY"
	switch db.conn.DriverName() {
	case "sqlite3":
		serial = "INTEGER PRIMARY KEY AUTOINCREMENT"
	case "mysql":
		serial = "BIGINT AUTO_INCREMENT PRIMARY KEY"
	}

	for _, statement := range []string{
		fmt.Sprintf(createUsersTable, serial),
		fmt.Sprintf(createBotsTable, serial),
		fmt.Sprintf(createStrategiesTable, serial),
	} {
		if _, err := db.conn.Exec(statement); err != nil {
			return err
		}
	}

	for _, statement := range indexStatements(db.conn.DriverName()) {
		if _, err := db.conn.Exec(statement); err != nil && !isDuplicateIndex(err) {
			return err
		}
	}
	return nil
}

const createUsersTable = `
CREATE TABLE IF NOT EXISTS users (
	id %s,
	fullname VARCHAR(255) NOT NULL,
	email VARCHAR(255) NOT NULL UNIQUE,
	username VARCHAR(255) NOT NULL UNIQUE,
	role VARCHAR(25) NOT NULL DEFAULT 'user',
	auth_code VARCHAR(255),
	email_verified_at TIMESTAMP,
	password VARCHAR(255) NOT NULL,
	remember_token VARCHAR(100),
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP,
	deleted_at TIMESTAMP
)`

const createBotsTable = `
CREATE TABLE IF NOT EXISTS bots (
	id %s,
	bot_id VARCHAR(255) NOT NULL UNIQUE,
	bot_name VARCHAR(255) NOT NULL DEFAULT '',
	user_id BIGINT REFERENCES users(id),
	image VARCHAR(255) NOT NULL,
	version VARCHAR(100) NOT NULL,
	api_url VARCHAR(255) NOT NULL,
	strategy VARCHAR(100) NOT NULL DEFAULT '',
	exchange VARCHAR(25) NOT NULL DEFAULT '',
	stake_currency VARCHAR(25) NOT NULL DEFAULT '',
	state VARCHAR(25) NOT NULL DEFAULT '',
	is_active BOOLEAN NOT NULL DEFAULT TRUE,
	is_strategy BOOLEAN NOT NULL DEFAULT FALSE,
	configuration TEXT,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP,
	deleted_at TIMESTAMP
)`

const createStrategiesTable = `
CREATE TABLE IF NOT EXISTS strategies (
	id %s,
	name VARCHAR(255) NOT NULL UNIQUE,
	bot_id BIGINT NOT NULL UNIQUE REFERENCES bots(id),
	category VARCHAR(255) NOT NULL DEFAULT '',
	tags VARCHAR(255) NOT NULL DEFAULT '',
	short_description VARCHAR(255) NOT NULL DEFAULT '',
	long_description TEXT NOT NULL,
	daily_profit DOUBLE PRECISION NOT NULL DEFAULT 0,
	daily_trade_count INTEGER NOT NULL DEFAULT 0,
	weekly_profit DOUBLE PRECISION NOT NULL DEFAULT 0,
	weekly_trade_count INTEGER NOT NULL DEFAULT 0,
	monthly_profit DOUBLE PRECISION NOT NULL DEFAULT 0,
	monthly_trade_count INTEGER NOT NULL DEFAULT 0,
	profit_ratio_mean DOUBLE PRECISION NOT NULL DEFAULT 0,
	profit_ratio_sum DOUBLE PRECISION NOT NULL DEFAULT 0,
	profit_ratio DOUBLE PRECISION NOT NULL DEFAULT 0,
	trade_count INTEGER NOT NULL DEFAULT 0,
	first_trade_timestamp TIMESTAMP,
	latest_trade_timestamp TIMESTAMP,
	avg_duration VARCHAR(100) NOT NULL DEFAULT '',
	winning_trades INTEGER NOT NULL DEFAULT 0,
	losing_trades INTEGER NOT NULL DEFAULT 0,
	latest_refresh TIMESTAMP,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP,
	deleted_at TIMESTAMP
)`

func indexStatements(driver string) []string {
	ifNotExists := "IF NOT EXISTS "
	if driver == "mysql" {
		// mysql has no IF NOT EXISTS for indexes, duplicates are tolerated
		ifNotExists = ""
	}
	return []string{
		"CREATE INDEX " + ifNotExists + "idx_bots_user_id ON bots (user_id)",
		"CREATE INDEX " + ifNotExists + "idx_bots_is_active ON bots (is_active)",
		"CREATE INDEX " + ifNotExists + "idx_bots_is_strategy ON bots (is_strategy)",
	}
}

func isDuplicateIndex(err error) bool {
	return err != nil && strings.Contains(err.Error(), "Duplicate key name")
}
