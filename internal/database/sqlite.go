// Package database provides SQLite persistence for grants, access rights,
// issued access tokens, and interaction sessions.
package database

import (
	"database/sql"
	"fmt"
	"log"

	_ "modernc.org/sqlite"
)

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the database and prepares the connection pool.
// Schema creation is separate (InitSchema) so startup can retry it.
func NewSQLiteStore(
	dbPath string,
) *SQLiteStore {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		log.Fatalf("failed to connect to database: %v\n", err)
	}

	// An in-memory database exists per connection, so the pool must be
	// pinned to one for the schema to be visible everywhere.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
		log.Fatalf("failed to init database: couldn't enable foreign keys: %v\n", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000;"); err != nil {
		log.Fatalf("failed to init database: couldn't set busy timeout: %v\n", err)
	}

	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// InitSchema creates the tables and lookup indexes. The secret continuation
// token and client nonce are deliberately left out of every index so their
// comparison never runs through index machinery.
func (s *SQLiteStore) InitSchema() error {
	if err := initTable(s.db, "grants", `
		CREATE TABLE IF NOT EXISTS grants (
			id              TEXT PRIMARY KEY,
			state           TEXT NOT NULL,
			interact_id     TEXT NOT NULL,
			interact_nonce  TEXT NOT NULL,
			interact_ref    TEXT NOT NULL,
			continue_id     TEXT NOT NULL,
			continue_token  TEXT NOT NULL,
			client_key_id   TEXT NOT NULL,
			client_nonce    TEXT NOT NULL,
			finish_uri      TEXT NOT NULL,
			created_at      INTEGER NOT NULL,
			updated_at      INTEGER NOT NULL
		);
		CREATE UNIQUE INDEX IF NOT EXISTS grants_interaction
			ON grants (interact_id, interact_nonce);
		CREATE UNIQUE INDEX IF NOT EXISTS grants_continue
			ON grants (continue_id);`,
	); err != nil {
		return err
	}

	if err := initTable(s.db, "access", `
		CREATE TABLE IF NOT EXISTS access (
			id          INTEGER PRIMARY KEY,
			grant_id    TEXT NOT NULL,
			position    INTEGER NOT NULL,
			type        TEXT NOT NULL,
			actions     TEXT NOT NULL,
			locations   TEXT,
			identifier  TEXT,
			FOREIGN KEY (grant_id) REFERENCES grants (id) ON DELETE CASCADE
		);`,
	); err != nil {
		return err
	}

	if err := initTable(s.db, "access_tokens", `
		CREATE TABLE IF NOT EXISTS access_tokens (
			value          TEXT NOT NULL,
			management_id  TEXT NOT NULL UNIQUE,
			grant_id       TEXT NOT NULL UNIQUE,
			expires_in     INTEGER NOT NULL,
			created_at     INTEGER NOT NULL,
			FOREIGN KEY (grant_id) REFERENCES grants (id)
		);`,
	); err != nil {
		return err
	}

	if err := initTable(s.db, "interaction_sessions", `
		CREATE TABLE IF NOT EXISTS interaction_sessions (
			id              TEXT PRIMARY KEY,
			interact_nonce  TEXT NOT NULL,
			expires_at      INTEGER NOT NULL
		);`,
	); err != nil {
		return err
	}

	return nil
}

func initTable(
	db *sql.DB,
	name string,
	sql string,
) error {
	if _, err := db.Exec(sql); err != nil {
		return fmt.Errorf("failed to init '%s' table schema: %v", name, err)
	}
	return nil
}

func resultsEmpty(result sql.Result) bool {
	count, err := result.RowsAffected()
	if err != nil {
		return false
	}
	return count == 0
}
