// Package store хранит заметки, аудио-сегменты и транскрипты в SQLite
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

// DB обёртка над единственным соединением SQLite. Соединение
// сериализуется мьютексом: в него пишут командные потоки приложения и
// планировщик живой транскрипции.
type DB struct {
	mu   sync.Mutex
	conn *sql.DB

	// Кэш prepared statement для батч-вставки транскриптов
	insertTranscriptStmt *sql.Stmt
}

// Open открывает (или создаёт) базу и прогоняет миграции
func Open(dbPath string) (*DB, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	conn, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	conn.SetMaxOpenConns(1)

	db := &DB{conn: conn}
	if err := db.runMigrations(); err != nil {
		conn.Close()
		return nil, err
	}

	return db, nil
}

// Close закрывает соединение
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.insertTranscriptStmt != nil {
		db.insertTranscriptStmt.Close()
		db.insertTranscriptStmt = nil
	}
	return db.conn.Close()
}

const schemaVersion = 3

func (db *DB) runMigrations() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, err := db.conn.Exec(
		`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY)`,
	); err != nil {
		return fmt.Errorf("failed to create schema_version: %w", err)
	}

	var version int
	err := db.conn.QueryRow(`SELECT version FROM schema_version LIMIT 1`).Scan(&version)
	if err == sql.ErrNoRows {
		version = 0
	} else if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	migrations := []func(*sql.DB) error{migrateV1, migrateV2, migrateV3}
	for i, migrate := range migrations {
		if version >= i+1 {
			continue
		}
		if err := migrate(db.conn); err != nil {
			return fmt.Errorf("migration v%d failed: %w", i+1, err)
		}
		if err := setSchemaVersion(db.conn, i+1); err != nil {
			return err
		}
	}

	return nil
}

func setSchemaVersion(conn *sql.DB, version int) error {
	if _, err := conn.Exec(`DELETE FROM schema_version`); err != nil {
		return err
	}
	_, err := conn.Exec(`INSERT INTO schema_version (version) VALUES (?)`, version)
	return err
}

func migrateV1(conn *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS notes (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			started_at TEXT NOT NULL,
			ended_at TEXT,
			audio_path TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS transcript_segments (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			note_id TEXT NOT NULL,
			start_time REAL NOT NULL,
			end_time REAL NOT NULL,
			text TEXT NOT NULL,
			speaker TEXT,
			created_at TEXT NOT NULL,
			FOREIGN KEY (note_id) REFERENCES notes(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_transcript_note ON transcript_segments(note_id)`,
	}
	for _, s := range stmts {
		if _, err := conn.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func migrateV2(conn *sql.DB) error {
	stmts := []string{
		`ALTER TABLE notes ADD COLUMN description TEXT`,
		`ALTER TABLE notes ADD COLUMN participants TEXT`,
	}
	for _, s := range stmts {
		if _, err := conn.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func migrateV3(conn *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS audio_segments (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			note_id TEXT NOT NULL,
			segment_index INTEGER NOT NULL,
			mic_path TEXT NOT NULL,
			system_path TEXT,
			start_offset_ms INTEGER NOT NULL,
			duration_ms INTEGER,
			created_at TEXT NOT NULL,
			FOREIGN KEY (note_id) REFERENCES notes(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_segment_note ON audio_segments(note_id)`,
	}
	for _, s := range stmts {
		if _, err := conn.Exec(s); err != nil {
			return err
		}
	}
	return nil
}
