package database

import (
	"database/sql"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Open connects to the SQLite file at path and brings its schema up to date.
// Foreign keys are enabled per connection through the DSN, since the pool
// may open more than one.
func Open(path string) (db *sql.DB, err error) {
	db, err = sql.Open("sqlite3", dsn(path))
	if err != nil {
		return
	}

	err = db.Ping()
	if err != nil {
		db.Close()
		return
	}

	// db tuning options
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetConnMaxLifetime(2 * time.Hour)

	err = migrateDB(db)
	if err != nil {
		db.Close()
		return
	}

	return
}

func dsn(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_foreign_keys=on&_busy_timeout=5000"
}
