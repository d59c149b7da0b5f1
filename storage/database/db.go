package database

import (
	"database/sql"
	"embed"
	"net/url"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"

	"github.com/donhautea/SSS-CMS/core"
)

//go:embed migrations
var migrationsFS embed.FS

func open(path string) (*sql.DB, error) {
	q := make(url.Values)
	q.Set("_foreign_keys", "on")
	q.Set("_journal_mode", "WAL")
	q.Set("_busy_timeout", "5000")
	// write transactions take the lock up front so control-number
	// allocation scans can't interleave
	q.Set("_txlock", "immediate")
	return sql.Open("sqlite3", "file:"+path+"?"+q.Encode())
}

// OpenMemoDB opens the memoranda store (memos, taxonomy, settings,
// attachments, audit trail).
func OpenMemoDB(conf *core.Config) (*sql.DB, error) {
	return open(conf.Database.MemoPath)
}

// OpenUserDB opens the accounts store (users, units, reset tokens).
func OpenUserDB(conf *core.Config) (*sql.DB, error) {
	return open(conf.Database.UserPath)
}

// Ping waits for the database to be ready. Waits 100ms longer between each attempt.
func Ping(db *sql.DB) error {
	var err error
	maxAttempts := 30
	for attempts := 1; attempts <= maxAttempts; attempts++ {
		err = db.Ping()
		if err == nil {
			break
		}
		time.Sleep(time.Duration(attempts) * 100 * time.Millisecond)
	}

	if err != nil {
		return errors.Wrap(err, "DB ping timeout")
	}
	return nil
}

func migrate(db *sql.DB, dir string) error {
	goose.SetBaseFS(migrationsFS)
	defer goose.SetBaseFS(nil)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return errors.Wrap(err, "setting goose dialect")
	}
	if err := goose.Up(db, dir); err != nil {
		return errors.Wrapf(err, "migrating %s", dir)
	}
	return nil
}

func MigrateMemoDB(db *sql.DB) error { return migrate(db, "migrations/memo") }
func MigrateUserDB(db *sql.DB) error { return migrate(db, "migrations/user") }
