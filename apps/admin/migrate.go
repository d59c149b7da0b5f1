package main

import (
	"database/sql"

	"github.com/donhautea/SSS-CMS/storage/database"
)

// mockable
var (
	migrateUserFunc = database.MigrateUserDB
	migrateMemoFunc = database.MigrateMemoDB
)

// migrate applies pending migrations on both stores. The user DB is
// already migrated on start; this also covers the memo DB.
func (cli *commandLine) migrate() error {
	memoDB, err := database.OpenMemoDB(cli.conf)
	if err != nil {
		return err
	}
	defer memoDB.Close()
	if err = database.Ping(memoDB); err != nil {
		return err
	}
	if err = migrateMemoFunc(memoDB); err != nil {
		return err
	}

	var userDB *sql.DB
	if userDB, err = database.OpenUserDB(cli.conf); err != nil {
		return err
	}
	defer userDB.Close()
	if err = database.Ping(userDB); err != nil {
		return err
	}
	return migrateUserFunc(userDB)
}
