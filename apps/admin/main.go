package main

import (
	"log"
	"os"

	"github.com/donhautea/SSS-CMS/core"
	"github.com/donhautea/SSS-CMS/storage/database"
	sqlxrepos "github.com/donhautea/SSS-CMS/storage/database/sqlx"
)

var logger *log.Logger

func main() {
	defer os.Exit(0)

	logger = log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)

	conf := core.NewConfig()

	// set up user DB; the memo DB is only opened by `migrate`
	db, err := database.OpenUserDB(conf)
	errAndDie(err)
	defer db.Close()
	errAndDie(database.Ping(db))
	errAndDie(database.MigrateUserDB(db))

	// start CLI
	cli := commandLine{
		conf:    conf,
		usrRepo: sqlxrepos.NewUserRepository(db),
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Printf("\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err)
	}
}
