package main

import (
	"context"
	"database/sql"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"

	echoapi "github.com/donhautea/SSS-CMS/apps/api/echo"
	"github.com/donhautea/SSS-CMS/core"
	"github.com/donhautea/SSS-CMS/core/memo"
	"github.com/donhautea/SSS-CMS/core/user"
	emailsvc "github.com/donhautea/SSS-CMS/services/email"
	logsvc "github.com/donhautea/SSS-CMS/services/logger"
	"github.com/donhautea/SSS-CMS/storage/database"
	sqlxrepos "github.com/donhautea/SSS-CMS/storage/database/sqlx"
	"github.com/donhautea/SSS-CMS/storage/filestore"
)

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	// set up loggers
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)

	dbLogger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	dbLogger.Enable(!conf.Debug)

	// set up the two DBs: memoranda records & user credentials
	userDB, err := setUpUserDB(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up user database: %v", err), err)
	}
	defer func() {
		if err = userDB.Close(); err != nil {
			dbLogger.Fatal("Failed to close user db", err)
		}
	}()

	memoDB, err := setUpMemoDB(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up memo database: %v", err), err)
	}
	defer func() {
		if err = memoDB.Close(); err != nil {
			dbLogger.Fatal("Failed to close memo db", err)
		}
	}()

	// set up services
	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}
	usrSvc := user.NewService(sqlxrepos.NewUserRepository(userDB), mailSvc, conf)

	files, err := filestore.New(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up file store: %v", err), err)
	}
	memoSvc := memo.NewService(sqlxrepos.NewMemoRepository(memoDB), files, logger)

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	core.ParseEmailTemplates(conf, logger)

	user.LoadCommonPasswords(conf, logger)

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	// Expose important info under /debug/vars.
	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)

	go func() {
		if err = http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(
		echoapi.ServerDeps{
			Conf:    conf,
			Logger:  logger,
			UserSvc: usrSvc,
			MemoSvc: memoSvc,
		},
	)

	go func() {
		server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err = <-server.Errors():
		logger.Fatal(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		// asking listener to shutdown and shed load
		if err = server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Fatal(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}

func setUpUserDB(conf *core.Config) (*sql.DB, error) {
	db, err := database.OpenUserDB(conf)
	if err != nil {
		return nil, err
	}
	if err = database.Ping(db); err != nil {
		return nil, err
	}
	if err = database.MigrateUserDB(db); err != nil {
		return nil, err
	}
	return db, nil
}

func setUpMemoDB(conf *core.Config) (*sql.DB, error) {
	db, err := database.OpenMemoDB(conf)
	if err != nil {
		return nil, err
	}
	if err = database.Ping(db); err != nil {
		return nil, err
	}
	if err = database.MigrateMemoDB(db); err != nil {
		return nil, err
	}
	return db, nil
}
