package tests

import (
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	echoapi "github.com/donhautea/SSS-CMS/apps/api/echo"
	"github.com/donhautea/SSS-CMS/core"
	"github.com/donhautea/SSS-CMS/core/memo"
	"github.com/donhautea/SSS-CMS/core/user"
	emailsvc "github.com/donhautea/SSS-CMS/services/email"
	logsvc "github.com/donhautea/SSS-CMS/services/logger"
	inmemdb "github.com/donhautea/SSS-CMS/storage/database/inmem"
	"github.com/donhautea/SSS-CMS/storage/filestore"
)

var (
	conf *core.Config
	db   *inmemdb.DB
	app  echoapi.Server

	usrRepo  user.Repository
	memoRepo memo.Repository
	usrSvc   user.Service
	memoSvc  memo.Service

	errMissingToken = httpErr{Error: "missing or malformed jwt"}
	errForbidden    = httpErr{Error: "permission denied"}
	errNotFound     = httpErr{Error: "not found"}
)

func TestMain(m *testing.M) {
	filesDir, err := os.MkdirTemp("", "cms-api-test-*")
	if err != nil {
		fmt.Printf("os.MkdirTemp(): %v", err)
		os.Exit(1)
	}
	conf = &core.Config{
		TestMode:             true,
		Env:                  "TEST",
		AppName:              "SSS-CMS",
		SecretKey:            []byte("secret"),
		WorkDir:              core.Getwd(),
		PasswordResetTimeout: 30 * time.Minute,
	}
	conf.Server.JWTExpirationDelta = time.Hour
	conf.Server.JWTRefreshExpirationDelta = 2 * time.Hour
	conf.Database.FilesDir = filesDir

	logger := logsvc.NewRollbarLogger(log.New(os.Stdout, "TEST : ", log.LstdFlags), conf)
	logger.Enable(false)

	core.ParseEmailTemplates(conf, logger)

	// set up DB & repos
	db = inmemdb.Open()
	usrRepo = inmemdb.NewUserRepository(db)
	memoRepo = inmemdb.NewMemoRepository(db)

	// set up services
	mailSvc := emailsvc.NewConsoleServiceMock(conf)
	usrSvc = user.NewServiceMock(usrRepo, mailSvc, conf)

	files, err := filestore.New(conf)
	if err != nil {
		fmt.Printf("filestore.New(): %v", err)
		os.Exit(1)
	}
	memoSvc = memo.NewService(memoRepo, files, logger)

	// set up server
	app = echoapi.NewServer(
		echoapi.ServerDeps{
			Conf:           conf,
			Logger:         logger,
			UserSvc:        usrSvc,
			MemoSvc:        memoSvc,
			DisableReqLogs: true,
		},
	)

	// run tests
	code := m.Run()

	// clean up
	_ = os.RemoveAll(filesDir)
	os.Exit(code)
}

func resetDB(t *testing.T) {
	t.Helper()
	db.Reset()
	emailsvc.ClearSentMessages()
}
