// Package inmemdb provides map-backed repositories for tests.
package inmemdb

import (
	"sync"

	"github.com/donhautea/SSS-CMS/core/memo"
	"github.com/donhautea/SSS-CMS/core/user"
)

type DB struct {
	mutex sync.RWMutex

	users       map[int]*user.User
	units       map[int]*user.Unit
	resetTokens map[int]*user.ResetToken

	memos       map[int]*memo.Memo
	categories  map[int]*memo.Category
	statuses    map[int]*memo.Status
	settings    map[string]string
	prefixes    map[string]string
	audit       []memo.AuditEntry
	attachments map[int]*memo.Attachment

	userPK, unitPK, tokenPK, memoPK, catPK, statPK, attPK, auditPK int
}

func Open() *DB {
	db := new(DB)
	db.reset()
	return db
}

// Reset drops all data, giving each test a clean slate.
func (db *DB) Reset() {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	db.reset()
}

func (db *DB) reset() {
	db.users = make(map[int]*user.User)
	db.units = make(map[int]*user.Unit)
	db.resetTokens = make(map[int]*user.ResetToken)
	db.memos = make(map[int]*memo.Memo)
	db.categories = make(map[int]*memo.Category)
	db.statuses = make(map[int]*memo.Status)
	db.settings = map[string]string{memo.SettingControlPrefix: memo.DefaultControlPrefix}
	db.prefixes = make(map[string]string)
	db.audit = nil
	db.attachments = make(map[int]*memo.Attachment)
	db.userPK, db.unitPK, db.tokenPK, db.memoPK = 0, 0, 0, 0
	db.catPK, db.statPK, db.attPK, db.auditPK = 0, 0, 0, 0
}
