package memo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/donhautea/SSS-CMS/core"
)

var (
	// errors
	ErrNotFound        = errors.New("memo not found")
	ErrControlNoExists = errors.New("a memo with this control number already exists")
	ErrCategoryExists  = errors.New("a category with this name already exists")
	ErrStatusExists    = errors.New("a status with this name already exists")
	ErrStatusNotFound  = errors.New("status not found")
	ErrNoAttachments   = errors.New("memo has no attachments")

	nowFunc = time.Now // mockable
)

// controlMaxRetries bounds allocation retries when an explicitly supplied
// control number races an auto-generated one on the UNIQUE constraint.
const controlMaxRetries = 3

type (
	Repository interface {
		// CreateMemo inserts m with its control number as given; it returns
		// ErrControlNoExists on a duplicate.
		CreateMemo(ctx context.Context, m Memo) (Memo, error)
		// CreateMemoWithControl scans the highest existing sequence for
		// prefix+yy and inserts m with the next number, atomically in one
		// immediate transaction.
		CreateMemoWithControl(ctx context.Context, m Memo, prefix, yy string) (Memo, error)
		// MaxControlSeq returns the highest allocated sequence for
		// prefix+yy, 0 when none.
		MaxControlSeq(ctx context.Context, prefix, yy string) (int, error)
		GetMemo(ctx context.Context, id int, scope Scope) (Memo, error)
		// QueryMemos applies AND on available filter fields within scope,
		// ordered by date_log desc, control_no desc unless overridden.
		QueryMemos(ctx context.Context, scope Scope, filter *QueryFilter, ordering ...core.DBOrdering) ([]Memo, error)
		// UpdateMemo persists all content fields of m; ForUnits == nil
		// leaves the target units unchanged.
		UpdateMemo(ctx context.Context, m Memo) (Memo, error)
		// WipeMemo clears dates, parties, subject and notes but keeps the
		// row and its control number.
		WipeMemo(ctx context.Context, id int, ts time.Time) error
		DeleteMemos(ctx context.Context, ids ...int) error
		DashboardStats(ctx context.Context, scope Scope, filter *QueryFilter) (DashboardStats, error)

		QueryCategories(ctx context.Context, activeOnly bool) ([]Category, error)
		// CreateCategory returns ErrCategoryExists on a case-insensitive
		// name clash.
		CreateCategory(ctx context.Context, name string) (Category, error)
		SetCategoryActive(ctx context.Context, id int, active bool) error
		DeleteCategory(ctx context.Context, id int) error

		QueryStatuses(ctx context.Context, activeOnly bool) ([]Status, error)
		CreateStatus(ctx context.Context, name string) (Status, error)
		SetStatusActive(ctx context.Context, id int, active bool) error
		// DeleteStatus removes the row; memos keep the stale name.
		DeleteStatus(ctx context.Context, id int) error
		// RenameStatus renames and propagates to referencing memos in one
		// transaction; ErrStatusExists on a name clash.
		RenameStatus(ctx context.Context, id int, newName string) error

		GetSetting(ctx context.Context, key string) (string, error)
		SetSetting(ctx context.Context, key, value string) error
		QuerySettings(ctx context.Context) ([]Setting, error)

		GetUnitPrefix(ctx context.Context, unitName string) (string, error)
		SetUnitPrefix(ctx context.Context, unitName, prefix string) error
		QueryUnitPrefixes(ctx context.Context) ([]ControlPrefix, error)

		CreateAuditEntry(ctx context.Context, e AuditEntry) error
		// QueryAuditTrail returns the latest limit entries, newest first.
		QueryAuditTrail(ctx context.Context, limit int) ([]AuditEntry, error)

		CreateAttachment(ctx context.Context, a Attachment) (Attachment, error)
		QueryAttachments(ctx context.Context, memoID int) ([]Attachment, error)
		GetAttachment(ctx context.Context, id int) (Attachment, error)
		DeleteAttachment(ctx context.Context, id int) error
	}

	// FileStore keeps attachment contents on disk, one directory per memo.
	FileStore interface {
		Save(memoID int, filename string, r io.Reader) (path string, err error)
		Open(path string) (io.ReadCloser, error)
		Remove(path string) error
		RemoveAll(memoID int) error
		// Zip streams a deflated archive of the attachments to w, flat,
		// using their original filenames.
		Zip(w io.Writer, atts []Attachment) error
	}

	Service interface {
		Create(ctx context.Context, nm NewMemo) (Memo, error)
		NextControlNo(ctx context.Context, unitName string) (string, error)
		GetByID(ctx context.Context, scope Scope, id int) (Memo, error)
		Filter(ctx context.Context, scope Scope, filter QueryFilter, ordering ...core.DBOrdering) ([]Memo, error)
		Update(ctx context.Context, scope Scope, id int, um UpdateMemo) (Memo, error)
		Delete(ctx context.Context, ids ...int) error
		Wipe(ctx context.Context, id int) error
		Dashboard(ctx context.Context, scope Scope, filter QueryFilter) (DashboardStats, error)

		Categories(ctx context.Context, activeOnly bool) ([]Category, error)
		AddCategory(ctx context.Context, name string) (Category, error)
		SetCategoryActive(ctx context.Context, id int, active bool) error
		DeleteCategory(ctx context.Context, id int) error

		Statuses(ctx context.Context, activeOnly bool) ([]Status, error)
		AddStatus(ctx context.Context, name string) (Status, error)
		SetStatusActive(ctx context.Context, id int, active bool) error
		DeleteStatus(ctx context.Context, id int) error
		RenameStatus(ctx context.Context, id int, newName string) error

		Setting(ctx context.Context, key, deflt string) string
		SetSetting(ctx context.Context, key, value string) error
		Settings(ctx context.Context) ([]Setting, error)

		UnitPrefix(ctx context.Context, unitName string) string
		SetUnitPrefix(ctx context.Context, unitName, prefix string) error
		UnitPrefixes(ctx context.Context) ([]ControlPrefix, error)

		// LogAction appends to the audit trail; failures are logged and
		// swallowed so they never fail the operation being audited.
		LogAction(ctx context.Context, userID int, action string, memoID int, details string)
		AuditTrail(ctx context.Context, limit int) ([]AuditEntry, error)

		AddAttachment(ctx context.Context, scope Scope, memoID int, filename string, r io.Reader) (Attachment, error)
		Attachments(ctx context.Context, memoID int) ([]Attachment, error)
		OpenAttachment(ctx context.Context, id int) (Attachment, io.ReadCloser, error)
		DeleteAttachment(ctx context.Context, id int) error
		ZipAttachments(ctx context.Context, memoID int, w io.Writer) error

		BuildImportTemplate(w io.Writer) error
		ValidateImport(ctx context.Context, r io.Reader, opts ImportOptions) ([]ImportIssue, error)
		Import(ctx context.Context, r io.Reader, opts ImportOptions) (ImportResult, error)
		ExportCSV(ctx context.Context, scope Scope, filter QueryFilter, w io.Writer) error
		ExportDashboard(ctx context.Context, scope Scope, filter QueryFilter, w io.Writer) error
	}

	service struct {
		repo   Repository
		files  FileStore
		logger core.Logger
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, files FileStore, logger core.Logger) *service {
	return &service{
		repo:   repo,
		files:  files,
		logger: logger,
	}
}

// Create logs a new memorandum. A blank control number is allocated from
// the first target unit's prefix atomically; an explicit one is taken as
// is and duplicates surface as a field error.
func (svc *service) Create(ctx context.Context, nm NewMemo) (Memo, error) {
	now := nowFunc().UTC()
	m := Memo{
		ControlNo: nm.ControlNo,
		DateLog:   nm.DateLog,
		DateDoc:   nm.DateDoc,
		From:      nm.From,
		Thru:      nm.Thru,
		ForUnits:  nm.ForUnits,
		Subject:   nm.Subject,
		Category:  nm.Category,
		Status:    nm.Status,
		Notes:     nm.Notes,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if m.ControlNo != "" {
		m, err := svc.repo.CreateMemo(ctx, m)
		if err == ErrControlNoExists {
			return Memo{}, core.NewValidationError(err, core.FieldError{Field: "control_no", Error: err.Error()})
		}
		return m, err
	}

	prefix := svc.UnitPrefix(ctx, m.ForUnits[0])
	yy := ControlYear(now)
	var err error
	for i := 0; i < controlMaxRetries; i++ {
		var created Memo
		if created, err = svc.repo.CreateMemoWithControl(ctx, m, prefix, yy); err != ErrControlNoExists {
			return created, err
		}
	}
	return Memo{}, err
}

// NextControlNo previews the next number for a unit's prefix without
// reserving it.
func (svc *service) NextControlNo(ctx context.Context, unitName string) (string, error) {
	prefix := svc.UnitPrefix(ctx, unitName)
	yy := ControlYear(nowFunc().UTC())
	seq, err := svc.repo.MaxControlSeq(ctx, prefix, yy)
	if err != nil {
		return "", err
	}
	return FormatControlNo(prefix, yy, seq+1), nil
}

func (svc *service) GetByID(ctx context.Context, scope Scope, id int) (Memo, error) {
	return svc.repo.GetMemo(ctx, id, scope)
}

func (svc *service) Filter(ctx context.Context, scope Scope, filter QueryFilter, ordering ...core.DBOrdering) ([]Memo, error) {
	filter.Clean()
	if filter.IsEmpty() {
		return svc.repo.QueryMemos(ctx, scope, nil, ordering...)
	}
	return svc.repo.QueryMemos(ctx, scope, &filter, ordering...)
}

func (svc *service) Update(ctx context.Context, scope Scope, id int, um UpdateMemo) (Memo, error) {
	m, err := svc.repo.GetMemo(ctx, id, scope)
	if err != nil {
		return Memo{}, err
	}

	if um.ControlNo != "" {
		m.ControlNo = um.ControlNo
	}
	if um.DateLog.Valid {
		m.DateLog = um.DateLog
	}
	if um.DateDoc.Valid {
		m.DateDoc = um.DateDoc
	}
	if um.From != "" {
		m.From = um.From
	}
	m.Thru = um.Thru
	if um.Subject != "" {
		m.Subject = um.Subject
	}
	m.Category = um.Category
	m.Status = um.Status
	m.Notes = um.Notes
	m.ForUnits = um.ForUnits // nil leaves units unchanged in the repo
	m.UpdatedAt = nowFunc().UTC()

	updated, err := svc.repo.UpdateMemo(ctx, m)
	if err == ErrControlNoExists {
		return Memo{}, core.NewValidationError(err, core.FieldError{Field: "control_no", Error: err.Error()})
	}
	return updated, err
}

// Delete removes records and their attachment files.
func (svc *service) Delete(ctx context.Context, ids ...int) error {
	if err := svc.repo.DeleteMemos(ctx, ids...); err != nil {
		return err
	}
	for _, id := range ids {
		if err := svc.files.RemoveAll(id); err != nil {
			svc.logger.Warn(fmt.Sprintf("removing files of memo %d: %v", id, err))
		}
	}
	return nil
}

// Wipe clears a record's contents but keeps the row and its control
// number for traceability.
func (svc *service) Wipe(ctx context.Context, id int) error {
	return svc.repo.WipeMemo(ctx, id, nowFunc().UTC())
}

func (svc *service) Dashboard(ctx context.Context, scope Scope, filter QueryFilter) (DashboardStats, error) {
	filter.Clean()
	if filter.IsEmpty() {
		return svc.repo.DashboardStats(ctx, scope, nil)
	}
	return svc.repo.DashboardStats(ctx, scope, &filter)
}

// Taxonomy

func (svc *service) Categories(ctx context.Context, activeOnly bool) ([]Category, error) {
	return svc.repo.QueryCategories(ctx, activeOnly)
}

func (svc *service) AddCategory(ctx context.Context, name string) (Category, error) {
	name = core.CleanString(name)
	cat, err := svc.repo.CreateCategory(ctx, name)
	if err == ErrCategoryExists {
		return Category{}, core.NewValidationError(err, core.FieldError{Field: "name", Error: err.Error()})
	}
	return cat, err
}

func (svc *service) SetCategoryActive(ctx context.Context, id int, active bool) error {
	return svc.repo.SetCategoryActive(ctx, id, active)
}

func (svc *service) DeleteCategory(ctx context.Context, id int) error {
	return svc.repo.DeleteCategory(ctx, id)
}

func (svc *service) Statuses(ctx context.Context, activeOnly bool) ([]Status, error) {
	return svc.repo.QueryStatuses(ctx, activeOnly)
}

func (svc *service) AddStatus(ctx context.Context, name string) (Status, error) {
	name = core.CleanString(name)
	stat, err := svc.repo.CreateStatus(ctx, name)
	if err == ErrStatusExists {
		return Status{}, core.NewValidationError(err, core.FieldError{Field: "name", Error: err.Error()})
	}
	return stat, err
}

func (svc *service) SetStatusActive(ctx context.Context, id int, active bool) error {
	return svc.repo.SetStatusActive(ctx, id, active)
}

func (svc *service) DeleteStatus(ctx context.Context, id int) error {
	return svc.repo.DeleteStatus(ctx, id)
}

func (svc *service) RenameStatus(ctx context.Context, id int, newName string) error {
	newName = core.CleanString(newName)
	if newName == "" {
		return ErrStatusNotFound
	}
	err := svc.repo.RenameStatus(ctx, id, newName)
	if err == ErrStatusExists {
		return core.NewValidationError(err, core.FieldError{Field: "name", Error: err.Error()})
	}
	return err
}

// Settings

func (svc *service) Setting(ctx context.Context, key, deflt string) string {
	val, err := svc.repo.GetSetting(ctx, key)
	if err != nil {
		return deflt
	}
	return val
}

func (svc *service) SetSetting(ctx context.Context, key, value string) error {
	return svc.repo.SetSetting(ctx, key, core.CleanString(value))
}

func (svc *service) Settings(ctx context.Context) ([]Setting, error) {
	return svc.repo.QuerySettings(ctx)
}

// Control prefixes

// UnitPrefix returns the unit's configured prefix, falling back to the
// control_prefix setting and finally to DefaultControlPrefix.
func (svc *service) UnitPrefix(ctx context.Context, unitName string) string {
	if unitName != "" {
		if prefix, err := svc.repo.GetUnitPrefix(ctx, unitName); err == nil {
			return prefix
		}
	}
	return svc.Setting(ctx, SettingControlPrefix, DefaultControlPrefix)
}

func (svc *service) SetUnitPrefix(ctx context.Context, unitName, prefix string) error {
	return svc.repo.SetUnitPrefix(ctx, core.CleanString(unitName), core.CleanString(prefix))
}

func (svc *service) UnitPrefixes(ctx context.Context) ([]ControlPrefix, error) {
	return svc.repo.QueryUnitPrefixes(ctx)
}

// Audit

func (svc *service) LogAction(ctx context.Context, userID int, action string, memoID int, details string) {
	e := AuditEntry{
		TS:      nowFunc().UTC(),
		Action:  action,
		Details: details,
	}
	if userID > 0 {
		e.UserID.SetValid(userID)
	}
	if memoID > 0 {
		e.MemoID.SetValid(memoID)
	}
	if err := svc.repo.CreateAuditEntry(ctx, e); err != nil {
		svc.logger.Warn(fmt.Sprintf("audit %q: %v", action, err))
	}
}

func (svc *service) AuditTrail(ctx context.Context, limit int) ([]AuditEntry, error) {
	return svc.repo.QueryAuditTrail(ctx, limit)
}

// Attachments

func (svc *service) AddAttachment(ctx context.Context, scope Scope, memoID int, filename string, r io.Reader) (Attachment, error) {
	if _, err := svc.repo.GetMemo(ctx, memoID, scope); err != nil {
		return Attachment{}, err
	}
	path, err := svc.files.Save(memoID, filename, r)
	if err != nil {
		return Attachment{}, err
	}
	return svc.repo.CreateAttachment(ctx, Attachment{
		MemoID:     memoID,
		Filename:   filename,
		Path:       path,
		UploadedAt: nowFunc().UTC(),
	})
}

func (svc *service) Attachments(ctx context.Context, memoID int) ([]Attachment, error) {
	return svc.repo.QueryAttachments(ctx, memoID)
}

func (svc *service) OpenAttachment(ctx context.Context, id int) (Attachment, io.ReadCloser, error) {
	att, err := svc.repo.GetAttachment(ctx, id)
	if err != nil {
		return Attachment{}, nil, err
	}
	rc, err := svc.files.Open(att.Path)
	if err != nil {
		return Attachment{}, nil, err
	}
	return att, rc, nil
}

func (svc *service) DeleteAttachment(ctx context.Context, id int) error {
	att, err := svc.repo.GetAttachment(ctx, id)
	if err != nil {
		return err
	}
	if err = svc.files.Remove(att.Path); err != nil {
		svc.logger.Warn(fmt.Sprintf("removing attachment file %q: %v", att.Path, err))
	}
	return svc.repo.DeleteAttachment(ctx, id)
}

func (svc *service) ZipAttachments(ctx context.Context, memoID int, w io.Writer) error {
	atts, err := svc.repo.QueryAttachments(ctx, memoID)
	if err != nil {
		return err
	}
	if len(atts) == 0 {
		return ErrNoAttachments
	}
	return svc.files.Zip(w, atts)
}
