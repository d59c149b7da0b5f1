package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/donhautea/SSS-CMS/core"
	"github.com/donhautea/SSS-CMS/core/memo"
)

type memoRepository struct {
	db *sqlx.DB
}

var _ memo.Repository = (*memoRepository)(nil) // interface compliance check

func NewMemoRepository(db *sql.DB) *memoRepository {
	return &memoRepository{db: sqlx.NewDb(db, "sqlite3")}
}

type dbMemo struct {
	ID        int         `db:"id"`
	ControlNo null.String `db:"control_no"`
	DateLog   null.String `db:"date_log"`
	DateDoc   null.String `db:"date_doc"`
	From      string      `db:"memo_from"`
	Thru      string      `db:"thru"`
	For       string      `db:"memo_for"`
	Subject   string      `db:"subject"`
	Category  string      `db:"category"`
	Status    string      `db:"status"`
	Notes     string      `db:"notes"`
	CreatedAt time.Time   `db:"created_at"`
	UpdatedAt time.Time   `db:"updated_at"`
}

func (m dbMemo) unpack() memo.Memo {
	return memo.Memo{
		ID:        m.ID,
		ControlNo: m.ControlNo.String,
		DateLog:   m.DateLog,
		DateDoc:   m.DateDoc,
		From:      m.From,
		Thru:      m.Thru,
		ForUnits:  core.SplitList(m.For),
		Subject:   m.Subject,
		Category:  m.Category,
		Status:    m.Status,
		Notes:     m.Notes,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

func unpackMemos(rows []dbMemo) []memo.Memo {
	memos := make([]memo.Memo, 0, len(rows))
	for _, m := range rows {
		memos = append(memos, m.unpack())
	}
	return memos
}

// scopeConds builds the row-level visibility condition. Unit matching is
// delimiter-bounded on the normalized comma-joined memo_for list, so a
// unit named "IS" never matches a memo for "FISCAL".
func scopeConds(scope memo.Scope) (conds []string, args []interface{}) {
	if scope.All {
		return nil, nil
	}
	if len(scope.Units) == 0 {
		return []string{`1 = 0`}, nil
	}
	unitConds := make([]string, 0, len(scope.Units))
	for _, unit := range scope.Units {
		unitConds = append(unitConds, `(',' || REPLACE(memo_for, ', ', ',') || ',') LIKE ('%,' || ? || ',%')`)
		args = append(args, unit)
	}
	return []string{`(` + strings.Join(unitConds, ` OR `) + `)`}, args
}

func memoConds(scope memo.Scope, filter *memo.QueryFilter) (conds []string, args []interface{}) {
	conds, args = scopeConds(scope)

	if filter != nil {
		if filter.DateLogFrom != "" {
			conds = append(conds, `date_log >= ?`)
			args = append(args, filter.DateLogFrom)
		}
		if filter.DateLogTo != "" {
			conds = append(conds, `date_log <= ?`)
			args = append(args, filter.DateLogTo)
		}
		if filter.Search != "" {
			conds = append(conds, `(subject LIKE ? OR memo_from LIKE ? OR memo_for LIKE ? OR notes LIKE ?)`)
			val := "%" + filter.Search + "%"
			args = append(args, val, val, val, val)
		}
		if len(filter.Categories) > 0 {
			marks := strings.TrimSuffix(strings.Repeat("?,", len(filter.Categories)), ",")
			conds = append(conds, `category IN (`+marks+`)`)
			for _, c := range filter.Categories {
				args = append(args, c)
			}
		}
		if len(filter.Statuses) > 0 {
			marks := strings.TrimSuffix(strings.Repeat("?,", len(filter.Statuses)), ",")
			conds = append(conds, `status IN (`+marks+`)`)
			for _, s := range filter.Statuses {
				args = append(args, s)
			}
		}
	}
	return conds, args
}

func whereClause(conds []string) string {
	if len(conds) == 0 {
		return ""
	}
	return ` WHERE ` + strings.Join(conds, ` AND `)
}

const insertMemoQuery = `
	INSERT INTO memos (control_no, date_log, date_doc, memo_from, thru, memo_for, subject, category, status, notes, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func insertMemoArgs(m memo.Memo) []interface{} {
	return []interface{}{
		null.NewString(m.ControlNo, m.ControlNo != ""), m.DateLog, m.DateDoc, m.From, m.Thru,
		core.JoinList(m.ForUnits), m.Subject, m.Category, m.Status, m.Notes, m.CreatedAt, m.UpdatedAt,
	}
}

func (repo memoRepository) CreateMemo(ctx context.Context, m memo.Memo) (memo.Memo, error) {
	res, err := repo.db.ExecContext(ctx, insertMemoQuery, insertMemoArgs(m)...)
	if err != nil {
		return memo.Memo{}, trapUniqueErr(err, "memos.control_no", memo.ErrControlNoExists, "inserting memo")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return memo.Memo{}, errors.Wrap(err, "inserting memo")
	}
	m.ID = int(id)
	return m, nil
}

func (repo memoRepository) CreateMemoWithControl(ctx context.Context, m memo.Memo, prefix, yy string) (memo.Memo, error) {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return memo.Memo{}, errors.Wrap(err, "allocating control number")
	}
	defer func() { _ = tx.Rollback() }()

	var controls []string
	err = tx.SelectContext(ctx, &controls,
		`SELECT control_no FROM memos WHERE control_no LIKE ?`, memo.ControlPattern(prefix, yy))
	if err != nil {
		return memo.Memo{}, errors.Wrap(err, "allocating control number")
	}
	m.ControlNo = memo.FormatControlNo(prefix, yy, memo.NextControlSeq(controls))

	res, err := tx.ExecContext(ctx, insertMemoQuery, insertMemoArgs(m)...)
	if err != nil {
		return memo.Memo{}, trapUniqueErr(err, "memos.control_no", memo.ErrControlNoExists, "inserting memo")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return memo.Memo{}, errors.Wrap(err, "inserting memo")
	}
	if err = tx.Commit(); err != nil {
		return memo.Memo{}, errors.Wrap(err, "allocating control number")
	}
	m.ID = int(id)
	return m, nil
}

func (repo memoRepository) MaxControlSeq(ctx context.Context, prefix, yy string) (int, error) {
	var controls []string
	err := repo.db.SelectContext(ctx, &controls,
		`SELECT control_no FROM memos WHERE control_no LIKE ?`, memo.ControlPattern(prefix, yy))
	if err != nil {
		return 0, errors.Wrap(err, "scanning control numbers")
	}
	return memo.NextControlSeq(controls) - 1, nil
}

func (repo memoRepository) GetMemo(ctx context.Context, id int, scope memo.Scope) (memo.Memo, error) {
	conds, args := scopeConds(scope)
	conds = append([]string{`id = ?`}, conds...)
	args = append([]interface{}{id}, args...)

	var m dbMemo
	err := repo.db.GetContext(ctx, &m, `SELECT * FROM memos`+whereClause(conds), args...)
	if err != nil {
		if err == sql.ErrNoRows {
			return memo.Memo{}, memo.ErrNotFound
		}
		return memo.Memo{}, errors.Wrap(err, "finding memo")
	}
	return m.unpack(), nil
}

func (repo memoRepository) QueryMemos(ctx context.Context, scope memo.Scope, filter *memo.QueryFilter, ordering ...core.DBOrdering) ([]memo.Memo, error) {
	conds, args := memoConds(scope, filter)
	query := `SELECT * FROM memos` + whereClause(conds)

	if len(ordering) > 0 {
		orderList := make([]string, 0, len(ordering))
		for _, ord := range ordering {
			orderList = append(orderList, ord.String())
		}
		query += ` ORDER BY ` + strings.Join(orderList, ", ")
	} else {
		query += ` ORDER BY date_log DESC, control_no DESC`
	}

	var rows []dbMemo
	if err := repo.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "querying memos")
	}
	return unpackMemos(rows), nil
}

func (repo memoRepository) UpdateMemo(ctx context.Context, m memo.Memo) (memo.Memo, error) {
	sets := []string{
		`control_no = ?`, `date_log = ?`, `date_doc = ?`, `memo_from = ?`, `thru = ?`,
		`subject = ?`, `category = ?`, `status = ?`, `notes = ?`, `updated_at = ?`,
	}
	args := []interface{}{
		null.NewString(m.ControlNo, m.ControlNo != ""), m.DateLog, m.DateDoc, m.From, m.Thru,
		m.Subject, m.Category, m.Status, m.Notes, m.UpdatedAt,
	}
	if m.ForUnits != nil {
		sets = append(sets, `memo_for = ?`)
		args = append(args, core.JoinList(m.ForUnits))
	}
	args = append(args, m.ID)

	res, err := repo.db.ExecContext(ctx, `UPDATE memos SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return memo.Memo{}, trapUniqueErr(err, "memos.control_no", memo.ErrControlNoExists, "updating memo")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return memo.Memo{}, memo.ErrNotFound
	}
	return repo.GetMemo(ctx, m.ID, memo.Scope{All: true})
}

func (repo memoRepository) WipeMemo(ctx context.Context, id int, ts time.Time) error {
	res, err := repo.db.ExecContext(ctx,
		`UPDATE memos SET
			date_log = NULL, date_doc = NULL,
			memo_from = '', thru = '', memo_for = '',
			subject = '', notes = '',
			updated_at = ?
		 WHERE id = ?`,
		ts, id,
	)
	if err != nil {
		return errors.Wrap(err, "wiping memo")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return memo.ErrNotFound
	}
	return nil
}

func (repo memoRepository) DeleteMemos(ctx context.Context, ids ...int) error {
	query, args, err := sqlx.In(`DELETE FROM memos WHERE id IN (?)`, ids)
	if err != nil {
		return errors.Wrap(err, "deleting memos")
	}
	_, err = repo.db.ExecContext(ctx, repo.db.Rebind(query), args...)
	return errors.Wrap(err, "deleting memos")
}

func (repo memoRepository) DashboardStats(ctx context.Context, scope memo.Scope, filter *memo.QueryFilter) (memo.DashboardStats, error) {
	conds, args := memoConds(scope, filter)
	where := whereClause(conds)

	var stats memo.DashboardStats
	if err := repo.db.GetContext(ctx, &stats.Total, `SELECT COUNT(*) FROM memos`+where, args...); err != nil {
		return memo.DashboardStats{}, errors.Wrap(err, "counting memos")
	}

	buckets := func(col, order string) ([]memo.CountBucket, error) {
		var rows []struct {
			Name  string `db:"name"`
			Count int    `db:"count"`
		}
		query := `SELECT ` + col + ` AS name, COUNT(*) AS count FROM memos` + where +
			` GROUP BY ` + col + ` ORDER BY ` + order
		if err := repo.db.SelectContext(ctx, &rows, query, args...); err != nil {
			return nil, errors.Wrapf(err, "aggregating by %s", col)
		}
		out := make([]memo.CountBucket, 0, len(rows))
		for _, r := range rows {
			out = append(out, memo.CountBucket(r))
		}
		return out, nil
	}

	var err error
	if stats.ByStatus, err = buckets(`status`, `count DESC`); err != nil {
		return memo.DashboardStats{}, err
	}
	if stats.ByCategory, err = buckets(`category`, `count DESC`); err != nil {
		return memo.DashboardStats{}, err
	}

	dailyConds := append(conds, `date_log IS NOT NULL`)
	var daily []struct {
		Name  string `db:"name"`
		Count int    `db:"count"`
	}
	err = repo.db.SelectContext(ctx, &daily,
		`SELECT date_log AS name, COUNT(*) AS count FROM memos`+whereClause(dailyConds)+
			` GROUP BY date_log ORDER BY date_log ASC`,
		args...,
	)
	if err != nil {
		return memo.DashboardStats{}, errors.Wrap(err, "aggregating daily")
	}
	for _, r := range daily {
		stats.Daily = append(stats.Daily, memo.CountBucket(r))
	}
	return stats, nil
}

// Taxonomy

type dbTaxon struct {
	ID       int    `db:"id"`
	Name     string `db:"name"`
	IsActive bool   `db:"is_active"`
}

func (repo memoRepository) queryTaxa(ctx context.Context, table string, activeOnly bool) ([]dbTaxon, error) {
	query := `SELECT * FROM ` + table
	if activeOnly {
		query += ` WHERE is_active = 1`
	}
	query += ` ORDER BY name ASC`

	var rows []dbTaxon
	err := repo.db.SelectContext(ctx, &rows, query)
	return rows, errors.Wrapf(err, "querying %s", table)
}

func (repo memoRepository) QueryCategories(ctx context.Context, activeOnly bool) ([]memo.Category, error) {
	rows, err := repo.queryTaxa(ctx, "categories", activeOnly)
	if err != nil {
		return nil, err
	}
	cats := make([]memo.Category, 0, len(rows))
	for _, r := range rows {
		cats = append(cats, memo.Category(r))
	}
	return cats, nil
}

func (repo memoRepository) CreateCategory(ctx context.Context, name string) (memo.Category, error) {
	res, err := repo.db.ExecContext(ctx, `INSERT INTO categories (name, is_active) VALUES (?, 1)`, name)
	if err != nil {
		return memo.Category{}, trapUniqueErr(err, "categories.name", memo.ErrCategoryExists, "inserting category")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return memo.Category{}, errors.Wrap(err, "inserting category")
	}
	return memo.Category{ID: int(id), Name: name, IsActive: true}, nil
}

func (repo memoRepository) SetCategoryActive(ctx context.Context, id int, active bool) error {
	_, err := repo.db.ExecContext(ctx, `UPDATE categories SET is_active = ? WHERE id = ?`, active, id)
	return errors.Wrap(err, "toggling category")
}

func (repo memoRepository) DeleteCategory(ctx context.Context, id int) error {
	_, err := repo.db.ExecContext(ctx, `DELETE FROM categories WHERE id = ?`, id)
	return errors.Wrap(err, "deleting category")
}

func (repo memoRepository) QueryStatuses(ctx context.Context, activeOnly bool) ([]memo.Status, error) {
	rows, err := repo.queryTaxa(ctx, "statuses", activeOnly)
	if err != nil {
		return nil, err
	}
	stats := make([]memo.Status, 0, len(rows))
	for _, r := range rows {
		stats = append(stats, memo.Status(r))
	}
	return stats, nil
}

func (repo memoRepository) CreateStatus(ctx context.Context, name string) (memo.Status, error) {
	res, err := repo.db.ExecContext(ctx, `INSERT INTO statuses (name, is_active) VALUES (?, 1)`, name)
	if err != nil {
		return memo.Status{}, trapUniqueErr(err, "statuses.name", memo.ErrStatusExists, "inserting status")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return memo.Status{}, errors.Wrap(err, "inserting status")
	}
	return memo.Status{ID: int(id), Name: name, IsActive: true}, nil
}

func (repo memoRepository) SetStatusActive(ctx context.Context, id int, active bool) error {
	_, err := repo.db.ExecContext(ctx, `UPDATE statuses SET is_active = ? WHERE id = ?`, active, id)
	return errors.Wrap(err, "toggling status")
}

func (repo memoRepository) DeleteStatus(ctx context.Context, id int) error {
	_, err := repo.db.ExecContext(ctx, `DELETE FROM statuses WHERE id = ?`, id)
	return errors.Wrap(err, "deleting status")
}

func (repo memoRepository) RenameStatus(ctx context.Context, id int, newName string) error {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "renaming status")
	}
	defer func() { _ = tx.Rollback() }()

	var oldName string
	if err = tx.GetContext(ctx, &oldName, `SELECT name FROM statuses WHERE id = ?`, id); err != nil {
		if err == sql.ErrNoRows {
			return memo.ErrStatusNotFound
		}
		return errors.Wrap(err, "renaming status")
	}
	if oldName == newName {
		return nil
	}

	if _, err = tx.ExecContext(ctx, `UPDATE statuses SET name = ? WHERE id = ?`, newName, id); err != nil {
		return trapUniqueErr(err, "statuses.name", memo.ErrStatusExists, "renaming status")
	}
	// propagate to referencing memos
	if _, err = tx.ExecContext(ctx, `UPDATE memos SET status = ? WHERE status = ?`, newName, oldName); err != nil {
		return errors.Wrap(err, "renaming status")
	}
	return errors.Wrap(tx.Commit(), "renaming status")
}

// Settings

func (repo memoRepository) GetSetting(ctx context.Context, key string) (string, error) {
	var val string
	if err := repo.db.GetContext(ctx, &val, `SELECT value FROM settings WHERE key = ?`, key); err != nil {
		if err == sql.ErrNoRows {
			return "", memo.ErrNotFound
		}
		return "", errors.Wrap(err, "finding setting")
	}
	return val, nil
}

func (repo memoRepository) SetSetting(ctx context.Context, key, value string) error {
	_, err := repo.db.ExecContext(ctx,
		`INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT (key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	return errors.Wrap(err, "saving setting")
}

func (repo memoRepository) QuerySettings(ctx context.Context) ([]memo.Setting, error) {
	var rows []struct {
		Key   string `db:"key"`
		Value string `db:"value"`
	}
	if err := repo.db.SelectContext(ctx, &rows, `SELECT * FROM settings ORDER BY key ASC`); err != nil {
		return nil, errors.Wrap(err, "querying settings")
	}
	settings := make([]memo.Setting, 0, len(rows))
	for _, r := range rows {
		settings = append(settings, memo.Setting(r))
	}
	return settings, nil
}

// Control prefixes

func (repo memoRepository) GetUnitPrefix(ctx context.Context, unitName string) (string, error) {
	var prefix string
	if err := repo.db.GetContext(ctx, &prefix, `SELECT prefix FROM control_prefixes WHERE unit_name = ?`, unitName); err != nil {
		if err == sql.ErrNoRows {
			return "", memo.ErrNotFound
		}
		return "", errors.Wrap(err, "finding unit prefix")
	}
	return prefix, nil
}

func (repo memoRepository) SetUnitPrefix(ctx context.Context, unitName, prefix string) error {
	_, err := repo.db.ExecContext(ctx,
		`INSERT INTO control_prefixes (unit_name, prefix) VALUES (?, ?)
		 ON CONFLICT (unit_name) DO UPDATE SET prefix = excluded.prefix`,
		unitName, prefix,
	)
	return errors.Wrap(err, "saving unit prefix")
}

func (repo memoRepository) QueryUnitPrefixes(ctx context.Context) ([]memo.ControlPrefix, error) {
	var rows []struct {
		UnitName string `db:"unit_name"`
		Prefix   string `db:"prefix"`
	}
	if err := repo.db.SelectContext(ctx, &rows, `SELECT * FROM control_prefixes ORDER BY unit_name ASC`); err != nil {
		return nil, errors.Wrap(err, "querying unit prefixes")
	}
	prefixes := make([]memo.ControlPrefix, 0, len(rows))
	for _, r := range rows {
		prefixes = append(prefixes, memo.ControlPrefix(r))
	}
	return prefixes, nil
}

// Audit

func (repo memoRepository) CreateAuditEntry(ctx context.Context, e memo.AuditEntry) error {
	_, err := repo.db.ExecContext(ctx,
		`INSERT INTO audit_trail (ts, user_id, action, memo_id, details) VALUES (?, ?, ?, ?, ?)`,
		e.TS, e.UserID, e.Action, e.MemoID, e.Details,
	)
	return errors.Wrap(err, "inserting audit entry")
}

func (repo memoRepository) QueryAuditTrail(ctx context.Context, limit int) ([]memo.AuditEntry, error) {
	var rows []struct {
		ID      int       `db:"id"`
		TS      time.Time `db:"ts"`
		UserID  null.Int  `db:"user_id"`
		Action  string    `db:"action"`
		MemoID  null.Int  `db:"memo_id"`
		Details string    `db:"details"`
	}
	err := repo.db.SelectContext(ctx, &rows, `SELECT * FROM audit_trail ORDER BY ts DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "querying audit trail")
	}
	entries := make([]memo.AuditEntry, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, memo.AuditEntry(r))
	}
	return entries, nil
}

// Attachments

type dbAttachment struct {
	ID         int       `db:"id"`
	MemoID     int       `db:"memo_id"`
	Filename   string    `db:"filename"`
	Path       string    `db:"filepath"`
	UploadedAt time.Time `db:"uploaded_at"`
}

func (repo memoRepository) CreateAttachment(ctx context.Context, a memo.Attachment) (memo.Attachment, error) {
	res, err := repo.db.ExecContext(ctx,
		`INSERT INTO memo_files (memo_id, filename, filepath, uploaded_at) VALUES (?, ?, ?, ?)`,
		a.MemoID, a.Filename, a.Path, a.UploadedAt,
	)
	if err != nil {
		return memo.Attachment{}, errors.Wrap(err, "inserting attachment")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return memo.Attachment{}, errors.Wrap(err, "inserting attachment")
	}
	a.ID = int(id)
	return a, nil
}

func (repo memoRepository) QueryAttachments(ctx context.Context, memoID int) ([]memo.Attachment, error) {
	var rows []dbAttachment
	err := repo.db.SelectContext(ctx, &rows,
		`SELECT * FROM memo_files WHERE memo_id = ? ORDER BY uploaded_at DESC`, memoID)
	if err != nil {
		return nil, errors.Wrap(err, "querying attachments")
	}
	atts := make([]memo.Attachment, 0, len(rows))
	for _, r := range rows {
		atts = append(atts, memo.Attachment(r))
	}
	return atts, nil
}

func (repo memoRepository) GetAttachment(ctx context.Context, id int) (memo.Attachment, error) {
	var a dbAttachment
	if err := repo.db.GetContext(ctx, &a, `SELECT * FROM memo_files WHERE id = ?`, id); err != nil {
		if err == sql.ErrNoRows {
			return memo.Attachment{}, memo.ErrNotFound
		}
		return memo.Attachment{}, errors.Wrap(err, "finding attachment")
	}
	return memo.Attachment(a), nil
}

func (repo memoRepository) DeleteAttachment(ctx context.Context, id int) error {
	_, err := repo.db.ExecContext(ctx, `DELETE FROM memo_files WHERE id = ?`, id)
	return errors.Wrap(err, "deleting attachment")
}
