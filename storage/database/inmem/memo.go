package inmemdb

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/donhautea/SSS-CMS/core"
	"github.com/donhautea/SSS-CMS/core/memo"
)

type memoRepository struct {
	db *DB
}

var _ memo.Repository = (*memoRepository)(nil) // interface compliance check

func NewMemoRepository(db *DB) *memoRepository {
	return &memoRepository{db: db}
}

// visible applies the row-level filter: exact (case-insensitive) unit name
// matching, so a unit named "IS" never matches a memo for "FISCAL".
func visible(m *memo.Memo, scope memo.Scope) bool {
	if scope.All {
		return true
	}
	for _, unit := range scope.Units {
		for _, target := range m.ForUnits {
			if strings.EqualFold(unit, target) {
				return true
			}
		}
	}
	return false
}

func matches(m *memo.Memo, filter *memo.QueryFilter) bool {
	if filter == nil {
		return true
	}
	if filter.DateLogFrom != "" && (!m.DateLog.Valid || m.DateLog.String < filter.DateLogFrom) {
		return false
	}
	if filter.DateLogTo != "" && (!m.DateLog.Valid || m.DateLog.String > filter.DateLogTo) {
		return false
	}
	if filter.Search != "" {
		q := strings.ToLower(filter.Search)
		haystack := strings.ToLower(m.Subject + " " + m.From + " " + m.ForUnitsStr() + " " + m.Notes)
		if !strings.Contains(haystack, q) {
			return false
		}
	}
	if len(filter.Categories) > 0 && !containsFold(filter.Categories, m.Category) {
		return false
	}
	if len(filter.Statuses) > 0 && !containsFold(filter.Statuses, m.Status) {
		return false
	}
	return true
}

func containsFold(list []string, val string) bool {
	for _, item := range list {
		if strings.EqualFold(item, val) {
			return true
		}
	}
	return false
}

func (repo *memoRepository) queryLocked(scope memo.Scope, filter *memo.QueryFilter) []memo.Memo {
	memos := make([]memo.Memo, 0, len(repo.db.memos))
	for _, m := range repo.db.memos {
		if visible(m, scope) && matches(m, filter) {
			memos = append(memos, *m)
		}
	}
	sort.Slice(memos, func(i, j int) bool {
		if memos[i].DateLog.String != memos[j].DateLog.String {
			return memos[i].DateLog.String > memos[j].DateLog.String
		}
		return memos[i].ControlNo > memos[j].ControlNo
	})
	return memos
}

func (repo *memoRepository) controlExistsLocked(controlNo string) bool {
	for _, m := range repo.db.memos {
		if m.ControlNo == controlNo {
			return true
		}
	}
	return false
}

func (repo *memoRepository) CreateMemo(ctx context.Context, m memo.Memo) (memo.Memo, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if m.ControlNo != "" && repo.controlExistsLocked(m.ControlNo) {
		return memo.Memo{}, memo.ErrControlNoExists
	}
	repo.db.memoPK++
	m.ID = repo.db.memoPK
	repo.db.memos[m.ID] = &m
	return m, nil
}

func (repo *memoRepository) maxControlSeqLocked(prefix, yy string) int {
	pattern := prefix + " " + yy + "-"
	var controls []string
	for _, m := range repo.db.memos {
		if strings.HasPrefix(m.ControlNo, pattern) {
			controls = append(controls, m.ControlNo)
		}
	}
	return memo.NextControlSeq(controls) - 1
}

func (repo *memoRepository) CreateMemoWithControl(ctx context.Context, m memo.Memo, prefix, yy string) (memo.Memo, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	m.ControlNo = memo.FormatControlNo(prefix, yy, repo.maxControlSeqLocked(prefix, yy)+1)
	if repo.controlExistsLocked(m.ControlNo) {
		return memo.Memo{}, memo.ErrControlNoExists
	}
	repo.db.memoPK++
	m.ID = repo.db.memoPK
	repo.db.memos[m.ID] = &m
	return m, nil
}

func (repo *memoRepository) MaxControlSeq(ctx context.Context, prefix, yy string) (int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()
	return repo.maxControlSeqLocked(prefix, yy), nil
}

func (repo *memoRepository) GetMemo(ctx context.Context, id int, scope memo.Scope) (memo.Memo, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if m, ok := repo.db.memos[id]; ok && visible(m, scope) {
		return *m, nil
	}
	return memo.Memo{}, memo.ErrNotFound
}

func (repo *memoRepository) QueryMemos(ctx context.Context, scope memo.Scope, filter *memo.QueryFilter, ordering ...core.DBOrdering) ([]memo.Memo, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()
	return repo.queryLocked(scope, filter), nil
}

func (repo *memoRepository) UpdateMemo(ctx context.Context, m memo.Memo) (memo.Memo, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	orig, ok := repo.db.memos[m.ID]
	if !ok {
		return memo.Memo{}, memo.ErrNotFound
	}
	if m.ControlNo != orig.ControlNo && repo.controlExistsLocked(m.ControlNo) {
		return memo.Memo{}, memo.ErrControlNoExists
	}
	if m.ForUnits == nil {
		m.ForUnits = orig.ForUnits
	}
	m.CreatedAt = orig.CreatedAt
	repo.db.memos[m.ID] = &m
	return m, nil
}

func (repo *memoRepository) WipeMemo(ctx context.Context, id int, ts time.Time) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	m, ok := repo.db.memos[id]
	if !ok {
		return memo.ErrNotFound
	}
	m.DateLog, m.DateDoc = null.String{}, null.String{}
	m.From, m.Thru, m.Subject, m.Notes = "", "", "", ""
	m.ForUnits = nil
	m.UpdatedAt = ts
	return nil
}

func (repo *memoRepository) DeleteMemos(ctx context.Context, ids ...int) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()
	for _, id := range ids {
		delete(repo.db.memos, id)
		for attID, att := range repo.db.attachments {
			if att.MemoID == id {
				delete(repo.db.attachments, attID)
			}
		}
	}
	return nil
}

func (repo *memoRepository) DashboardStats(ctx context.Context, scope memo.Scope, filter *memo.QueryFilter) (memo.DashboardStats, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	memos := repo.queryLocked(scope, filter)
	stats := memo.DashboardStats{Total: len(memos)}

	byStatus := make(map[string]int)
	byCategory := make(map[string]int)
	daily := make(map[string]int)
	for _, m := range memos {
		byStatus[m.Status]++
		byCategory[m.Category]++
		if m.DateLog.Valid {
			daily[m.DateLog.String]++
		}
	}

	toBuckets := func(counts map[string]int, byCount bool) []memo.CountBucket {
		buckets := make([]memo.CountBucket, 0, len(counts))
		for name, count := range counts {
			buckets = append(buckets, memo.CountBucket{Name: name, Count: count})
		}
		sort.Slice(buckets, func(i, j int) bool {
			if byCount && buckets[i].Count != buckets[j].Count {
				return buckets[i].Count > buckets[j].Count
			}
			return buckets[i].Name < buckets[j].Name
		})
		return buckets
	}
	stats.ByStatus = toBuckets(byStatus, true)
	stats.ByCategory = toBuckets(byCategory, true)
	stats.Daily = toBuckets(daily, false)
	return stats, nil
}

// Taxonomy

func (repo *memoRepository) QueryCategories(ctx context.Context, activeOnly bool) ([]memo.Category, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	cats := make([]memo.Category, 0, len(repo.db.categories))
	for _, c := range repo.db.categories {
		if activeOnly && !c.IsActive {
			continue
		}
		cats = append(cats, *c)
	}
	sort.Slice(cats, func(i, j int) bool { return cats[i].Name < cats[j].Name })
	return cats, nil
}

func (repo *memoRepository) CreateCategory(ctx context.Context, name string) (memo.Category, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for _, c := range repo.db.categories {
		if strings.EqualFold(c.Name, name) {
			return memo.Category{}, memo.ErrCategoryExists
		}
	}
	repo.db.catPK++
	cat := memo.Category{ID: repo.db.catPK, Name: name, IsActive: true}
	repo.db.categories[cat.ID] = &cat
	return cat, nil
}

func (repo *memoRepository) SetCategoryActive(ctx context.Context, id int, active bool) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	cat, ok := repo.db.categories[id]
	if !ok {
		return memo.ErrNotFound
	}
	cat.IsActive = active
	return nil
}

func (repo *memoRepository) DeleteCategory(ctx context.Context, id int) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()
	delete(repo.db.categories, id)
	return nil
}

func (repo *memoRepository) QueryStatuses(ctx context.Context, activeOnly bool) ([]memo.Status, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	stats := make([]memo.Status, 0, len(repo.db.statuses))
	for _, s := range repo.db.statuses {
		if activeOnly && !s.IsActive {
			continue
		}
		stats = append(stats, *s)
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Name < stats[j].Name })
	return stats, nil
}

func (repo *memoRepository) CreateStatus(ctx context.Context, name string) (memo.Status, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for _, s := range repo.db.statuses {
		if strings.EqualFold(s.Name, name) {
			return memo.Status{}, memo.ErrStatusExists
		}
	}
	repo.db.statPK++
	stat := memo.Status{ID: repo.db.statPK, Name: name, IsActive: true}
	repo.db.statuses[stat.ID] = &stat
	return stat, nil
}

func (repo *memoRepository) SetStatusActive(ctx context.Context, id int, active bool) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	stat, ok := repo.db.statuses[id]
	if !ok {
		return memo.ErrStatusNotFound
	}
	stat.IsActive = active
	return nil
}

func (repo *memoRepository) DeleteStatus(ctx context.Context, id int) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()
	delete(repo.db.statuses, id)
	return nil
}

func (repo *memoRepository) RenameStatus(ctx context.Context, id int, newName string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	stat, ok := repo.db.statuses[id]
	if !ok {
		return memo.ErrStatusNotFound
	}
	if stat.Name == newName {
		return nil
	}
	for otherID, other := range repo.db.statuses {
		if otherID != id && strings.EqualFold(other.Name, newName) {
			return memo.ErrStatusExists
		}
	}

	oldName := stat.Name
	stat.Name = newName
	for _, m := range repo.db.memos {
		if m.Status == oldName {
			m.Status = newName
		}
	}
	return nil
}

// Settings

func (repo *memoRepository) GetSetting(ctx context.Context, key string) (string, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	val, ok := repo.db.settings[key]
	if !ok {
		return "", memo.ErrNotFound
	}
	return val, nil
}

func (repo *memoRepository) SetSetting(ctx context.Context, key, value string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()
	repo.db.settings[key] = value
	return nil
}

func (repo *memoRepository) QuerySettings(ctx context.Context) ([]memo.Setting, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	settings := make([]memo.Setting, 0, len(repo.db.settings))
	for key, value := range repo.db.settings {
		settings = append(settings, memo.Setting{Key: key, Value: value})
	}
	sort.Slice(settings, func(i, j int) bool { return settings[i].Key < settings[j].Key })
	return settings, nil
}

// Control prefixes

func (repo *memoRepository) GetUnitPrefix(ctx context.Context, unitName string) (string, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	prefix, ok := repo.db.prefixes[unitName]
	if !ok {
		return "", memo.ErrNotFound
	}
	return prefix, nil
}

func (repo *memoRepository) SetUnitPrefix(ctx context.Context, unitName, prefix string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()
	repo.db.prefixes[unitName] = prefix
	return nil
}

func (repo *memoRepository) QueryUnitPrefixes(ctx context.Context) ([]memo.ControlPrefix, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	prefixes := make([]memo.ControlPrefix, 0, len(repo.db.prefixes))
	for unit, prefix := range repo.db.prefixes {
		prefixes = append(prefixes, memo.ControlPrefix{UnitName: unit, Prefix: prefix})
	}
	sort.Slice(prefixes, func(i, j int) bool { return prefixes[i].UnitName < prefixes[j].UnitName })
	return prefixes, nil
}

// Audit

func (repo *memoRepository) CreateAuditEntry(ctx context.Context, e memo.AuditEntry) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	repo.db.auditPK++
	e.ID = repo.db.auditPK
	repo.db.audit = append(repo.db.audit, e)
	return nil
}

func (repo *memoRepository) QueryAuditTrail(ctx context.Context, limit int) ([]memo.AuditEntry, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	entries := make([]memo.AuditEntry, len(repo.db.audit))
	copy(entries, repo.db.audit)
	sort.Slice(entries, func(i, j int) bool { return entries[i].ID > entries[j].ID })
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// Attachments

func (repo *memoRepository) CreateAttachment(ctx context.Context, a memo.Attachment) (memo.Attachment, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	repo.db.attPK++
	a.ID = repo.db.attPK
	repo.db.attachments[a.ID] = &a
	return a, nil
}

func (repo *memoRepository) QueryAttachments(ctx context.Context, memoID int) ([]memo.Attachment, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	atts := make([]memo.Attachment, 0)
	for _, a := range repo.db.attachments {
		if a.MemoID == memoID {
			atts = append(atts, *a)
		}
	}
	sort.Slice(atts, func(i, j int) bool { return atts[i].ID > atts[j].ID })
	return atts, nil
}

func (repo *memoRepository) GetAttachment(ctx context.Context, id int) (memo.Attachment, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if a, ok := repo.db.attachments[id]; ok {
		return *a, nil
	}
	return memo.Attachment{}, memo.ErrNotFound
}

func (repo *memoRepository) DeleteAttachment(ctx context.Context, id int) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()
	delete(repo.db.attachments, id)
	return nil
}
