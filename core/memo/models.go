package memo

import (
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/donhautea/SSS-CMS/core"
	"github.com/donhautea/SSS-CMS/core/user"
)

// DateFormat is the date-only layout used for DateLog and DateDoc.
const DateFormat = "2006-01-02"

// Memo is a logged correspondence/memorandum record. ForUnits holds the
// target divisions/units; it is persisted as a normalized comma-joined
// list ("FMG, EID"). DateLog and DateDoc are date-only (DateFormat) and
// nullable: wiping a record clears them but keeps the control number.
type Memo struct {
	ID        int         `json:"id"`
	ControlNo string      `json:"control_no"`
	DateLog   null.String `json:"date_log"`
	DateDoc   null.String `json:"date_doc"`
	From      string      `json:"memo_from"`
	Thru      string      `json:"thru"`
	ForUnits  []string    `json:"for_units"`
	Subject   string      `json:"subject"`
	Category  string      `json:"category"`
	Status    string      `json:"status"`
	Notes     string      `json:"notes"`
	CreatedAt time.Time   `json:"created_at"` // UTC
	UpdatedAt time.Time   `json:"updated_at"` // UTC
}

// ForUnitsStr returns the normalized comma-joined target-unit list as
// persisted ("FMG, EID").
func (m *Memo) ForUnitsStr() string {
	return core.JoinList(m.ForUnits)
}

// CanEdit reports whether a user with the given role and unit memberships
// may modify this memo. Admins always can; supers and users only when at
// least one of their units targets the memo; viewers never.
func (m *Memo) CanEdit(role string, units []string) bool {
	switch role {
	case user.RoleAdmin:
		return true
	case user.RoleSuper, user.RoleUser:
		u := user.User{Units: units}
		return u.HasAnyUnit(m.ForUnits)
	}
	return false
}

// Scope is the row-level visibility of a caller. All short-circuits unit
// matching (admins); otherwise only memos whose target-unit list intersects
// Units are visible, and an empty Units list sees nothing.
type Scope struct {
	All   bool
	Units []string
}

// ScopeFor derives the visibility scope from a user's role and units.
func ScopeFor(role string, units []string) Scope {
	if role == user.RoleAdmin {
		return Scope{All: true}
	}
	return Scope{Units: units}
}

// Category is an admin-configurable memo category.
type Category struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	IsActive bool   `json:"is_active"`
}

// Status is an admin-configurable memo status. Renaming a status
// propagates to existing memos; deleting one does not.
type Status struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	IsActive bool   `json:"is_active"`
}

// Setting is an application key/value setting (default control prefix,
// UI titles).
type Setting struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Well-known setting keys.
const (
	SettingControlPrefix = "control_prefix"
	SettingSidebarTitle  = "sidebar_title"
	SettingMainTitle     = "main_title"

	DefaultControlPrefix = "MEMO"
)

// ControlPrefix assigns a control-number prefix to a unit. Units without
// one fall back to the SettingControlPrefix setting.
type ControlPrefix struct {
	UnitName string `json:"unit_name"`
	Prefix   string `json:"prefix"`
}

// AuditEntry records a user action. MemoID is null for non-memo actions
// (logins, taxonomy changes).
type AuditEntry struct {
	ID      int       `json:"id"`
	TS      time.Time `json:"ts"` // UTC
	UserID  null.Int  `json:"user_id"`
	Action  string    `json:"action"`
	MemoID  null.Int  `json:"memo_id"`
	Details string    `json:"details"`
}

// Attachment is a file stored on disk under the memo's directory.
type Attachment struct {
	ID         int       `json:"id"`
	MemoID     int       `json:"memo_id"`
	Filename   string    `json:"filename"`
	Path       string    `json:"-"`
	UploadedAt time.Time `json:"uploaded_at"` // UTC
}

// NewMemo contains information needed to log a new memorandum. A blank
// ControlNo gets one auto-generated from the first target unit's prefix.
type NewMemo struct {
	ControlNo string      `json:"control_no"`
	DateLog   null.String `json:"date_log" validate:"required,datefmt"`
	DateDoc   null.String `json:"date_doc" validate:"required,datefmt"`
	From      string      `json:"memo_from" validate:"required"`
	Thru      string      `json:"thru"`
	ForUnits  []string    `json:"for_units" validate:"required,min=1"`
	Subject   string      `json:"subject" validate:"required"`
	Category  string      `json:"category"`
	Status    string      `json:"status"`
	Notes     string      `json:"notes"`
}

func (nm *NewMemo) Validate() error {
	nm.ControlNo = core.CleanString(nm.ControlNo)
	nm.From = core.CleanString(nm.From)
	nm.Thru = core.CleanString(nm.Thru)
	nm.Subject = core.CleanString(nm.Subject)
	nm.Category = core.CleanString(nm.Category)
	nm.Status = core.CleanString(nm.Status)
	nm.Notes = core.CleanString(nm.Notes)
	nm.ForUnits = cleanUnits(nm.ForUnits)
	return core.Validate.Struct(nm)
}

// UpdateMemo defines what information may be provided to modify an
// existing memo. ForUnits == nil leaves the target units unchanged; unit
// edits are gated to super/admin at the API layer.
type UpdateMemo struct {
	ControlNo string      `json:"control_no"`
	DateLog   null.String `json:"date_log" validate:"omitempty,datefmt"`
	DateDoc   null.String `json:"date_doc" validate:"omitempty,datefmt"`
	From      string      `json:"memo_from"`
	Thru      string      `json:"thru"`
	ForUnits  []string    `json:"for_units" validate:"omitempty,min=1"`
	Subject   string      `json:"subject"`
	Category  string      `json:"category"`
	Status    string      `json:"status"`
	Notes     string      `json:"notes"`
}

func (um *UpdateMemo) Validate() error {
	um.ControlNo = core.CleanString(um.ControlNo)
	um.From = core.CleanString(um.From)
	um.Thru = core.CleanString(um.Thru)
	um.Subject = core.CleanString(um.Subject)
	um.Category = core.CleanString(um.Category)
	um.Status = core.CleanString(um.Status)
	um.Notes = core.CleanString(um.Notes)
	if um.ForUnits != nil {
		um.ForUnits = cleanUnits(um.ForUnits)
	}
	return core.Validate.Struct(um)
}

func cleanUnits(units []string) []string {
	cleaned := make([]string, 0, len(units))
	for _, u := range units {
		if u = core.CleanString(u); u != "" {
			cleaned = append(cleaned, u)
		}
	}
	return cleaned
}

// QueryFilter narrows a memo listing. Search does a case-insensitive
// substring match over subject, from, target units and notes.
type QueryFilter struct {
	DateLogFrom string   `query:"date_log_from"`
	DateLogTo   string   `query:"date_log_to"`
	Search      string   `query:"search"`
	Categories  []string `query:"category"`
	Statuses    []string `query:"status"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.DateLogFrom == "" && qf.DateLogTo == "" && qf.Search == "" &&
		len(qf.Categories) == 0 && len(qf.Statuses) == 0
}

func (qf *QueryFilter) Clean() {
	qf.DateLogFrom = core.CleanString(qf.DateLogFrom)
	qf.DateLogTo = core.CleanString(qf.DateLogTo)
	qf.Search = core.CleanString(qf.Search)
	qf.Categories = cleanUnits(qf.Categories)
	qf.Statuses = cleanUnits(qf.Statuses)
}

// CountBucket is a name→count aggregate row.
type CountBucket struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// DashboardStats aggregates the caller's visible memos.
type DashboardStats struct {
	Total      int           `json:"total"`
	ByStatus   []CountBucket `json:"by_status"`
	ByCategory []CountBucket `json:"by_category"`
	Daily      []CountBucket `json:"daily"` // Name is a DateFormat date
}
