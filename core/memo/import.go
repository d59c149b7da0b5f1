package memo

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"
	"github.com/xuri/excelize/v2"

	"github.com/donhautea/SSS-CMS/core"
)

// xlsx template columns. "Division(s)/Unit(s)" holds the comma-separated
// target units; the legacy "Memo For" header is still accepted on import.
var templateColumns = []string{
	"Control No",
	"Date of Log",
	"Date of Document",
	"Memo From",
	"Thru",
	"Division(s)/Unit(s)",
	"Subject",
	"Category",
	"Status",
	"Notes",
}

const (
	templateSheet = "Template"
	guidanceSheet = "Guidance"

	legacyForUnitsColumn = "Memo For"
)

var requiredImportColumns = []string{"Date of Log", "Date of Document", "Memo From", "Subject"}

// importDateLayouts are tried in order when parsing date cells.
var importDateLayouts = []string{
	DateFormat,
	"2006-01-02 15:04:05",
	"01/02/2006",
	"1/2/2006",
	"1/2/06",
	time.RFC3339,
}

type (
	ImportOptions struct {
		// AutoCreateCategories creates unknown categories on the fly
		// instead of flagging them.
		AutoCreateCategories bool
		// AutoGenControlNos allocates control numbers for rows that leave
		// the column blank.
		AutoGenControlNos bool
	}

	// ImportIssue flags a problem found while validating an import file.
	// Row is the 1-based spreadsheet row (0 for file-level issues).
	ImportIssue struct {
		Row   int    `json:"row"`
		Field string `json:"field"`
		Issue string `json:"issue"`
	}

	ImportResult struct {
		Inserted int `json:"inserted"`
		Skipped  int `json:"skipped"`
		Failed   int `json:"failed"`
	}
)

// BuildImportTemplate writes an xlsx with an empty Template sheet plus a
// Guidance sheet describing each column.
func (svc *service) BuildImportTemplate(w io.Writer) error {
	ctx := context.Background()
	f := excelize.NewFile()
	defer f.Close()

	f.SetSheetName(f.GetSheetName(0), templateSheet)
	for i, col := range templateColumns {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err = f.SetCellValue(templateSheet, cell, col); err != nil {
			return err
		}
	}

	statusNote := "Refer to your configured statuses"
	if stats, err := svc.repo.QueryStatuses(ctx, true /* activeOnly */); err == nil && len(stats) > 0 {
		names := make([]string, len(stats))
		for i, s := range stats {
			names[i] = s.Name
		}
		statusNote = "One of: " + strings.Join(names, ", ")
	}

	if _, err := f.NewSheet(guidanceSheet); err != nil {
		return err
	}
	required := map[string]bool{}
	for _, col := range requiredImportColumns {
		required[col] = true
	}
	notes := []string{
		"Leave blank to auto-generate",
		"Date (YYYY-MM-DD)",
		"Date (YYYY-MM-DD)",
		"Originator",
		"Optional",
		"Target divisions/units (comma-separated)",
		"Subject line",
		"Optional category name (will be auto-created if necessary)",
		statusNote,
		"Optional free text",
	}
	if err := f.SetSheetRow(guidanceSheet, "A1", &[]interface{}{"Field", "Required", "Notes"}); err != nil {
		return err
	}
	for i, col := range templateColumns {
		row := []interface{}{col, required[col], notes[i]}
		if err := f.SetSheetRow(guidanceSheet, fmt.Sprintf("A%d", i+2), &row); err != nil {
			return err
		}
	}

	return f.Write(w)
}

// importRow is one parsed spreadsheet row, keyed by header.
type importRow map[string]string

func (r importRow) get(col string) string { return core.CleanString(r[col]) }

func (r importRow) forUnits() string {
	if v := r.get("Division(s)/Unit(s)"); v != "" {
		return v
	}
	return r.get(legacyForUnitsColumn)
}

func parseImportFile(r io.Reader) ([]importRow, []ImportIssue, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, nil, errors.Wrap(err, "opening import file")
	}
	defer f.Close()

	sheet := templateSheet
	if idx, err := f.GetSheetIndex(sheet); err != nil || idx < 0 {
		sheet = f.GetSheetName(0)
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "reading sheet %q", sheet)
	}
	if len(rows) == 0 {
		return nil, []ImportIssue{{Field: "Columns", Issue: "empty file"}}, nil
	}

	header := make(map[int]string, len(rows[0]))
	present := make(map[string]bool, len(rows[0]))
	for i, h := range rows[0] {
		h = core.CleanString(h)
		header[i] = h
		present[h] = true
	}
	var missing []string
	for _, col := range requiredImportColumns {
		if !present[col] {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, []ImportIssue{{Field: "Columns", Issue: "missing columns: " + strings.Join(missing, ", ")}}, nil
	}

	parsed := make([]importRow, 0, len(rows)-1)
	for _, row := range rows[1:] {
		ir := make(importRow, len(row))
		empty := true
		for i, cell := range row {
			if col, ok := header[i]; ok && col != "" {
				ir[col] = cell
				if core.CleanString(cell) != "" {
					empty = false
				}
			}
		}
		if !empty {
			parsed = append(parsed, ir)
		}
	}
	return parsed, nil, nil
}

func parseDateCell(val string) (string, bool) {
	val = core.CleanString(val)
	if val == "" {
		return "", false
	}
	for _, layout := range importDateLayouts {
		if t, err := time.Parse(layout, val); err == nil {
			return t.Format(DateFormat), true
		}
	}
	// excel serial dates
	if serial, err := strconv.ParseFloat(val, 64); err == nil {
		if t, err := excelize.ExcelDateToTime(serial, false); err == nil {
			return t.Format(DateFormat), true
		}
	}
	return "", false
}

// ValidateImport dry-runs an import file and reports per-row issues
// without touching the database, except that unknown categories are
// created when opts.AutoCreateCategories is on.
func (svc *service) ValidateImport(ctx context.Context, r io.Reader, opts ImportOptions) ([]ImportIssue, error) {
	rows, issues, err := parseImportFile(r)
	if err != nil || len(issues) > 0 {
		return issues, err
	}

	knownStatuses, err := svc.statusNameSet(ctx)
	if err != nil {
		return nil, err
	}

	for i, row := range rows {
		var rowIssues []string
		for _, fld := range []string{"Date of Log", "Date of Document"} {
			if _, ok := parseDateCell(row.get(fld)); !ok {
				rowIssues = append(rowIssues, fld+" invalid or missing")
			}
		}
		if row.get("Memo From") == "" {
			rowIssues = append(rowIssues, "Memo From is required")
		}
		if row.get("Subject") == "" {
			rowIssues = append(rowIssues, "Subject is required")
		}
		if cat := row.get("Category"); cat != "" {
			if ok, err := svc.ensureCategory(ctx, cat, opts.AutoCreateCategories); err != nil {
				return nil, err
			} else if !ok {
				rowIssues = append(rowIssues, fmt.Sprintf("Category %q not found (auto-create OFF)", cat))
			}
		}
		if stt := row.get("Status"); stt != "" && !knownStatuses[strings.ToLower(stt)] {
			rowIssues = append(rowIssues, fmt.Sprintf("invalid Status %q", stt))
		}
		if len(rowIssues) > 0 {
			issues = append(issues, ImportIssue{
				Row:   i + 2, // 1-based, after the header
				Field: "Multiple",
				Issue: strings.Join(rowIssues, "; "),
			})
		}
	}
	return issues, nil
}

// Import inserts the file's rows. Rows with duplicate control numbers are
// skipped; rows missing the mandatory fields are counted failed. Unknown
// statuses fall back to the first configured status.
func (svc *service) Import(ctx context.Context, r io.Reader, opts ImportOptions) (ImportResult, error) {
	rows, issues, err := parseImportFile(r)
	if err != nil {
		return ImportResult{}, err
	}
	if len(issues) > 0 {
		return ImportResult{}, core.NewValidationError(
			errors.New("invalid import file"),
			core.FieldError{Field: issues[0].Field, Error: issues[0].Issue},
		)
	}

	knownStatuses, err := svc.statusNameSet(ctx)
	if err != nil {
		return ImportResult{}, err
	}
	var fallbackStatus string
	if stats, err := svc.repo.QueryStatuses(ctx, false); err == nil && len(stats) > 0 {
		fallbackStatus = stats[0].Name
	}

	var res ImportResult
	now := nowFunc().UTC()
	yy := ControlYear(now)
	for _, row := range rows {
		dateLog, logOK := parseDateCell(row.get("Date of Log"))
		dateDoc, docOK := parseDateCell(row.get("Date of Document"))
		from := row.get("Memo From")
		subject := row.get("Subject")
		if !logOK || !docOK || from == "" || subject == "" {
			res.Failed++
			continue
		}

		status := row.get("Status")
		if !knownStatuses[strings.ToLower(status)] {
			status = fallbackStatus
		}
		if cat := row.get("Category"); cat != "" {
			if _, err := svc.ensureCategory(ctx, cat, opts.AutoCreateCategories); err != nil {
				return res, err
			}
		}

		m := Memo{
			ControlNo: row.get("Control No"),
			DateLog:   null.StringFrom(dateLog),
			DateDoc:   null.StringFrom(dateDoc),
			From:      from,
			Thru:      row.get("Thru"),
			ForUnits:  core.SplitList(row.forUnits()),
			Subject:   subject,
			Category:  row.get("Category"),
			Status:    status,
			Notes:     row.get("Notes"),
			CreatedAt: now,
			UpdatedAt: now,
		}

		if m.ControlNo == "" && opts.AutoGenControlNos {
			prefix := svc.Setting(ctx, SettingControlPrefix, DefaultControlPrefix)
			if _, err = svc.repo.CreateMemoWithControl(ctx, m, prefix, yy); err != nil {
				res.Failed++
				continue
			}
			res.Inserted++
			continue
		}

		switch _, err = svc.repo.CreateMemo(ctx, m); err {
		case nil:
			res.Inserted++
		case ErrControlNoExists:
			res.Skipped++
		default:
			res.Failed++
		}
	}
	return res, nil
}

func (svc *service) statusNameSet(ctx context.Context) (map[string]bool, error) {
	stats, err := svc.repo.QueryStatuses(ctx, false /* activeOnly */)
	if err != nil {
		return nil, err
	}
	set := make(map[string]bool, len(stats))
	for _, s := range stats {
		set[strings.ToLower(s.Name)] = true
	}
	return set, nil
}

// ensureCategory reports whether name refers to an existing category,
// creating it first when autoCreate is on.
func (svc *service) ensureCategory(ctx context.Context, name string, autoCreate bool) (bool, error) {
	cats, err := svc.repo.QueryCategories(ctx, false /* activeOnly */)
	if err != nil {
		return false, err
	}
	for _, c := range cats {
		if strings.EqualFold(c.Name, name) {
			return true, nil
		}
	}
	if !autoCreate {
		return false, nil
	}
	if _, err = svc.repo.CreateCategory(ctx, name); err != nil && err != ErrCategoryExists {
		return false, err
	}
	return true, nil
}

// ExportCSV writes the caller's filtered view as CSV.
func (svc *service) ExportCSV(ctx context.Context, scope Scope, filter QueryFilter, w io.Writer) error {
	memos, err := svc.Filter(ctx, scope, filter)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	header := []string{"control_no", "date_log", "date_doc", "memo_from", "thru", "memo_for", "subject", "notes", "category", "status"}
	if err = cw.Write(header); err != nil {
		return err
	}
	for _, m := range memos {
		rec := []string{
			m.ControlNo, m.DateLog.String, m.DateDoc.String, m.From, m.Thru,
			m.ForUnitsStr(), m.Subject, m.Notes, m.Category, m.Status,
		}
		if err = cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ExportDashboard writes an xlsx with the raw visible rows plus the
// status/category/daily aggregates.
func (svc *service) ExportDashboard(ctx context.Context, scope Scope, filter QueryFilter, w io.Writer) error {
	memos, err := svc.Filter(ctx, scope, filter)
	if err != nil {
		return err
	}
	stats, err := svc.Dashboard(ctx, scope, filter)
	if err != nil {
		return err
	}

	f := excelize.NewFile()
	defer f.Close()

	rawSheet := "Raw"
	f.SetSheetName(f.GetSheetName(0), rawSheet)
	rawHeader := []interface{}{"Control No", "Date of Log", "Date of Document", "Memo From", "Thru", "Division(s)/Unit(s)", "Subject", "Notes", "Category", "Status"}
	if err = f.SetSheetRow(rawSheet, "A1", &rawHeader); err != nil {
		return err
	}
	for i, m := range memos {
		row := []interface{}{
			m.ControlNo, m.DateLog.String, m.DateDoc.String, m.From, m.Thru,
			m.ForUnitsStr(), m.Subject, m.Notes, m.Category, m.Status,
		}
		if err = f.SetSheetRow(rawSheet, fmt.Sprintf("A%d", i+2), &row); err != nil {
			return err
		}
	}

	writeBuckets := func(sheet, label string, buckets []CountBucket) error {
		if _, err := f.NewSheet(sheet); err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, "A1", &[]interface{}{label, "Count"}); err != nil {
			return err
		}
		for i, b := range buckets {
			row := []interface{}{b.Name, b.Count}
			if err := f.SetSheetRow(sheet, fmt.Sprintf("A%d", i+2), &row); err != nil {
				return err
			}
		}
		return nil
	}
	if err = writeBuckets("By Status", "Status", stats.ByStatus); err != nil {
		return err
	}
	if err = writeBuckets("By Category", "Category", stats.ByCategory); err != nil {
		return err
	}
	if err = writeBuckets("Daily Trend", "Date", stats.Daily); err != nil {
		return err
	}

	return f.Write(w)
}
