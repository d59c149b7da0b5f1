package tests

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/donhautea/SSS-CMS/core/memo"
	"github.com/donhautea/SSS-CMS/core/user"
)

func Test_memoApi_create(t *testing.T) {
	resetDB(t)

	usr := createUser(t, "encoder", "encoder@test.ph", "Str0ng!Pass", user.RoleUser, []string{"FMG"}, true)
	viewer := createUser(t, "watcher", "watcher@test.ph", "Str0ng!Pass", user.RoleViewer, []string{"FMG"}, true)

	usrToken := getToken(t, usr)
	yy := memo.ControlYear(time.Now().UTC())

	newMemoBody := func(forUnits []string) []byte {
		return marshallObj(t, map[string]interface{}{
			"date_log":  "2026-08-20",
			"date_doc":  "2026-08-19",
			"memo_from": "Office of the Head",
			"for_units": forUnits,
			"subject":   "Budget realignment",
		})
	}

	// viewers cannot log
	req, rec := newAuthRequest(http.MethodPost, "/v1/memos", getToken(t, viewer), newMemoBody([]string{"FMG"}))
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("viewer: code = %d; want %d", rec.Code, http.StatusForbidden)
	}

	// users cannot log for foreign units
	req, rec = newAuthRequest(http.MethodPost, "/v1/memos", usrToken, newMemoBody([]string{"EID"}))
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("foreign unit: code = %d; want %d; body: %s", rec.Code, http.StatusBadRequest, rec.Body.String())
	}

	// blank control number is auto-allocated, sequentially
	for i := 1; i <= 2; i++ {
		req, rec = newAuthRequest(http.MethodPost, "/v1/memos", usrToken, newMemoBody([]string{"FMG"}))
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusCreated {
			t.Fatalf("create #%d: code = %d; want %d; body: %s", i, rec.Code, http.StatusCreated, rec.Body.String())
		}
		var m memo.Memo
		if err := json.Unmarshal(rec.Body.Bytes(), &m); err != nil {
			t.Fatalf("unmarshalling response: %v", err)
		}
		if want := memo.FormatControlNo(memo.DefaultControlPrefix, yy, i); m.ControlNo != want {
			t.Errorf("control_no = %q; want %q", m.ControlNo, want)
		}
	}

	// explicit duplicate control number is a field error
	body := marshallObj(t, map[string]interface{}{
		"control_no": memo.FormatControlNo(memo.DefaultControlPrefix, yy, 1),
		"date_log":   "2026-08-20",
		"date_doc":   "2026-08-19",
		"memo_from":  "Office of the Head",
		"for_units":  []string{"FMG"},
		"subject":    "Duplicate",
	})
	req, rec = newAuthRequest(http.MethodPost, "/v1/memos", usrToken, body)
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("duplicate: code = %d; want %d; body: %s", rec.Code, http.StatusBadRequest, rec.Body.String())
	}

	// preview does not reserve
	req, rec = newAuthRequest(http.MethodGet, "/v1/memos/next-control-no?unit=FMG", usrToken)
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("preview: code = %d; want %d", rec.Code, http.StatusOK)
	}
	var preview map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &preview); err != nil {
		t.Fatalf("unmarshalling response: %v", err)
	}
	if want := memo.FormatControlNo(memo.DefaultControlPrefix, yy, 3); preview["control_no"] != want {
		t.Errorf("preview = %q; want %q", preview["control_no"], want)
	}
}

// Unit visibility is bounded on whole names: a member of "IS" must not see
// memos addressed to "FISCAL".
func Test_memoApi_queryScope(t *testing.T) {
	resetDB(t)

	fmgMemo := createMemo(t, "FMG 26-001", "2026-08-01", "FMG only", "Logged", []string{"FMG"})
	isMemo := createMemo(t, "IS 26-001", "2026-08-02", "IS only", "Logged", []string{"IS"})
	fiscalMemo := createMemo(t, "FISCAL 26-001", "2026-08-03", "Fiscal only", "Logged", []string{"FISCAL"})
	sharedMemo := createMemo(t, "FMG-EID 26-001", "2026-08-04", "Shared", "Logged", []string{"FMG", "EID"})

	admin := createUser(t, "boss", "boss@test.ph", "Str0ng!Pass", user.RoleAdmin, nil, true)
	isUser := createUser(t, "isguy", "isguy@test.ph", "Str0ng!Pass", user.RoleUser, []string{"IS"}, true)
	eidUser := createUser(t, "eidgal", "eidgal@test.ph", "Str0ng!Pass", user.RoleUser, []string{"EID"}, true)
	unitless := createUser(t, "floater", "floater@test.ph", "Str0ng!Pass", user.RoleViewer, nil, true)

	tests := []httpTest{
		{
			name: "admin sees all", method: http.MethodGet, path: "/v1/memos", token: getToken(t, admin),
			wantCode: http.StatusOK, wantData: marshallList(t, fmgMemo, isMemo, fiscalMemo, sharedMemo),
		},
		{
			name: "IS member does not match FISCAL", method: http.MethodGet, path: "/v1/memos", token: getToken(t, isUser),
			wantCode: http.StatusOK, wantData: marshallList(t, isMemo),
		},
		{
			name: "EID member sees shared memo", method: http.MethodGet, path: "/v1/memos", token: getToken(t, eidUser),
			wantCode: http.StatusOK, wantData: marshallList(t, sharedMemo),
		},
		{
			name: "no units sees nothing", method: http.MethodGet, path: "/v1/memos", token: getToken(t, unitless),
			wantCode: http.StatusOK, wantData: marshallList(t),
		},
		{
			name: "search filter", method: http.MethodGet, path: "/v1/memos?search=shared", token: getToken(t, admin),
			wantCode: http.StatusOK, wantData: marshallList(t, sharedMemo),
		},
		{
			name: "status filter", method: http.MethodGet, path: "/v1/memos?status=Unknown", token: getToken(t, admin),
			wantCode: http.StatusOK, wantData: marshallList(t),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}

	// out-of-scope detail reads as not found
	req, rec := newAuthRequest(http.MethodGet, "/v1/memos/"+itoa(fiscalMemo.ID), getToken(t, isUser))
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("out-of-scope detail: code = %d; want %d", rec.Code, http.StatusNotFound)
	}
}

func Test_memoApi_update(t *testing.T) {
	resetDB(t)

	m := createMemo(t, "FMG 26-001", "2026-08-01", "Original subject", "Logged", []string{"FMG"})

	editor := createUser(t, "editor", "editor@test.ph", "Str0ng!Pass", user.RoleUser, []string{"FMG"}, true)
	superUsr := createUser(t, "chief", "chief@test.ph", "Str0ng!Pass", user.RoleSuper, []string{"FMG"}, true)
	viewer := createUser(t, "watcher", "watcher@test.ph", "Str0ng!Pass", user.RoleViewer, []string{"FMG"}, true)

	// viewers can read but not edit
	req, rec := newAuthRequest(http.MethodGet, "/v1/memos/"+itoa(m.ID), getToken(t, viewer))
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("viewer read: code = %d; want %d", rec.Code, http.StatusOK)
	}
	req, rec = newAuthRequest(http.MethodPut, "/v1/memos/"+itoa(m.ID), getToken(t, viewer),
		marshallObj(t, map[string]string{"subject": "Nope"}))
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("viewer edit: code = %d; want %d", rec.Code, http.StatusForbidden)
	}

	// a unit member edits content
	req, rec = newAuthRequest(http.MethodPut, "/v1/memos/"+itoa(m.ID), getToken(t, editor),
		marshallObj(t, map[string]string{"subject": "Amended subject", "status": "Routed"}))
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("member edit: code = %d; want %d; body: %s", rec.Code, http.StatusOK, rec.Body.String())
	}
	var updated memo.Memo
	if err := json.Unmarshal(rec.Body.Bytes(), &updated); err != nil {
		t.Fatalf("unmarshalling response: %v", err)
	}
	if updated.Subject != "Amended subject" || updated.Status != "Routed" {
		t.Errorf("updated = %+v", updated)
	}

	// but cannot retarget units
	req, rec = newAuthRequest(http.MethodPut, "/v1/memos/"+itoa(m.ID), getToken(t, editor),
		marshallObj(t, map[string]interface{}{"for_units": []string{"EID"}}))
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("member retarget: code = %d; want %d", rec.Code, http.StatusForbidden)
	}

	// supers can
	req, rec = newAuthRequest(http.MethodPut, "/v1/memos/"+itoa(m.ID), getToken(t, superUsr),
		marshallObj(t, map[string]interface{}{"for_units": []string{"FMG", "EID"}}))
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("super retarget: code = %d; want %d; body: %s", rec.Code, http.StatusOK, rec.Body.String())
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &updated); err != nil {
		t.Fatalf("unmarshalling response: %v", err)
	}
	if len(updated.ForUnits) != 2 {
		t.Errorf("for_units = %v; want 2 units", updated.ForUnits)
	}
}

func Test_memoApi_wipeAndDelete(t *testing.T) {
	resetDB(t)

	m := createMemo(t, "FMG 26-001", "2026-08-01", "Sensitive", "Logged", []string{"FMG"})
	gone := createMemo(t, "FMG 26-002", "2026-08-02", "Short-lived", "Logged", []string{"FMG"})

	superUsr := createUser(t, "chief", "chief@test.ph", "Str0ng!Pass", user.RoleSuper, []string{"FMG"}, true)
	admin := createUser(t, "boss", "boss@test.ph", "Str0ng!Pass", user.RoleAdmin, nil, true)
	adminToken := getToken(t, admin)

	// wipe and delete are admin-only
	req, rec := newAuthRequest(http.MethodPost, "/v1/memos/"+itoa(m.ID)+"/wipe", getToken(t, superUsr))
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("super wipe: code = %d; want %d", rec.Code, http.StatusForbidden)
	}

	req, rec = newAuthRequest(http.MethodPost, "/v1/memos/"+itoa(m.ID)+"/wipe", adminToken)
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("wipe: code = %d; want %d; body: %s", rec.Code, http.StatusNoContent, rec.Body.String())
	}

	// the row and its control number survive a wipe
	req, rec = newAuthRequest(http.MethodGet, "/v1/memos/"+itoa(m.ID), adminToken)
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("wiped read: code = %d; want %d", rec.Code, http.StatusOK)
	}
	var wiped memo.Memo
	if err := json.Unmarshal(rec.Body.Bytes(), &wiped); err != nil {
		t.Fatalf("unmarshalling response: %v", err)
	}
	if wiped.ControlNo != "FMG 26-001" {
		t.Errorf("control_no = %q; want %q", wiped.ControlNo, "FMG 26-001")
	}
	if wiped.Subject != "" || wiped.DateLog.Valid {
		t.Errorf("wiped = %+v; want cleared contents", wiped)
	}

	// delete removes the row
	req, rec = newAuthRequest(http.MethodDelete, "/v1/memos/"+itoa(gone.ID), adminToken)
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete: code = %d; want %d", rec.Code, http.StatusNoContent)
	}
	req, rec = newAuthRequest(http.MethodGet, "/v1/memos/"+itoa(gone.ID), adminToken)
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("deleted read: code = %d; want %d", rec.Code, http.StatusNotFound)
	}

	// the audit trail recorded both actions
	req, rec = newAuthRequest(http.MethodGet, "/v1/memos/audit", adminToken)
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("audit: code = %d; want %d", rec.Code, http.StatusOK)
	}
	var entries []memo.AuditEntry
	if err := json.Unmarshal(rec.Body.Bytes(), &entries); err != nil {
		t.Fatalf("unmarshalling response: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("audit entries = %d; want 2", len(entries))
	}
	if entries[0].Action != "delete_memo" || entries[1].Action != "wipe_memo" {
		t.Errorf("audit actions = %q, %q", entries[0].Action, entries[1].Action)
	}
}

func Test_memoApi_taxonomy(t *testing.T) {
	resetDB(t)

	m := createMemo(t, "FMG 26-001", "2026-08-01", "Renaming target", "For Routing", []string{"FMG"})

	usr := createUser(t, "plain", "plain@test.ph", "Str0ng!Pass", user.RoleUser, []string{"FMG"}, true)
	admin := createUser(t, "boss", "boss@test.ph", "Str0ng!Pass", user.RoleAdmin, nil, true)
	adminToken := getToken(t, admin)

	// users cannot create categories
	req, rec := newAuthRequest(http.MethodPost, "/v1/categories", getToken(t, usr),
		marshallObj(t, map[string]string{"name": "Finance"}))
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("user category: code = %d; want %d", rec.Code, http.StatusForbidden)
	}

	// admin creates; case-insensitive duplicates are field errors
	req, rec = newAuthRequest(http.MethodPost, "/v1/categories", adminToken,
		marshallObj(t, map[string]string{"name": "Finance"}))
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("category: code = %d; want %d; body: %s", rec.Code, http.StatusCreated, rec.Body.String())
	}
	req, rec = newAuthRequest(http.MethodPost, "/v1/categories", adminToken,
		marshallObj(t, map[string]string{"name": "FINANCE"}))
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("duplicate category: code = %d; want %d; body: %s", rec.Code, http.StatusBadRequest, rec.Body.String())
	}

	// statuses: create then rename; the rename propagates to memos
	req, rec = newAuthRequest(http.MethodPost, "/v1/statuses", adminToken,
		marshallObj(t, map[string]string{"name": "For Routing"}))
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status: code = %d; want %d; body: %s", rec.Code, http.StatusCreated, rec.Body.String())
	}
	var stat memo.Status
	if err := json.Unmarshal(rec.Body.Bytes(), &stat); err != nil {
		t.Fatalf("unmarshalling response: %v", err)
	}

	req, rec = newAuthRequest(http.MethodPut, fmt.Sprintf("/v1/statuses/%d/rename", stat.ID), adminToken,
		marshallObj(t, map[string]string{"name": "Routed"}))
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("rename: code = %d; want %d; body: %s", rec.Code, http.StatusNoContent, rec.Body.String())
	}

	req, rec = newAuthRequest(http.MethodGet, "/v1/memos/"+itoa(m.ID), adminToken)
	app.ServeHTTP(rec, req)
	var got memo.Memo
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshalling response: %v", err)
	}
	if got.Status != "Routed" {
		t.Errorf("status = %q; want %q", got.Status, "Routed")
	}
}

func Test_memoApi_controlPrefixes(t *testing.T) {
	resetDB(t)

	admin := createUser(t, "boss", "boss@test.ph", "Str0ng!Pass", user.RoleAdmin, nil, true)
	adminToken := getToken(t, admin)
	yy := memo.ControlYear(time.Now().UTC())

	req, rec := newAuthRequest(http.MethodPut, "/v1/control-prefixes", adminToken,
		marshallObj(t, map[string]string{"unit_name": "FMG", "prefix": "FMG-MEMO"}))
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("set prefix: code = %d; want %d; body: %s", rec.Code, http.StatusNoContent, rec.Body.String())
	}

	// the unit's prefix drives allocation; other units fall back to the default
	req, rec = newAuthRequest(http.MethodGet, "/v1/memos/next-control-no?unit=FMG", adminToken)
	app.ServeHTTP(rec, req)
	var preview map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &preview); err != nil {
		t.Fatalf("unmarshalling response: %v", err)
	}
	if want := memo.FormatControlNo("FMG-MEMO", yy, 1); preview["control_no"] != want {
		t.Errorf("preview = %q; want %q", preview["control_no"], want)
	}

	req, rec = newAuthRequest(http.MethodGet, "/v1/memos/next-control-no?unit=EID", adminToken)
	app.ServeHTTP(rec, req)
	if err := json.Unmarshal(rec.Body.Bytes(), &preview); err != nil {
		t.Fatalf("unmarshalling response: %v", err)
	}
	if want := memo.FormatControlNo(memo.DefaultControlPrefix, yy, 1); preview["control_no"] != want {
		t.Errorf("fallback preview = %q; want %q", preview["control_no"], want)
	}
}

func Test_memoApi_attachments(t *testing.T) {
	resetDB(t)

	m := createMemo(t, "FMG 26-001", "2026-08-01", "With files", "Logged", []string{"FMG"})

	editor := createUser(t, "editor", "editor@test.ph", "Str0ng!Pass", user.RoleUser, []string{"FMG"}, true)
	superUsr := createUser(t, "chief", "chief@test.ph", "Str0ng!Pass", user.RoleSuper, []string{"FMG"}, true)
	viewer := createUser(t, "watcher", "watcher@test.ph", "Str0ng!Pass", user.RoleViewer, []string{"FMG"}, true)
	editorToken := getToken(t, editor)
	superToken := getToken(t, superUsr)

	upload := func(t *testing.T, token, filename, content string) *httptest.ResponseRecorder {
		t.Helper()
		var buf bytes.Buffer
		w := multipart.NewWriter(&buf)
		fw, err := w.CreateFormFile("file", filename)
		if err != nil {
			t.Fatalf("CreateFormFile() failed: %v", err)
		}
		if _, err = fw.Write([]byte(content)); err != nil {
			t.Fatalf("writing form file: %v", err)
		}
		if err = w.Close(); err != nil {
			t.Fatalf("closing multipart writer: %v", err)
		}

		req := httptest.NewRequest(http.MethodPost, "/v1/memos/"+itoa(m.ID)+"/attachments", &buf)
		req.Header.Set("Content-Type", w.FormDataContentType())
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		app.ServeHTTP(rec, req)
		return rec
	}

	// viewers cannot upload
	if rec := upload(t, getToken(t, viewer), "nope.txt", "x"); rec.Code != http.StatusForbidden {
		t.Fatalf("viewer upload: code = %d; want %d", rec.Code, http.StatusForbidden)
	}

	rec := upload(t, editorToken, "report.pdf", "pdf bytes")
	if rec.Code != http.StatusCreated {
		t.Fatalf("upload: code = %d; want %d; body: %s", rec.Code, http.StatusCreated, rec.Body.String())
	}
	var att memo.Attachment
	if err := json.Unmarshal(rec.Body.Bytes(), &att); err != nil {
		t.Fatalf("unmarshalling response: %v", err)
	}
	if att.Filename != "report.pdf" {
		t.Errorf("filename = %q; want %q", att.Filename, "report.pdf")
	}

	// list
	req, rec2 := newAuthRequest(http.MethodGet, "/v1/memos/"+itoa(m.ID)+"/attachments", editorToken)
	app.ServeHTTP(rec2, req)
	var atts []memo.Attachment
	if err := json.Unmarshal(rec2.Body.Bytes(), &atts); err != nil {
		t.Fatalf("unmarshalling response: %v", err)
	}
	if len(atts) != 1 {
		t.Fatalf("attachments = %d; want 1", len(atts))
	}

	// download
	req, rec2 = newAuthRequest(http.MethodGet, fmt.Sprintf("/v1/memos/%d/attachments/%d", m.ID, att.ID), editorToken)
	app.ServeHTTP(rec2, req)
	if rec2.Code != http.StatusOK {
		t.Fatalf("download: code = %d; want %d; body: %s", rec2.Code, http.StatusOK, rec2.Body.String())
	}
	if rec2.Body.String() != "pdf bytes" {
		t.Errorf("content = %q; want %q", rec2.Body.String(), "pdf bytes")
	}

	// zip bundles are for super/admin only
	req, rec2 = newAuthRequest(http.MethodGet, "/v1/memos/"+itoa(m.ID)+"/attachments/zip", editorToken)
	app.ServeHTTP(rec2, req)
	if rec2.Code != http.StatusForbidden {
		t.Fatalf("member zip: code = %d; want %d", rec2.Code, http.StatusForbidden)
	}
	req, rec2 = newAuthRequest(http.MethodGet, "/v1/memos/"+itoa(m.ID)+"/attachments/zip", superToken)
	app.ServeHTTP(rec2, req)
	if rec2.Code != http.StatusOK {
		t.Fatalf("zip: code = %d; want %d", rec2.Code, http.StatusOK)
	}

	// delete, then the zip endpoint reports nothing to bundle
	req, rec2 = newAuthRequest(http.MethodDelete, fmt.Sprintf("/v1/memos/%d/attachments/%d", m.ID, att.ID), editorToken)
	app.ServeHTTP(rec2, req)
	if rec2.Code != http.StatusNoContent {
		t.Fatalf("delete: code = %d; want %d; body: %s", rec2.Code, http.StatusNoContent, rec2.Body.String())
	}
	req, rec2 = newAuthRequest(http.MethodGet, "/v1/memos/"+itoa(m.ID)+"/attachments/zip", superToken)
	app.ServeHTTP(rec2, req)
	if rec2.Code != http.StatusNotFound {
		t.Fatalf("empty zip: code = %d; want %d", rec2.Code, http.StatusNotFound)
	}
}

func Test_memoApi_dashboardAndExport(t *testing.T) {
	resetDB(t)

	createMemo(t, "FMG 26-001", "2026-08-01", "A", "Logged", []string{"FMG"})
	createMemo(t, "FMG 26-002", "2026-08-01", "B", "Routed", []string{"FMG"})
	createMemo(t, "EID 26-001", "2026-08-02", "C", "Logged", []string{"EID"})

	admin := createUser(t, "boss", "boss@test.ph", "Str0ng!Pass", user.RoleAdmin, nil, true)
	fmgUser := createUser(t, "fmguy", "fmguy@test.ph", "Str0ng!Pass", user.RoleUser, []string{"FMG"}, true)

	req, rec := newAuthRequest(http.MethodGet, "/v1/memos/dashboard", getToken(t, admin))
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("dashboard: code = %d; want %d", rec.Code, http.StatusOK)
	}
	var stats memo.DashboardStats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("unmarshalling response: %v", err)
	}
	if stats.Total != 3 {
		t.Errorf("total = %d; want 3", stats.Total)
	}

	// the dashboard is scoped too
	req, rec = newAuthRequest(http.MethodGet, "/v1/memos/dashboard", getToken(t, fmgUser))
	app.ServeHTTP(rec, req)
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("unmarshalling response: %v", err)
	}
	if stats.Total != 2 {
		t.Errorf("scoped total = %d; want 2", stats.Total)
	}

	// CSV export carries the visible rows
	req, rec = newAuthRequest(http.MethodGet, "/v1/memos/export", getToken(t, fmgUser))
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("export: code = %d; want %d", rec.Code, http.StatusOK)
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte("FMG 26-001")) || bytes.Contains(rec.Body.Bytes(), []byte("EID 26-001")) {
		t.Errorf("export rows out of scope:\n%s", rec.Body.String())
	}
}
