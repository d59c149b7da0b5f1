package tests

import (
	"encoding/json"
	"net/http"
	"regexp"
	"testing"

	"github.com/donhautea/SSS-CMS/core/user"
	emailsvc "github.com/donhautea/SSS-CMS/services/email"
)

var resetTokenRegex = regexp.MustCompile(`Your reset token is: (\d+)`)

func Test_userApi_login(t *testing.T) {
	resetDB(t)

	createUser(t, "awe", "awe@test.ph", "Str0ng!Pass", user.RoleUser, []string{"FMG"}, true)
	createUser(t, "pending", "pending@test.ph", "Str0ng!Pass", user.RoleUser, nil, false)

	tests := []httpTest{
		{
			name: "empty body", method: http.MethodPost, path: "/v1/users/login",
			body: marshallObj(t, map[string]string{}), wantCode: http.StatusBadRequest,
		},
		{
			name: "unknown user", method: http.MethodPost, path: "/v1/users/login",
			body:     marshallObj(t, map[string]string{"username": "who", "password": "Str0ng!Pass"}),
			wantCode: http.StatusBadRequest, wantData: marshallObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name: "wrong password", method: http.MethodPost, path: "/v1/users/login",
			body:     marshallObj(t, map[string]string{"username": "awe", "password": "nope"}),
			wantCode: http.StatusBadRequest, wantData: marshallObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name: "inactive account pending approval", method: http.MethodPost, path: "/v1/users/login",
			body:     marshallObj(t, map[string]string{"username": "pending", "password": "Str0ng!Pass"}),
			wantCode: http.StatusForbidden, wantData: marshallObj(t, httpErr{Error: "account pending approval"}),
		},
		{
			name: "login with username", method: http.MethodPost, path: "/v1/users/login",
			body:     marshallObj(t, map[string]string{"username": "awe", "password": "Str0ng!Pass"}),
			wantCode: http.StatusOK,
		},
		{
			name: "login with email", method: http.MethodPost, path: "/v1/users/login",
			body:     marshallObj(t, map[string]string{"username": "AWE@test.ph", "password": "Str0ng!Pass"}),
			wantCode: http.StatusOK,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(tt.method, tt.path, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)

			if rec.Code == http.StatusOK {
				var resp struct {
					Token string `json:"token"`
				}
				if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
					t.Fatalf("unmarshalling response: %v", err)
				}
				if resp.Token == "" {
					t.Error("token is empty")
				}
			}
		})
	}
}

func Test_userApi_register(t *testing.T) {
	resetDB(t)

	createUser(t, "taken", "taken@test.ph", "Str0ng!Pass", user.RoleUser, nil, true)

	body := marshallObj(t, map[string]interface{}{
		"username":         "newbie",
		"email":            "newbie@test.ph",
		"password":         "V3ry.Secure",
		"password_confirm": "V3ry.Secure",
		"units":            []string{"FMG"},
	})
	req, rec := newRequest(http.MethodPost, "/v1/users/register", body)
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("code = %d; want %d; body: %s", rec.Code, http.StatusCreated, rec.Body.String())
	}

	var usr user.User
	if err := json.Unmarshal(rec.Body.Bytes(), &usr); err != nil {
		t.Fatalf("unmarshalling response: %v", err)
	}
	if usr.IsActive {
		t.Error("self-registered account should start inactive")
	}
	if usr.Role != user.RoleUser {
		t.Errorf("role = %q; want %q", usr.Role, user.RoleUser)
	}

	// taken username
	body = marshallObj(t, map[string]interface{}{
		"username":         "taken",
		"email":            "other@test.ph",
		"password":         "V3ry.Secure",
		"password_confirm": "V3ry.Secure",
	})
	req, rec = newRequest(http.MethodPost, "/v1/users/register", body)
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("code = %d; want %d; body: %s", rec.Code, http.StatusBadRequest, rec.Body.String())
	}

	// weak password
	body = marshallObj(t, map[string]interface{}{
		"username":         "weakling",
		"email":            "weak@test.ph",
		"password":         "12345678",
		"password_confirm": "12345678",
	})
	req, rec = newRequest(http.MethodPost, "/v1/users/register", body)
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("code = %d; want %d; body: %s", rec.Code, http.StatusBadRequest, rec.Body.String())
	}
}

// Test_userApi_passwordResetWizard walks the 3 steps: request the token by
// email, verify it, then confirm with the new password.
func Test_userApi_passwordResetWizard(t *testing.T) {
	resetDB(t)

	createUser(t, "forgetful", "lost@test.ph", "Old!Passw0rd", user.RoleUser, nil, true)

	// step 1: request
	body := marshallObj(t, map[string]string{"email": "lost@test.ph"})
	req, rec := newRequest(http.MethodPost, "/v1/users/password-reset", body)
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d; want %d; body: %s", rec.Code, http.StatusOK, rec.Body.String())
	}
	if len(emailsvc.SentMessages) != 1 {
		t.Fatalf("sent messages = %d; want 1", len(emailsvc.SentMessages))
	}
	match := resetTokenRegex.FindStringSubmatch(emailsvc.SentMessages[0].TextContent)
	if match == nil {
		t.Fatalf("token not found in email:\n%s", emailsvc.SentMessages[0].TextContent)
	}
	token := match[1]

	// unknown email leaks nothing
	req, rec = newRequest(http.MethodPost, "/v1/users/password-reset", marshallObj(t, map[string]string{"email": "who@test.ph"}))
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d; want %d", rec.Code, http.StatusOK)
	}

	// step 2: verify
	req, rec = newRequest(http.MethodPost, "/v1/users/password-reset-verify",
		marshallObj(t, map[string]string{"email": "lost@test.ph", "token": "000000"}))
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad token: code = %d; want %d; body: %s", rec.Code, http.StatusBadRequest, rec.Body.String())
	}

	req, rec = newRequest(http.MethodPost, "/v1/users/password-reset-verify",
		marshallObj(t, map[string]string{"email": "lost@test.ph", "token": token}))
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("good token: code = %d; want %d; body: %s", rec.Code, http.StatusOK, rec.Body.String())
	}

	// step 3: confirm
	req, rec = newRequest(http.MethodPost, "/v1/users/password-reset-confirm",
		marshallObj(t, map[string]string{
			"email":            "lost@test.ph",
			"token":            token,
			"password":         "Fresh.Passw0rd",
			"password_confirm": "Fresh.Passw0rd",
		}))
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("confirm: code = %d; want %d; body: %s", rec.Code, http.StatusOK, rec.Body.String())
	}

	// token is consumed
	req, rec = newRequest(http.MethodPost, "/v1/users/password-reset-verify",
		marshallObj(t, map[string]string{"email": "lost@test.ph", "token": token}))
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("consumed token: code = %d; want %d", rec.Code, http.StatusBadRequest)
	}

	// and the new password works
	req, rec = newRequest(http.MethodPost, "/v1/users/login",
		marshallObj(t, map[string]string{"username": "forgetful", "password": "Fresh.Passw0rd"}))
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("login: code = %d; want %d; body: %s", rec.Code, http.StatusOK, rec.Body.String())
	}
}

func Test_userApi_userQuery(t *testing.T) {
	resetDB(t)

	usr := createUser(t, "plain", "plain@test.ph", "Str0ng!Pass", user.RoleUser, []string{"FMG"}, true)
	viewer := createUser(t, "watcher", "watcher@test.ph", "Str0ng!Pass", user.RoleViewer, nil, true)
	admin := createUser(t, "boss", "boss@test.ph", "Str0ng!Pass", user.RoleAdmin, nil, true)

	adminToken := getToken(t, admin)

	tests := []httpTest{
		{name: "auth required", method: http.MethodGet, path: "/v1/users", wantCode: http.StatusUnauthorized, wantData: marshallObj(t, errMissingToken)},
		{
			name: "admin required", method: http.MethodGet, path: "/v1/users", token: getToken(t, usr),
			wantCode: http.StatusForbidden, wantData: marshallObj(t, errForbidden),
		},
		{
			name: "get all", method: http.MethodGet, path: "/v1/users", token: adminToken,
			wantCode: http.StatusOK, wantData: marshallList(t, usr, viewer, admin),
		},
		{
			name: "filter role=viewer", method: http.MethodGet, path: "/v1/users?role=viewer", token: adminToken,
			wantCode: http.StatusOK, wantData: marshallList(t, viewer),
		},
		{
			name: "filter unit=FMG", method: http.MethodGet, path: "/v1/users?unit=FMG", token: adminToken,
			wantCode: http.StatusOK, wantData: marshallList(t, usr),
		},
		{
			name: "search", method: http.MethodGet, path: "/v1/users?search=watch", token: adminToken,
			wantCode: http.StatusOK, wantData: marshallList(t, viewer),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_userApi_update(t *testing.T) {
	resetDB(t)

	usr := createUser(t, "plain", "plain@test.ph", "Str0ng!Pass", user.RoleUser, []string{"FMG"}, true)
	other := createUser(t, "other", "other@test.ph", "Str0ng!Pass", user.RoleUser, nil, true)
	admin := createUser(t, "boss", "boss@test.ph", "Str0ng!Pass", user.RoleAdmin, nil, true)

	usrToken := getToken(t, usr)
	adminToken := getToken(t, admin)

	// a user cannot see someone else's detail
	req, rec := newAuthRequest(http.MethodGet, "/v1/users/"+itoa(other.ID), usrToken)
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("code = %d; want %d", rec.Code, http.StatusNotFound)
	}

	// a user cannot promote themselves
	req, rec = newAuthRequest(http.MethodPut, "/v1/users/"+itoa(usr.ID), usrToken,
		marshallObj(t, map[string]string{"role": user.RoleAdmin}))
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("code = %d; want %d; body: %s", rec.Code, http.StatusForbidden, rec.Body.String())
	}

	// admin promotes and activates
	isActive := true
	req, rec = newAuthRequest(http.MethodPut, "/v1/users/"+itoa(usr.ID), adminToken,
		marshallObj(t, map[string]interface{}{"role": user.RoleSuper, "is_active": isActive, "units": []string{"FMG", "EID"}}))
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d; want %d; body: %s", rec.Code, http.StatusOK, rec.Body.String())
	}
	var updated user.User
	if err := json.Unmarshal(rec.Body.Bytes(), &updated); err != nil {
		t.Fatalf("unmarshalling response: %v", err)
	}
	if updated.Role != user.RoleSuper {
		t.Errorf("role = %q; want %q", updated.Role, user.RoleSuper)
	}
	if len(updated.Units) != 2 {
		t.Errorf("units = %v; want 2 units", updated.Units)
	}

	// admin cannot delete themselves
	req, rec = newAuthRequest(http.MethodDelete, "/v1/users/"+itoa(admin.ID), adminToken)
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("code = %d; want %d", rec.Code, http.StatusForbidden)
	}

	// admin deletes another user
	req, rec = newAuthRequest(http.MethodDelete, "/v1/users/"+itoa(other.ID), adminToken)
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("code = %d; want %d; body: %s", rec.Code, http.StatusNoContent, rec.Body.String())
	}
}

func Test_userApi_units(t *testing.T) {
	resetDB(t)

	usr := createUser(t, "plain", "plain@test.ph", "Str0ng!Pass", user.RoleUser, nil, true)
	admin := createUser(t, "boss", "boss@test.ph", "Str0ng!Pass", user.RoleAdmin, nil, true)

	adminToken := getToken(t, admin)

	// admin creates units
	req, rec := newAuthRequest(http.MethodPost, "/v1/users/units", adminToken,
		marshallObj(t, map[string][]string{"names": {"FMG", "EID", "IS"}}))
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("code = %d; want %d; body: %s", rec.Code, http.StatusCreated, rec.Body.String())
	}

	// non-admin cannot
	req, rec = newAuthRequest(http.MethodPost, "/v1/users/units", getToken(t, usr),
		marshallObj(t, map[string][]string{"names": {"LEGAL"}}))
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("code = %d; want %d", rec.Code, http.StatusForbidden)
	}

	// everyone authed can list
	req, rec = newAuthRequest(http.MethodGet, "/v1/users/units", getToken(t, usr))
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d; want %d", rec.Code, http.StatusOK)
	}
	var units []user.Unit
	if err := json.Unmarshal(rec.Body.Bytes(), &units); err != nil {
		t.Fatalf("unmarshalling response: %v", err)
	}
	if len(units) != 3 {
		t.Fatalf("units = %d; want 3", len(units))
	}
}
