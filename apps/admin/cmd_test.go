package main

import (
	"context"
	"testing"

	"github.com/donhautea/SSS-CMS/core/user"
	inmemdb "github.com/donhautea/SSS-CMS/storage/database/inmem"
)

func setup(t *testing.T) (*commandLine, user.Repository) {
	t.Helper()
	db := inmemdb.Open()
	repo := inmemdb.NewUserRepository(db)
	return &commandLine{usrRepo: repo}, repo
}

type cliTest struct {
	name    string
	args    []string // without program name
	pwd     string
	wantErr error
}

func Test_commandLine_run(t *testing.T) {
	cli, _ := setup(t)

	readPasswordFunc = func(fd int) ([]byte, error) { return []byte("S3cret!Pass"), nil }

	tests := []cliTest{
		{name: "no subcommand", args: []string{}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"lol"}, wantErr: errHelp},
		{name: "adduser: no flags", args: []string{"adduser"}, wantErr: errHelp},
		{name: "adduser: missing email", args: []string{"adduser", "-username", "awe"}, wantErr: errHelp},
		{name: "resetpassword: no flags", args: []string{"resetpassword"}, wantErr: errHelp},
		{name: "resetpassword: unknown user", args: []string{"resetpassword", "-username", "who"}, wantErr: user.ErrNotFound},
		{name: "addunits: no names", args: []string{"addunits"}, wantErr: errHelp},
		{name: "addunits", args: []string{"addunits", "-names", "FMG, EID"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"admin"}, tt.args...)
			if err := cli.run(args); err != tt.wantErr {
				t.Errorf("run() error = %v; want %v", err, tt.wantErr)
			}
		})
	}
}

func Test_commandLine_addUser(t *testing.T) {
	cli, repo := setup(t)
	ctx := context.Background()

	readPasswordFunc = func(fd int) ([]byte, error) { return []byte("S3cret!Pass"), nil }

	if err := cli.run([]string{"admin", "adduser", "-username", "Boss", "-email", "boss@test.ph", "-admin"}); err != nil {
		t.Fatalf("run() failed: %v", err)
	}

	usr, err := repo.GetUser(ctx, user.GetFilter{Username: "boss"})
	if err != nil {
		t.Fatalf("GetUser() failed: %v", err)
	}
	if !usr.IsAdmin() {
		t.Errorf("role = %q; want %q", usr.Role, user.RoleAdmin)
	}
	if !usr.IsActive {
		t.Error("user should be active")
	}
	if err = usr.CheckPassword("S3cret!Pass"); err != nil {
		t.Errorf("CheckPassword() failed: %v", err)
	}

	// running again updates in place
	readPasswordFunc = func(fd int) ([]byte, error) { return []byte("N3w.Secret!"), nil }
	if err = cli.run([]string{"admin", "adduser", "-username", "boss", "-email", "boss@test.ph"}); err != nil {
		t.Fatalf("run() failed: %v", err)
	}
	usr2, err := repo.GetUser(ctx, user.GetFilter{Username: "boss"})
	if err != nil {
		t.Fatalf("GetUser() failed: %v", err)
	}
	if usr2.ID != usr.ID {
		t.Errorf("ID = %d; want %d", usr2.ID, usr.ID)
	}
	if err = usr2.CheckPassword("N3w.Secret!"); err != nil {
		t.Errorf("CheckPassword() failed: %v", err)
	}
	// a plain re-add does not strip the admin role
	if !usr2.IsAdmin() {
		t.Errorf("role = %q; want %q", usr2.Role, user.RoleAdmin)
	}
}

func Test_commandLine_resetPassword(t *testing.T) {
	cli, repo := setup(t)
	ctx := context.Background()

	usr := user.User{Username: "awe", Email: "awe@test.ph", Role: user.RoleUser, IsActive: true}
	if err := usr.SetPassword("Old!Passw0rd"); err != nil {
		t.Fatalf("SetPassword() failed: %v", err)
	}
	if _, err := repo.CreateUser(ctx, usr); err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}

	readPasswordFunc = func(fd int) ([]byte, error) { return []byte("Fresh.Passw0rd"), nil }

	// by email, any case
	if err := cli.run([]string{"admin", "resetpassword", "-username", "AWE@test.ph"}); err != nil {
		t.Fatalf("run() failed: %v", err)
	}

	got, err := repo.GetUser(ctx, user.GetFilter{Username: "awe"})
	if err != nil {
		t.Fatalf("GetUser() failed: %v", err)
	}
	if err = got.CheckPassword("Fresh.Passw0rd"); err != nil {
		t.Errorf("CheckPassword() failed: %v", err)
	}
}
