package user

import (
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/donhautea/SSS-CMS/core"
)

// Roles, by decreasing privilege. Admins see and manage everything; supers
// manage records, taxonomy and import/export within their units; users log
// and edit records for their units; viewers only read.
const (
	RoleAdmin  = "admin"
	RoleSuper  = "super"
	RoleUser   = "user"
	RoleViewer = "viewer"
)

var (
	AllRoles = []string{RoleAdmin, RoleSuper, RoleUser, RoleViewer}

	rolePriorities = map[string]int{
		RoleAdmin:  40,
		RoleSuper:  30,
		RoleUser:   20,
		RoleViewer: 10,
	}

	Roles = []Role{
		{Name: "Viewer", Value: RoleViewer},
		{Name: "User", Value: RoleUser},
		{Name: "Super User", Value: RoleSuper},
		{Name: "Admin", Value: RoleAdmin},
	}
)

func RolePriority(role string) int {
	return rolePriorities[role]
}

type Role struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Unit is an organizational division/unit. Users belong to one or more
// units; memoranda are tagged with the units they are for.
type Unit struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	IsActive bool   `json:"is_active"`
}

type User struct {
	ID           int       `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	Role         string    `json:"role"`
	IsActive     bool      `json:"is_active"`
	Units        []string  `json:"units"` // active unit names
	PasswordHash []byte    `json:"-"`
	CreatedAt    time.Time `json:"created_at"` // UTC
	UpdatedAt    time.Time `json:"updated_at"` // UTC
	LastLogin    time.Time `json:"last_login"` // UTC
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

func (u *User) IsAdmin() bool  { return u.Role == RoleAdmin }
func (u *User) IsSuper() bool  { return u.Role == RoleSuper }
func (u *User) IsViewer() bool { return u.Role == RoleViewer }

// CanLog reports whether the user may create new memoranda.
func (u *User) CanLog() bool {
	return u.Role == RoleAdmin || u.Role == RoleSuper || u.Role == RoleUser
}

// HasUnit does a case-insensitive membership check.
func (u *User) HasUnit(name string) bool {
	for _, un := range u.Units {
		if strings.EqualFold(un, name) {
			return true
		}
	}
	return false
}

// HasAnyUnit reports whether any of names is among the user's units.
func (u *User) HasAnyUnit(names []string) bool {
	for _, n := range names {
		if u.HasUnit(n) {
			return true
		}
	}
	return false
}

// Registration contains information needed for self-service sign up.
// Accounts start inactive with the "user" role and require admin approval.
type Registration struct {
	Username        string   `json:"username" validate:"required,min=3,alphanum_"`
	Email           string   `json:"email" validate:"required,email"`
	Password        string   `json:"password" validate:"required"`
	PasswordConfirm string   `json:"password_confirm" validate:"required,eqfield=Password"`
	Units           []string `json:"units"`
}

func (r *Registration) Validate(svc Service) error {
	r.Username = core.CleanString(r.Username, true /* lower */)
	r.Email = core.CleanString(r.Email, true /* lower */)
	for i, u := range r.Units {
		r.Units[i] = core.CleanString(u)
	}

	if err := core.Validate.Struct(r); err != nil {
		return err
	}
	return svc.CheckUniqueness(r.Username, r.Email)
}

// NewUser contains information needed to create a new User (admin only).
type NewUser struct {
	Username        string   `json:"username" validate:"required,min=3,alphanum_"`
	Email           string   `json:"email" validate:"required,email"`
	Password        string   `json:"password" validate:"required"`
	PasswordConfirm string   `json:"password_confirm" validate:"required,eqfield=Password"`
	Role            string   `json:"role" validate:"omitempty,role"`
	Units           []string `json:"units"`
}

func (nu *NewUser) Validate(svc Service) error {
	nu.Username = core.CleanString(nu.Username, true /* lower */)
	nu.Email = core.CleanString(nu.Email, true /* lower */)
	for i, u := range nu.Units {
		nu.Units[i] = core.CleanString(u)
	}

	if err := core.Validate.Struct(nu); err != nil {
		return err
	}
	return svc.CheckUniqueness(nu.Username, nu.Email)
}

// UpdateUser defines what information may be provided to modify an existing User.
// Units == nil leaves memberships unchanged; an empty non-nil slice clears them.
type UpdateUser struct {
	Username        string   `json:"username" validate:"omitempty,min=3,alphanum_"`
	Email           string   `json:"email" validate:"omitempty,email"`
	Role            string   `json:"role" validate:"omitempty,role"`
	IsActive        *bool    `json:"is_active"`
	Units           []string `json:"units"`
	Password        string   `json:"password"`
	PasswordConfirm string   `json:"password_confirm" validate:"required_with=Password,eqfield=Password"`
}

func (uu *UpdateUser) Validate(origUsr User, svc Service) error {
	uname := core.CleanString(uu.Username, true /* lower */)
	if uname != "" {
		uu.Username = uname
	} else {
		uu.Username = origUsr.Username
	}

	email := core.CleanString(uu.Email, true /* lower */)
	if email != "" {
		uu.Email = email
	} else {
		uu.Email = origUsr.Email
	}

	for i, u := range uu.Units {
		uu.Units[i] = core.CleanString(u)
	}

	if err := core.Validate.Struct(uu); err != nil {
		return err
	}
	return svc.CheckUniqueness(uu.Username, uu.Email, origUsr)
}

// ResetPasswordRequest starts the 3-step password reset wizard.
type ResetPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

func (r *ResetPasswordRequest) Validate() error {
	r.Email = core.CleanString(r.Email, true /* lower */)
	return core.Validate.Struct(r)
}

// VerifyResetToken is step 2: check the emailed token before asking for a
// new password.
type VerifyResetToken struct {
	Email string `json:"email" validate:"required,email"`
	Token string `json:"token" validate:"required"`
}

func (v *VerifyResetToken) Validate() error {
	v.Email = core.CleanString(v.Email, true /* lower */)
	v.Token = core.CleanString(v.Token)
	return core.Validate.Struct(v)
}

// ConfirmPasswordReset is step 3: the token plus the new password.
type ConfirmPasswordReset struct {
	Email           string `json:"email" validate:"required,email"`
	Token           string `json:"token" validate:"required"`
	Password        string `json:"password" validate:"required"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`
}

func (c *ConfirmPasswordReset) Validate() error {
	c.Email = core.CleanString(c.Email, true /* lower */)
	c.Token = core.CleanString(c.Token)
	return core.Validate.Struct(c)
}

// ResetToken is a pending password reset token. A user may have several
// pending tokens; expired ones are purged opportunistically.
type ResetToken struct {
	ID        int
	UserID    int
	Token     string
	ExpiresAt time.Time
	CreatedAt time.Time
}

func (t ResetToken) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

type QueryFilter struct {
	Search      string    `query:"search"` // matches username or email
	Role        string    `query:"role"`
	Unit        string    `query:"unit"`
	IsActive    *bool     `query:"is_active"`
	CreatedFrom time.Time `query:"created_from"`
	CreatedTo   time.Time `query:"created_to"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Search == "" && qf.Role == "" && qf.Unit == "" && qf.IsActive == nil &&
		qf.CreatedFrom.IsZero() && qf.CreatedTo.IsZero()
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.Role = core.CleanString(qf.Role, true /* lower */)
	qf.Unit = core.CleanString(qf.Unit)
}

// GetFilter selects a single user.
type GetFilter struct {
	ID              int
	Username        string
	Email           string
	UsernameOrEmail string
}
