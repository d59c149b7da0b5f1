package user

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"time"

	"github.com/donhautea/SSS-CMS/core"
)

var (
	// errors
	ErrNotFound          = errors.New("user not found")
	ErrEmailExists       = errors.New("a user with this email already exists")
	ErrUsernameExists    = errors.New("a user with this username already exists")
	ErrInvalidResetToken = errors.New("invalid or expired token")

	nowFunc = time.Now // mockable
)

type (
	Repository interface {
		CheckUsernameUniqueness(ctx context.Context, username, email string, excludedUsers ...User) error
		CreateUser(ctx context.Context, usr User) (User, error)
		GetUser(ctx context.Context, filter GetFilter) (User, error)
		// QueryUsers applies AND on available QueryFilter fields.
		// QueryFilter.Search does a case-insensitive match on Username or Email.
		QueryUsers(ctx context.Context, filter *QueryFilter, ordering ...core.DBOrdering) ([]User, error)
		// UpdateUser persists non-zero fields of usr; isActive is applied when
		// non-nil and units replaces memberships when non-nil.
		UpdateUser(ctx context.Context, usr User, isActive *bool, units []string) (User, error)
		UpdateOrCreateUser(ctx context.Context, usr User) (User, error)
		SetLastLogin(ctx context.Context, usr User, t time.Time) (User, error)
		DeleteUsersByID(ctx context.Context, ids ...int) error

		QueryUnits(ctx context.Context, activeOnly bool) ([]Unit, error)
		// EnsureUnits creates any missing units (case-insensitive match on
		// name, original casing preserved) and returns them all.
		EnsureUnits(ctx context.Context, names []string) ([]Unit, error)
		SetUnitActive(ctx context.Context, id int, active bool) error

		CreateResetToken(ctx context.Context, tok ResetToken) (ResetToken, error)
		// GetResetToken returns the latest unexpired token matching email+token.
		GetResetToken(ctx context.Context, email, token string, now time.Time) (ResetToken, error)
		DeleteUserResetTokens(ctx context.Context, userID int) error
		PurgeExpiredResetTokens(ctx context.Context, now time.Time) error
	}

	Service interface {
		CheckUniqueness(uname, email string, exclUsers ...User) error
		Register(ctx context.Context, reg Registration) (User, error)
		Create(ctx context.Context, nu NewUser) (User, error)
		QueryAll(ctx context.Context) ([]User, error)
		Filter(ctx context.Context, filter QueryFilter, ordering ...core.DBOrdering) ([]User, error)
		GetByID(ctx context.Context, id int) (User, error)
		GetByEmail(ctx context.Context, email string) (User, error)
		GetByUsernameOrEmail(ctx context.Context, uname string) (User, error)
		Update(ctx context.Context, id int, uu UpdateUser) (User, error)
		Delete(ctx context.Context, ids ...int) error
		SetLastLogin(ctx context.Context, usr User) (User, error)

		QueryUnits(ctx context.Context, activeOnly bool) ([]Unit, error)
		EnsureUnits(ctx context.Context, names []string) ([]Unit, error)
		SetUnitActive(ctx context.Context, id int, active bool) error

		RequestPasswordReset(ctx context.Context, email string) error
		VerifyPasswordReset(ctx context.Context, email, token string) error
		ConfirmPasswordReset(ctx context.Context, cr ConfirmPasswordReset) error
	}

	service struct {
		repo    Repository
		mailSvc core.EmailService
		conf    *core.Config
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, mailSvc core.EmailService, conf *core.Config) *service {
	return &service{
		repo:    repo,
		mailSvc: mailSvc,
		conf:    conf,
	}
}

func (svc *service) CheckUniqueness(uname, email string, exclUsers ...User) error {
	if err := svc.repo.CheckUsernameUniqueness(context.Background(), uname, email, exclUsers...); err != nil {
		var field string
		switch err {
		case ErrUsernameExists:
			field = "username"
		case ErrEmailExists:
			field = "email"
		default:
			return err
		}
		return core.NewValidationError(err, core.FieldError{Field: field, Error: err.Error()})
	}
	return nil
}

// Register creates an inactive "user"-role account pending admin approval.
func (svc *service) Register(ctx context.Context, reg Registration) (User, error) {
	now := nowFunc().UTC()
	usr := User{
		Username:  reg.Username,
		Email:     reg.Email,
		Role:      RoleUser,
		IsActive:  false,
		Units:     reg.Units,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := usr.SetPassword(reg.Password); err != nil {
		return User{}, err
	}
	return svc.repo.CreateUser(ctx, usr)
}

func (svc *service) Create(ctx context.Context, nu NewUser) (User, error) {
	now := nowFunc().UTC()
	role := nu.Role
	if role == "" {
		role = RoleUser
	}
	usr := User{
		Username:  nu.Username,
		Email:     nu.Email,
		Role:      role,
		IsActive:  true,
		Units:     nu.Units,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, err
	}
	return svc.repo.CreateUser(ctx, usr)
}

func (svc *service) QueryAll(ctx context.Context) ([]User, error) {
	return svc.repo.QueryUsers(ctx, nil)
}

func (svc *service) Filter(ctx context.Context, filter QueryFilter, ordering ...core.DBOrdering) ([]User, error) {
	filter.Clean()
	if filter.IsEmpty() {
		return svc.repo.QueryUsers(ctx, nil, ordering...)
	}
	return svc.repo.QueryUsers(ctx, &filter, ordering...)
}

func (svc *service) GetByID(ctx context.Context, id int) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{ID: id})
}

func (svc *service) GetByEmail(ctx context.Context, email string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{Email: core.CleanString(email, true /* lower */)})
}

func (svc *service) GetByUsernameOrEmail(ctx context.Context, uname string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{UsernameOrEmail: core.CleanString(uname, true /* lower */)})
}

func (svc *service) Update(ctx context.Context, id int, uu UpdateUser) (User, error) {
	usr := User{
		ID:        id,
		Username:  uu.Username,
		Email:     uu.Email,
		Role:      uu.Role,
		UpdatedAt: nowFunc().UTC(),
	}
	if uu.Password != "" {
		if err := usr.SetPassword(uu.Password); err != nil {
			return User{}, err
		}
	}
	return svc.repo.UpdateUser(ctx, usr, uu.IsActive, uu.Units)
}

func (svc *service) Delete(ctx context.Context, ids ...int) error {
	return svc.repo.DeleteUsersByID(ctx, ids...)
}

func (svc *service) SetLastLogin(ctx context.Context, usr User) (User, error) {
	return svc.repo.SetLastLogin(ctx, usr, nowFunc().UTC())
}

func (svc *service) QueryUnits(ctx context.Context, activeOnly bool) ([]Unit, error) {
	return svc.repo.QueryUnits(ctx, activeOnly)
}

func (svc *service) EnsureUnits(ctx context.Context, names []string) ([]Unit, error) {
	cleaned := make([]string, 0, len(names))
	for _, n := range names {
		if n = core.CleanString(n); n != "" {
			cleaned = append(cleaned, n)
		}
	}
	return svc.repo.EnsureUnits(ctx, cleaned)
}

func (svc *service) SetUnitActive(ctx context.Context, id int, active bool) error {
	return svc.repo.SetUnitActive(ctx, id, active)
}

// RequestPasswordReset generates a short numeric token, stores it with an
// expiry and mails it to the account's address. Step 1 of the wizard.
func (svc *service) RequestPasswordReset(ctx context.Context, email string) error {
	usr, err := svc.GetByEmail(ctx, email)
	if err != nil {
		return err
	}

	now := nowFunc().UTC()
	_ = svc.repo.PurgeExpiredResetTokens(ctx, now)

	token, err := generateResetToken(resetTokenLength)
	if err != nil {
		return err
	}
	if _, err = svc.repo.CreateResetToken(ctx, ResetToken{
		UserID:    usr.ID,
		Token:     token,
		ExpiresAt: now.Add(svc.conf.PasswordResetTimeout),
		CreatedAt: now,
	}); err != nil {
		return err
	}

	go svc.sendPasswordResetMail(usr, token)
	return nil
}

// VerifyPasswordReset is step 2: check an emailed token without consuming it.
func (svc *service) VerifyPasswordReset(ctx context.Context, email, token string) error {
	now := nowFunc().UTC()
	_ = svc.repo.PurgeExpiredResetTokens(ctx, now)

	if _, err := svc.repo.GetResetToken(ctx, email, token, now); err != nil {
		if err == ErrNotFound {
			return ErrInvalidResetToken
		}
		return err
	}
	return nil
}

// ConfirmPasswordReset is step 3: re-verify the token, set the new password
// and invalidate all the user's pending tokens.
func (svc *service) ConfirmPasswordReset(ctx context.Context, cr ConfirmPasswordReset) error {
	now := nowFunc().UTC()
	tok, err := svc.repo.GetResetToken(ctx, cr.Email, cr.Token, now)
	if err != nil {
		if err == ErrNotFound {
			return ErrInvalidResetToken
		}
		return err
	}

	usr, err := svc.GetByID(ctx, tok.UserID)
	if err != nil {
		return err
	}
	if err = usr.SetPassword(cr.Password); err != nil {
		return err
	}
	usr.UpdatedAt = now
	if _, err = svc.repo.UpdateUser(ctx, usr, nil, nil); err != nil {
		return err
	}
	return svc.repo.DeleteUserResetTokens(ctx, usr.ID)
}

func (svc *service) sendPasswordResetMail(usr User, token string) {
	svc.mailSvc.SendMessages(
		&core.EmailMessage{
			To:           []mail.Address{{Name: usr.Username, Address: usr.Email}},
			Subject:      "Password Reset Token",
			TemplateName: "password-reset",
			TemplateData: struct {
				Username string
				Token    string
				Validity string
			}{usr.Username, token, fmt.Sprintf("%d minutes", int(svc.conf.PasswordResetTimeout.Minutes()))},
		},
	)
}
