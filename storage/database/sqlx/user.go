package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/donhautea/SSS-CMS/core"
	"github.com/donhautea/SSS-CMS/core/user"
)

type userRepository struct {
	db *sqlx.DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *sql.DB) *userRepository {
	return &userRepository{db: sqlx.NewDb(db, "sqlite3")}
}

type dbUser struct {
	ID           int       `db:"id"`
	Username     string    `db:"username"`
	Email        string    `db:"email"`
	PasswordHash []byte    `db:"password_hash"`
	Role         string    `db:"role"`
	IsActive     bool      `db:"is_active"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
	LastLogin    null.Time `db:"last_login"`
}

func (u dbUser) unpack(units []string) user.User {
	return user.User{
		ID:           u.ID,
		Username:     u.Username,
		Email:        u.Email,
		Role:         u.Role,
		IsActive:     u.IsActive,
		Units:        units,
		PasswordHash: u.PasswordHash,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
		LastLogin:    u.LastLogin.Time,
	}
}

type dbUnit struct {
	ID       int    `db:"id"`
	Name     string `db:"name"`
	IsActive bool   `db:"is_active"`
}

// trapNoRowsErr maps sql "no rows" err to user.ErrNotFound
func trapNoRowsErr(err error, msg string) error {
	if err == sql.ErrNoRows {
		return user.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

// trapUniqueErr maps a sqlite UNIQUE violation on the named column to
// sentinel; other errors are wrapped with msg.
func trapUniqueErr(err error, column string, sentinel error, msg string) error {
	var serr sqlite3.Error
	if errors.As(err, &serr) && serr.ExtendedCode == sqlite3.ErrConstraintUnique {
		if strings.Contains(serr.Error(), column) {
			return sentinel
		}
	}
	return errors.Wrap(err, msg)
}

func (repo userRepository) CheckUsernameUniqueness(ctx context.Context, username, email string, excludedUsers ...user.User) error {
	query := `SELECT username, email FROM users WHERE (username = ? COLLATE NOCASE OR email = ? COLLATE NOCASE)`
	args := []interface{}{username, email}
	if len(excludedUsers) > 0 {
		ids := make([]int, 0, len(excludedUsers))
		for _, u := range excludedUsers {
			ids = append(ids, u.ID)
		}
		inQuery, inArgs, err := sqlx.In(` AND id NOT IN (?)`, ids)
		if err != nil {
			return errors.Wrap(err, "checking user uniqueness")
		}
		query += inQuery
		args = append(args, inArgs...)
	}

	var clashes []dbUser
	if err := repo.db.SelectContext(ctx, &clashes, repo.db.Rebind(query), args...); err != nil {
		return errors.Wrap(err, "checking user uniqueness")
	}
	for _, u := range clashes {
		if strings.EqualFold(u.Username, username) {
			return user.ErrUsernameExists
		}
	}
	if len(clashes) > 0 {
		return user.ErrEmailExists
	}
	return nil
}

func (repo userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO users (username, email, password_hash, role, is_active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		usr.Username, usr.Email, usr.PasswordHash, usr.Role, usr.IsActive, usr.CreatedAt, usr.UpdatedAt,
	)
	if err != nil {
		if uerr := trapUniqueErr(err, "users.username", user.ErrUsernameExists, "inserting user"); uerr == user.ErrUsernameExists {
			return user.User{}, uerr
		}
		return user.User{}, trapUniqueErr(err, "users.email", user.ErrEmailExists, "inserting user")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	usr.ID = int(id)

	if err = setUserUnits(ctx, tx, usr.ID, usr.Units); err != nil {
		return user.User{}, err
	}
	if err = tx.Commit(); err != nil {
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	return usr, nil
}

// setUserUnits replaces a user's memberships, creating missing units.
func setUserUnits(ctx context.Context, tx *sqlx.Tx, userID int, units []string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM user_units WHERE user_id = ?`, userID); err != nil {
		return errors.Wrap(err, "clearing user units")
	}
	for _, name := range units {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO units (name, is_active) VALUES (?, 1) ON CONFLICT (name) DO NOTHING`, name,
		); err != nil {
			return errors.Wrap(err, "ensuring unit")
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO user_units (user_id, unit_id) SELECT ?, id FROM units WHERE name = ? COLLATE NOCASE
			 ON CONFLICT (user_id, unit_id) DO NOTHING`,
			userID, name,
		); err != nil {
			return errors.Wrap(err, "assigning unit")
		}
	}
	return nil
}

func (repo userRepository) userUnits(ctx context.Context, userID int) ([]string, error) {
	var units []string
	err := repo.db.SelectContext(ctx, &units,
		`SELECT un.name FROM units un
		 JOIN user_units uu ON uu.unit_id = un.id
		 WHERE uu.user_id = ? AND un.is_active = 1
		 ORDER BY un.name ASC`,
		userID,
	)
	return units, errors.Wrap(err, "loading user units")
}

func (repo userRepository) GetUser(ctx context.Context, filter user.GetFilter) (user.User, error) {
	var (
		query string
		arg   interface{}
	)
	switch {
	case filter.ID != 0:
		query, arg = `SELECT * FROM users WHERE id = ?`, filter.ID
	case filter.Username != "":
		query, arg = `SELECT * FROM users WHERE username = ? COLLATE NOCASE`, filter.Username
	case filter.Email != "":
		query, arg = `SELECT * FROM users WHERE email = ? COLLATE NOCASE`, filter.Email
	case filter.UsernameOrEmail != "":
		var u dbUser
		err := repo.db.GetContext(ctx, &u,
			`SELECT * FROM users WHERE username = ? COLLATE NOCASE OR email = ? COLLATE NOCASE`,
			filter.UsernameOrEmail, filter.UsernameOrEmail,
		)
		if err != nil {
			return user.User{}, trapNoRowsErr(err, "finding user")
		}
		return repo.withUnits(ctx, u)
	default:
		return user.User{}, user.ErrNotFound
	}

	var u dbUser
	if err := repo.db.GetContext(ctx, &u, query, arg); err != nil {
		return user.User{}, trapNoRowsErr(err, "finding user")
	}
	return repo.withUnits(ctx, u)
}

func (repo userRepository) withUnits(ctx context.Context, u dbUser) (user.User, error) {
	units, err := repo.userUnits(ctx, u.ID)
	if err != nil {
		return user.User{}, err
	}
	return u.unpack(units), nil
}

func (repo userRepository) QueryUsers(ctx context.Context, filter *user.QueryFilter, ordering ...core.DBOrdering) ([]user.User, error) {
	query := `SELECT * FROM users`
	var (
		conds []string
		args  []interface{}
	)

	if filter != nil {
		if filter.Search != "" {
			conds = append(conds, `(username LIKE ? COLLATE NOCASE OR email LIKE ? COLLATE NOCASE)`)
			val := "%" + filter.Search + "%"
			args = append(args, val, val)
		}
		if filter.Role != "" {
			conds = append(conds, `role = ?`)
			args = append(args, filter.Role)
		}
		if filter.Unit != "" {
			conds = append(conds, `id IN (
				SELECT uu.user_id FROM user_units uu
				JOIN units un ON un.id = uu.unit_id
				WHERE un.name = ? COLLATE NOCASE)`)
			args = append(args, filter.Unit)
		}
		if filter.IsActive != nil {
			conds = append(conds, `is_active = ?`)
			args = append(args, *filter.IsActive)
		}
		if !filter.CreatedFrom.IsZero() {
			conds = append(conds, `created_at >= ?`)
			args = append(args, filter.CreatedFrom.UTC())
		}
		if !filter.CreatedTo.IsZero() {
			conds = append(conds, `created_at <= ?`)
			args = append(args, filter.CreatedTo.UTC())
		}
	}
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, ` AND `)
	}

	if len(ordering) > 0 {
		orderList := make([]string, 0, len(ordering))
		for _, ord := range ordering {
			orderList = append(orderList, ord.String())
		}
		query += ` ORDER BY ` + strings.Join(orderList, ", ")
	} else {
		query += ` ORDER BY username ASC`
	}

	var rows []dbUser
	if err := repo.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "querying users")
	}

	users := make([]user.User, 0, len(rows))
	for _, u := range rows {
		usr, err := repo.withUnits(ctx, u)
		if err != nil {
			return nil, err
		}
		users = append(users, usr)
	}
	return users, nil
}

func (repo userRepository) UpdateUser(ctx context.Context, usr user.User, isActive *bool, units []string) (user.User, error) {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return user.User{}, errors.Wrap(err, "updating user")
	}
	defer func() { _ = tx.Rollback() }()

	sets := []string{`updated_at = ?`}
	args := []interface{}{usr.UpdatedAt}
	if usr.Username != "" {
		sets = append(sets, `username = ?`)
		args = append(args, usr.Username)
	}
	if usr.Email != "" {
		sets = append(sets, `email = ?`)
		args = append(args, usr.Email)
	}
	if usr.Role != "" {
		sets = append(sets, `role = ?`)
		args = append(args, usr.Role)
	}
	if len(usr.PasswordHash) > 0 {
		sets = append(sets, `password_hash = ?`)
		args = append(args, usr.PasswordHash)
	}
	if isActive != nil {
		sets = append(sets, `is_active = ?`)
		args = append(args, *isActive)
	}
	args = append(args, usr.ID)

	res, err := tx.ExecContext(ctx, `UPDATE users SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		if uerr := trapUniqueErr(err, "users.username", user.ErrUsernameExists, "updating user"); uerr == user.ErrUsernameExists {
			return user.User{}, uerr
		}
		return user.User{}, trapUniqueErr(err, "users.email", user.ErrEmailExists, "updating user")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return user.User{}, user.ErrNotFound
	}

	if units != nil {
		if err = setUserUnits(ctx, tx, usr.ID, units); err != nil {
			return user.User{}, err
		}
	}
	if err = tx.Commit(); err != nil {
		return user.User{}, errors.Wrap(err, "updating user")
	}
	return repo.GetUser(ctx, user.GetFilter{ID: usr.ID})
}

func (repo userRepository) UpdateOrCreateUser(ctx context.Context, usr user.User) (user.User, error) {
	if usr.ID == 0 {
		return repo.CreateUser(ctx, usr)
	}
	return repo.UpdateUser(ctx, usr, &usr.IsActive, usr.Units)
}

func (repo userRepository) SetLastLogin(ctx context.Context, usr user.User, t time.Time) (user.User, error) {
	if _, err := repo.db.ExecContext(ctx, `UPDATE users SET last_login = ? WHERE id = ?`, t, usr.ID); err != nil {
		return user.User{}, errors.Wrap(err, "setting last login")
	}
	usr.LastLogin = t
	return usr, nil
}

func (repo userRepository) DeleteUsersByID(ctx context.Context, ids ...int) error {
	query, args, err := sqlx.In(`DELETE FROM users WHERE id IN (?)`, ids)
	if err != nil {
		return errors.Wrap(err, "deleting users")
	}
	_, err = repo.db.ExecContext(ctx, repo.db.Rebind(query), args...)
	return errors.Wrap(err, "deleting users")
}

func (repo userRepository) QueryUnits(ctx context.Context, activeOnly bool) ([]user.Unit, error) {
	query := `SELECT * FROM units`
	if activeOnly {
		query += ` WHERE is_active = 1`
	}
	query += ` ORDER BY name ASC`

	var rows []dbUnit
	if err := repo.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, errors.Wrap(err, "querying units")
	}
	units := make([]user.Unit, 0, len(rows))
	for _, u := range rows {
		units = append(units, user.Unit(u))
	}
	return units, nil
}

func (repo userRepository) EnsureUnits(ctx context.Context, names []string) ([]user.Unit, error) {
	for _, name := range names {
		if _, err := repo.db.ExecContext(ctx,
			`INSERT INTO units (name, is_active) VALUES (?, 1) ON CONFLICT (name) DO NOTHING`, name,
		); err != nil {
			return nil, errors.Wrap(err, "ensuring unit")
		}
	}
	return repo.QueryUnits(ctx, false)
}

func (repo userRepository) SetUnitActive(ctx context.Context, id int, active bool) error {
	_, err := repo.db.ExecContext(ctx, `UPDATE units SET is_active = ? WHERE id = ?`, active, id)
	return errors.Wrap(err, "toggling unit")
}

func (repo userRepository) CreateResetToken(ctx context.Context, tok user.ResetToken) (user.ResetToken, error) {
	res, err := repo.db.ExecContext(ctx,
		`INSERT INTO password_reset_tokens (user_id, token, expires_at, created_at) VALUES (?, ?, ?, ?)`,
		tok.UserID, tok.Token, tok.ExpiresAt, tok.CreatedAt,
	)
	if err != nil {
		return user.ResetToken{}, errors.Wrap(err, "inserting reset token")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return user.ResetToken{}, errors.Wrap(err, "inserting reset token")
	}
	tok.ID = int(id)
	return tok, nil
}

func (repo userRepository) GetResetToken(ctx context.Context, email, token string, now time.Time) (user.ResetToken, error) {
	var tok struct {
		ID        int       `db:"id"`
		UserID    int       `db:"user_id"`
		Token     string    `db:"token"`
		ExpiresAt time.Time `db:"expires_at"`
		CreatedAt time.Time `db:"created_at"`
	}
	err := repo.db.GetContext(ctx, &tok,
		`SELECT pr.id, pr.user_id, pr.token, pr.expires_at, pr.created_at
		 FROM password_reset_tokens pr
		 JOIN users u ON u.id = pr.user_id
		 WHERE u.email = ? COLLATE NOCASE AND pr.token = ? AND pr.expires_at > ?
		 ORDER BY pr.created_at DESC
		 LIMIT 1`,
		email, token, now,
	)
	if err != nil {
		return user.ResetToken{}, trapNoRowsErr(err, "finding reset token")
	}
	return user.ResetToken(tok), nil
}

func (repo userRepository) DeleteUserResetTokens(ctx context.Context, userID int) error {
	_, err := repo.db.ExecContext(ctx, `DELETE FROM password_reset_tokens WHERE user_id = ?`, userID)
	return errors.Wrap(err, "deleting reset tokens")
}

func (repo userRepository) PurgeExpiredResetTokens(ctx context.Context, now time.Time) error {
	_, err := repo.db.ExecContext(ctx, `DELETE FROM password_reset_tokens WHERE expires_at < ?`, now)
	return errors.Wrap(err, "purging reset tokens")
}
