package inmemdb

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/donhautea/SSS-CMS/core"
	"github.com/donhautea/SSS-CMS/core/user"
)

type userRepository struct {
	db *DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *DB) *userRepository {
	return &userRepository{db: db}
}

func (repo *userRepository) queryLocked() []user.User {
	users := make([]user.User, 0, len(repo.db.users))
	for _, u := range repo.db.users {
		users = append(users, *u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users
}

func (repo *userRepository) CheckUsernameUniqueness(ctx context.Context, username, email string, excludedUsers ...user.User) error {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	excluded := make(map[int]bool, len(excludedUsers))
	for _, u := range excludedUsers {
		excluded[u.ID] = true
	}

	for _, usr := range repo.queryLocked() {
		if excluded[usr.ID] {
			continue
		}
		if strings.EqualFold(usr.Username, username) {
			return user.ErrUsernameExists
		}
		if strings.EqualFold(usr.Email, email) {
			return user.ErrEmailExists
		}
	}
	return nil
}

func (repo *userRepository) ensureUnitsLocked(names []string) {
	for _, name := range names {
		exists := false
		for _, un := range repo.db.units {
			if strings.EqualFold(un.Name, name) {
				exists = true
				break
			}
		}
		if !exists {
			repo.db.unitPK++
			repo.db.units[repo.db.unitPK] = &user.Unit{ID: repo.db.unitPK, Name: name, IsActive: true}
		}
	}
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	repo.db.userPK++
	usr.ID = repo.db.userPK
	repo.ensureUnitsLocked(usr.Units)
	repo.db.users[usr.ID] = &usr
	return usr, nil
}

func (repo *userRepository) GetUser(ctx context.Context, filter user.GetFilter) (user.User, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, usr := range repo.queryLocked() {
		switch {
		case filter.ID != 0 && usr.ID == filter.ID:
			return usr, nil
		case filter.Username != "" && strings.EqualFold(usr.Username, filter.Username):
			return usr, nil
		case filter.Email != "" && strings.EqualFold(usr.Email, filter.Email):
			return usr, nil
		case filter.UsernameOrEmail != "" &&
			(strings.EqualFold(usr.Username, filter.UsernameOrEmail) || strings.EqualFold(usr.Email, filter.UsernameOrEmail)):
			return usr, nil
		}
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) QueryUsers(ctx context.Context, filter *user.QueryFilter, ordering ...core.DBOrdering) ([]user.User, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	users := repo.queryLocked()
	if filter == nil {
		return users, nil
	}

	matched := make([]user.User, 0, len(users))
	for _, usr := range users {
		if filter.Search != "" &&
			!strings.Contains(strings.ToLower(usr.Username), strings.ToLower(filter.Search)) &&
			!strings.Contains(strings.ToLower(usr.Email), strings.ToLower(filter.Search)) {
			continue
		}
		if filter.Role != "" && usr.Role != filter.Role {
			continue
		}
		if filter.Unit != "" && !usr.HasUnit(filter.Unit) {
			continue
		}
		if filter.IsActive != nil && usr.IsActive != *filter.IsActive {
			continue
		}
		if !filter.CreatedFrom.IsZero() && usr.CreatedAt.Before(filter.CreatedFrom) {
			continue
		}
		if !filter.CreatedTo.IsZero() && usr.CreatedAt.After(filter.CreatedTo) {
			continue
		}
		matched = append(matched, usr)
	}
	return matched, nil
}

func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User, isActive *bool, units []string) (user.User, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	// only save set fields
	origUsr, ok := repo.db.users[usr.ID]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	if usr.Username != "" {
		origUsr.Username = usr.Username
	}
	if usr.Email != "" {
		origUsr.Email = usr.Email
	}
	if usr.Role != "" {
		origUsr.Role = usr.Role
	}
	if usr.PasswordHash != nil {
		origUsr.PasswordHash = usr.PasswordHash
	}
	if isActive != nil {
		origUsr.IsActive = *isActive
	}
	if units != nil {
		repo.ensureUnitsLocked(units)
		origUsr.Units = units
	}
	origUsr.UpdatedAt = usr.UpdatedAt
	return *origUsr, nil
}

func (repo *userRepository) UpdateOrCreateUser(ctx context.Context, usr user.User) (user.User, error) {
	if usr.ID == 0 {
		return repo.CreateUser(ctx, usr)
	}
	return repo.UpdateUser(ctx, usr, &usr.IsActive, usr.Units)
}

func (repo *userRepository) SetLastLogin(ctx context.Context, usr user.User, t time.Time) (user.User, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	origUsr, ok := repo.db.users[usr.ID]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	origUsr.LastLogin = t
	return *origUsr, nil
}

func (repo *userRepository) DeleteUsersByID(ctx context.Context, ids ...int) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()
	for _, id := range ids {
		delete(repo.db.users, id)
	}
	return nil
}

func (repo *userRepository) QueryUnits(ctx context.Context, activeOnly bool) ([]user.Unit, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	units := make([]user.Unit, 0, len(repo.db.units))
	for _, un := range repo.db.units {
		if activeOnly && !un.IsActive {
			continue
		}
		units = append(units, *un)
	}
	sort.Slice(units, func(i, j int) bool { return units[i].Name < units[j].Name })
	return units, nil
}

func (repo *userRepository) EnsureUnits(ctx context.Context, names []string) ([]user.Unit, error) {
	repo.db.mutex.Lock()
	repo.ensureUnitsLocked(names)
	repo.db.mutex.Unlock()
	return repo.QueryUnits(ctx, false)
}

func (repo *userRepository) SetUnitActive(ctx context.Context, id int, active bool) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	un, ok := repo.db.units[id]
	if !ok {
		return user.ErrNotFound
	}
	un.IsActive = active
	return nil
}

func (repo *userRepository) CreateResetToken(ctx context.Context, tok user.ResetToken) (user.ResetToken, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	repo.db.tokenPK++
	tok.ID = repo.db.tokenPK
	repo.db.resetTokens[tok.ID] = &tok
	return tok, nil
}

func (repo *userRepository) GetResetToken(ctx context.Context, email, token string, now time.Time) (user.ResetToken, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var usrID int
	for _, usr := range repo.db.users {
		if strings.EqualFold(usr.Email, email) {
			usrID = usr.ID
			break
		}
	}
	if usrID == 0 {
		return user.ResetToken{}, user.ErrNotFound
	}

	var latest *user.ResetToken
	for _, tok := range repo.db.resetTokens {
		if tok.UserID != usrID || tok.Token != token || tok.Expired(now) {
			continue
		}
		if latest == nil || tok.CreatedAt.After(latest.CreatedAt) {
			latest = tok
		}
	}
	if latest == nil {
		return user.ResetToken{}, user.ErrNotFound
	}
	return *latest, nil
}

func (repo *userRepository) DeleteUserResetTokens(ctx context.Context, userID int) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()
	for id, tok := range repo.db.resetTokens {
		if tok.UserID == userID {
			delete(repo.db.resetTokens, id)
		}
	}
	return nil
}

func (repo *userRepository) PurgeExpiredResetTokens(ctx context.Context, now time.Time) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()
	for id, tok := range repo.db.resetTokens {
		if tok.Expired(now) {
			delete(repo.db.resetTokens, id)
		}
	}
	return nil
}
