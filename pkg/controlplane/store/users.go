package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/marmos91/dittosmb/pkg/controlplane/models"
)

// Usernames are stored normalized (lower-case) so lookups by the name a
// client typed in any case hit the unique index.

// whereUser scopes a query to one account.
func (s *GORMStore) whereUser(ctx context.Context, username string) *gorm.DB {
	return s.db.WithContext(ctx).Model(&models.User{}).Where("username = ?", models.NormalizeUsername(username))
}

// mustAffect maps "no rows touched" to ErrUserNotFound.
func mustAffect(res *gorm.DB) error {
	switch {
	case res.Error != nil:
		return res.Error
	case res.RowsAffected == 0:
		return models.ErrUserNotFound
	}
	return nil
}

func (s *GORMStore) GetUser(ctx context.Context, username string) (*models.User, error) {
	var u models.User
	err := s.whereUser(ctx, username).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// ListUsers returns every account ordered by name; never nil.
func (s *GORMStore) ListUsers(ctx context.Context) ([]*models.User, error) {
	users := []*models.User{}
	if err := s.db.WithContext(ctx).Order("username").Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

func (s *GORMStore) CreateUser(ctx context.Context, user *models.User) (string, error) {
	if user.Source == "" {
		user.Source = string(models.SourceCLI)
	}
	return createIn(s.db.WithContext(ctx), user)
}

func (s *GORMStore) DeleteUser(ctx context.Context, username string) error {
	return mustAffect(s.whereUser(ctx, username).Delete(&models.User{}))
}

func (s *GORMStore) UpdatePassword(ctx context.Context, username, passwordHash, ntHash string) error {
	if _, err := models.ParseNTHash(ntHash); err != nil {
		return err
	}
	return mustAffect(s.whereUser(ctx, username).Updates(map[string]any{
		"password_hash": passwordHash,
		"nt_hash":       ntHash,
	}))
}

func (s *GORMStore) SetEnabled(ctx context.Context, username string, enabled bool) error {
	// A struct update would skip false.
	return mustAffect(s.whereUser(ctx, username).Updates(map[string]any{"enabled": enabled}))
}

func (s *GORMStore) UpdateLastLogin(ctx context.Context, username string, timestamp time.Time) error {
	return mustAffect(s.whereUser(ctx, username).UpdateColumn("last_login", timestamp))
}

// ============================================
// CONFIG USERS
// ============================================

func (s *GORMStore) SyncConfigUsers(ctx context.Context, users []*models.User) (SyncResult, error) {
	var res SyncResult

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res = SyncResult{}
		wanted := make(map[string]struct{}, len(users))

		for _, u := range users {
			name := models.NormalizeUsername(u.Username)
			wanted[name] = struct{}{}

			var existing models.User
			err := tx.Where("username = ?", name).First(&existing).Error
			switch {
			case errors.Is(err, gorm.ErrRecordNotFound):
				nu := *u
				nu.ID = ""
				nu.Source = string(models.SourceConfig)
				if _, err := createIn(tx, &nu); err != nil {
					return err
				}
				res.Created++
			case err != nil:
				return err
			case existing.Source != string(models.SourceConfig):
				res.Skipped = append(res.Skipped, name)
			default:
				if existing.NTHash == u.NTHash && existing.PasswordHash == u.PasswordHash &&
					existing.Enabled == u.Enabled && existing.Domain == u.Domain &&
					existing.DisplayName == u.DisplayName {
					continue
				}
				if err := tx.Model(&existing).Updates(map[string]any{
					"nt_hash":       u.NTHash,
					"password_hash": u.PasswordHash,
					"enabled":       u.Enabled,
					"domain":        u.Domain,
					"display_name":  u.DisplayName,
				}).Error; err != nil {
					return err
				}
				res.Updated++
			}
		}

		var stale []models.User
		if err := tx.Where("source = ?", string(models.SourceConfig)).Find(&stale).Error; err != nil {
			return err
		}
		for i := range stale {
			if _, ok := wanted[stale[i].Username]; ok {
				continue
			}
			if err := tx.Delete(&stale[i]).Error; err != nil {
				return err
			}
			res.Removed++
		}
		return nil
	})

	return res, err
}

// createIn validates user, assigns an ID when missing and inserts it with
// db, which may be a transaction.
func createIn(db *gorm.DB, user *models.User) (string, error) {
	user.Username = models.NormalizeUsername(user.Username)
	if err := user.Validate(); err != nil {
		return "", err
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	user.CreatedAt = time.Now()
	if err := db.Create(user).Error; err != nil {
		if isDuplicateKey(err) {
			return "", models.ErrDuplicateUser
		}
		return "", err
	}
	return user.ID, nil
}
