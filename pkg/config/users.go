package config

import (
	"fmt"

	"github.com/marmos91/dittosmb/pkg/controlplane/models"
)

// UserConfig declares an SMB account in the configuration file.
//
// Exactly one of Password and NTHash must be set. Only the NT hash is
// stored; a plaintext password never reaches the database.
//
//	users:
//	  - username: alice
//	    password: wonderland
//	  - username: svc-backup
//	    nt_hash: 8846f7eaee8fb117ad06bdd830b7586c
type UserConfig struct {
	Username string `mapstructure:"username" validate:"required,smb_username" yaml:"username"`

	Password string `mapstructure:"password" validate:"required_without=NTHash,excluded_with=NTHash" yaml:"password,omitempty"`

	// NTHash is MD4(UTF-16LE(password)) as 32 hex digits.
	NTHash string `mapstructure:"nt_hash" validate:"omitempty,len=32,hexadecimal" yaml:"nt_hash,omitempty"`

	Domain      string `mapstructure:"domain" yaml:"domain,omitempty"`
	DisplayName string `mapstructure:"display_name" yaml:"display_name,omitempty"`

	// Enabled defaults to true.
	Enabled *bool `mapstructure:"enabled" yaml:"enabled,omitempty"`
}

// IsEnabled reports whether the account may log on.
func (u *UserConfig) IsEnabled() bool {
	return u.Enabled == nil || *u.Enabled
}

// ToModel converts the declaration into a store record marked as coming
// from the configuration.
func (u *UserConfig) ToModel() (*models.User, error) {
	user := &models.User{
		Username:    models.NormalizeUsername(u.Username),
		Domain:      u.Domain,
		DisplayName: u.DisplayName,
		Enabled:     u.IsEnabled(),
		Source:      string(models.SourceConfig),
	}

	switch {
	case u.NTHash != "":
		if err := user.SetNTHashHex(u.NTHash); err != nil {
			return nil, fmt.Errorf("user %q: %w", u.Username, err)
		}
	case u.Password != "":
		user.SetNTHashFromPassword(u.Password)
	default:
		return nil, fmt.Errorf("user %q: %w", u.Username, models.ErrNoCredentials)
	}

	if err := user.Validate(); err != nil {
		return nil, fmt.Errorf("user %q: %w", u.Username, err)
	}
	return user, nil
}

// UserModels converts all declared users.
func (c *Config) UserModels() ([]*models.User, error) {
	users := make([]*models.User, 0, len(c.Users))
	for i := range c.Users {
		u, err := c.Users[i].ToModel()
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, nil
}
