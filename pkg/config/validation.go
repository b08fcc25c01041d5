package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/marmos91/dittosmb/internal/adapter/smb/types"
	"github.com/marmos91/dittosmb/internal/telemetry"
	"github.com/marmos91/dittosmb/pkg/controlplane/models"
)

var (
	validatorOnce   sync.Once
	structValidator *validator.Validate
)

// getValidator returns the shared validator with the custom tags registered.
func getValidator() *validator.Validate {
	validatorOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())

		// Report fields by their config key rather than the Go name.
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.Split(f.Tag.Get("mapstructure"), ",")[0]
			if name == "" || name == "-" {
				return strings.ToLower(f.Name)
			}
			return name
		})

		_ = v.RegisterValidation("smb_dialect", func(fl validator.FieldLevel) bool {
			_, ok := types.ParseDialect(fl.Field().String())
			return ok
		})
		_ = v.RegisterValidation("profile_type", func(fl validator.FieldLevel) bool {
			return telemetry.ValidProfileType(fl.Field().String())
		})
		_ = v.RegisterValidation("smb_username", func(fl validator.FieldLevel) bool {
			return !strings.ContainsAny(fl.Field().String(), `\/@`)
		})

		structValidator = v
	})
	return structValidator
}

// Validate checks a configuration after defaults have been applied.
//
// Struct tags cover ranges and enumerations; cross-field rules that tags
// cannot express are checked afterwards.
func Validate(cfg *Config) error {
	if err := getValidator().Struct(cfg); err != nil {
		return formatValidationErrors(err)
	}

	if err := cfg.Database.Validate(); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if cfg.SMB.Port == 0 {
		return fmt.Errorf("smb.port is required")
	}
	if err := cfg.SMB.Validate(); err != nil {
		return fmt.Errorf("smb: %w", err)
	}

	if cfg.Telemetry.Enabled && cfg.Telemetry.Endpoint == "" {
		return fmt.Errorf("telemetry.endpoint is required when telemetry is enabled")
	}
	if cfg.Telemetry.Profiling.Enabled && cfg.Telemetry.Profiling.Endpoint == "" {
		return fmt.Errorf("telemetry.profiling.endpoint is required when profiling is enabled")
	}

	if cfg.API.IsEnabled() && cfg.API.Port == cfg.SMB.Port {
		return fmt.Errorf("api.port and smb.port must differ (both %d)", cfg.SMB.Port)
	}

	return validateUsers(cfg.Users)
}

func validateUsers(users []UserConfig) error {
	seen := make(map[string]struct{}, len(users))
	for i, u := range users {
		name := models.NormalizeUsername(u.Username)
		if _, dup := seen[name]; dup {
			return fmt.Errorf("users[%d]: duplicate username %q", i, name)
		}
		seen[name] = struct{}{}

		if u.Password != "" {
			if err := models.ValidatePassword(u.Password); err != nil {
				return fmt.Errorf("users[%d] (%s): %w", i, name, err)
			}
		}
	}
	return nil
}

// formatValidationErrors turns validator errors into one readable error.
// The failing tag is kept in the message ("failed on 'oneof'").
func formatValidationErrors(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.TrimPrefix(fe.Namespace(), "Config.")
		msg := fmt.Sprintf("%s: failed on '%s'", field, fe.Tag())
		if fe.Param() != "" {
			msg = fmt.Sprintf("%s: failed on '%s=%s'", field, fe.Tag(), fe.Param())
		}
		if !isSecretField(fe.Field()) {
			msg += fmt.Sprintf(" (value %v)", fe.Value())
		}
		msgs = append(msgs, msg)
	}
	return errors.New(strings.Join(msgs, "; "))
}

func isSecretField(name string) bool {
	switch name {
	case "password", "nt_hash", "secret":
		return true
	}
	return false
}
