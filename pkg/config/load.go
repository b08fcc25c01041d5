package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/marmos91/dittosmb/internal/bytesize"
	"github.com/marmos91/dittosmb/internal/paths"
)

// EnvPrefix is the prefix of environment variable overrides, e.g.
// DITTOSMB_SMB_PORT=1445.
const EnvPrefix = "DITTOSMB"

// Load reads the file at configPath (or config.yaml in the default
// directory when empty), overlays the environment, applies defaults and
// validates. A missing file yields the defaults.
func Load(configPath string) (*Config, error) {
	v := newViper(configPath)

	if err := v.ReadInConfig(); err != nil && !isNotFound(err) {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(decodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)
	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// MustLoad is Load for commands that need a real file: a missing file is
// an error explaining how to create one.
func MustLoad(configPath string) (*Config, error) {
	path := ResolvePath(configPath)
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		if configPath == "" {
			return nil, fmt.Errorf("no configuration file found at default location: %s\n\n"+
				"Create one with:\n  dittosmb config init\n\n"+
				"or point to an existing file:\n  dittosmb <command> --config /path/to/config.yaml", path)
		}
		return nil, fmt.Errorf("configuration file not found: %s\n\n"+
			"Create it with:\n  dittosmb config init --config %s", path, path)
	}

	cfg, err := Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// GetDefaultConfigPath returns $XDG_CONFIG_HOME/dittosmb/config.yaml.
func GetDefaultConfigPath() string {
	return paths.ConfigFile("config.yaml")
}

func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// ResolvePath returns configPath, or the default location when it is empty.
func ResolvePath(configPath string) string {
	if configPath != "" {
		return configPath
	}
	return GetDefaultConfigPath()
}

func newViper(configPath string) *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv only answers for keys viper has already seen, so keys
	// missing from the file must be bound up front.
	for _, key := range leafKeys(reflect.TypeOf(Config{}), "") {
		_ = v.BindEnv(key)
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(paths.ConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	return v
}

func isNotFound(err error) bool {
	var nf viper.ConfigFileNotFoundError
	return errors.As(err, &nf) || errors.Is(err, fs.ErrNotExist)
}

var (
	durationType = reflect.TypeOf(time.Duration(0))
	byteSizeType = reflect.TypeOf(bytesize.ByteSize(0))
	timeType     = reflect.TypeOf(time.Time{})
)

// leafKeys lists the dotted mapstructure keys of every scalar field
// reachable from t.
func leafKeys(t reflect.Type, prefix string) []string {
	var keys []string
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name, _, _ := strings.Cut(f.Tag.Get("mapstructure"), ",")
		if name == "" {
			name = strings.ToLower(f.Name)
		}
		if prefix != "" {
			name = prefix + "." + name
		}

		ft := f.Type
		if ft.Kind() == reflect.Pointer {
			ft = ft.Elem()
		}
		if ft.Kind() == reflect.Struct && ft != timeType {
			keys = append(keys, leafKeys(ft, name)...)
		} else {
			keys = append(keys, name)
		}
	}
	return keys
}

// decodeHooks accepts "30s" for durations, "8Mi" or a plain number for
// byte sizes, and comma separated strings for slices (environment values).
func decodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		scalarHook(byteSizeType, func(s string) (any, error) { return bytesize.Parse(s) }, func(n uint64) any { return bytesize.ByteSize(n) }),
		scalarHook(durationType, func(s string) (any, error) { return time.ParseDuration(s) }, func(n uint64) any { return time.Duration(n) }),
		mapstructure.StringToSliceHookFunc(","),
	)
}

// scalarHook converts strings with parse and numbers with fromInt when the
// target type is want. Other values pass through untouched.
func scalarHook(want reflect.Type, parse func(string) (any, error), fromInt func(uint64) any) mapstructure.DecodeHookFuncType {
	return func(_ reflect.Type, to reflect.Type, data any) (any, error) {
		if to != want {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return parse(v)
		case int:
			return fromInt(uint64(v)), nil
		case int64:
			return fromInt(uint64(v)), nil
		case uint64:
			return fromInt(v), nil
		case float64:
			return fromInt(uint64(v)), nil
		}
		return data, nil
	}
}
