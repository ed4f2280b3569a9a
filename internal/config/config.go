// Package config loads application configuration from defaults, an optional
// YAML file and the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every environment variable read by Load. Nested keys are
// separated by a double underscore, e.g. USERSVC_DATABASE__URL.
const EnvPrefix = "USERSVC_"

// Database drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config is the application configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Log      LogConfig      `koanf:"log"`
	JWT      JWTConfig      `koanf:"jwt"`
	Password PasswordConfig `koanf:"password"`
	Admin    AdminConfig    `koanf:"admin"`
}

// ServerConfig configures the API and metrics listeners.
type ServerConfig struct {
	Host              string        `koanf:"host"`
	Port              string        `koanf:"port" validate:"required"`
	MetricsPort       string        `koanf:"metrics_port" validate:"required"`
	ReadTimeout       time.Duration `koanf:"read_timeout"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout"`
	WriteTimeout      time.Duration `koanf:"write_timeout"`
	IdleTimeout       time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout   time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
}

// DatabaseConfig selects and configures the user store.
type DatabaseConfig struct {
	Driver          string        `koanf:"driver" validate:"oneof=postgres sqlite"`
	URL             string        `koanf:"url" validate:"required_if=Driver postgres"`
	Path            string        `koanf:"path" validate:"required_if=Driver sqlite"`
	MaxOpenConns    int           `koanf:"max_open_conns" validate:"gte=0"`
	MaxIdleConns    int           `koanf:"max_idle_conns" validate:"gte=0"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	ConnectTimeout  time.Duration `koanf:"connect_timeout" validate:"gt=0"`
	ConnectAttempts int           `koanf:"connect_attempts" validate:"gte=1"`
	AutoMigrate     bool          `koanf:"auto_migrate"`
}

// LogConfig configures the slog handler.
type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn error"`
	Format string `koanf:"format" validate:"oneof=text json"`
}

// JWTConfig configures access token signing.
type JWTConfig struct {
	SecretKey           string        `koanf:"secret_key" validate:"required"`
	Algorithm           string        `koanf:"algorithm" validate:"oneof=HS256 HS384 HS512"`
	AccessTokenDuration time.Duration `koanf:"access_token_duration" validate:"gt=0"`
}

// PasswordConfig configures password hashing.
type PasswordConfig struct {
	BcryptCost int `koanf:"bcrypt_cost" validate:"min=4,max=31"`
}

// AdminConfig describes an admin account created at startup when Email is set.
type AdminConfig struct {
	Email     string `koanf:"email" validate:"omitempty,email"`
	Password  string `koanf:"password" validate:"required_with=Email"`
	FirstName string `koanf:"first_name"`
	LastName  string `koanf:"last_name"`
}

// Enabled reports whether a bootstrap admin is configured.
func (c AdminConfig) Enabled() bool {
	return c.Email != ""
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              "8000",
			MetricsPort:       "9090",
			ReadTimeout:       15 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      15 * time.Second,
			IdleTimeout:       60 * time.Second,
			ShutdownTimeout:   30 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:          DriverPostgres,
			Path:            "user-service.db",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			ConnectTimeout:  60 * time.Second,
			ConnectAttempts: 5,
			AutoMigrate:     true,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		JWT: JWTConfig{
			Algorithm:           "HS256",
			AccessTokenDuration: 30 * time.Minute,
		},
		Password: PasswordConfig{
			BcryptCost: 12,
		},
		Admin: AdminConfig{
			FirstName: "Admin",
			LastName:  "User",
		},
	}
}

// legacyEnv maps unprefixed variables understood by earlier deployments to
// config keys. USERSVC_ variables take precedence over them.
var legacyEnv = map[string]string{
	"DATABASE_URL":                "database.url",
	"SECRET_KEY":                  "jwt.secret_key",
	"ALGORITHM":                   "jwt.algorithm",
	"ACCESS_TOKEN_EXPIRE_MINUTES": "jwt.access_token_duration",
}

// Load reads .env (if present), then builds the configuration from defaults,
// the YAML file named by CONFIG_PATH, legacy variables and USERSVC_ variables.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return LoadFile(os.Getenv("CONFIG_PATH"))
}

// LoadFile is Load without .env handling. An empty path skips the YAML layer.
func LoadFile(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.ProviderWithValue("", ".", legacyEnvValue), nil); err != nil {
		return nil, fmt.Errorf("load legacy environment: %w", err)
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := Default()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envKey turns USERSVC_DATABASE__MAX_OPEN_CONNS into database.max_open_conns.
func envKey(s string) string {
	s = strings.TrimPrefix(s, EnvPrefix)
	return strings.ReplaceAll(strings.ToLower(s), "__", ".")
}

func legacyEnvValue(key, value string) (string, interface{}) {
	target, ok := legacyEnv[key]
	if !ok {
		return "", nil
	}
	if key == "ACCESS_TOKEN_EXPIRE_MINUTES" {
		return target, value + "m"
	}
	return target, value
}

// Validate checks the configuration for missing or out-of-range values.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
