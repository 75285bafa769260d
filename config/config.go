// Package config loads the service configuration from an optional YAML
// file and BAKERY_AUTH_* environment variables using Viper.
package config

import (
	"errors"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	goerrors "github.com/goliatone/go-errors"
	"github.com/spf13/viper"

	auth "github.com/goliatone/go-bakery-auth"
)

// EnvPrefix is prepended to every environment variable, e.g.
// BAKERY_AUTH_ACCESS_SIGNING_KEY
const EnvPrefix = "BAKERY_AUTH"

// Config holds application configuration. It satisfies auth.Config.
type Config struct {
	// HTTPAddr is the address the HTTP server listens on (e.g. :8080).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// DatabaseDriver is sqlite or postgres.
	DatabaseDriver string `mapstructure:"DB_DRIVER"`
	// DatabaseDSN is the driver specific connection string.
	DatabaseDSN string `mapstructure:"DB_DSN"`

	AccessSigningKey  string `mapstructure:"ACCESS_SIGNING_KEY"`
	RefreshSigningKey string `mapstructure:"REFRESH_SIGNING_KEY"`
	Issuer            string `mapstructure:"ISSUER"`
	// Token lifetimes in hours. The extended refresh lifetime applies to
	// "remember me" logins.
	AccessTokenHours          int `mapstructure:"ACCESS_TOKEN_HOURS"`
	RefreshTokenHours         int `mapstructure:"REFRESH_TOKEN_HOURS"`
	ExtendedRefreshTokenHours int `mapstructure:"EXTENDED_REFRESH_TOKEN_HOURS"`

	ContextKey        string `mapstructure:"CONTEXT_KEY"`
	TokenLookup       string `mapstructure:"TOKEN_LOOKUP"`
	AuthScheme        string `mapstructure:"AUTH_SCHEME"`
	RefreshCookieName string `mapstructure:"REFRESH_COOKIE_NAME"`
	RefreshCookiePath string `mapstructure:"REFRESH_COOKIE_PATH"`
	CookieSecure      bool   `mapstructure:"COOKIE_SECURE"`

	// PurgeRetention is how long terminated sessions are kept (e.g. "720h").
	PurgeRetention string `mapstructure:"PURGE_RETENTION"`
	LogLevel       string `mapstructure:"LOG_LEVEL"`
	Debug          bool   `mapstructure:"DEBUG"`
}

var _ auth.Config = (*Config)(nil)

// Load reads the YAML file at path (if path is not empty) and then the
// environment. Env vars override the file.
func Load(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("DB_DRIVER", "sqlite")
	v.SetDefault("DB_DSN", "file:bakery.db?cache=shared&_pragma=foreign_keys(1)")
	v.SetDefault("ACCESS_SIGNING_KEY", "")
	v.SetDefault("REFRESH_SIGNING_KEY", "")
	v.SetDefault("ISSUER", "bakery-auth")
	v.SetDefault("ACCESS_TOKEN_HOURS", 24)
	v.SetDefault("REFRESH_TOKEN_HOURS", 24)
	v.SetDefault("EXTENDED_REFRESH_TOKEN_HOURS", 720)
	v.SetDefault("CONTEXT_KEY", auth.DefaultContextKey)
	v.SetDefault("TOKEN_LOOKUP", "header:Authorization")
	v.SetDefault("AUTH_SCHEME", "Bearer")
	v.SetDefault("REFRESH_COOKIE_NAME", "bakery_refresh")
	v.SetDefault("REFRESH_COOKIE_PATH", "/auth/refresh")
	v.SetDefault("COOKIE_SECURE", true)
	v.SetDefault("PURGE_RETENTION", "720h")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DEBUG", false)
}

// Validate checks the values the auth core can not work without
func (c *Config) Validate() error {
	err := validation.ValidateStruct(c,
		validation.Field(&c.AccessSigningKey, validation.Required),
		validation.Field(&c.RefreshSigningKey,
			validation.Required,
			validation.NotIn(c.AccessSigningKey).Error("must differ from the access signing key"),
		),
		validation.Field(&c.AccessTokenHours, validation.Required, validation.Min(1)),
		validation.Field(&c.RefreshTokenHours, validation.Required, validation.Min(1)),
		validation.Field(&c.ExtendedRefreshTokenHours,
			validation.Required,
			validation.Min(c.RefreshTokenHours).Error("must not be shorter than the refresh token lifetime"),
		),
		validation.Field(&c.PurgeRetention, validation.Required, validation.By(isDuration)),
		validation.Field(&c.DatabaseDriver, validation.In("sqlite", "sqlite3", "postgres", "postgresql", "pg", "pgx")),
	)
	if err != nil {
		return goerrors.FromOzzoValidation(err, "invalid configuration")
	}
	return nil
}

func isDuration(value any) error {
	s, _ := value.(string)
	if _, err := time.ParseDuration(s); err != nil {
		return errors.New("must be a duration such as 720h")
	}
	return nil
}

// Retention parses PurgeRetention. Returns 720h if unset or invalid.
func (c *Config) Retention() time.Duration {
	d, err := time.ParseDuration(c.PurgeRetention)
	if err != nil || d <= 0 {
		return 720 * time.Hour
	}
	return d
}

func (c *Config) GetAccessSigningKey() string            { return c.AccessSigningKey }
func (c *Config) GetRefreshSigningKey() string           { return c.RefreshSigningKey }
func (c *Config) GetIssuer() string                      { return c.Issuer }
func (c *Config) GetAccessTokenExpiration() int          { return c.AccessTokenHours }
func (c *Config) GetRefreshTokenExpiration() int         { return c.RefreshTokenHours }
func (c *Config) GetExtendedRefreshTokenExpiration() int { return c.ExtendedRefreshTokenHours }
func (c *Config) GetContextKey() string                  { return c.ContextKey }
func (c *Config) GetTokenLookup() string                 { return c.TokenLookup }
func (c *Config) GetAuthScheme() string                  { return c.AuthScheme }
func (c *Config) GetRefreshCookieName() string           { return c.RefreshCookieName }
func (c *Config) GetRefreshCookiePath() string           { return c.RefreshCookiePath }
func (c *Config) GetCookieSecure() bool                  { return c.CookieSecure }
