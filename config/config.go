package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ServerConfig holds all configuration for the authorization server.
// Tags use mapstructure for Viper unmarshalling.
type ServerConfig struct {
	HTTPPort string `mapstructure:"HTTP_PORT"`

	// Issuer is the value stamped into the iss claim of signed tokens.
	Issuer string `mapstructure:"ISSUER"`

	MongoURI    string `mapstructure:"MONGO_URI"`
	MongoDBName string `mapstructure:"MONGO_DB_NAME"`

	// RedisAddr, when set, enables the Redis token cache; empty falls back
	// to the in-memory cache.
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`
	RedisPrefix   string `mapstructure:"REDIS_PREFIX"`

	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogPretty bool   `mapstructure:"LOG_PRETTY"`

	OtelServiceName string `mapstructure:"OTEL_SERVICE_NAME"`

	// HMACSecretKey signs HS256 ID tokens and logout tokens.
	HMACSecretKey string `mapstructure:"HMAC_SECRET_KEY"`
	// RSAPrivateKeyPEM, when set, enables RS256 signing.
	RSAPrivateKeyPEM string `mapstructure:"RSA_PRIVATE_KEY_PEM"`
	RSAKeyID         string `mapstructure:"RSA_KEY_ID"`

	GrantTTLSec          int `mapstructure:"GRANT_TTL_SEC"`
	AccessTokenTTLMin    int `mapstructure:"ACCESS_TOKEN_TTL_MIN"`
	RefreshTokenTTLHour  int `mapstructure:"REFRESH_TOKEN_TTL_HOUR"`
	IDTokenTTLMin        int `mapstructure:"ID_TOKEN_TTL_MIN"`
	BackchannelTimeoutMS int `mapstructure:"BACKCHANNEL_TIMEOUT_MS"`

	// RotateRefreshTokens mints a successor and revokes the predecessor on
	// every refresh.
	RotateRefreshTokens bool `mapstructure:"ROTATE_REFRESH_TOKENS"`

	// RevokeOldTokensOnReauth revokes a user's prior access tokens for an
	// application when a new authorization is granted.
	RevokeOldTokensOnReauth bool `mapstructure:"REVOKE_OLD_TOKENS_ON_REAUTH"`

	// ResourceValidation toggles audience checks on bearer validation.
	// Disabling it is an explicit configuration state, never a fallback.
	ResourceValidation bool `mapstructure:"RESOURCE_VALIDATION"`
}

// GrantTTL returns the authorization code lifetime.
func (c *ServerConfig) GrantTTL() time.Duration {
	return time.Duration(c.GrantTTLSec) * time.Second
}

// AccessTokenTTL returns the access token lifetime.
func (c *ServerConfig) AccessTokenTTL() time.Duration {
	return time.Duration(c.AccessTokenTTLMin) * time.Minute
}

// RefreshTokenTTL returns the refresh token lifetime.
func (c *ServerConfig) RefreshTokenTTL() time.Duration {
	return time.Duration(c.RefreshTokenTTLHour) * time.Hour
}

// IDTokenTTL returns the ID token lifetime.
func (c *ServerConfig) IDTokenTTL() time.Duration {
	return time.Duration(c.IDTokenTTLMin) * time.Minute
}

// BackchannelTimeout returns the per-delivery timeout for backchannel
// logout notifications.
func (c *ServerConfig) BackchannelTimeout() time.Duration {
	return time.Duration(c.BackchannelTimeoutMS) * time.Millisecond
}

// LoadConfig reads configuration from file, environment variables, and
// defaults.
func LoadConfig() (*ServerConfig, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/shadow-authz/")
	v.AddConfigPath("$HOME/.shadow-authz")
	v.AddConfigPath(".")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("HTTP_PORT", "8080")
	v.SetDefault("ISSUER", "http://localhost:8080")
	v.SetDefault("MONGO_URI", "mongodb://localhost:27017")
	v.SetDefault("MONGO_DB_NAME", "shadow_authz")
	v.SetDefault("REDIS_PREFIX", "authz")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_PRETTY", false)
	v.SetDefault("OTEL_SERVICE_NAME", "shadow-authz")
	v.SetDefault("HMAC_SECRET_KEY", "a_very_secret_jwt_key_change_me") // CHANGE IN PRODUCTION
	v.SetDefault("GRANT_TTL_SEC", 60)
	v.SetDefault("ACCESS_TOKEN_TTL_MIN", 60)
	v.SetDefault("REFRESH_TOKEN_TTL_HOUR", 720)
	v.SetDefault("ID_TOKEN_TTL_MIN", 60)
	v.SetDefault("BACKCHANNEL_TIMEOUT_MS", 5000)
	v.SetDefault("ROTATE_REFRESH_TOKENS", true)
	v.SetDefault("REVOKE_OLD_TOKENS_ON_REAUTH", false)
	v.SetDefault("RESOURCE_VALIDATION", true)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// No config file is fine, defaults and env vars apply.
	}

	var cfg ServerConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}
	return &cfg, nil
}
