package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	DefaultListenAddr         = ":3000"
	DefaultJWTIssuer          = "tenantauth"
	DefaultAccessTokenTTL     = 30 * time.Minute
	DefaultRefreshTokenTTL    = 7 * 24 * time.Hour
	DefaultLockoutThreshold   = 5
	DefaultLockoutDuration    = 30 * time.Minute
	DefaultMinPasswordLength  = 8
	DefaultPermissionCacheTTL = 5 * time.Minute
	DefaultPermissionCacheLen = 10000
	DefaultRateLimitMax       = 20
	DefaultRateLimitWindow    = time.Minute
)

var (
	ErrMissingJWTSecret = errors.New("security.jwtSecret is required")
	ErrMissingDSN       = errors.New("mysql.dsn is required")
)

type MySQLConfig struct {
	Dsn             string   `mapstructure:"dsn"`
	Replicas        []string `mapstructure:"replicas"`
	TablePrefix     string   `mapstructure:"tablePrefix"`
	MaxIdleConns    int      `mapstructure:"maxIdleConns"`
	MaxOpenConns    int      `mapstructure:"maxOpenConns"`
	ConnMaxIdleTime int      `mapstructure:"connMaxIdleTime"`
	ConnMaxLifetime int      `mapstructure:"connMaxLifetime"`
}

type RedisConfig struct {
	URL         string `mapstructure:"url"`
	PoolSize    int    `mapstructure:"poolSize"`
	ClusterMode bool   `mapstructure:"clusterMode"`
}

type SecurityConfig struct {
	JWTSecret           string        `mapstructure:"jwtSecret"`
	JWTIssuer           string        `mapstructure:"jwtIssuer"`
	AccessTokenTTL      time.Duration `mapstructure:"accessTokenTTL"`
	RefreshTokenTTL     time.Duration `mapstructure:"refreshTokenTTL"`
	LockoutThreshold    int           `mapstructure:"lockoutThreshold"`
	LockoutDuration     time.Duration `mapstructure:"lockoutDuration"`
	MinPasswordLength   int           `mapstructure:"minPasswordLength"`
	RevokeFamilyOnReuse *bool         `mapstructure:"revokeFamilyOnReuse"`
}

type RBACConfig struct {
	CacheTTL  time.Duration `mapstructure:"cacheTTL"`
	CacheSize int           `mapstructure:"cacheSize"`
}

type RateLimitConfig struct {
	Max    int           `mapstructure:"max"`
	Window time.Duration `mapstructure:"window"`
}

// ProviderConfig describes how tokens from one external identity provider are
// verified. Type "oidc" verifies ID tokens against IssuerURL, using JWKSURL
// when set and discovery otherwise; type "userinfo" calls UserInfoURL with the
// access token. TrustEmail accepts the email claim of providers that do not
// send an email_verified flag. A "userinfo" provider checks the token's
// audience against ClientIDs through TokenInfoURL; TrustAudience skips that
// check for providers without a token info endpoint.
type ProviderConfig struct {
	Type          string   `mapstructure:"type"`
	IssuerURL     string   `mapstructure:"issuerURL"`
	JWKSURL       string   `mapstructure:"jwksURL"`
	ClientIDs     []string `mapstructure:"clientIDs"`
	UserInfoURL   string   `mapstructure:"userInfoURL"`
	TokenInfoURL  string   `mapstructure:"tokenInfoURL"`
	TrustAudience bool     `mapstructure:"trustAudience"`
	TrustEmail    bool     `mapstructure:"trustEmail"`
}

type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
	TLS      bool   `mapstructure:"tls"`
}

type MailConfig struct {
	Backend    string     `mapstructure:"backend"`
	AlertEmail []string   `mapstructure:"alertEmail"`
	SMTP       SMTPConfig `mapstructure:"smtp"`
}

type Config struct {
	Debug        bool                      `mapstructure:"debug"`
	ListenAddr   string                    `mapstructure:"listenAddr"`
	AllowOrigins []string                  `mapstructure:"allowOrigins"`
	MySQL        MySQLConfig               `mapstructure:"mysql"`
	Redis        RedisConfig               `mapstructure:"redis"`
	Security     SecurityConfig            `mapstructure:"security"`
	RBAC         RBACConfig                `mapstructure:"rbac"`
	RateLimit    RateLimitConfig           `mapstructure:"rateLimit"`
	Providers    map[string]ProviderConfig `mapstructure:"providers"`
	Mail         MailConfig                `mapstructure:"mail"`
}

func (c *Config) Sanitize() error {
	if c.ListenAddr == "" {
		c.ListenAddr = DefaultListenAddr
	}
	if c.MySQL.Dsn == "" {
		return ErrMissingDSN
	}
	if c.Security.JWTSecret == "" {
		return ErrMissingJWTSecret
	}
	if c.Security.JWTIssuer == "" {
		c.Security.JWTIssuer = DefaultJWTIssuer
	}
	if c.Security.AccessTokenTTL <= 0 {
		c.Security.AccessTokenTTL = DefaultAccessTokenTTL
	}
	if c.Security.RefreshTokenTTL <= 0 {
		c.Security.RefreshTokenTTL = DefaultRefreshTokenTTL
	}
	if c.Security.LockoutThreshold <= 0 {
		c.Security.LockoutThreshold = DefaultLockoutThreshold
	}
	if c.Security.LockoutDuration <= 0 {
		c.Security.LockoutDuration = DefaultLockoutDuration
	}
	if c.Security.MinPasswordLength <= 0 {
		c.Security.MinPasswordLength = DefaultMinPasswordLength
	}
	if c.Security.RevokeFamilyOnReuse == nil {
		revoke := true
		c.Security.RevokeFamilyOnReuse = &revoke
	}
	if c.RBAC.CacheTTL == 0 {
		c.RBAC.CacheTTL = DefaultPermissionCacheTTL
	}
	if c.RBAC.CacheSize <= 0 {
		c.RBAC.CacheSize = DefaultPermissionCacheLen
	}
	if c.RateLimit.Max <= 0 {
		c.RateLimit.Max = DefaultRateLimitMax
	}
	if c.RateLimit.Window <= 0 {
		c.RateLimit.Window = DefaultRateLimitWindow
	}
	providers := make(map[string]ProviderConfig, len(c.Providers))
	for name, provider := range c.Providers {
		providers[strings.ToUpper(name)] = provider
	}
	c.Providers = providers
	return nil
}

func LoadConfig(filename string) (*Config, error) {
	viper.SetConfigFile(filename)
	viper.SetConfigType("yaml")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	if err := config.Sanitize(); err != nil {
		return nil, err
	}
	return &config, nil
}
