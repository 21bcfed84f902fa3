// Package config loads the backend settings from CONFIGURATEUR_* environment
// variables, an optional YAML file and an optional .env file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

type Config struct {
	HTTPAddr      string `mapstructure:"http_addr"`
	GRPCAddr      string `mapstructure:"grpc_addr"`
	DataDir       string `mapstructure:"data_dir"`
	FrontendDir   string `mapstructure:"frontend_dir"`
	DatasheetsDir string `mapstructure:"datasheets_dir"`
	KPIDBPath     string `mapstructure:"kpi_db_path"`
	WatchCatalogs bool   `mapstructure:"watch_catalogs"`

	Auth   AuthConfig   `mapstructure:"auth"`
	Log    LogConfig    `mapstructure:"log"`
	Export ExportConfig `mapstructure:"export"`
	Media  MediaConfig  `mapstructure:"media"`
}

type AuthConfig struct {
	AdminPassword string        `mapstructure:"admin_password"`
	JWTSecret     string        `mapstructure:"jwt_secret"`
	JWTIssuer     string        `mapstructure:"jwt_issuer"`
	TokenTTL      time.Duration `mapstructure:"token_ttl"`

	// TokenStore is "memory" (tokens die with the process) or "redis".
	TokenStore    string `mapstructure:"token_store"`
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type ExportConfig struct {
	MinDocumentBytes int   `mapstructure:"min_document_bytes"`
	MaxNameLength    int   `mapstructure:"max_name_length"`
	MaxBodyBytes     int64 `mapstructure:"max_body_bytes"`
}

type MediaConfig struct {
	AllowedHosts []string      `mapstructure:"allowed_hosts"`
	Timeout      time.Duration `mapstructure:"timeout"`
	Parallelism  int           `mapstructure:"parallelism"`
}

const (
	DefaultAdminPassword = "admin"
	DefaultJWTSecret     = "dev-secret-change-me"
)

// UsesDefaultPassword reports whether the admin password was left at its
// development value.
func (c *Config) UsesDefaultPassword() bool {
	return c.Auth.AdminPassword == DefaultAdminPassword
}

// ImagesDir is where the media mirror stores product pictures.
func (c *Config) ImagesDir() string {
	return filepath.Join(c.DataDir, "Images")
}

func (c *Config) Validate() error {
	var problems []string

	if strings.TrimSpace(c.HTTPAddr) == "" {
		problems = append(problems, "http_addr is required")
	}
	if strings.TrimSpace(c.DataDir) == "" {
		problems = append(problems, "data_dir is required")
	}
	if c.Auth.AdminPassword == "" {
		problems = append(problems, "auth.admin_password is required")
	}
	// bcrypt refuses longer inputs
	if len(c.Auth.AdminPassword) > 72 {
		problems = append(problems, "auth.admin_password must be at most 72 bytes")
	}
	if c.Auth.JWTSecret == "" {
		problems = append(problems, "auth.jwt_secret is required")
	}
	if c.Auth.TokenTTL <= 0 {
		problems = append(problems, "auth.token_ttl must be positive")
	}
	switch c.Auth.TokenStore {
	case "memory":
	case "redis":
		if c.Auth.RedisAddr == "" {
			problems = append(problems, "auth.redis_addr is required with the redis token store")
		}
	default:
		problems = append(problems, fmt.Sprintf("auth.token_store %q is not one of memory, redis", c.Auth.TokenStore))
	}
	if c.Export.MinDocumentBytes < 1 {
		problems = append(problems, "export.min_document_bytes must be >= 1")
	}
	if c.Export.MaxNameLength < 8 {
		problems = append(problems, "export.max_name_length must be >= 8")
	}
	if c.Media.Parallelism < 1 {
		problems = append(problems, "media.parallelism must be >= 1")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// firstExisting returns the first candidate that is a directory, or the first
// candidate when none exists.
func firstExisting(candidates ...string) string {
	for _, c := range candidates {
		if st, err := os.Stat(c); err == nil && st.IsDir() {
			return c
		}
	}
	if len(candidates) == 0 {
		return ""
	}
	return candidates[0]
}
