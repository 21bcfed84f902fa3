package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envPrefix = "CONFIGURATEUR"

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("http_addr", ":8000")
	v.SetDefault("grpc_addr", ":9090")
	v.SetDefault("data_dir", "")
	v.SetDefault("frontend_dir", "")
	v.SetDefault("datasheets_dir", "")
	v.SetDefault("kpi_db_path", "kpi.sqlite3")
	v.SetDefault("watch_catalogs", true)

	v.SetDefault("auth.admin_password", DefaultAdminPassword)
	v.SetDefault("auth.jwt_secret", DefaultJWTSecret)
	v.SetDefault("auth.jwt_issuer", "configurateur")
	v.SetDefault("auth.token_ttl", 24*time.Hour)
	v.SetDefault("auth.token_store", "memory")
	v.SetDefault("auth.redis_addr", "")
	v.SetDefault("auth.redis_password", "")
	v.SetDefault("auth.redis_db", 0)
	// the first deployments used CONFIG_ADMIN_PASSWORD
	_ = v.BindEnv("auth.admin_password", envPrefix+"_AUTH_ADMIN_PASSWORD", "CONFIG_ADMIN_PASSWORD")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("export.min_document_bytes", 64)
	v.SetDefault("export.max_name_length", 180)
	v.SetDefault("export.max_body_bytes", int64(64<<20))

	v.SetDefault("media.allowed_hosts", []string{"staticpro.comelitgroup.com"})
	v.SetDefault("media.timeout", 25*time.Second)
	v.SetDefault("media.parallelism", 4)
	return v
}

// Load reads an optional .env file, the YAML file at path (skipped when path
// is empty) and CONFIGURATEUR_* overrides, then resolves directories and
// validates the result.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config: read .env: %w", err)
	}

	v := newViper()
	if path == "" {
		path = os.Getenv(envPrefix + "_CONFIG")
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %q: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	cfg.resolveDirs()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// resolveDirs fills unset directories from the conventional layouts the app
// has shipped with (repo checkout, flat dist folder, backend/ subfolder).
func (c *Config) resolveDirs() {
	if c.DataDir == "" {
		c.DataDir = firstExisting(
			"data",
			filepath.Join("..", "data"),
		)
	}
	if c.FrontendDir == "" {
		c.FrontendDir = firstExisting(
			filepath.Join("frontend", "dist"),
			"dist",
			filepath.Join("..", "frontend", "dist"),
		)
	}
	if c.DatasheetsDir == "" {
		c.DatasheetsDir = filepath.Join(c.DataDir, "Fiche_tech")
	}
	c.Media.AllowedHosts = trimList(c.Media.AllowedHosts)
}

func trimList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, p := range in {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
