package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("SOIL_CONFIG_FILE", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Server.Port != 8080 || cfg.Database.Driver != "postgres" || cfg.Resolver.LookupTimeout != 2*time.Second {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadConfig_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "soil.yaml")
	content := `
server:
  port: 9090
  read_timeout: 5s
database:
  driver: SQLite
  path: /tmp/soil.db
resolver:
  defaults_file: /etc/soil/defaults.yaml
  lookup_timeout: 500ms
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("SOIL_CONFIG_FILE", path)
	t.Setenv("SOIL_SERVER_PORT", "9191")
	t.Setenv("SOIL_LOG_LEVEL", "DEBUG")
	t.Setenv("SOIL_CORS_ORIGINS", "http://localhost:5173, https://app.example.com,")
	t.Setenv("SOIL_ACCESS_LOG", "true")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Server.Port != 9191 {
		t.Errorf("Port = %d, want env override 9191", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 5*time.Second {
		t.Errorf("ReadTimeout = %v, want 5s from file", cfg.Server.ReadTimeout)
	}
	if cfg.Server.WriteTimeout != 15*time.Second {
		t.Errorf("WriteTimeout = %v, want default kept", cfg.Server.WriteTimeout)
	}
	if cfg.Database.Driver != "sqlite" || cfg.Database.Path != "/tmp/soil.db" {
		t.Errorf("Database = %+v", cfg.Database)
	}
	if len(cfg.Server.CORSOrigins) != 2 || cfg.Server.CORSOrigins[1] != "https://app.example.com" || !cfg.Server.AccessLog {
		t.Errorf("Server = %+v", cfg.Server)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Level = %q, want debug", cfg.Logging.Level)
	}
	if cfg.Resolver.LookupTimeout != 500*time.Millisecond || cfg.Resolver.DefaultsFile != "/etc/soil/defaults.yaml" {
		t.Errorf("Resolver = %+v", cfg.Resolver)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}

	db := cfg.DatabaseSettings()
	if db.Driver != "sqlite" || db.Path != "/tmp/soil.db" || db.MaxOpenConns != 25 {
		t.Errorf("DatabaseSettings() = %+v", db)
	}
}

func TestLoadConfig_Errors(t *testing.T) {
	t.Setenv("SOIL_CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	if _, err := LoadConfig(); err == nil {
		t.Error("LoadConfig() with a missing file should fail")
	}

	t.Setenv("SOIL_CONFIG_FILE", "")
	t.Setenv("SOIL_DB_PORT", "five")
	if _, err := LoadConfig(); err == nil {
		t.Error("LoadConfig() accepted a non-numeric port")
	}

	t.Setenv("SOIL_DB_PORT", "")
	t.Setenv("SOIL_ACCESS_LOG", "maybe")
	if _, err := LoadConfig(); err == nil {
		t.Error("LoadConfig() accepted an invalid boolean")
	}

	t.Setenv("SOIL_ACCESS_LOG", "")
	t.Setenv("SOIL_LOOKUP_TIMEOUT", "soon")
	if _, err := LoadConfig(); err == nil {
		t.Error("LoadConfig() accepted an invalid duration")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"server port", func(c *Config) { c.Server.Port = 0 }},
		{"driver", func(c *Config) { c.Database.Driver = "mysql" }},
		{"postgres host", func(c *Config) { c.Database.Host = "" }},
		{"postgres name", func(c *Config) { c.Database.Database = "" }},
		{"sqlite path", func(c *Config) { c.Database.Driver = "sqlite"; c.Database.Path = "" }},
		{"idle above open", func(c *Config) { c.Database.MaxIdleConns = 50 }},
		{"negative pool", func(c *Config) { c.Database.MaxOpenConns = -1 }},
		{"negative timeout", func(c *Config) { c.Resolver.LookupTimeout = -time.Second }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() succeeded, want error")
			}
		})
	}
}
