package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("STORE_DRIVER", "Memory")
	t.Setenv("PORT", "8081")
	t.Setenv("TOKEN_TTL", "2h")
	t.Setenv("CORS_ALLOWED_ORIGINS", "http://localhost:5173, https://tasks.example.com,")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.StoreDriver != DriverMemory {
		t.Errorf("expected driver %q; got %q", DriverMemory, cfg.StoreDriver)
	}
	if cfg.Addr() != ":8081" {
		t.Errorf("expected addr :8081; got %s", cfg.Addr())
	}
	if cfg.TokenTTL != 2*time.Hour {
		t.Errorf("expected token ttl 2h; got %s", cfg.TokenTTL)
	}
	if cfg.CacheTTL != 5*time.Minute {
		t.Errorf("expected default cache ttl; got %s", cfg.CacheTTL)
	}
	want := []string{"http://localhost:5173", "https://tasks.example.com"}
	if strings.Join(cfg.AllowedOrigins, "|") != strings.Join(want, "|") {
		t.Errorf("expected origins %v; got %v", want, cfg.AllowedOrigins)
	}
}

func TestLoadRejectsOutOfRangeBcryptCost(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("BCRYPT_COST", "40")

	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "BCRYPT_COST") {
		t.Fatalf("expected BCRYPT_COST error; got %v", err)
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.toml")
	content := `
port = 9000
store_driver = "sqlite"
db_source = "tasks.db"
jwt_secret = "from-file"
cache_ttl = "1m"
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("JWT_SECRET", "from-env")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 9000 {
		t.Errorf("expected port from file; got %d", cfg.Port)
	}
	if cfg.JWTSecret != "from-env" {
		t.Errorf("expected env to override file; got %q", cfg.JWTSecret)
	}
	if cfg.CacheTTL != time.Minute {
		t.Errorf("expected cache ttl 1m; got %s", cfg.CacheTTL)
	}
	if cfg.DBSource != "tasks.db" {
		t.Errorf("expected db source from file; got %q", cfg.DBSource)
	}
}

func TestLoadFileRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.toml")
	if err := os.WriteFile(path, []byte(`prot = 1`), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg := Default()
	if err := LoadFile(path, &cfg); err == nil {
		t.Fatal("expected error for unknown key")
	}
}

func TestValidate(t *testing.T) {
	base := Default()
	base.JWTSecret = "x"
	base.StoreDriver = DriverMemory

	testCases := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "ok", mutate: func(*Config) {}},
		{name: "missing secret", mutate: func(c *Config) { c.JWTSecret = " " }, wantErr: "JWT_SECRET"},
		{name: "unknown driver", mutate: func(c *Config) { c.StoreDriver = "cassandra" }, wantErr: "unknown STORE_DRIVER"},
		{name: "mongo without uri", mutate: func(c *Config) { c.StoreDriver = DriverMongo }, wantErr: "MONGO_URI"},
		{name: "postgres without dsn", mutate: func(c *Config) { c.StoreDriver = DriverPostgres }, wantErr: "DB_SOURCE"},
		{name: "bad port", mutate: func(c *Config) { c.Port = 70000 }, wantErr: "PORT"},
		{name: "zero token ttl", mutate: func(c *Config) { c.TokenTTL = 0 }, wantErr: "TOKEN_TTL"},
		{name: "bcrypt cost too high", mutate: func(c *Config) { c.BcryptCost = 40 }, wantErr: "BCRYPT_COST"},
		{name: "bcrypt cost too low", mutate: func(c *Config) { c.BcryptCost = 3 }, wantErr: "BCRYPT_COST"},
		{name: "bcrypt cost default", mutate: func(c *Config) { c.BcryptCost = 0 }},
		{name: "bcrypt cost max", mutate: func(c *Config) { c.BcryptCost = 31 }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("expected error containing %q; got %v", tc.wantErr, err)
			}
		})
	}
}
