package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestStoreMerge(t *testing.T) {
	base := Default().Store

	got := base.Merge(Store{Port: 6380, Password: "secret"})
	if got.Host != "127.0.0.1" {
		t.Errorf("Host = %q, want default kept", got.Host)
	}
	if got.Port != 6380 {
		t.Errorf("Port = %d, want 6380", got.Port)
	}
	if got.Password != "secret" {
		t.Errorf("Password = %q, want secret", got.Password)
	}
	if got.Backend != BackendRedis {
		t.Errorf("Backend = %q, want redis", got.Backend)
	}

	// Unset fields never clear previous overrides
	again := got.Merge(Store{})
	if again != got {
		t.Errorf("empty merge changed config: %+v -> %+v", got, again)
	}
}

func TestStoreValidate(t *testing.T) {
	tests := []struct {
		name    string
		store   Store
		wantErr bool
	}{
		{"default redis", Default().Store, false},
		{"redis without host", Store{Backend: BackendRedis, Port: 6379}, true},
		{"redis bad port", Store{Backend: BackendRedis, Host: "h", Port: 70000}, true},
		{"sqlite with path", Store{Backend: BackendSQLite, Path: "/tmp/reed.db"}, false},
		{"sqlite without path", Store{Backend: BackendSQLite}, true},
		{"unknown backend", Store{Backend: "memcached"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.store.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestStoreAddr(t *testing.T) {
	if got := Default().Store.Addr(); got != "127.0.0.1:6379" {
		t.Errorf("Addr() = %q", got)
	}
}

func TestLoad_YAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "reed.yaml")
	data := `
posts: /srv/blog
pages: /srv/pages
store:
  backend: sqlite
  path: /var/lib/reed/index.db
sync:
  debounceInterval: 250ms
dashboard:
  port: 9000
`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Posts != "/srv/blog" || cfg.Pages != "/srv/pages" {
		t.Errorf("dirs = %q, %q", cfg.Posts, cfg.Pages)
	}
	if cfg.Store.Backend != BackendSQLite || cfg.Store.Path != "/var/lib/reed/index.db" {
		t.Errorf("store = %+v", cfg.Store)
	}
	// Defaults survive for keys the file does not set
	if cfg.Store.Host != "127.0.0.1" || cfg.Store.Port != 6379 {
		t.Errorf("store defaults lost: %+v", cfg.Store)
	}
	if cfg.Sync.DebounceInterval != 250*time.Millisecond {
		t.Errorf("DebounceInterval = %v", cfg.Sync.DebounceInterval)
	}
	if cfg.Sync.QueueSize != 256 {
		t.Errorf("QueueSize = %d, want default 256", cfg.Sync.QueueSize)
	}
	if cfg.Dashboard.Port != 9000 {
		t.Errorf("Dashboard.Port = %d", cfg.Dashboard.Port)
	}
}

func TestLoad_TOMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "reed.toml")
	data := `
posts = "/srv/blog"

[store]
host = "redis.internal"
port = 6390
`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Store.Host != "redis.internal" || cfg.Store.Port != 6390 {
		t.Errorf("store = %+v", cfg.Store)
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("Load() should fail for a missing explicit config file")
	}
}

func TestLoad_Env(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("REED_STORE_HOST", "10.0.0.5")
	t.Setenv("REED_POSTS", "/env/posts")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Store.Host != "10.0.0.5" {
		t.Errorf("Store.Host = %q, want env override", cfg.Store.Host)
	}
	if cfg.Posts != "/env/posts" {
		t.Errorf("Posts = %q, want env override", cfg.Posts)
	}
}
