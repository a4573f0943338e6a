package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoad(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test.yaml")

	configContent := `
databases:
  prod:
    dsn: mysql://app:secret@db:3306/app
    max_connections: 5
    max_idle_connections: 2
    link: |
      movie_reviews:distributor = distributors:id
    unlink: |
      audit_log:user_id = users:id
  Local:
    dsn: sqlite:///tmp/local.db

copy:
  ignore_duplicates: true
  verify: count
  lock: false

logging:
  level: debug
  format: json
  output: stdout
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	prod, err := cfg.Database("prod")
	if err != nil {
		t.Fatalf("expected prod database: %v", err)
	}
	if prod.DSN != "mysql://app:secret@db:3306/app" {
		t.Errorf("unexpected dsn %s", prod.DSN)
	}
	if prod.MaxConnections != 5 || prod.MaxIdleConnections != 2 {
		t.Errorf("unexpected pool sizes %d/%d", prod.MaxConnections, prod.MaxIdleConnections)
	}

	links := prod.Links(nil)
	if len(links) != 1 || links[0].ChildTable != "movie_reviews" || links[0].ParentColumn != "id" {
		t.Errorf("unexpected links %+v", links)
	}
	unlinks := prod.Unlinks(nil)
	if len(unlinks) != 1 || unlinks[0].ChildColumn != "user_id" {
		t.Errorf("unexpected unlinks %+v", unlinks)
	}

	if _, err := cfg.Database("Local"); err != nil {
		t.Errorf("expected mixed-case database name to resolve: %v", err)
	}

	if !cfg.Copy.IgnoreDuplicates || cfg.Copy.Verify != "count" || cfg.Copy.Lock {
		t.Errorf("unexpected copy settings %+v", cfg.Copy)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" || cfg.Logging.Output != "stdout" {
		t.Errorf("unexpected logging settings %+v", cfg.Logging)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected valid config, got %v", err)
	}
}

func TestLoad_KeepsDefaults(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "test.yaml")
	content := "databases:\n  a:\n    dsn: sqlite:///tmp/a.db\n"
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.Logging.Level != "warning" {
		t.Errorf("expected default level, got %s", cfg.Logging.Level)
	}
	if !cfg.Copy.Lock {
		t.Errorf("expected default lock enabled")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoad_EnvSubstitution(t *testing.T) {
	t.Setenv("DCP_TEST_PASSWORD", "hunter2")
	t.Setenv("DCP_TEST_LOG", "/var/log/dcp.log")

	configPath := filepath.Join(t.TempDir(), "test.yaml")
	content := `
databases:
  prod:
    dsn: mysql://app:${DCP_TEST_PASSWORD}@db:3306/app
logging:
  output: $DCP_TEST_LOG
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.Databases["prod"].DSN != "mysql://app:hunter2@db:3306/app" {
		t.Errorf("expected substituted dsn, got %s", cfg.Databases["prod"].DSN)
	}
	if cfg.Logging.Output != "/var/log/dcp.log" {
		t.Errorf("expected substituted output, got %s", cfg.Logging.Output)
	}
}

func TestExpandEnvVar_UnknownVariableKept(t *testing.T) {
	if got := expandEnvVar("${DCP_SURELY_UNSET_VAR}"); got != "${DCP_SURELY_UNSET_VAR}" {
		t.Errorf("expected unknown variable kept, got %s", got)
	}
}

func TestDefaultPath(t *testing.T) {
	t.Setenv(EnvConfigPath, "/etc/dcp.yaml")
	if got := DefaultPath(); got != "/etc/dcp.yaml" {
		t.Errorf("expected env override, got %s", got)
	}

	t.Setenv(EnvConfigPath, "")
	if got := DefaultPath(); !strings.HasSuffix(got, ".dcp.yaml") {
		t.Errorf("expected ~/.dcp.yaml, got %s", got)
	}
}

func TestWriteTemplate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dcp.yaml")

	created, err := WriteTemplate(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !created {
		t.Fatal("expected template to be created")
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("template should load: %v", err)
	}
	if len(cfg.Databases) != 0 {
		t.Errorf("expected no databases in template, got %d", len(cfg.Databases))
	}

	created, err = WriteTemplate(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created {
		t.Error("expected existing file to be left alone")
	}
}
