package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

type testConfig struct {
	Vault string `yaml:"vault"`
	Port  int    `yaml:"port"`
}

func (c *testConfig) Validate() error {
	if c.Port <= 0 {
		return errors.New("port must be positive")
	}
	return nil
}

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_ExpandsEnv(t *testing.T) {
	t.Setenv("AUTOLINK_TEST_VAULT", "/srv/notes")
	path := writeFile(t, "vault: ${AUTOLINK_TEST_VAULT}\nport: 9000\n")

	var cfg testConfig
	if err := Load(path, &cfg); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Vault != "/srv/notes" || cfg.Port != 9000 {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoad_Validates(t *testing.T) {
	path := writeFile(t, "port: 0\n")
	var cfg testConfig
	if err := Load(path, &cfg); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	var cfg testConfig
	if err := Load(filepath.Join(t.TempDir(), "nope.yaml"), &cfg); err == nil {
		t.Fatal("expected read error")
	}
}

func TestLoadIfExists(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope.yaml")

	cfg := testConfig{Vault: "./vault", Port: 8080}
	if err := LoadIfExists(missing, &cfg); err != nil {
		t.Fatalf("LoadIfExists: %v", err)
	}
	if cfg.Vault != "./vault" || cfg.Port != 8080 {
		t.Errorf("defaults changed: %+v", cfg)
	}

	bad := testConfig{}
	if err := LoadIfExists(missing, &bad); err == nil {
		t.Error("invalid defaults should fail validation")
	}

	path := writeFile(t, "port: 7000\n")
	if err := LoadIfExists(path, &cfg); err != nil {
		t.Fatalf("LoadIfExists: %v", err)
	}
	if cfg.Port != 7000 || cfg.Vault != "./vault" {
		t.Errorf("cfg = %+v", cfg)
	}
}
