package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

func TestHolderReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "databot.yaml")
	if err := os.WriteFile(path, []byte("quota:\n  hourly_limit: 500\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	holder, err := NewHolder(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder: %v", err)
	}
	defer holder.Stop()

	if got := holder.Get().Quota.HourlyLimit; got != 500 {
		t.Fatalf("initial hourly_limit = %d, want 500", got)
	}

	var notified *Config
	holder.OnChange(func(cfg *Config) { notified = cfg })

	if err := os.WriteFile(path, []byte("quota:\n  hourly_limit: 750\n"), 0o644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}
	if err := holder.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	if got := holder.Get().Quota.HourlyLimit; got != 750 {
		t.Errorf("reloaded hourly_limit = %d, want 750", got)
	}
	if notified == nil {
		t.Fatal("OnChange callback not invoked")
	}
	if notified.Quota.HourlyLimit != 750 {
		t.Errorf("callback saw hourly_limit = %d, want 750", notified.Quota.HourlyLimit)
	}
}

func TestHolderReloadKeepsOldConfigOnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "databot.yaml")
	if err := os.WriteFile(path, []byte("quota:\n  hourly_limit: 500\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	holder, err := NewHolder(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder: %v", err)
	}
	defer holder.Stop()

	// Break the file: reload must fail and keep the previous config.
	if err := os.WriteFile(path, []byte("store:\n  driver: cassandra\n"), 0o644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}
	if err := holder.Reload(); err == nil {
		t.Fatal("Reload of invalid config should fail")
	}

	if got := holder.Get().Quota.HourlyLimit; got != 500 {
		t.Errorf("config after failed reload: hourly_limit = %d, want 500", got)
	}
}

func TestNewHolderMissingFile(t *testing.T) {
	if _, err := NewHolder(filepath.Join(t.TempDir(), "nope.yaml"), zerolog.Nop()); err == nil {
		t.Error("NewHolder with missing file should fail")
	}
}
