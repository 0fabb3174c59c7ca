package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

var envKeys = []string{
	"IDMC_HOME", "IDMC_CONFIG_FILE", "IDMC_SECTION", "IDMC_PYTHON",
	"IDMC_EXPORT_SCRIPT", "IDMC_LOAD_SCRIPT", "IDMC_FAILURE_POLICY",
	"IDMC_STEP_TIMEOUT", "IDMC_LOCK_FILE", "IDMC_LOG_FILE", "LOG_LEVEL",
	"IDMC_WEBHOOK_URL", "DB_HOST",
}

// clearEnv blanks every variable Load reads so the host environment cannot
// leak into a test. t.Setenv restores the original values afterwards.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range envKeys {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoad_defaults(t *testing.T) {
	clearEnv(t)
	home := t.TempDir()
	t.Setenv("IDMC_HOME", home)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.BaseDir != home {
		t.Errorf("BaseDir = %q, want %q", cfg.BaseDir, home)
	}
	if cfg.ConfigFile != DefaultConfigFile {
		t.Errorf("ConfigFile = %q, want %q", cfg.ConfigFile, DefaultConfigFile)
	}
	if cfg.Section != DefaultSection {
		t.Errorf("Section = %q, want %q", cfg.Section, DefaultSection)
	}
	if cfg.Python != DefaultPython {
		t.Errorf("Python = %q, want %q", cfg.Python, DefaultPython)
	}
	if cfg.ExportScript != DefaultExportScript || cfg.LoadScript != DefaultLoadScript {
		t.Errorf("scripts = %q/%q", cfg.ExportScript, cfg.LoadScript)
	}
	if cfg.FailurePolicy != PolicyBestEffort {
		t.Errorf("FailurePolicy = %q, want %q", cfg.FailurePolicy, PolicyBestEffort)
	}
	if cfg.StepTimeout != 0 {
		t.Errorf("StepTimeout = %v, want 0", cfg.StepTimeout)
	}
	if cfg.LedgerEnabled {
		t.Error("LedgerEnabled = true without DB_HOST")
	}
}

func TestLoad_overrides(t *testing.T) {
	clearEnv(t)
	home := t.TempDir()
	t.Setenv("IDMC_HOME", home)
	t.Setenv("IDMC_PYTHON", "/usr/bin/python3.12")
	t.Setenv("IDMC_FAILURE_POLICY", PolicyFailFast)
	t.Setenv("IDMC_STEP_TIMEOUT", "90m")
	t.Setenv("DB_HOST", "db.internal")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Python != "/usr/bin/python3.12" {
		t.Errorf("Python = %q", cfg.Python)
	}
	if cfg.FailurePolicy != PolicyFailFast {
		t.Errorf("FailurePolicy = %q", cfg.FailurePolicy)
	}
	if cfg.StepTimeout != 90*time.Minute {
		t.Errorf("StepTimeout = %v, want 90m", cfg.StepTimeout)
	}
	if !cfg.LedgerEnabled {
		t.Error("LedgerEnabled = false with DB_HOST set")
	}
}

func TestLoad_baseDirDotEnv(t *testing.T) {
	clearEnv(t)
	home := t.TempDir()
	t.Setenv("IDMC_HOME", home)
	if err := os.WriteFile(filepath.Join(home, ".env"), []byte("IDMC_LOAD_SCRIPT=custom_loader.py\n"), 0644); err != nil {
		t.Fatalf("failed to write .env: %v", err)
	}
	t.Cleanup(func() { os.Unsetenv("IDMC_LOAD_SCRIPT") })

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.LoadScript != "custom_loader.py" {
		t.Errorf("LoadScript = %q, want custom_loader.py", cfg.LoadScript)
	}
}

func TestLoad_invalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"unknown policy", "IDMC_FAILURE_POLICY", "retry-forever"},
		{"bad timeout", "IDMC_STEP_TIMEOUT", "soon"},
		{"negative timeout", "IDMC_STEP_TIMEOUT", "-5s"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("IDMC_HOME", t.TempDir())
			t.Setenv(tt.key, tt.val)

			if _, err := Load(); err == nil {
				t.Errorf("Load() with %s=%q expected error", tt.key, tt.val)
			}
		})
	}
}

func TestConfig_Path(t *testing.T) {
	cfg := &Config{BaseDir: "/opt/idmc_extract"}

	if got := cfg.Path("config.ini"); got != "/opt/idmc_extract/config.ini" {
		t.Errorf("Path(relative) = %q", got)
	}
	if got := cfg.Path("/etc/idmc.ini"); got != "/etc/idmc.ini" {
		t.Errorf("Path(absolute) = %q", got)
	}
	if got := cfg.Path(""); got != "" {
		t.Errorf("Path(empty) = %q", got)
	}
}
