package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
)

const (
	DefaultBaseDir      = "/opt/idmc_extract"
	DefaultConfigFile   = "config.ini"
	DefaultSection      = "idmc"
	DefaultPython       = "python3"
	DefaultExportScript = "extract_from_idmc.py"
	DefaultLoadScript   = "load_excel.py"
	DefaultLockFile     = ".idmc_export.lock"
	DefaultLogLevel     = "info"

	PolicyBestEffort = "best-effort"
	PolicyFailFast   = "fail-fast"
)

type Config struct {
	BaseDir       string
	ConfigFile    string
	Section       string
	Python        string
	ExportScript  string
	LoadScript    string
	FailurePolicy string
	StepTimeout   time.Duration
	LockFile      string
	LogFile       string
	LogLevel      string
	WebhookURL    string
	// LedgerEnabled is true when DB_HOST is set; the connection itself is
	// configured by postgres.NewConfig.
	LedgerEnabled bool
}

func Load() (*Config, error) {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()

	baseDir := getEnv("IDMC_HOME", DefaultBaseDir)
	// The install directory may carry its own .env; already-set variables win.
	_ = godotenv.Load(filepath.Join(baseDir, ".env"))

	cfg := &Config{
		BaseDir:       baseDir,
		ConfigFile:    getEnv("IDMC_CONFIG_FILE", DefaultConfigFile),
		Section:       getEnv("IDMC_SECTION", DefaultSection),
		Python:        getEnv("IDMC_PYTHON", DefaultPython),
		ExportScript:  getEnv("IDMC_EXPORT_SCRIPT", DefaultExportScript),
		LoadScript:    getEnv("IDMC_LOAD_SCRIPT", DefaultLoadScript),
		FailurePolicy: getEnv("IDMC_FAILURE_POLICY", PolicyBestEffort),
		LockFile:      getEnv("IDMC_LOCK_FILE", DefaultLockFile),
		LogFile:       os.Getenv("IDMC_LOG_FILE"),
		LogLevel:      getEnv("LOG_LEVEL", DefaultLogLevel),
		WebhookURL:    os.Getenv("IDMC_WEBHOOK_URL"),
		LedgerEnabled: os.Getenv("DB_HOST") != "",
	}

	if raw := os.Getenv("IDMC_STEP_TIMEOUT"); raw != "" {
		timeout, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("IDMC_STEP_TIMEOUT is not a valid duration: %w", err)
		}
		cfg.StepTimeout = timeout
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.BaseDir == "" {
		return fmt.Errorf("IDMC_HOME is required")
	}
	if c.ConfigFile == "" {
		return fmt.Errorf("IDMC_CONFIG_FILE is required")
	}
	if c.Python == "" {
		return fmt.Errorf("IDMC_PYTHON is required")
	}
	if c.ExportScript == "" {
		return fmt.Errorf("IDMC_EXPORT_SCRIPT is required")
	}
	if c.LoadScript == "" {
		return fmt.Errorf("IDMC_LOAD_SCRIPT is required")
	}
	if c.FailurePolicy != PolicyBestEffort && c.FailurePolicy != PolicyFailFast {
		return fmt.Errorf("IDMC_FAILURE_POLICY must be %q or %q, got %q", PolicyBestEffort, PolicyFailFast, c.FailurePolicy)
	}
	if c.StepTimeout < 0 {
		return fmt.Errorf("IDMC_STEP_TIMEOUT must not be negative")
	}
	// Section, LockFile, LogFile and WebhookURL are optional
	return nil
}

// Path resolves p against the base directory unless it is already absolute.
func (c *Config) Path(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.BaseDir, p)
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
