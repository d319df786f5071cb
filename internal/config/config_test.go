package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://compliancenominationportal.in.pwc.com", cfg.Portal.BaseURL)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 5, cfg.Fetch.MaxConcurrentCandidates)
	assert.Equal(t, 0.5, cfg.Fetch.CandidateProcessDelay)
	assert.Equal(t, 0.3, cfg.Fetch.DocumentDownloadDelay)
	assert.Equal(t, 3, cfg.Fetch.MaxConcurrentDocuments)
	assert.Equal(t, 3, cfg.Mailbox.PollAttempts)
	assert.Equal(t, 5, cfg.Mailbox.PollDelaySecs)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, "./state", cfg.Browser.StateDir)
	assert.Equal(t, "Audit Log", cfg.Sheets.AuditSheet)
	assert.Equal(t, "pdftotext", cfg.Extract.PdfToTextPath)
	assert.Equal(t, "pixtral-large-latest", cfg.Extract.MistralModel)
	assert.True(t, cfg.Scheduler.Enabled)
	assert.Equal(t, 105, cfg.Scheduler.IntervalMinutes)
	assert.Equal(t, 3, cfg.Sessions.Keep)
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: postgres
log:
  level: debug
  format: console
server:
  port: 9090
fetch:
  max_concurrent_candidates: 10
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 10, cfg.Fetch.MaxConcurrentCandidates)
	// Defaults still apply for unset values
	assert.Equal(t, 0.5, cfg.Fetch.CandidateProcessDelay)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("BGV_STORE_DRIVER", "postgres")
	t.Setenv("BGV_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	t.Setenv("BGV_SCHEDULER_INTERVAL_MINUTES", "30")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 30, cfg.Scheduler.IntervalMinutes)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Fetch.MaxConcurrentCandidates = 5
	cfg.Server.Port = 8080
	return cfg
}

func TestValidateRun_AllPresent(t *testing.T) {
	cfg := validDefaults()
	cfg.Portal.Email = "svc@example.com"
	cfg.Portal.Password = "secret"
	cfg.Mailbox.CredentialsJSON = "/etc/bgv/mailbox.json"
	cfg.Sheets.SpreadsheetID = "sheet-id"
	cfg.Sheets.CredentialsJSON = "/etc/bgv/sheets.json"

	assert.NoError(t, cfg.Validate("run"))
}

func TestValidateRun_MissingFields(t *testing.T) {
	cfg := validDefaults()

	err := cfg.Validate("run")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "portal.email is required")
	assert.Contains(t, err.Error(), "mailbox.credentials_json is required")
	assert.Contains(t, err.Error(), "sheets.spreadsheet_id is required")
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0
	cfg.Portal.Email = "svc@example.com"
	cfg.Portal.Password = "secret"
	cfg.Mailbox.CredentialsJSON = "/etc/bgv/mailbox.json"

	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestValidateConcurrencyBounds(t *testing.T) {
	cfg := validDefaults()
	cfg.Fetch.MaxConcurrentCandidates = 0

	err := cfg.Validate("fetch")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "max_concurrent_candidates must be between 1 and 50")
}
