package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Portal    PortalConfig    `yaml:"portal" mapstructure:"portal"`
	Mailbox   MailboxConfig   `yaml:"mailbox" mapstructure:"mailbox"`
	Browser   BrowserConfig   `yaml:"browser" mapstructure:"browser"`
	Fetch     FetchConfig     `yaml:"fetch" mapstructure:"fetch"`
	Sheets    SheetsConfig    `yaml:"sheets" mapstructure:"sheets"`
	Drive     DriveConfig     `yaml:"drive" mapstructure:"drive"`
	Extract   ExtractConfig   `yaml:"extract" mapstructure:"extract"`
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Scheduler SchedulerConfig `yaml:"scheduler" mapstructure:"scheduler"`
	Sessions  SessionsConfig  `yaml:"sessions" mapstructure:"sessions"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// PortalConfig holds the compliance portal credentials and addressing.
type PortalConfig struct {
	BaseURL   string `yaml:"base_url" mapstructure:"base_url"`
	LoginPath string `yaml:"login_path" mapstructure:"login_path"`
	Email     string `yaml:"email" mapstructure:"email"`
	Password  string `yaml:"password" mapstructure:"password"`
}

// MailboxConfig configures the OTP mailbox lookup.
type MailboxConfig struct {
	CredentialsJSON string `yaml:"credentials_json" mapstructure:"credentials_json"`
	User            string `yaml:"user" mapstructure:"user"`
	Query           string `yaml:"query" mapstructure:"query"`
	PollAttempts    int    `yaml:"poll_attempts" mapstructure:"poll_attempts"`
	PollDelaySecs   int    `yaml:"poll_delay_secs" mapstructure:"poll_delay_secs"`
}

// BrowserConfig configures the managed Chrome session.
type BrowserConfig struct {
	ExecPath            string `yaml:"exec_path" mapstructure:"exec_path"`
	Headless            bool   `yaml:"headless" mapstructure:"headless"`
	StateDir            string `yaml:"state_dir" mapstructure:"state_dir"`
	DownloadTimeoutSecs int    `yaml:"download_timeout_secs" mapstructure:"download_timeout_secs"`
}

// FetchConfig configures the fetch pipeline.
type FetchConfig struct {
	OutDir                  string `yaml:"out_dir" mapstructure:"out_dir"`
	MaxConcurrentCandidates int    `yaml:"max_concurrent_candidates" mapstructure:"max_concurrent_candidates"`
	// Delays are in seconds, fractional values allowed.
	CandidateProcessDelay float64 `yaml:"candidate_process_delay" mapstructure:"candidate_process_delay"`
	DocumentDownloadDelay float64 `yaml:"document_download_delay" mapstructure:"document_download_delay"`
	// MaxConcurrentDocuments is accepted but not acted on: documents for one
	// candidate are downloaded sequentially.
	MaxConcurrentDocuments int    `yaml:"max_concurrent_documents" mapstructure:"max_concurrent_documents"`
	TabsFile               string `yaml:"tabs_file" mapstructure:"tabs_file"`
}

// SheetsConfig configures the Google Sheets sync target.
type SheetsConfig struct {
	SpreadsheetID   string `yaml:"spreadsheet_id" mapstructure:"spreadsheet_id"`
	CredentialsJSON string `yaml:"credentials_json" mapstructure:"credentials_json"`
	AuditSheet      string `yaml:"audit_sheet" mapstructure:"audit_sheet"`
}

// DriveConfig configures optional Google Drive artifact upload.
type DriveConfig struct {
	Enabled         bool   `yaml:"enabled" mapstructure:"enabled"`
	RootFolder      string `yaml:"root_folder" mapstructure:"root_folder"`
	CredentialsJSON string `yaml:"credentials_json" mapstructure:"credentials_json"`
}

// ExtractConfig configures PDF form extraction.
type ExtractConfig struct {
	PdfToTextPath string `yaml:"pdftotext_path" mapstructure:"pdftotext_path"`
	MistralKey    string `yaml:"mistral_api_key" mapstructure:"mistral_api_key"`
	MistralModel  string `yaml:"mistral_ocr_model" mapstructure:"mistral_ocr_model"`
}

// StoreConfig configures the run-ledger database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// ServerConfig configures the trigger server.
type ServerConfig struct {
	Port    int    `yaml:"port" mapstructure:"port"`
	PeerURL string `yaml:"peer_url" mapstructure:"peer_url"`
}

// SchedulerConfig configures the periodic run driver.
type SchedulerConfig struct {
	Enabled         bool `yaml:"enabled" mapstructure:"enabled"`
	IntervalMinutes int  `yaml:"interval_minutes" mapstructure:"interval_minutes"`
}

// SessionsConfig configures session retention.
type SessionsConfig struct {
	Keep int `yaml:"keep" mapstructure:"keep"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("BGV")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("portal.base_url", "https://compliancenominationportal.in.pwc.com")
	v.SetDefault("portal.login_path", "/")
	v.SetDefault("mailbox.query", "from:noreply subject:code newer_than:1d")
	v.SetDefault("mailbox.user", "me")
	v.SetDefault("mailbox.poll_attempts", 3)
	v.SetDefault("mailbox.poll_delay_secs", 5)
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.state_dir", "./state")
	v.SetDefault("browser.download_timeout_secs", 60)
	v.SetDefault("fetch.out_dir", "./downloads")
	v.SetDefault("fetch.max_concurrent_candidates", 5)
	v.SetDefault("fetch.candidate_process_delay", 0.5)
	v.SetDefault("fetch.document_download_delay", 0.3)
	v.SetDefault("fetch.max_concurrent_documents", 3)
	v.SetDefault("sheets.audit_sheet", "Audit Log")
	v.SetDefault("drive.root_folder", "BGV Candidates")
	v.SetDefault("extract.pdftotext_path", "pdftotext")
	v.SetDefault("extract.mistral_ocr_model", "pixtral-large-latest")
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "file:bgvsync.db")
	v.SetDefault("server.port", 8080)
	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.interval_minutes", 105)
	v.SetDefault("sessions.keep", 3)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks that the fields required for the given mode are set.
// Modes: "run" (full login+fetch+sync), "serve", "login", "fetch", "sheets".
func (c *Config) Validate(mode string) error {
	var problems []string

	requireLogin := func() {
		if c.Portal.Email == "" {
			problems = append(problems, "portal.email is required")
		}
		if c.Portal.Password == "" {
			problems = append(problems, "portal.password is required")
		}
		if c.Mailbox.CredentialsJSON == "" {
			problems = append(problems, "mailbox.credentials_json is required")
		}
	}
	requireSheets := func() {
		if c.Sheets.SpreadsheetID == "" {
			problems = append(problems, "sheets.spreadsheet_id is required")
		}
		if c.Sheets.CredentialsJSON == "" {
			problems = append(problems, "sheets.credentials_json is required")
		}
	}
	requireFetchBounds := func() {
		if c.Fetch.MaxConcurrentCandidates < 1 || c.Fetch.MaxConcurrentCandidates > 50 {
			problems = append(problems, "fetch.max_concurrent_candidates must be between 1 and 50")
		}
	}

	switch mode {
	case "run":
		requireLogin()
		requireSheets()
		requireFetchBounds()
	case "serve":
		if c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
		requireLogin()
		requireFetchBounds()
	case "login":
		requireLogin()
	case "fetch":
		requireFetchBounds()
	case "sheets":
		requireSheets()
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.New("config: " + strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
