package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/bitacora/internal/assistant"
	"github.com/starford/bitacora/internal/backup"
	"github.com/starford/bitacora/internal/pingate"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModePIN      = "pin"
)

// Backup providers.
const (
	BackupDrive = "drive"
	BackupGCS   = "gcs"
	BackupFS    = "fs"
)

// Config represents the application configuration.
type Config struct {
	App       ApplicationConfig `yaml:"app"`
	SQLite    SQLiteConfig      `yaml:"sqlite"`
	Inbox     InboxConfig       `yaml:"inbox"`
	Auth      AuthConfig        `yaml:"auth"`
	Backup    BackupConfig      `yaml:"backup"`
	Assistant AssistantConfig   `yaml:"assistant"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.SQLite.Validate(); err != nil {
		return err
	}
	if err := c.Inbox.Validate(); err != nil {
		return err
	}
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	if err := c.Backup.Validate(); err != nil {
		return err
	}
	return c.Assistant.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// SQLiteConfig holds the record store and search index locations. The
// index is rebuilt on start, so it may live in memory.
type SQLiteConfig struct {
	Path      string `yaml:"path"`
	IndexPath string `yaml:"index_path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	if c.IndexPath == "" {
		c.IndexPath = ":memory:"
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// InboxConfig holds the directory watched for dropped assistant replies.
type InboxConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Validate validates the inbox configuration.
func (c *InboxConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.When(c.Enabled, validation.Required)),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "pin": a PIN is exchanged for a session token; PINHash must be a bcrypt hash.
type AuthConfig struct {
	Mode       string        `yaml:"mode"`
	PINHash    string        `yaml:"pin_hash"`
	SessionTTL time.Duration `yaml:"session_ttl"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if c.SessionTTL == 0 {
		c.SessionTTL = pingate.DefaultTTL
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModePIN)),
		validation.Field(&c.SessionTTL, validation.Min(time.Minute)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModePIN && c.PINHash == "" {
		return fmt.Errorf("auth: mode is %q but pin_hash is empty", AuthModePIN)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModePIN
}

// OAuthClientConfig holds the OAuth client used to mint backup access tokens.
type OAuthClientConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	TokenURL     string `yaml:"token_url"`
	RedirectURL  string `yaml:"redirect_url"`
	RefreshToken string `yaml:"refresh_token"`
}

// Configured reports whether a client id and refresh token are present.
func (c *OAuthClientConfig) Configured() bool {
	return c.ClientID != "" && c.RefreshToken != ""
}

// BackupConfig selects where the snapshot is kept.
type BackupConfig struct {
	Provider   string            `yaml:"provider"`
	FolderName string            `yaml:"folder_name"`
	FileName   string            `yaml:"file_name"`
	Bucket     string            `yaml:"bucket"`
	FSPath     string            `yaml:"fs_path"`
	Timeout    time.Duration     `yaml:"timeout"`
	OAuth      OAuthClientConfig `yaml:"oauth"`
}

// Validate validates the backup configuration.
func (c *BackupConfig) Validate() error {
	if c.Provider == "" {
		c.Provider = BackupFS
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Provider, validation.In(BackupDrive, BackupGCS, BackupFS)),
		validation.Field(&c.FileName, validation.Required),
		validation.Field(&c.Bucket, validation.When(c.Provider == BackupGCS, validation.Required)),
		validation.Field(&c.FSPath, validation.When(c.Provider == BackupFS, validation.Required)),
		validation.Field(&c.Timeout, validation.Min(time.Duration(0))),
	)
}

// Scopes returns the OAuth scopes the provider needs.
func (c *BackupConfig) Scopes() []string {
	switch c.Provider {
	case BackupDrive:
		return []string{backup.DriveScope}
	case BackupGCS:
		return []string{backup.GCSScope}
	}
	return nil
}

// AssistantConfig holds the chat provider. An empty provider disables chat.
type AssistantConfig struct {
	Provider string        `yaml:"provider"`
	BaseURL  string        `yaml:"base_url"`
	APIKey   string        `yaml:"api_key"`
	Model    string        `yaml:"model"`
	Timeout  time.Duration `yaml:"timeout"`
}

// Validate validates the assistant configuration.
func (c *AssistantConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Provider, validation.In(assistant.ProviderOpenAI, assistant.ProviderAnthropic)),
		validation.Field(&c.APIKey, validation.When(c.Provider != "", validation.Required)),
		validation.Field(&c.Model, validation.When(c.Provider != "", validation.Required)),
	)
}

// Enabled reports whether a chat provider is configured.
func (c *AssistantConfig) Enabled() bool {
	return c.Provider != ""
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		SQLite: SQLiteConfig{
			Path:      "./bitacora.db",
			IndexPath: ":memory:",
		},
		Inbox: InboxConfig{
			Path: "./inbox",
		},
		Auth: AuthConfig{
			Mode:       AuthModeDisabled,
			SessionTTL: pingate.DefaultTTL,
		},
		Backup: BackupConfig{
			Provider:   BackupFS,
			FolderName: backup.DefaultFolder,
			FileName:   backup.DefaultFileName,
			FSPath:     "./backups",
			Timeout:    backup.DefaultTimeout,
		},
	}
}
