package internal

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	pkgconfig "github.com/starford/bitacora/pkg/config"
)

func TestAuthConfig_DisabledMode(t *testing.T) {
	cfg := AuthConfig{Mode: "disabled"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled mode should pass: %v", err)
	}
	if cfg.AuthEnabled() {
		t.Error("disabled mode should not be enabled")
	}
}

func TestAuthConfig_EmptyModeDefaultsDisabled(t *testing.T) {
	cfg := AuthConfig{}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty mode should default to disabled: %v", err)
	}
	if cfg.Mode != AuthModeDisabled {
		t.Errorf("mode = %q, want %q", cfg.Mode, AuthModeDisabled)
	}
	if cfg.SessionTTL != 24*time.Hour {
		t.Errorf("session_ttl = %v, want 24h", cfg.SessionTTL)
	}
}

func TestAuthConfig_PINModeValid(t *testing.T) {
	cfg := AuthConfig{Mode: "pin", PINHash: "$2a$10$abcdefghijklmnopqrstuv"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("pin mode with hash should pass: %v", err)
	}
	if !cfg.AuthEnabled() {
		t.Error("pin mode should be enabled")
	}
}

func TestAuthConfig_PINModeEmptyHash(t *testing.T) {
	cfg := AuthConfig{Mode: "pin"}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("pin mode with empty hash should fail")
	}
	if !strings.Contains(err.Error(), "pin_hash is empty") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestAuthConfig_InvalidMode(t *testing.T) {
	cfg := AuthConfig{Mode: "token"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("invalid mode should fail validation")
	}
}

func TestBackupConfig_ProviderRequirements(t *testing.T) {
	cfg := NewDefaultConfig().Backup
	cfg.Provider = BackupGCS
	if err := cfg.Validate(); err == nil {
		t.Error("gcs without bucket should fail")
	}
	cfg.Bucket = "bitacora-backups"
	if err := cfg.Validate(); err != nil {
		t.Errorf("gcs with bucket: %v", err)
	}

	cfg = NewDefaultConfig().Backup
	cfg.Provider = "dropbox"
	if err := cfg.Validate(); err == nil {
		t.Error("unknown provider should fail")
	}

	cfg = NewDefaultConfig().Backup
	cfg.Provider = BackupDrive
	if got := cfg.Scopes(); len(got) != 1 {
		t.Errorf("drive scopes = %v", got)
	}
}

func TestAssistantConfig(t *testing.T) {
	cfg := AssistantConfig{}
	if err := cfg.Validate(); err != nil || cfg.Enabled() {
		t.Fatalf("empty assistant should be valid and disabled: %v", err)
	}
	cfg.Provider = "openai"
	if err := cfg.Validate(); err == nil {
		t.Error("provider without key and model should fail")
	}
	cfg.APIKey, cfg.Model = "k", "gpt-4o-mini"
	if err := cfg.Validate(); err != nil {
		t.Errorf("configured provider: %v", err)
	}
}

func TestInboxConfig_PathRequiredWhenEnabled(t *testing.T) {
	cfg := InboxConfig{Enabled: true}
	if err := cfg.Validate(); err == nil {
		t.Error("enabled inbox without path should fail")
	}
}

func TestFullConfig_AuthValidationCalled(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Auth.Mode = "pin"
	if err := cfg.Validate(); err == nil {
		t.Fatal("full config validate should catch auth error")
	}
}

func TestLoad_YAMLWithEnv(t *testing.T) {
	t.Setenv("BITACORA_TEST_BUCKET", "from-env")
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
app:
  log_level: debug
  http:
    port: 9090
sqlite:
  path: /tmp/b.db
backup:
  provider: gcs
  bucket: ${BITACORA_TEST_BUCKET}
  timeout: 30s
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := NewDefaultConfig()
	if err := pkgconfig.Load(path, cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.App.HTTP.Port != 9090 || cfg.Backup.Bucket != "from-env" {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Backup.Timeout != 30*time.Second {
		t.Errorf("timeout = %v", cfg.Backup.Timeout)
	}
	if cfg.Backup.FileName != "bitacora-backup.json" {
		t.Errorf("default file name lost: %q", cfg.Backup.FileName)
	}
}
