package am

import (
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	// Database defaults
	v.SetDefault("database.path", "savesync.db")

	// Local slot the governing program writes to
	v.SetDefault("local.key", "savestate")

	// Remote transport defaults
	v.SetDefault("remote.backend", BackendDrive)
	v.SetDefault("remote.request_timeout_seconds", 30)
	v.SetDefault("remote.s3.region", "us-east-1")
	v.SetDefault("remote.s3.force_path_style", false)

	// Session defaults
	v.SetDefault("session.provider", ProviderTokenFile)
	v.SetDefault("session.token_file", DefaultTokenFile())
	v.SetDefault("session.active", false)

	// Reconciliation: remote wins only with a strictly greater seed
	v.SetDefault("conflict.enabled", true)
	v.SetDefault("conflict.field", "seed")

	// Server defaults
	v.SetDefault("server.port", DefaultServerPort)
	v.SetDefault("server.save_rate_per_second", 5.0)
	v.SetDefault("server.save_burst", 10)
	v.SetDefault("server.allowed_origins", []string{
		"http://localhost",
		"https://localhost",
		"http://127.0.0.1",
		"https://127.0.0.1",
	})
}

// BindSensitiveEnvVars explicitly binds sensitive configuration to environment variables
func BindSensitiveEnvVars(v *viper.Viper) {
	v.BindEnv("remote.drive.client_id", "SAVESYNC_DRIVE_CLIENT_ID")
	v.BindEnv("remote.drive.client_secret", "SAVESYNC_DRIVE_CLIENT_SECRET")
	v.BindEnv("session.token_file", "SAVESYNC_TOKEN_FILE")
	v.BindEnv("database.path", "SAVESYNC_DATABASE_PATH")
}

// ConfigDir returns ~/.savesync, or ".savesync" when the home directory is unknown
func ConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".savesync"
	}
	return filepath.Join(home, ".savesync")
}

// DefaultTokenFile is where the sign-in flow stores the OAuth token
func DefaultTokenFile() string {
	return filepath.Join(ConfigDir(), "token.json")
}

// GetServerPort returns server.port, or DefaultServerPort when unset
func (c *Config) GetServerPort() int {
	if c.Server.Port == nil {
		return DefaultServerPort
	}
	return *c.Server.Port
}

// GetDatabasePath returns the configured database path
func (c *Config) GetDatabasePath() string {
	if c.Database.Path == "" {
		return "savesync.db"
	}
	return c.Database.Path
}

// GetLocalKey returns the local slot key
func (c *Config) GetLocalKey() string {
	if c.Local.Key == "" {
		return "savestate"
	}
	return c.Local.Key
}
