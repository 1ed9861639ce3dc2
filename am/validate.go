package am

import (
	"strings"

	"github.com/teranos/savesync/errors"
)

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Local.Key) == "" {
		return errors.New("local.key cannot be empty")
	}

	switch c.Remote.Backend {
	case BackendDrive:
		if c.Remote.Drive.ClientID == "" {
			return errors.WithHint(
				errors.New("remote.drive.client_id is required for the drive backend"),
				"set SAVESYNC_DRIVE_CLIENT_ID or remote.drive.client_id in ~/.savesync/am.toml",
			)
		}
	case BackendS3:
		if c.Remote.S3.Bucket == "" {
			return errors.New("remote.s3.bucket is required for the s3 backend")
		}
	case BackendMemory:
	default:
		return errors.Newf("remote.backend must be one of drive, s3, memory, got %q", c.Remote.Backend)
	}

	// 0 would make every transport call fail immediately
	if c.Remote.RequestTimeoutSeconds <= 0 {
		return errors.Newf("remote.request_timeout_seconds must be > 0, got %d", c.Remote.RequestTimeoutSeconds)
	}

	switch c.Session.Provider {
	case ProviderTokenFile:
		if c.Session.TokenFile == "" {
			return errors.New("session.token_file cannot be empty for the token_file provider")
		}
	case ProviderStatic:
	default:
		return errors.Newf("session.provider must be token_file or static, got %q", c.Session.Provider)
	}

	if c.Conflict.Enabled && strings.TrimSpace(c.Conflict.Field) == "" {
		return errors.New("conflict.field cannot be empty when conflict.enabled is true")
	}

	if c.Server.Port != nil && *c.Server.Port == 0 {
		return errors.Newf("server.port cannot be 0 (omit for default port %d)", DefaultServerPort)
	}
	if c.Server.Port != nil && *c.Server.Port < 0 {
		return errors.Newf("server.port must be positive, got %d", *c.Server.Port)
	}
	if c.Server.SaveRatePerSecond <= 0 {
		return errors.Newf("server.save_rate_per_second must be > 0, got %f", c.Server.SaveRatePerSecond)
	}
	if c.Server.SaveBurst < 1 {
		return errors.Newf("server.save_burst must be >= 1, got %d", c.Server.SaveBurst)
	}

	return nil
}
