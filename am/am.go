package am

// Config represents the savesync configuration
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Local    LocalConfig    `mapstructure:"local"`
	Remote   RemoteConfig   `mapstructure:"remote"`
	Session  SessionConfig  `mapstructure:"session"`
	Conflict ConflictConfig `mapstructure:"conflict"`
	Server   ServerConfig   `mapstructure:"server"`
}

// DatabaseConfig configures the SQLite database backing local persistence
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// LocalConfig configures the local save slot
type LocalConfig struct {
	Key string `mapstructure:"key"` // slot key the governing program saves under (default: savestate)
}

// Remote backends
const (
	BackendDrive  = "drive"
	BackendS3     = "s3"
	BackendMemory = "memory"
)

// RemoteConfig selects and configures the remote storage transport
type RemoteConfig struct {
	Backend               string      `mapstructure:"backend"`                 // drive, s3, memory
	RequestTimeoutSeconds int         `mapstructure:"request_timeout_seconds"` // per transport call
	Drive                 DriveConfig `mapstructure:"drive"`
	S3                    S3Config    `mapstructure:"s3"`
}

// DriveConfig configures the Google Drive appDataFolder transport
type DriveConfig struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	Endpoint     string `mapstructure:"endpoint"` // empty = Google production endpoint
}

// S3Config configures the S3-compatible transport
type S3Config struct {
	Bucket         string `mapstructure:"bucket"`
	Region         string `mapstructure:"region"`
	Endpoint       string `mapstructure:"endpoint"`         // custom endpoint for MinIO and friends
	ForcePathStyle bool   `mapstructure:"force_path_style"` // required by most non-AWS stores
}

// Session providers
const (
	ProviderTokenFile = "token_file"
	ProviderStatic    = "static"
)

// SessionConfig configures the identity provider that drives the session gate
type SessionConfig struct {
	Provider  string `mapstructure:"provider"`   // token_file, static
	TokenFile string `mapstructure:"token_file"` // OAuth token JSON written by the sign-in flow
	Active    bool   `mapstructure:"active"`     // initial state for the static provider
}

// ConflictConfig configures the read-path reconciliation rule
type ConflictConfig struct {
	Enabled bool   `mapstructure:"enabled"` // false = never overwrite local from remote
	Field   string `mapstructure:"field"`   // monotonic numeric field compared in both blobs
}

// ServerConfig configures the local bridge for the governing program
type ServerConfig struct {
	Port              *int     `mapstructure:"port"` // nil = DefaultServerPort, 0 is invalid
	SaveRatePerSecond float64  `mapstructure:"save_rate_per_second"`
	SaveBurst         int      `mapstructure:"save_burst"`
	AllowedOrigins    []string `mapstructure:"allowed_origins"`
}

// DefaultServerPort is the bridge's listening port when server.port is omitted
const DefaultServerPort = 8787

// File system constants
const (
	DefaultDirPermissions  = 0755
	DefaultFilePermissions = 0644
	TokenFilePermissions   = 0600
)
