package filestore

import "time"

// Provider identifies the file storage backend.
type Provider string

const (
	ProviderMinIO Provider = "minio"
)

// Config holds all settings needed to connect to a file storage backend.
// Exports are disabled while Endpoint is empty.
type Config struct {
	// Provider is the storage backend (e.g. ProviderMinIO).
	Provider Provider `koanf:"provider" yaml:"provider"`

	// Endpoint is the host:port of the storage server.
	// Example: "localhost:9000" for local MinIO.
	Endpoint string `koanf:"endpoint" yaml:"endpoint"`

	// AccessKey is the access key ID (MinIO / S3 style).
	AccessKey string `koanf:"access_key" yaml:"access_key"`

	// SecretKey is the secret access key.
	SecretKey string `koanf:"secret_key" yaml:"secret_key"`

	// UseSSL controls whether TLS is used for the connection.
	UseSSL bool `koanf:"use_ssl" yaml:"use_ssl"`

	// Region is used by region-aware backends (e.g. AWS S3).
	// Leave empty for MinIO.
	Region string `koanf:"region" yaml:"region"`

	// Bucket receives the report exports. It is created on startup when
	// missing.
	Bucket string `koanf:"bucket" yaml:"bucket"`

	// PresignTTL is how long an export download link stays valid.
	PresignTTL time.Duration `koanf:"presign_ttl" yaml:"presign_ttl"`
}

// Enabled reports whether a storage endpoint is configured.
func (c *Config) Enabled() bool {
	return c != nil && c.Endpoint != ""
}

// DefaultConfig returns a sensible local-dev config for MinIO.
func DefaultConfig(endpoint, accessKey, secretKey string) *Config {
	return &Config{
		Provider:   ProviderMinIO,
		Endpoint:   endpoint,
		AccessKey:  accessKey,
		SecretKey:  secretKey,
		UseSSL:     false,
		Bucket:     "saudedash-exports",
		PresignTTL: 15 * time.Minute,
	}
}
