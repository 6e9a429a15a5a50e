// Package objstore implements the Unification Stage's pluggable output
// backend (spec §4.H): writing per-group JPEG frames, composed grids and
// the combined video, and the Analytics
// stage's final report artifacts, to either a local filesystem tree or
// S3-compatible object storage, behind one Writer interface.
package objstore

import (
	"context"
	"flag"
)

// Writer persists named objects under a backend-specific root.
type Writer interface {
	// Write stores data under name, creating any intermediate
	// directories/prefixes as needed. A write to an existing name
	// overwrites it.
	Write(ctx context.Context, name string, data []byte) error
	// Close releases any resources the backend holds open.
	Close() error
}

// Reader retrieves previously written objects.
type Reader interface {
	Read(ctx context.Context, name string) ([]byte, error)
	// List returns object names under prefix.
	List(ctx context.Context, prefix string) ([]string, error)
}

// ReadWriter is the full backend interface most callers want.
type ReadWriter interface {
	Writer
	Reader
}

// Config selects and configures one of the two output backends (spec
// §6): a local filesystem tree, or S3-compatible object storage.
type Config struct {
	Backend string `yaml:"backend"` // "local" or "s3"

	LocalPath string `yaml:"local-path"`

	S3Endpoint  string `yaml:"s3-endpoint"`
	S3Bucket    string `yaml:"s3-bucket"`
	S3AccessKey string `yaml:"s3-access-key"`
	S3SecretKey string `yaml:"s3-secret-key"`
	S3UseSSL    bool   `yaml:"s3-use-ssl"`
}

// DefaultConfig writes to ./output on local disk.
func DefaultConfig() Config {
	return Config{Backend: "local", LocalPath: "./output"}
}

// RegisterFlags registers cfg's flags.
func (c *Config) RegisterFlags(prefix string, f *flag.FlagSet) {
	f.StringVar(&c.Backend, prefix+"output.backend", "local", "output backend: local or s3")
	f.StringVar(&c.LocalPath, prefix+"output.local-path", "./output", "output root directory (local backend only)")
	f.StringVar(&c.S3Endpoint, prefix+"output.s3-endpoint", "", "S3-compatible endpoint (s3 backend only)")
	f.StringVar(&c.S3Bucket, prefix+"output.s3-bucket", "", "S3 bucket name (s3 backend only)")
	f.StringVar(&c.S3AccessKey, prefix+"output.s3-access-key", "", "S3 access key (s3 backend only)")
	f.StringVar(&c.S3SecretKey, prefix+"output.s3-secret-key", "", "S3 secret key (s3 backend only)")
	f.BoolVar(&c.S3UseSSL, prefix+"output.s3-use-ssl", true, "use TLS for the S3 endpoint (s3 backend only)")
}

// New constructs the ReadWriter named by cfg.Backend.
func New(cfg Config) (ReadWriter, error) {
	switch cfg.Backend {
	case "", "local":
		return newLocal(cfg.LocalPath)
	case "s3":
		return newS3(cfg)
	default:
		return nil, &UnknownBackendError{Backend: cfg.Backend}
	}
}

// UnknownBackendError is returned by New for an unrecognized cfg.Backend.
type UnknownBackendError struct{ Backend string }

func (e *UnknownBackendError) Error() string {
	return "objstore: unknown backend " + e.Backend
}
