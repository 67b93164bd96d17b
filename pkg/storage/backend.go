package storage

import (
	"context"
	"fmt"
	"io"
	"time"
)

// Backend is the uniform storage contract. Both variants map flat string
// keys to stored blobs; key listing is the only catalog the registry has.
type Backend interface {
	// Exists reports whether an object is present at key. A missing object
	// is (false, nil); any other failure is returned as an error, never
	// conflated with presence.
	Exists(ctx context.Context, key string) (bool, error)

	// Upload writes content at key, replacing any existing object.
	Upload(ctx context.Context, key string, content io.Reader) error

	// ListPrefix returns every object whose key starts with prefix. The
	// match is a string-prefix match, not a path-component match.
	ListPrefix(ctx context.Context, prefix string) ([]Object, error)

	// URLForKey returns the public URL for key. It is a pure function of
	// the key and backend configuration and never touches the network.
	URLForKey(key string) string
}

// Object is a single listed storage entry.
type Object struct {
	Key string `json:"key"`
}

// Config selects and configures a storage backend.
type Config struct {
	Type string `yaml:"type"` // "local" or "s3"

	// Local config
	LocalRoot string `yaml:"local_root"`

	// S3 config
	S3Bucket           string `yaml:"s3_bucket"`
	S3Region           string `yaml:"s3_region"`
	S3Endpoint         string `yaml:"s3_endpoint"`
	S3PublicEndpoint   string `yaml:"s3_public_endpoint"`
	S3AccessKey        string `yaml:"s3_access_key"`
	S3SecretKey        string `yaml:"s3_secret_key"`
	S3ForcePathStyle   bool   `yaml:"s3_force_path_style"`
	S3AutoCreateBucket bool   `yaml:"s3_auto_create_bucket"`

	// OperationTimeout bounds individual storage operations.
	OperationTimeout time.Duration `yaml:"operation_timeout"`
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() Config {
	return Config{
		Type:             "local",
		LocalRoot:        "/tmp/crate",
		S3Region:         "us-east-1",
		OperationTimeout: 30 * time.Second,
	}
}

// NewBackend constructs the backend selected by cfg.Type.
func NewBackend(ctx context.Context, cfg Config) (Backend, error) {
	switch cfg.Type {
	case "local":
		return NewLocalStorage(cfg.LocalRoot)
	case "s3":
		return NewObjectStorage(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown storage type: %q (must be local or s3)", cfg.Type)
	}
}
