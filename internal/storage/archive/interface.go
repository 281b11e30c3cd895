package archive

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/newthinker/tpsl/internal/config"
	"github.com/newthinker/tpsl/internal/core"
)

// Storage is a flat key/blob store for finished backtest reports.
// Paths are slash separated and relative to the backend root.
type Storage interface {
	Write(ctx context.Context, path string, data []byte) error
	Read(ctx context.Context, path string) ([]byte, error)
	// List returns all paths under prefix, sorted
	List(ctx context.Context, prefix string) ([]string, error)
	Delete(ctx context.Context, path string) error
	Exists(ctx context.Context, path string) (bool, error)
}

// Open builds the backend selected by cfg.Type.
func Open(cfg config.ArchiveConfig, logger ...*zap.Logger) (Storage, error) {
	switch cfg.Type {
	case "", "localfs":
		return NewLocalFS(cfg.Path)
	case "s3":
		return NewS3(S3Config{
			Bucket:    cfg.S3.Bucket,
			Endpoint:  cfg.S3.Endpoint,
			Region:    cfg.S3.Region,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			Prefix:    cfg.S3.Prefix,
		}, logger...)
	default:
		return nil, core.WrapError(core.ErrConfigInvalid, fmt.Errorf("unknown archive type %q", cfg.Type))
	}
}
