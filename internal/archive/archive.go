// Package archive stores quarter exports outside the database, on the local
// filesystem or in an S3-compatible bucket.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"sprintbook/internal/config"
)

// Store writes one object per key.
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// Key builds an object key under prefix.
func Key(prefix string, parts ...string) string {
	clean := make([]string, 0, len(parts)+1)
	if p := strings.Trim(prefix, "/"); p != "" {
		clean = append(clean, p)
	}
	for _, part := range parts {
		part = strings.ReplaceAll(strings.TrimSpace(part), "/", "-")
		if part != "" {
			clean = append(clean, part)
		}
	}
	return path.Join(clean...)
}

// Open returns the store selected by cfg.Driver.
func Open(ctx context.Context, cfg config.ArchiveConfig) (Store, error) {
	switch cfg.Driver {
	case "", "fs":
		dir := cfg.Dir
		if dir == "" {
			dir = filepath.Join(".sprintbook", "archive")
		}
		return FS{Dir: dir}, nil
	case "s3":
		return NewS3(ctx, S3Config{
			Bucket:    cfg.Bucket,
			Region:    cfg.Region,
			Endpoint:  cfg.Endpoint,
			PathStyle: cfg.PathStyle,
		})
	}
	return nil, fmt.Errorf("unknown archive driver %q", cfg.Driver)
}

// FS writes objects as files below Dir.
type FS struct {
	Dir string
}

func (f FS) Put(_ context.Context, key string, data []byte, _ string) (string, error) {
	if strings.Contains(key, "..") {
		return "", fmt.Errorf("invalid archive key %q", key)
	}
	target := filepath.Join(f.Dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", err
	}
	if _, err := os.Stat(target); err == nil {
		return "", fmt.Errorf("archive %s already exists", key)
	}
	if err := os.WriteFile(target, bytes.Clone(data), 0o644); err != nil {
		return "", err
	}
	return target, nil
}
