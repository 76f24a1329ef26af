package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ImageStore persists uploaded images and returns their public URL.
type ImageStore interface {
	Upload(ctx context.Context, folder, filename, contentType string, r io.Reader, size int64) (string, error)
}

var allowedExt = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
	".gif":  true,
}

// ErrUnsupportedImage rejects files whose extension is not an allowed image type.
var ErrUnsupportedImage = errors.New("unsupported image type")

// ObjectName builds "<folder>/<unix>_<uuid><ext>" and rejects non image extensions.
func ObjectName(folder, filename string) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if !allowedExt[ext] {
		return "", fmt.Errorf("%w %q", ErrUnsupportedImage, ext)
	}
	return path.Join(folder, fmt.Sprintf("%d_%s%s", time.Now().Unix(), uuid.NewString(), ext)), nil
}

// LocalStore writes files under Dir and serves them from PublicURL.
type LocalStore struct {
	Dir       string
	PublicURL string
}

func NewLocalStore(dir, publicURL string) *LocalStore {
	return &LocalStore{Dir: dir, PublicURL: strings.TrimRight(publicURL, "/")}
}

func (s *LocalStore) Upload(_ context.Context, folder, filename, _ string, r io.Reader, _ int64) (string, error) {
	name, err := ObjectName(folder, filename)
	if err != nil {
		return "", err
	}

	fullPath := filepath.Join(s.Dir, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return "", err
	}

	dest, err := os.Create(fullPath)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(dest, r); err != nil {
		_ = dest.Close()
		_ = os.Remove(fullPath)
		return "", err
	}
	if err := dest.Close(); err != nil {
		_ = os.Remove(fullPath)
		return "", err
	}
	return s.PublicURL + "/" + name, nil
}

// Config selects and configures the store.
type Config struct {
	Driver    string
	LocalDir  string
	PublicURL string
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// New returns the S3 store for driver "s3" and the local store otherwise.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (ImageStore, error) {
	if cfg.Driver == "s3" {
		return NewS3Store(ctx, cfg, logger)
	}
	logger.Info("using local image storage", "dir", cfg.LocalDir)
	return NewLocalStore(cfg.LocalDir, cfg.PublicURL), nil
}
