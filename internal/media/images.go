package media

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path"
	"path/filepath"
	"strings"

	"casecommerce/internal/util"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrTooLarge        = errors.New("image exceeds the upload size limit")
	ErrUnsupportedType = errors.New("image type is not supported")
)

var allowedTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

// ImageStore keeps uploaded product images on local disk and hands out the
// public URL they are served under.
type ImageStore struct {
	dir          string
	publicPrefix string
	maxBytes     int64
	logger       *zap.Logger
}

// NewImageStore creates the upload directory if needed
func NewImageStore(dir, publicPrefix string, maxBytes int64) (*ImageStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload dir: %w", err)
	}
	return &ImageStore{
		dir:          dir,
		publicPrefix: strings.TrimRight(publicPrefix, "/"),
		maxBytes:     maxBytes,
		logger:       util.GetLogger(),
	}, nil
}

// Dir is the directory uploads are written to
func (s *ImageStore) Dir() string { return s.dir }

// PublicPrefix is the URL path uploads are served under
func (s *ImageStore) PublicPrefix() string { return s.publicPrefix }

// Save validates an uploaded file by content, writes it under a random name
// and returns its public URL.
func (s *ImageStore) Save(fh *multipart.FileHeader) (string, error) {
	if fh.Size > s.maxBytes {
		return "", ErrTooLarge
	}

	src, err := fh.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open upload: %w", err)
	}
	defer src.Close()

	// Read one byte past the limit so oversized bodies with a lying header
	// are still rejected.
	data, err := io.ReadAll(io.LimitReader(src, s.maxBytes+1))
	if err != nil {
		return "", fmt.Errorf("failed to read upload: %w", err)
	}
	if int64(len(data)) > s.maxBytes {
		return "", ErrTooLarge
	}

	mtype := mimetype.Detect(data)
	if !allowedTypes[mtype.String()] {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedType, mtype.String())
	}

	name := uuid.New().String() + mtype.Extension()
	if err := os.WriteFile(filepath.Join(s.dir, name), data, 0o644); err != nil {
		return "", fmt.Errorf("failed to store upload: %w", err)
	}

	s.logger.Debug("Stored product image",
		zap.String("file", name),
		zap.String("type", mtype.String()),
		zap.Int("bytes", len(data)))
	return path.Join(s.publicPrefix, name), nil
}

// SaveAll stores every file, removing the ones already written if any fails.
func (s *ImageStore) SaveAll(files []*multipart.FileHeader) ([]string, error) {
	urls := make([]string, 0, len(files))
	for _, fh := range files {
		url, err := s.Save(fh)
		if err != nil {
			s.Remove(urls)
			return nil, err
		}
		urls = append(urls, url)
	}
	return urls, nil
}

// Remove deletes previously saved images. URLs outside this store are ignored.
func (s *ImageStore) Remove(urls []string) {
	for _, url := range urls {
		name := strings.TrimPrefix(url, s.publicPrefix+"/")
		if name == url || name == "" || strings.ContainsAny(name, `/\`) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("Failed to remove product image", zap.String("file", name), zap.Error(err))
		}
	}
}
