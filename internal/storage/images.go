package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"

	"github.com/dkeye/Rooms/internal/domain"
)

// ImageStore keeps round images on an afero filesystem, one directory per round.
type ImageStore struct {
	fs       afero.Fs
	baseURL  string
	maxBytes int64
}

func NewImageStore(fs afero.Fs, baseURL string, maxBytes int64) *ImageStore {
	return &ImageStore{
		fs:       fs,
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		maxBytes: maxBytes,
	}
}

// Save sniffs the payload, rejects anything that is not an image and returns the
// URL the file is served under.
func (s *ImageStore) Save(ctx context.Context, roundID domain.RoundID, filename string, r io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrUpload, err)
	}
	data, err := io.ReadAll(io.LimitReader(r, s.maxBytes+1))
	if err != nil {
		return "", fmt.Errorf("%w: read %s: %w", domain.ErrUpload, filename, err)
	}
	if int64(len(data)) > s.maxBytes {
		return "", fmt.Errorf("%w: %s exceeds %d bytes", domain.ErrImageTooLarge, filename, s.maxBytes)
	}

	mt := mimetype.Detect(data)
	if !strings.HasPrefix(mt.String(), "image/") {
		return "", fmt.Errorf("%w: %s is %s", domain.ErrUnsupportedImage, filename, mt.String())
	}

	dir := "/" + string(roundID)
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("%w: mkdir %s: %w", domain.ErrUpload, dir, err)
	}
	name := path.Join(dir, uuid.NewString()+mt.Extension())
	if err := afero.WriteReader(s.fs, name, bytes.NewReader(data)); err != nil {
		return "", fmt.Errorf("%w: write %s: %w", domain.ErrUpload, name, err)
	}

	log.Info().
		Str("module", "storage.images").
		Str("round", string(roundID)).
		Str("file", name).
		Str("mime", mt.String()).
		Int("bytes", len(data)).
		Msg("image stored")
	return s.baseURL + name, nil
}

// Remove deletes a stored image by the URL Save returned. Missing files are fine.
func (s *ImageStore) Remove(_ context.Context, url string) error {
	name, ok := strings.CutPrefix(url, s.baseURL+"/")
	if !ok || name == "" || strings.Contains(name, "..") {
		return fmt.Errorf("%w: %q is not a stored image", domain.ErrUpload, url)
	}
	if err := s.fs.Remove("/" + name); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: remove %s: %w", domain.ErrUpload, name, err)
	}
	log.Info().Str("module", "storage.images").Str("file", name).Msg("image removed")
	return nil
}
