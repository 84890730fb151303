package storage

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// MaxUploadBytes caps uploaded images at 16 MiB.
const MaxUploadBytes = 16 << 20

var (
	ErrExtNotAllowed = errors.New("file extension not allowed")
	ErrFileTooLarge  = errors.New("file exceeds maximum upload size")
)

var allowedExtensions = map[string]struct{}{
	".png":  {},
	".jpg":  {},
	".jpeg": {},
	".gif":  {},
}

// ImageStore keeps giveaway images on local disk under a single
// directory. Stored names are generated, never taken verbatim from the
// client, so they cannot collide or escape the directory.
type ImageStore struct {
	dir string
	log *zerolog.Logger
}

func NewImageStore(dir string, log *zerolog.Logger) (*ImageStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory %s: %w", dir, err)
	}
	return &ImageStore{dir: dir, log: log}, nil
}

// Allowed checks the filename suffix against the image allow-list,
// case-insensitively. Content is not sniffed.
func Allowed(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	_, ok := allowedExtensions[ext]
	return ok
}

// Save writes the uploaded file under a unique generated name and
// returns that name. The caller records it on the giveaway; if the
// record write later fails the caller must Remove the file again.
func (s *ImageStore) Save(fh *multipart.FileHeader) (string, error) {
	if fh.Size > MaxUploadBytes {
		return "", ErrFileTooLarge
	}
	if !Allowed(fh.Filename) {
		return "", ErrExtNotAllowed
	}

	name := uniqueName(fh.Filename)

	src, err := fh.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open uploaded file: %w", err)
	}
	defer src.Close()

	dst, err := os.Create(filepath.Join(s.dir, name))
	if err != nil {
		return "", fmt.Errorf("failed to create image file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		_ = os.Remove(filepath.Join(s.dir, name))
		return "", fmt.Errorf("failed to write image file: %w", err)
	}

	s.log.Info().Str("image", name).Msg("image stored")
	return name, nil
}

// Remove deletes a stored image. A missing file is not an error.
func (s *ImageStore) Remove(name string) error {
	if name == "" {
		return nil
	}
	if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove image %s: %w", name, err)
	}
	return nil
}

// Path returns the on-disk location of a stored image.
func (s *ImageStore) Path(name string) string {
	return filepath.Join(s.dir, name)
}

// Dir returns the upload directory, for static serving.
func (s *ImageStore) Dir() string {
	return s.dir
}

func uniqueName(original string) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return id + "_" + sanitizeFilename(original)
}

// sanitizeFilename keeps only the base name with a conservative
// character set, so the stored name is safe to join onto the upload
// directory.
func sanitizeFilename(name string) string {
	base := filepath.Base(filepath.ToSlash(name))
	var b strings.Builder
	for _, r := range base {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.' || r == '-' || r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	out := strings.Trim(b.String(), ".")
	if out == "" {
		out = "upload"
	}
	return out
}
