package covers

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

var (
	ErrTooLarge = errors.New("file exceeds upload limit")
	ErrNotImage = errors.New("file is not an image")
	ErrEmpty    = errors.New("file is empty")
)

var (
	unsafeNameChars = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)
	repeatedDashes  = regexp.MustCompile(`-{2,}`)
)

const maxBaseLength = 50

var imageExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// StorageOptions configures where uploads go and how they are shrunk.
type StorageOptions struct {
	Dir       string
	PublicURL string
	MaxWidth  int
	Quality   int
	MaxBytes  int64
}

// Storage keeps user-uploaded cover images on the local filesystem.
type Storage struct {
	dir       string
	publicURL string
	maxWidth  int
	quality   int
	maxBytes  int64
	now       func() time.Time
}

// NewStorage creates the upload directory if needed.
func NewStorage(opts StorageOptions) (*Storage, error) {
	if opts.Dir == "" {
		return nil, fmt.Errorf("covers directory cannot be empty")
	}
	if err := os.MkdirAll(opts.Dir, 0755); err != nil {
		return nil, fmt.Errorf("create covers dir: %w", err)
	}
	if opts.Quality <= 0 || opts.Quality > 100 {
		opts.Quality = 70
	}
	return &Storage{
		dir:       opts.Dir,
		publicURL: strings.TrimSuffix(opts.PublicURL, "/"),
		maxWidth:  opts.MaxWidth,
		quality:   opts.Quality,
		maxBytes:  opts.MaxBytes,
		now:       time.Now,
	}, nil
}

// Dir returns the directory uploads are written to.
func (s *Storage) Dir() string {
	return s.dir
}

// Upload stores an image under a fresh unique name and returns its public
// URL. Images wider than MaxWidth are scaled down and stored as JPEG; images
// that cannot be decoded are stored as received.
func (s *Storage) Upload(filename string, r io.Reader) (string, error) {
	if s.maxBytes > 0 {
		r = io.LimitReader(r, s.maxBytes+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read upload: %w", err)
	}
	if len(data) == 0 {
		return "", ErrEmpty
	}
	if s.maxBytes > 0 && int64(len(data)) > s.maxBytes {
		return "", ErrTooLarge
	}

	contentType := http.DetectContentType(data)
	ext, ok := imageExtensions[contentType]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotImage, contentType)
	}

	compressed, resized, err := Compress(data, s.maxWidth, s.quality)
	switch {
	case err != nil:
		log.Printf("Storing %s uncompressed: %v", filename, err)
	case resized:
		log.Printf("Compressed cover %s from %d to %d bytes", filename, len(data), len(compressed))
		data, ext = compressed, ".jpg"
	}

	name, err := s.uniqueName(filename, ext)
	if err != nil {
		return "", err
	}
	if err := writeAtomic(s.dir, name, data); err != nil {
		return "", err
	}
	return s.publicURL + "/" + name, nil
}

// uniqueName renders <unix-ms>_<sanitized-base>_<nanoid><ext>.
func (s *Storage) uniqueName(filename, ext string) (string, error) {
	suffix, err := gonanoid.New(10)
	if err != nil {
		return "", fmt.Errorf("generate file id: %w", err)
	}
	return fmt.Sprintf("%d_%s_%s%s", s.now().UnixMilli(), SanitizeBase(filename), suffix, ext), nil
}

// SanitizeBase reduces a client file name to a short token safe for URLs:
// the extension is dropped and runs of other characters become one dash.
func SanitizeBase(filename string) string {
	base := filepath.Base(strings.ReplaceAll(filename, "\\", "/"))
	base = strings.TrimSuffix(base, filepath.Ext(base))
	base = unsafeNameChars.ReplaceAllString(base, "-")
	base = repeatedDashes.ReplaceAllString(base, "-")
	base = strings.Trim(base, "-_")
	if len(base) > maxBaseLength {
		base = strings.Trim(base[:maxBaseLength], "-_")
	}
	if base == "" {
		return "cover"
	}
	return base
}

// Path resolves a stored file name, rejecting anything that is not a plain
// file name inside the upload directory.
func (s *Storage) Path(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", os.ErrNotExist
	}
	return filepath.Join(s.dir, name), nil
}

// NameFromURL returns the stored file name a public URL refers to, or "" when
// the URL does not point into this storage.
func (s *Storage) NameFromURL(url string) string {
	if !strings.HasPrefix(url, s.publicURL+"/") {
		return ""
	}
	name := strings.TrimPrefix(url, s.publicURL+"/")
	if name != path.Base(name) {
		return ""
	}
	return name
}

// RemoveUnreferenced deletes uploaded files that none of the given cover URLs
// point to. Files younger than grace are kept, since a client may not have
// saved the URL yet.
func (s *Storage) RemoveUnreferenced(referenced []string, grace time.Duration) (int, error) {
	keep := make(map[string]bool, len(referenced))
	for _, url := range referenced {
		if name := s.NameFromURL(url); name != "" {
			keep[name] = true
		}
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("read covers dir: %w", err)
	}

	cutoff := s.now().Add(-grace)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || keep[entry.Name()] || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, entry.Name())); err != nil && !os.IsNotExist(err) {
			return removed, fmt.Errorf("remove %s: %w", entry.Name(), err)
		}
		removed++
	}
	return removed, nil
}

func writeAtomic(dir, name string, data []byte) error {
	tmp, err := os.CreateTemp(dir, ".upload_")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := io.Copy(tmp, bytes.NewReader(data)); err != nil {
		tmp.Close()
		return fmt.Errorf("write cover: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, filepath.Join(dir, name))
}
