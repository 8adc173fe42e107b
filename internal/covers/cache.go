// Package covers stores uploaded cover images and caches external ones.
package covers

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"
)

const (
	maxRemoteCoverBytes = 10 << 20
	sniffLen            = 512
	cachePrefix         = "remote_"
)

// Cache keeps local copies of covers hosted elsewhere so clients fetch them
// from this server. Entries are keyed by URL, so books sharing a cover share
// one file, and concurrent requests for the same URL download it once.
type Cache struct {
	dir    string
	client *http.Client
	group  singleflight.Group
}

func NewCache(dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &Cache{
		dir:    dir,
		client: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

func (c *Cache) CacheDir() string {
	return c.dir
}

// Remote reports whether coverURL points at another host and can be cached.
func Remote(coverURL string) bool {
	u, err := url.Parse(coverURL)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// GetCover returns the path of the cached copy of coverURL, downloading it
// on first use. URLs that are not remote yield "".
func (c *Cache) GetCover(ctx context.Context, coverURL string) (string, error) {
	if !Remote(coverURL) {
		return "", nil
	}

	path := c.pathFor(coverURL)
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}

	_, err, _ := c.group.Do(path, func() (any, error) {
		if _, err := os.Stat(path); err == nil {
			return nil, nil
		}
		return nil, c.download(ctx, coverURL, path)
	})
	if err != nil {
		return "", err
	}
	return path, nil
}

// RemoveUnreferenced deletes cached copies of URLs missing from referenced
// that were last written more than grace ago.
func (c *Cache) RemoveUnreferenced(referenced []string, grace time.Duration) (int, error) {
	keep := make(map[string]bool, len(referenced))
	for _, u := range referenced {
		if Remote(u) {
			keep[c.pathFor(u)] = true
		}
	}

	paths, err := filepath.Glob(filepath.Join(c.dir, cachePrefix+"*"))
	if err != nil {
		return 0, err
	}
	cutoff := time.Now().Add(-grace)
	removed := 0
	for _, path := range paths {
		if keep[path] {
			continue
		}
		info, err := os.Stat(path)
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// The file name is a hash of the URL and carries no extension; the content
// type is sniffed when served.
func (c *Cache) pathFor(coverURL string) string {
	sum := sha256.Sum256([]byte(coverURL))
	return filepath.Join(c.dir, cachePrefix+hex.EncodeToString(sum[:12]))
}

func (c *Cache) download(ctx context.Context, coverURL, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, coverURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", "StoryNest/1.0")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch cover: status %d", resp.StatusCode)
	}

	body := io.LimitReader(resp.Body, maxRemoteCoverBytes)
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(body, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("fetch cover: %w", err)
	}
	head = head[:n]
	if !strings.HasPrefix(http.DetectContentType(head), "image/") {
		return ErrNotImage
	}

	tmp, err := os.CreateTemp(c.dir, "download_")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, io.MultiReader(bytes.NewReader(head), body)); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
