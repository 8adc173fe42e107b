package covers

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testImage(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	s, err := NewStorage(StorageOptions{
		Dir:       t.TempDir(),
		PublicURL: "/covers/",
		MaxWidth:  100,
		Quality:   70,
		MaxBytes:  1 << 20,
	})
	require.NoError(t, err)
	s.now = func() time.Time { return time.UnixMilli(1700000000000) }
	return s
}

func storedFile(t *testing.T, s *Storage, url string) []byte {
	t.Helper()
	path, err := s.Path(s.NameFromURL(url))
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return data
}

var uploadName = regexp.MustCompile(`^/covers/1700000000000_[a-zA-Z0-9_-]+_[A-Za-z0-9_-]{10}\.(jpg|png)$`)

func TestStorage_UploadCompressesWideImages(t *testing.T) {
	s := newTestStorage(t)

	url, err := s.Upload("My Cover!.png", bytes.NewReader(testImage(t, 400, 600)))
	require.NoError(t, err)

	assert.Regexp(t, uploadName, url)
	assert.True(t, strings.HasPrefix(url, "/covers/1700000000000_My-Cover_"))
	assert.True(t, strings.HasSuffix(url, ".jpg"))

	img, err := jpeg.Decode(bytes.NewReader(storedFile(t, s, url)))
	require.NoError(t, err)
	assert.Equal(t, 100, img.Bounds().Dx())
	assert.Equal(t, 150, img.Bounds().Dy())
}

func TestStorage_UploadKeepsSmallImages(t *testing.T) {
	s := newTestStorage(t)
	original := testImage(t, 50, 80)

	url, err := s.Upload("small.png", bytes.NewReader(original))
	require.NoError(t, err)

	assert.True(t, strings.HasSuffix(url, ".png"))
	assert.Equal(t, original, storedFile(t, s, url))
}

func TestStorage_UploadUndecodableImageStoredAsIs(t *testing.T) {
	s := newTestStorage(t)
	// A PNG signature followed by garbage sniffs as PNG but does not decode.
	corrupt := append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0x42}, 64)...)

	url, err := s.Upload("broken.png", bytes.NewReader(corrupt))
	require.NoError(t, err)
	assert.Equal(t, corrupt, storedFile(t, s, url))
}

func TestStorage_UploadRejects(t *testing.T) {
	s := newTestStorage(t)

	_, err := s.Upload("notes.txt", strings.NewReader("hello world"))
	assert.ErrorIs(t, err, ErrNotImage)

	_, err = s.Upload("empty.png", bytes.NewReader(nil))
	assert.ErrorIs(t, err, ErrEmpty)

	s.maxBytes = 10
	_, err = s.Upload("big.png", bytes.NewReader(testImage(t, 20, 20)))
	assert.ErrorIs(t, err, ErrTooLarge)

	entries, _ := os.ReadDir(s.Dir())
	assert.Empty(t, entries)
}

func TestSanitizeBase(t *testing.T) {
	tests := map[string]string{
		"My Cover!.png":         "My-Cover",
		"../../etc/passwd":      "passwd",
		`C:\photos\dune.jpeg`:   "dune",
		"???.png":               "cover",
		"":                      "cover",
		strings.Repeat("a", 80): strings.Repeat("a", maxBaseLength),
	}
	for in, want := range tests {
		assert.Equal(t, want, SanitizeBase(in), in)
	}
}

func TestStorage_Path(t *testing.T) {
	s := newTestStorage(t)

	_, err := s.Path("../secret")
	assert.ErrorIs(t, err, os.ErrNotExist)
	_, err = s.Path(".upload_123")
	assert.ErrorIs(t, err, os.ErrNotExist)

	p, err := s.Path("1_a_b.jpg")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(s.Dir(), "1_a_b.jpg"), p)

	assert.Equal(t, "", s.NameFromURL("https://example.com/a.jpg"))
	assert.Equal(t, "", s.NameFromURL("/covers/sub/a.jpg"))
}

func TestStorage_RemoveUnreferenced(t *testing.T) {
	s := newTestStorage(t)
	s.now = time.Now

	kept, err := s.Upload("kept.png", bytes.NewReader(testImage(t, 10, 10)))
	require.NoError(t, err)
	orphan, err := s.Upload("orphan.png", bytes.NewReader(testImage(t, 10, 10)))
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Join(s.Dir(), "cache"), 0755))

	removed, err := s.RemoveUnreferenced([]string{kept, "https://example.com/x.jpg"}, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 0, removed, "fresh uploads are within the grace period")

	removed, err = s.RemoveUnreferenced([]string{kept}, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = os.Stat(filepath.Join(s.Dir(), s.NameFromURL(orphan)))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(s.Dir(), s.NameFromURL(kept)))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(s.Dir(), "cache"))
	assert.NoError(t, err)
}
