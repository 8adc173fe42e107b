package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/storynest/internal/covers"
)

// UploadResponse carries the public URL of a stored cover or avatar.
type UploadResponse struct {
	URL string `json:"url"`
}

// CoversController handles cover uploads and cover image delivery.
type CoversController struct {
	storage *covers.Storage
	cache   *covers.Cache
	books   BookStore
}

// NewCoversController creates a covers controller. cache may be nil, in which
// case external covers are redirected to instead of proxied.
func NewCoversController(storage *covers.Storage, cache *covers.Cache, books BookStore) *CoversController {
	return &CoversController{
		storage: storage,
		cache:   cache,
		books:   books,
	}
}

// Upload stores the multipart "file" field and returns its public URL.
// POST /api/covers
func (cc *CoversController) Upload(c *gin.Context) {
	storeUpload(c, cc.storage, "cover")
}

// Serve delivers an uploaded cover file.
// GET /covers/:name
func (cc *CoversController) Serve(c *gin.Context) {
	serveStored(c, cc.storage)
}

// storeUpload saves the multipart "file" field into storage and answers with
// its public URL.
func storeUpload(c *gin.Context, storage *covers.Storage, kind string) {
	header, err := c.FormFile("file")
	if err != nil {
		respondBadRequest(c, "file is required")
		return
	}
	file, err := header.Open()
	if err != nil {
		respondInternalError(c, err, "open upload")
		return
	}
	defer file.Close()

	url, err := storage.Upload(header.Filename, file)
	switch {
	case errors.Is(err, covers.ErrTooLarge):
		respondError(c, http.StatusRequestEntityTooLarge, CodeTooLarge, err.Error())
	case errors.Is(err, covers.ErrNotImage):
		respondError(c, http.StatusUnsupportedMediaType, CodeNotImage, err.Error())
	case errors.Is(err, covers.ErrEmpty):
		respondBadRequest(c, err.Error())
	case err != nil:
		respondInternalError(c, err, "store "+kind)
	default:
		c.JSON(http.StatusCreated, UploadResponse{URL: url})
	}
}

func serveStored(c *gin.Context, storage *covers.Storage) {
	path, err := storage.Path(c.Param("name"))
	if err != nil {
		c.Status(http.StatusNotFound)
		return
	}
	c.Header("Cache-Control", "public, max-age=86400")
	c.File(path)
}

// GetCover serves the cover of a book. Uploaded covers come from storage,
// external ones through the cache.
// GET /api/books/:id/cover
func (cc *CoversController) GetCover(c *gin.Context) {
	book, err := cc.books.GetForUser(c.Request.Context(), GetUserID(c), c.Param("id"))
	if err != nil || book.CoverURL == "" {
		c.Status(http.StatusNotFound)
		return
	}

	if name := cc.storage.NameFromURL(book.CoverURL); name != "" {
		path, err := cc.storage.Path(name)
		if err != nil {
			c.Status(http.StatusNotFound)
			return
		}
		c.File(path)
		return
	}

	if cc.cache == nil {
		c.Redirect(http.StatusTemporaryRedirect, book.CoverURL)
		return
	}
	cachePath, err := cc.cache.GetCover(c.Request.Context(), book.CoverURL)
	if err != nil || cachePath == "" {
		c.Redirect(http.StatusTemporaryRedirect, book.CoverURL)
		return
	}
	c.File(cachePath)
}
