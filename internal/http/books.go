package http

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/storynest/internal/database/books"
	"github.com/mrlokans/storynest/internal/wire"
)

// BookListResponse is the body of GET /api/books.
type BookListResponse struct {
	Books []wire.Record `json:"books"`
	Count int           `json:"count"`
}

// DeleteResponse lists the ids that were actually removed.
type DeleteResponse struct {
	Deleted []string `json:"deleted"`
}

// BooksController serves the book catalog of the authenticated user.
type BooksController struct {
	store   BookStore
	auditor BookAuditor
}

// NewBooksController creates a books controller. auditor may be nil.
func NewBooksController(store BookStore, auditor BookAuditor) *BooksController {
	return &BooksController{store: store, auditor: auditor}
}

// ListBooks returns the active books, or the trash with ?trashed=true.
// GET /api/books
func (bc *BooksController) ListBooks(c *gin.Context) {
	trashed := c.Query("trashed") == "true"
	list, err := bc.store.ListForUser(c.Request.Context(), GetUserID(c), trashed)
	if err != nil {
		respondInternalError(c, err, "list books")
		return
	}
	c.JSON(http.StatusOK, BookListResponse{Books: books.ToRecords(list), Count: len(list)})
}

// GetBook returns one book from either partition.
// GET /api/books/:id
func (bc *BooksController) GetBook(c *gin.Context) {
	book, err := bc.store.GetForUser(c.Request.Context(), GetUserID(c), c.Param("id"))
	if err != nil {
		respondBookError(c, err, "get book")
		return
	}
	c.JSON(http.StatusOK, books.ToRecord(*book))
}

// CreateBook stores a new book. The server assigns id and created_at.
// POST /api/books
func (bc *BooksController) CreateBook(c *gin.Context) {
	rec, ok := bindRecord(c)
	if !ok {
		return
	}
	book, err := bc.store.Create(c.Request.Context(), GetUserID(c), rec)
	if err != nil {
		respondBookError(c, err, "create book")
		return
	}
	c.JSON(http.StatusCreated, books.ToRecord(*book))
}

// UpdateBook applies a partial update. Setting or clearing deleted_at moves
// the book into or out of the trash and is audited.
// PATCH /api/books/:id
func (bc *BooksController) UpdateBook(c *gin.Context) {
	patch, ok := bindRecord(c)
	if !ok {
		return
	}
	userID := GetUserID(c)
	book, err := bc.store.Update(c.Request.Context(), userID, c.Param("id"), patch)
	if err != nil {
		respondBookError(c, err, "update book")
		return
	}

	if _, touched := patch[wire.FieldDeletedAt]; touched && bc.auditor != nil {
		if book.Trashed() {
			bc.auditor.LogTrash(userID, book.ID, book.Title)
		} else {
			bc.auditor.LogRestore(userID, book.ID, book.Title)
		}
	}
	c.JSON(http.StatusOK, books.ToRecord(*book))
}

// DeleteBook permanently deletes one book.
// DELETE /api/books/:id
func (bc *BooksController) DeleteBook(c *gin.Context) {
	deleted, ok := bc.delete(c, c.Param("id"))
	if !ok {
		return
	}
	if len(deleted) == 0 {
		respondNotFound(c, "book")
		return
	}
	c.JSON(http.StatusOK, DeleteResponse{Deleted: deleted})
}

// DeleteBooks permanently deletes every book named by an id query parameter.
// Ids that do not exist are ignored. With trashed=true only books that are
// still in the trash are deleted.
// DELETE /api/books?id=a&id=b[&trashed=true]
func (bc *BooksController) DeleteBooks(c *gin.Context) {
	ids := c.QueryArray("id")
	if len(ids) == 0 {
		respondBadRequest(c, "at least one id is required")
		return
	}
	del := bc.store.Delete
	if c.Query("trashed") == "true" {
		del = bc.store.DeleteTrashed
	}
	deleted, ok := bc.deleteWith(c, del, ids...)
	if !ok {
		return
	}
	if deleted == nil {
		deleted = []string{}
	}
	c.JSON(http.StatusOK, DeleteResponse{Deleted: deleted})
}

func (bc *BooksController) delete(c *gin.Context, ids ...string) ([]string, bool) {
	return bc.deleteWith(c, bc.store.Delete, ids...)
}

type deleteFunc func(ctx context.Context, userID uint, ids ...string) ([]string, error)

func (bc *BooksController) deleteWith(c *gin.Context, del deleteFunc, ids ...string) ([]string, bool) {
	userID := GetUserID(c)
	deleted, err := del(c.Request.Context(), userID, ids...)
	if err != nil {
		respondInternalError(c, err, "delete books")
		return nil, false
	}
	if len(deleted) > 0 && bc.auditor != nil {
		bc.auditor.LogDelete(userID, deleted)
	}
	return deleted, true
}

// bindRecord decodes the request body as a wire record.
func bindRecord(c *gin.Context) (wire.Record, bool) {
	var rec wire.Record
	if err := c.ShouldBindJSON(&rec); err != nil {
		respondBadRequest(c, "invalid JSON body: "+err.Error())
		return nil, false
	}
	if rec == nil {
		respondBadRequest(c, "request body must be a JSON object")
		return nil, false
	}
	return rec, true
}
