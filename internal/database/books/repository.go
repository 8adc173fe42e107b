// Package books stores the book catalog and publishes every committed write.
//
// Rows are never soft-deleted by gorm: the deleted_at column is an ordinary
// nullable timestamp that partitions a user's books into the active set and
// the trash. Permanent deletion removes the row.
//
// # Usage
//
//	repo := books.NewRepository(db, hub)
//	active, err := repo.ListForUser(ctx, userID, false)
//	book, err := repo.Update(ctx, userID, id, wire.Record{"rating": 4})
package books

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mrlokans/storynest/internal/entities"
	"github.com/mrlokans/storynest/internal/wire"
)

var (
	ErrNotFound       = errors.New("book not found")
	ErrUnknownField   = errors.New("unknown field")
	ErrImmutableField = errors.New("field cannot be changed")
	ErrInvalidValue   = errors.New("invalid value")
)

// Emitter receives one change event per committed row change.
type Emitter interface {
	Emit(ev wire.ChangeEvent)
}

// Repository handles all book database operations.
type Repository struct {
	db      *gorm.DB
	emitter Emitter
	now     func() time.Time
}

// NewRepository creates a books repository. emitter may be nil.
func NewRepository(db *gorm.DB, emitter Emitter) *Repository {
	return &Repository{db: db, emitter: emitter, now: time.Now}
}

// ListForUser returns the active books (newest first) or the trash (most
// recently deleted first).
func (r *Repository) ListForUser(ctx context.Context, userID uint, trashed bool) ([]entities.Book, error) {
	var books []entities.Book
	query := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if trashed {
		query = query.Where("deleted_at IS NOT NULL").Order("deleted_at DESC")
	} else {
		query = query.Where("deleted_at IS NULL").Order("created_at DESC")
	}
	if err := query.Find(&books).Error; err != nil {
		return nil, fmt.Errorf("failed to list books: %w", err)
	}
	return books, nil
}

// GetForUser returns a single book in either partition.
func (r *Repository) GetForUser(ctx context.Context, userID uint, id string) (*entities.Book, error) {
	return r.get(r.db.WithContext(ctx), userID, id)
}

func (r *Repository) get(db *gorm.DB, userID uint, id string) (*entities.Book, error) {
	var book entities.Book
	err := db.Where("id = ? AND user_id = ?", id, userID).First(&book).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get book: %w", err)
	}
	return &book, nil
}

// Create stores a new book built from rec. The id and created_at are assigned
// here.
func (r *Repository) Create(ctx context.Context, userID uint, rec wire.Record) (*entities.Book, error) {
	book := entities.Book{
		ID:        uuid.NewString(),
		UserID:    userID,
		Status:    entities.BookStatusUnread,
		CreatedAt: r.now().UTC(),
	}
	if err := applyRecord(&book, rec); err != nil {
		return nil, err
	}
	if book.Title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidValue)
	}

	if err := r.db.WithContext(ctx).Create(&book).Error; err != nil {
		return nil, fmt.Errorf("failed to create book: %w", err)
	}

	r.emit(wire.EventInsert, book.UserID, ToRecord(book), nil)
	return &book, nil
}

// Update applies patch to one book and returns the stored result.
func (r *Repository) Update(ctx context.Context, userID uint, id string, patch wire.Record) (*entities.Book, error) {
	var book *entities.Book
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		book, err = r.get(tx, userID, id)
		if err != nil {
			return err
		}
		if err := applyRecord(book, patch); err != nil {
			return err
		}
		return tx.Save(book).Error
	})
	if err != nil {
		return nil, err
	}

	r.emit(wire.EventUpdate, book.UserID, ToRecord(*book), nil)
	return book, nil
}

// Delete permanently removes the listed books of one user and returns the
// ids that existed.
func (r *Repository) Delete(ctx context.Context, userID uint, ids ...string) ([]string, error) {
	return r.deleteBooks(ctx, userID, false, ids)
}

// DeleteTrashed is Delete restricted to books that are still in the trash at
// the time of the call. Listed books that were restored are left alone.
func (r *Repository) DeleteTrashed(ctx context.Context, userID uint, ids ...string) ([]string, error) {
	return r.deleteBooks(ctx, userID, true, ids)
}

func (r *Repository) deleteBooks(ctx context.Context, userID uint, trashedOnly bool, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var found []string
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.Model(&entities.Book{}).Where("user_id = ? AND id IN ?", userID, ids)
		if trashedOnly {
			q = q.Where("deleted_at IS NOT NULL")
		}
		if err := q.Pluck("id", &found).Error; err != nil {
			return err
		}
		if len(found) == 0 {
			return nil
		}
		return tx.Where("user_id = ? AND id IN ?", userID, found).Delete(&entities.Book{}).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to delete books: %w", err)
	}

	for _, id := range found {
		r.emit(wire.EventDelete, userID, nil, wire.Record{wire.FieldID: id})
	}
	return found, nil
}

// PurgeTrashedBefore permanently deletes every book of every user that was
// trashed before cutoff, and returns the removed rows.
func (r *Repository) PurgeTrashedBefore(ctx context.Context, cutoff time.Time) ([]entities.Book, error) {
	var purged []entities.Book
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("deleted_at IS NOT NULL AND deleted_at < ?", cutoff.UTC()).
			Find(&purged).Error; err != nil {
			return err
		}
		if len(purged) == 0 {
			return nil
		}
		ids := make([]string, 0, len(purged))
		for _, b := range purged {
			ids = append(ids, b.ID)
		}
		return tx.Where("id IN ?", ids).Delete(&entities.Book{}).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to purge trash: %w", err)
	}

	for _, b := range purged {
		r.emit(wire.EventDelete, b.UserID, nil, wire.Record{wire.FieldID: b.ID})
	}
	return purged, nil
}

// ReferencedCovers returns every distinct cover URL still used by a book.
func (r *Repository) ReferencedCovers(ctx context.Context) ([]string, error) {
	var urls []string
	err := r.db.WithContext(ctx).Model(&entities.Book{}).
		Where("cover_url <> ''").
		Distinct().
		Pluck("cover_url", &urls).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list covers: %w", err)
	}
	return urls, nil
}

// CountForUser returns the number of active and trashed books of a user.
func (r *Repository) CountForUser(ctx context.Context, userID uint) (active, trashed int64, err error) {
	db := r.db.WithContext(ctx).Model(&entities.Book{}).Where("user_id = ?", userID)
	if err = db.Session(&gorm.Session{}).Where("deleted_at IS NULL").Count(&active).Error; err != nil {
		return 0, 0, err
	}
	err = db.Session(&gorm.Session{}).Where("deleted_at IS NOT NULL").Count(&trashed).Error
	return active, trashed, err
}

func (r *Repository) emit(t wire.EventType, userID uint, newRec, oldRec wire.Record) {
	if r.emitter == nil {
		return
	}
	r.emitter.Emit(wire.ChangeEvent{
		Type:            t,
		Owner:           wire.OwnerID(userID),
		New:             newRec,
		Old:             oldRec,
		CommitTimestamp: r.now().UTC(),
	})
}
