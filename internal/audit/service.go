package audit

import (
	"fmt"
	"log"
	"time"

	"github.com/mrlokans/storynest/internal/database/audit"
	"github.com/mrlokans/storynest/internal/entities"
)

// Service provides high-level audit logging functionality.
type Service struct {
	repo *audit.Repository
}

// NewService creates a new audit service.
func NewService(repo *audit.Repository) *Service {
	return &Service{repo: repo}
}

// Log records a generic audit event.
func (s *Service) Log(event *entities.AuditEvent) error {
	return s.repo.LogEvent(event)
}

// LogAsync records an audit event in the background (non-blocking).
func (s *Service) LogAsync(event *entities.AuditEvent) {
	go func() {
		if err := s.repo.LogEvent(event); err != nil {
			log.Printf("Failed to log audit event: %v", err)
		}
	}()
}

// LogTrash records a book moved to the trash.
func (s *Service) LogTrash(userID uint, bookID, title string) {
	s.LogAsync(bookEvent(userID, entities.AuditActionTrash, bookID, title))
}

// LogRestore records a book taken back out of the trash.
func (s *Service) LogRestore(userID uint, bookID, title string) {
	s.LogAsync(bookEvent(userID, entities.AuditActionRestore, bookID, title))
}

// LogDelete records books deleted permanently at the user's request.
func (s *Service) LogDelete(userID uint, bookIDs []string) {
	for _, id := range bookIDs {
		s.LogAsync(bookEvent(userID, entities.AuditActionDelete, id, ""))
	}
}

// LogPurge records a retention purge of the trash: one event per owner
// listing the removed books, plus a failed event if the purge stopped early.
func (s *Service) LogPurge(purged []entities.Book, retention time.Duration, err error) {
	perUser := make(map[uint][]string)
	for _, b := range purged {
		perUser[b.UserID] = append(perUser[b.UserID], b.ID)
	}
	for userID, ids := range perUser {
		s.LogAsync(&entities.AuditEvent{
			UserID:  userID,
			Kind:    entities.AuditKindPurge,
			Action:  entities.AuditActionPurge,
			BookIDs: ids,
		})
	}

	if err != nil {
		s.LogAsync(&entities.AuditEvent{
			Kind:   entities.AuditKindPurge,
			Action: entities.AuditActionPurge,
			Failed: true,
			Error:  truncate(fmt.Sprintf("purge after %s: %v", retention, err), 500),
		})
	}
}

// LogAuth records an authentication event.
func (s *Service) LogAuth(userID uint, action string, ipAddr, userAgent string, success bool) {
	s.LogAsync(&entities.AuditEvent{
		UserID:    userID,
		Kind:      entities.AuditKindAuth,
		Action:    action,
		IPAddress: ipAddr,
		UserAgent: truncate(userAgent, 500),
		Failed:    !success,
	})
}

// GetEvents retrieves paginated audit events.
func (s *Service) GetEvents(f audit.Filter, limit, offset int) ([]entities.AuditEvent, int64, error) {
	return s.repo.List(f, limit, offset)
}

// DeleteOldEvents removes events older than the specified duration.
func (s *Service) DeleteOldEvents(retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention)
	return s.repo.DeleteOldEvents(cutoff)
}

func bookEvent(userID uint, action, bookID, title string) *entities.AuditEvent {
	return &entities.AuditEvent{
		UserID:    userID,
		Kind:      entities.AuditKindBook,
		Action:    action,
		BookID:    bookID,
		BookTitle: truncate(title, 500),
	}
}

// truncate shortens a string to max length.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
