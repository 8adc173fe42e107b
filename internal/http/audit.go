package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	dbaudit "github.com/mrlokans/storynest/internal/database/audit"
	"github.com/mrlokans/storynest/internal/entities"
)

const (
	defaultAuditPageSize = 25
	maxAuditPageSize     = 200
)

// PaginatedResponse wraps paginated data with metadata.
type PaginatedResponse struct {
	Data    any   `json:"data"`
	Total   int64 `json:"total"`
	Limit   int   `json:"limit"`
	Offset  int   `json:"offset"`
	HasMore bool  `json:"has_more"`
}

type AuditController struct {
	events AuditReader
}

func NewAuditController(events AuditReader) *AuditController {
	return &AuditController{events: events}
}

// ListEvents returns the caller's audit trail, newest first. Optional query
// parameters: kind, action, book, limit, offset.
// GET /api/audit
func (ac *AuditController) ListEvents(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultAuditPageSize)))
	if limit < 1 || limit > maxAuditPageSize {
		limit = defaultAuditPageSize
	}
	offset, _ := strconv.Atoi(c.Query("offset"))
	if offset < 0 {
		offset = 0
	}

	filter := dbaudit.Filter{
		UserID: GetUserID(c),
		Kind:   entities.AuditKind(c.Query("kind")),
		Action: c.Query("action"),
		BookID: c.Query("book"),
	}
	events, total, err := ac.events.GetEvents(filter, limit, offset)
	if err != nil {
		respondInternalError(c, err, "list audit events")
		return
	}
	if events == nil {
		events = []entities.AuditEvent{}
	}

	c.JSON(http.StatusOK, PaginatedResponse{
		Data:    events,
		Total:   total,
		Limit:   limit,
		Offset:  offset,
		HasMore: int64(offset+len(events)) < total,
	})
}
