package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dbaudit "github.com/mrlokans/storynest/internal/database/audit"
	"github.com/mrlokans/storynest/internal/entities"
)

type fakeAuditReader struct {
	events []entities.AuditEvent
	err    error

	filter        dbaudit.Filter
	limit, offset int
}

func (r *fakeAuditReader) GetEvents(f dbaudit.Filter, limit, offset int) ([]entities.AuditEvent, int64, error) {
	r.filter, r.limit, r.offset = f, limit, offset
	return r.events, int64(len(r.events)) + int64(offset), r.err
}

func getAudit(t *testing.T, reader AuditReader, query string) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/api/audit", asUser(7), NewAuditController(reader).ListEvents)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/audit"+query, nil))
	return w
}

func TestAuditController_ListEvents(t *testing.T) {
	t.Run("filters are scoped to the caller", func(t *testing.T) {
		reader := &fakeAuditReader{events: []entities.AuditEvent{{ID: 1, Action: entities.AuditActionTrash}}}
		w := getAudit(t, reader, "?kind=book&action=book_trash&book=abc&limit=10&offset=20")

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, dbaudit.Filter{
			UserID: 7,
			Kind:   entities.AuditKindBook,
			Action: entities.AuditActionTrash,
			BookID: "abc",
		}, reader.filter)
		assert.Equal(t, 10, reader.limit)
		assert.Equal(t, 20, reader.offset)

		var resp PaginatedResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, int64(21), resp.Total)
		assert.False(t, resp.HasMore)
	})

	t.Run("bad paging falls back to defaults", func(t *testing.T) {
		reader := &fakeAuditReader{}
		w := getAudit(t, reader, "?limit=5000&offset=-3")

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, defaultAuditPageSize, reader.limit)
		assert.Zero(t, reader.offset)
		assert.JSONEq(t, `{"data":[],"total":0,"limit":25,"offset":0,"has_more":false}`, w.Body.String())
	})

	t.Run("storage error", func(t *testing.T) {
		w := getAudit(t, &fakeAuditReader{err: errors.New("disk full")}, "")
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}
