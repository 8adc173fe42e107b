package http

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// Pinger is anything the health check can probe, usually the database.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthResponse struct {
	Status  string            `json:"status"`
	Time    string            `json:"time"`
	Version string            `json:"version,omitempty"`
	Checks  map[string]string `json:"checks"`
}

type HealthController struct {
	db      Pinger
	feed    SubscriberCounter
	version string
	timeout time.Duration
}

func NewHealthController(db Pinger, feed SubscriberCounter, version string) *HealthController {
	return &HealthController{db: db, feed: feed, version: version, timeout: 2 * time.Second}
}

// Status reports the database and the number of open change feeds. Only a
// failing database makes the service unhealthy.
func (h *HealthController) Status(c *gin.Context) {
	resp := HealthResponse{
		Status:  "healthy",
		Time:    time.Now().UTC().Format(time.RFC3339),
		Version: h.version,
		Checks:  map[string]string{"database": "not configured"},
	}

	if h.db != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
		err := h.db.Ping(ctx)
		cancel()
		if err != nil {
			resp.Status = "unhealthy"
			resp.Checks["database"] = "error: " + err.Error()
		} else {
			resp.Checks["database"] = "ok"
		}
	}
	if h.feed != nil {
		resp.Checks["change_feed_subscribers"] = strconv.Itoa(h.feed.Count())
	}

	code := http.StatusOK
	if resp.Status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	c.IndentedJSON(code, resp)
}

func (h *HealthController) Ping(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "pong"})
}
