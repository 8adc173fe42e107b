package http

import (
	"github.com/gin-gonic/gin"

	"github.com/mrlokans/storynest/internal/wire"
)

// ChangesController exposes the realtime change feed.
type ChangesController struct {
	stream ChangeStreamer
}

func NewChangesController(stream ChangeStreamer) *ChangesController {
	return &ChangesController{stream: stream}
}

// Stream holds the connection open and writes the caller's book changes as
// Server-Sent Events.
// GET /api/books/changes
func (cc *ChangesController) Stream(c *gin.Context) {
	cc.stream.Serve(c.Writer, c.Request, wire.OwnerID(GetUserID(c)))
}
