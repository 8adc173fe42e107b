package http

import (
	"github.com/gin-gonic/gin"

	"github.com/mrlokans/storynest/internal/covers"
)

// AvatarsController handles profile picture uploads. The returned URL is
// saved on the account with PATCH /api/auth/me.
type AvatarsController struct {
	storage *covers.Storage
}

func NewAvatarsController(storage *covers.Storage) *AvatarsController {
	return &AvatarsController{storage: storage}
}

// Upload stores the multipart "file" field as an avatar.
// POST /api/avatars
func (ac *AvatarsController) Upload(c *gin.Context) {
	storeUpload(c, ac.storage, "avatar")
}

// Serve delivers an uploaded avatar.
// GET /avatars/:name
func (ac *AvatarsController) Serve(c *gin.Context) {
	serveStored(c, ac.storage)
}
