package http

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/storynest/internal/auth"
	"github.com/mrlokans/storynest/internal/database/books"
)

// Machine-readable error codes. The remote client maps them back to errors.
const (
	CodeNotFound       = "not_found"
	CodeUnknownField   = "unknown_field"
	CodeImmutableField = "immutable_field"
	CodeInvalidValue   = "invalid_value"
	CodeTooLarge       = "too_large"
	CodeNotImage       = "not_image"
)

// GetUserID extracts the authenticated user's ID from the Gin context.
func GetUserID(c *gin.Context) uint {
	return auth.GetUserID(c)
}

// ErrorResponse is the standard error response format for all API errors.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

func respondBadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: message})
}

func respondNotFound(c *gin.Context, resource string) {
	c.JSON(http.StatusNotFound, ErrorResponse{Error: resource + " not found", Code: CodeNotFound})
}

// respondInternalError logs err and hides it from the client.
func respondInternalError(c *gin.Context, err error, context string) {
	log.Printf("Internal error (%s): %v", context, err)
	c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
}

func respondError(c *gin.Context, status int, code, message string) {
	c.JSON(status, ErrorResponse{Error: message, Code: code})
}

// respondBookError translates a books repository error into a response.
func respondBookError(c *gin.Context, err error, context string) {
	switch {
	case errors.Is(err, books.ErrNotFound):
		respondNotFound(c, "book")
	case errors.Is(err, books.ErrUnknownField):
		respondError(c, http.StatusBadRequest, CodeUnknownField, err.Error())
	case errors.Is(err, books.ErrImmutableField):
		respondError(c, http.StatusBadRequest, CodeImmutableField, err.Error())
	case errors.Is(err, books.ErrInvalidValue):
		respondError(c, http.StatusBadRequest, CodeInvalidValue, err.Error())
	default:
		respondInternalError(c, err, context)
	}
}
