// Package response writes the JSON envelope shared by every endpoint.
package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Body is the envelope: {"success": bool, "data": ..., "error": "..."}.
type Body struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func succeed(c *gin.Context, status int, data interface{}) {
	c.JSON(status, Body{Success: true, Data: data})
}

// Fail writes an error envelope. data is optional context for the client to recover with.
func Fail(c *gin.Context, status int, err string, data interface{}) {
	c.JSON(status, Body{Error: err, Data: data})
}

func OK(c *gin.Context, data interface{}) { succeed(c, http.StatusOK, data) }
func Created(c *gin.Context, data interface{}) { succeed(c, http.StatusCreated, data) }

// NoContent sends 204 with an empty body.
func NoContent(c *gin.Context) { c.Status(http.StatusNoContent) }

func BadRequest(c *gin.Context, err string) { Fail(c, http.StatusBadRequest, err, nil) }
func Unauthorized(c *gin.Context, err string) { Fail(c, http.StatusUnauthorized, err, nil) }
func Forbidden(c *gin.Context, err string) { Fail(c, http.StatusForbidden, err, nil) }
func NotFound(c *gin.Context, err string) { Fail(c, http.StatusNotFound, err, nil) }
func Conflict(c *gin.Context, err string) { Fail(c, http.StatusConflict, err, nil) }

// ConflictWithData sends 409 along with what the caller needs to reconcile, such as the current version.
func ConflictWithData(c *gin.Context, err string, data interface{}) {
	Fail(c, http.StatusConflict, err, data)
}

func PreconditionRequired(c *gin.Context, err string) {
	Fail(c, http.StatusPreconditionRequired, err, nil)
}

func TooLarge(c *gin.Context, err string) { Fail(c, http.StatusRequestEntityTooLarge, err, nil) }

func ServiceUnavailable(c *gin.Context, err string) {
	Fail(c, http.StatusServiceUnavailable, err, nil)
}

func Internal(c *gin.Context, err string) { Fail(c, http.StatusInternalServerError, err, nil) }
