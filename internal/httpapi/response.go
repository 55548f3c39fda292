package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/varshakam/omr-eval/internal/omrerr"
)

// Response is the JSON envelope of every API reply.
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Success writes a 200 envelope carrying data.
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    http.StatusOK,
		Message: "success",
		Data:    data,
	})
}

// Accepted writes a 202 envelope, used when a job was queued.
func Accepted(c *gin.Context, data interface{}) {
	c.JSON(http.StatusAccepted, Response{
		Code:    http.StatusAccepted,
		Message: "accepted",
		Data:    data,
	})
}

// Error writes an envelope with the given status and message and no data.
func Error(c *gin.Context, code int, message string) {
	c.JSON(code, Response{
		Code:    code,
		Message: message,
	})
}

// BadRequest writes a 400 error envelope.
func BadRequest(c *gin.Context, message string) {
	Error(c, http.StatusBadRequest, message)
}

// NotFound writes a 404 error envelope.
func NotFound(c *gin.Context, message string) {
	Error(c, http.StatusNotFound, message)
}

// StatusFor maps a pipeline error to an HTTP status. Unreadable or
// unusable images are 422; a bad version or layout is 400.
func StatusFor(err error) int {
	switch omrerr.CodeOf(err) {
	case omrerr.CodeDecode, omrerr.CodeInvalidImage:
		return http.StatusUnprocessableEntity
	case omrerr.CodeConfiguration:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// PipelineError replies with the coded error flattened into data.
func PipelineError(c *gin.Context, err error) {
	status := StatusFor(err)
	var e *omrerr.Error
	if !errors.As(err, &e) {
		Error(c, status, "internal server error")
		return
	}
	c.JSON(status, Response{
		Code:    status,
		Message: e.Message,
		Data:    e.ToMap(),
	})
}
