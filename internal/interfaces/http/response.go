package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/memberhub/approval-workflow/internal/application/workflow"
	domainwf "github.com/memberhub/approval-workflow/internal/domain/workflow"
)

const codeUnauthorized = "UNAUTHORIZED"

// Response is the envelope of every JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *ErrorBody  `json:"error,omitempty"`
	Warning *ErrorBody  `json:"warning,omitempty"`
}

// ErrorBody carries a stable code. CurrentStage is set for rejected transitions.
type ErrorBody struct {
	Code         string `json:"code"`
	Message      string `json:"message"`
	CurrentStage string `json:"current_stage,omitempty"`
}

// statusFor maps an error kind to its HTTP status
func statusFor(kind domainwf.Kind) int {
	switch kind {
	case domainwf.KindNotFound:
		return http.StatusNotFound
	case domainwf.KindInvalidTransition:
		return http.StatusConflict
	case domainwf.KindForbidden:
		return http.StatusForbidden
	case domainwf.KindValidation:
		return http.StatusBadRequest
	case domainwf.KindTransient:
		return http.StatusServiceUnavailable
	case domainwf.KindDownstream:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func errorBody(we *domainwf.Error) *ErrorBody {
	body := &ErrorBody{
		Code:         string(we.Kind),
		Message:      we.Message,
		CurrentStage: string(we.CurrentStage),
	}
	if we.Kind == domainwf.KindInternal {
		body.Message = "internal error"
	}
	return body
}

func (h *Handlers) respondOK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{Success: true, Data: data})
}

func (h *Handlers) respondCreated(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{Success: true, Data: data})
}

// respondError classifies err and writes the matching status. Internal
// details stay in the log.
func (h *Handlers) respondError(c *gin.Context, err error) {
	we := workflow.ClassifyError(err)
	status := statusFor(we.Kind)
	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"code", we.Kind,
			"error", err)
	}
	c.AbortWithStatusJSON(status, Response{Success: false, Error: errorBody(we)})
}

func (h *Handlers) respondValidation(c *gin.Context, format string, args ...interface{}) {
	h.respondError(c, domainwf.Validation(format, args...))
}

// TransitionResponse is the body of a committed transition
type TransitionResponse struct {
	Entity     interface{} `json:"entity"`
	AuditEntry interface{} `json:"audit_entry"`
}

// respondTransition writes 200, or 202 with a warning when the transition
// committed but a post-commit step failed
func (h *Handlers) respondTransition(c *gin.Context, result *workflow.Result) {
	resp := Response{
		Success: true,
		Data: TransitionResponse{
			Entity:     result.Entity,
			AuditEntry: result.AuditEntry,
		},
	}
	if result.Downstream != nil {
		resp.Warning = errorBody(result.Downstream)
		c.JSON(http.StatusAccepted, resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}
