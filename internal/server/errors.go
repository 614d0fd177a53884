package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/procura/pkg/errs"
)

// ValidationError names one rejected request field.
type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Code    string            `json:"code,omitempty"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{Errors: []ValidationError{{Field: field, Code: code, Message: message}}}
}

type errorKind struct {
	kind    error
	status  int
	typ     string
	message string
}

// errorKinds is checked in order; the first kind err wraps decides the response.
var errorKinds = []errorKind{
	{errs.ErrUnauthorized, http.StatusUnauthorized, "unauthorized", "unauthorized"},
	{errs.ErrForbidden, http.StatusForbidden, "forbidden", "forbidden"},
	{errs.ErrNotFound, http.StatusNotFound, "not_found", "not found"},
	{errs.ErrConflict, http.StatusConflict, "conflict", "conflict"},
	{errs.ErrTemplate, http.StatusUnprocessableEntity, "template_error", "email template could not be rendered"},
	{errs.ErrTransport, http.StatusServiceUnavailable, "service_unavailable", "service unavailable"},
}

var internalError = errorPayload{Type: "internal_error", Message: "internal server error"}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, internalError
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	code := errs.CodeOf(err)
	if errors.Is(err, errs.ErrInvalidArgument) {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  []ValidationError{{Field: validationErrorField(code), Code: code, Message: "invalid value"}},
		}
	}
	for _, k := range errorKinds {
		if errors.Is(err, k.kind) {
			return k.status, errorPayload{Type: k.typ, Code: code, Message: k.message}
		}
	}
	return http.StatusInternalServerError, internalError
}

// classifyErrorForLog reports the response type and most specific code of err.
func classifyErrorForLog(err error) (string, string) {
	if vErr := asValidationErrors(err); vErr != nil {
		if len(vErr.Errors) > 0 {
			return "validation_error", vErr.Errors[0].Code
		}
		return "validation_error", ""
	}
	_, payload := mapError(err)
	return payload.Type, errs.CodeOf(err)
}

// notificationErrorPayload describes a delivery failure that followed a committed change.
func notificationErrorPayload(err error) *errorPayload {
	if err == nil {
		return nil
	}
	_, payload := mapError(err)
	payload.Code = errs.CodeOf(err)
	payload.Message = err.Error()
	payload.Errors = nil
	return &payload
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

// validationErrorField derives the offending field from codes shaped invalid_<field>.
func validationErrorField(code string) string {
	field, ok := strings.CutPrefix(code, "invalid_")
	if !ok {
		return ""
	}
	return field
}
