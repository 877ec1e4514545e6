package httpapi

import (
	"errors"
	"net/http"

	"github.com/dmitrijs2005/paykeeper/internal/common"
	"github.com/gin-gonic/gin"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

var conflicts = []error{
	common.ErrInvalidTransition,
	common.ErrPeriodNotEditable,
	common.ErrPeriodCommitted,
	common.ErrDuplicateEmployee,
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, common.ErrUnauthorized),
		errors.Is(err, common.ErrTokenExpired),
		errors.Is(err, common.ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, common.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, common.ErrNotFound):
		return http.StatusNotFound
	case common.IsConfiguration(err):
		return http.StatusUnprocessableEntity
	}
	for _, c := range conflicts {
		if errors.Is(err, c) {
			return http.StatusConflict
		}
	}
	if common.IsValidation(err) || errors.Is(err, common.ErrInvalidInput) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (s *Server) abort(c *gin.Context, err error) {
	code := statusOf(err)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		s.logger.Error(c.Request.Context(), "request failed", "path", c.FullPath(), "error", err)
		msg = common.ErrInternal.Error()
	}
	c.AbortWithStatusJSON(code, ErrorResponse{
		Error:   http.StatusText(code),
		Message: msg,
		Code:    code,
	})
}

func badRequest(msg string) error {
	return common.NewValidationError(common.ErrInvalidInput, msg)
}
