package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mautops/shipchange-gin/internal/errs"
	"github.com/mautops/shipchange-gin/internal/logger"
	"github.com/sirupsen/logrus"
)

// APIError API 错误
type APIError struct {
	Code    int
	Message string
	Detail  string
}

func (e *APIError) Error() string {
	return e.Message
}

// ErrorHandlerMiddleware 错误处理中间件，将 c.Errors 中最后一个错误转换为响应
func ErrorHandlerMiddleware(log *logrus.Logger) gin.HandlerFunc {
	log = logger.OrDefault(log)
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		err := c.Errors.Last().Err

		var apiErr *APIError
		if errors.As(err, &apiErr) {
			Error(c, apiErr.Code, apiErr.Message, apiErr.Detail)
			return
		}
		log.WithFields(logrus.Fields{
			"request_id": c.GetString(requestIDKey),
			"path":       c.FullPath(),
		}).WithError(err).Error("Unhandled request error")
		respondError(c, err, "internal server error")
	}
}

// WrapError 包装错误
func WrapError(err error, code int, message string) *APIError {
	return &APIError{
		Code:    code,
		Message: message,
		Detail:  err.Error(),
	}
}

// respondError 按错误类型映射 HTTP 状态码
func respondError(c *gin.Context, err error, fallback string) {
	var verr *errs.ValidationError
	switch {
	case errors.As(err, &verr):
		ValidationFailed(c, verr)
	case errors.Is(err, errs.ErrNotFound):
		Error(c, http.StatusNotFound, "not found", err.Error())
	case errors.Is(err, errs.ErrInvalidTransition):
		Error(c, http.StatusConflict, "invalid status transition", err.Error())
	case errs.IsConflict(err):
		var cerr *errs.ConflictError
		errors.As(err, &cerr)
		Error(c, http.StatusConflict, cerr.Message, cerr.Resource)
	case errors.Is(err, errs.ErrAccountLocked):
		Error(c, http.StatusLocked, "account locked", err.Error())
	case errors.Is(err, errs.ErrUnauthorized):
		Error(c, http.StatusUnauthorized, "unauthorized", err.Error())
	case errors.Is(err, errs.ErrForbidden):
		Error(c, http.StatusForbidden, "forbidden", err.Error())
	default:
		Error(c, http.StatusInternalServerError, fallback, err.Error())
	}
}
