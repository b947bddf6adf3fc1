package errors

import (
	"net/http"
	"runtime/debug"

	"ai-chat-app/backend/pkg/logger"

	"github.com/gin-gonic/gin"
)

func requestLogger(c *gin.Context) *logger.Logger {
	if v, ok := c.Get("logger"); ok {
		if l, ok := v.(*logger.Logger); ok {
			return l
		}
	}
	return logger.FromContext(c.Request.Context())
}

// ErrorHandler renders the first error a handler attached with c.Error,
// unless the handler already wrote a response.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		appErr := FromError(c.Errors[0].Err)

		attrs := []any{"status", appErr.Status, "code", appErr.Code}
		if cause := appErr.Unwrap(); cause != nil {
			attrs = append(attrs, "cause", cause.Error())
		}
		log := requestLogger(c)
		if appErr.Status >= http.StatusInternalServerError {
			log.Error(appErr.Message, attrs...)
		} else {
			log.Debug(appErr.Message, attrs...)
		}

		c.AbortWithStatusJSON(appErr.Status, appErr.Body())
	}
}

// RecoveryWithLogger turns a handler panic into a logged 500. The stack is
// only included in the response body in gin debug mode.
func RecoveryWithLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			if r == http.ErrAbortHandler {
				panic(r)
			}
			stack := debug.Stack()
			requestLogger(c).Error("Panic recovered", "panic", r, "stack", string(stack))

			appErr := NewInternalServerError(CodePanic, "The server encountered an unexpected error")
			if gin.IsDebugging() {
				appErr = appErr.WithDetails(string(stack))
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, appErr.Body())
		}()

		c.Next()
	}
}
