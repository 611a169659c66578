package server

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tyemirov/autoflow/internal/utils"
)

const (
	requestIdentifierHeaderConstant   = "X-Request-ID"
	requestCompletedMessageConstant   = "http_request_completed"
	requestIDLogFieldNameConstant     = "request_id"
	methodLogFieldNameConstant        = "method"
	pathLogFieldNameConstant          = "path"
	statusLogFieldNameConstant        = "status"
	durationLogFieldNameConstant      = "duration"
	clientAddressLogFieldNameConstant = "client_ip"
)

// requestLogger tags each request with an identifier and logs its outcome.
func (server *Server) requestLogger() gin.HandlerFunc {
	contextAccessor := utils.NewCommandContextAccessor()
	return func(ginContext *gin.Context) {
		requestIdentifier := ginContext.GetHeader(requestIdentifierHeaderConstant)
		if len(requestIdentifier) == 0 {
			requestIdentifier = uuid.NewString()
		}
		ginContext.Request = ginContext.Request.WithContext(
			contextAccessor.WithRequestIdentifier(ginContext.Request.Context(), requestIdentifier),
		)
		ginContext.Header(requestIdentifierHeaderConstant, requestIdentifier)

		startTime := time.Now()
		ginContext.Next()

		server.logger.Info(requestCompletedMessageConstant,
			zap.String(requestIDLogFieldNameConstant, requestIdentifier),
			zap.String(methodLogFieldNameConstant, ginContext.Request.Method),
			zap.String(pathLogFieldNameConstant, ginContext.Request.URL.Path),
			zap.Int(statusLogFieldNameConstant, ginContext.Writer.Status()),
			zap.Duration(durationLogFieldNameConstant, time.Since(startTime)),
			zap.String(clientAddressLogFieldNameConstant, ginContext.ClientIP()),
		)
	}
}
