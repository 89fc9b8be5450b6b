package middleware

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"metacoin-ledger/internal/core/domain"
	"metacoin-ledger/internal/core/ports"
	"metacoin-ledger/pkg/apperror"
	"metacoin-ledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	HeaderRequestID     = "X-Request-ID"
	HeaderAuthorization = "Authorization"

	bearerPrefix = "Bearer "

	// Context keys
	CtxCaller = "caller_account"
)

// CallerAccount returns the account established by CallerAuth.
func CallerAccount(c *gin.Context) (domain.AccountID, bool) {
	v, ok := c.Get(CtxCaller)
	if !ok {
		return domain.AccountID{}, false
	}
	id, ok := v.(domain.AccountID)
	return id, ok
}

// RequestID propagates the X-Request-ID header or assigns a fresh one.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if id == "" || len(id) > 64 {
			id = uuid.New().String()
		}
		c.Set(response.RequestIDKey, id)
		c.Header(HeaderRequestID, id)
		c.Next()
	}
}

// CallerAuth validates the bearer token and stores the caller account.
// The token's subject is the account every sendCoin is executed as.
func CallerAuth(tokenSvc ports.TokenService, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader(HeaderAuthorization)
		if authHeader == "" {
			response.Abort(c, apperror.ErrMissingToken())
			return
		}
		if !strings.HasPrefix(authHeader, bearerPrefix) || len(authHeader) == len(bearerPrefix) {
			response.Abort(c, apperror.ErrInvalidToken())
			return
		}

		claims, err := tokenSvc.Validate(authHeader[len(bearerPrefix):])
		if err != nil {
			log.Debug().Err(err).Msg("caller token rejected")
			response.Abort(c, apperror.ErrInvalidToken())
			return
		}

		c.Set(CtxCaller, claims.Account)
		c.Next()
	}
}

// RequestLogger creates a middleware that logs every HTTP request.
func RequestLogger(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		status := c.Writer.Status()

		event := log.Info()
		if status >= http.StatusInternalServerError {
			event = log.Error()
		} else if status >= http.StatusBadRequest {
			event = log.Warn()
		}

		if caller, ok := CallerAccount(c); ok {
			event = event.Str("caller", domain.FormatAccountID(caller))
		}

		event.
			Str("request_id", c.GetString(response.RequestIDKey)).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("latency", latency).
			Str("client_ip", c.ClientIP()).
			Msg("http request")
	}
}

// Recovery creates a panic recovery middleware.
func Recovery(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Str("path", c.Request.URL.Path).Msg("panic recovered")
				response.Abort(c, apperror.InternalError(fmt.Errorf("panic: %v", r)))
			}
		}()
		c.Next()
	}
}
