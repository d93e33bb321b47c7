package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/transcript-buddy/transcriptbuddy/internal/chunker"
	"github.com/transcript-buddy/transcriptbuddy/internal/provider"
	"github.com/transcript-buddy/transcriptbuddy/internal/service"
	"github.com/transcript-buddy/transcriptbuddy/internal/usage"
)

// respondServiceError translates service-layer failures into HTTP
// responses. Unknown errors become an opaque 500.
func respondServiceError(c *gin.Context, err error) {
	var vErr *service.ValidationError
	if errors.As(err, &vErr) {
		c.JSON(http.StatusBadRequest, gin.H{"error": vErr.Message, "field": vErr.Field})
		return
	}

	var cfErr *chunker.ContentFormatError
	if errors.As(err, &cfErr) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": cfErr.Error(), "format": cfErr.Format})
		return
	}

	var rlErr *service.RateLimitedError
	if errors.As(err, &rlErr) {
		retryAfter := int(time.Until(rlErr.Reset).Seconds())
		if retryAfter < 1 {
			retryAfter = 1
		}
		c.Header("Retry-After", fmt.Sprintf("%d", retryAfter))
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "query rate limit exceeded"})
		return
	}

	var qErr *usage.QuotaExceededError
	if errors.As(err, &qErr) {
		c.JSON(http.StatusPaymentRequired, gin.H{
			"error":   qErr.Error(),
			"kind":    qErr.Kind,
			"current": qErr.Current,
			"limit":   qErr.Limit,
		})
		return
	}

	var pErr *provider.ProviderError
	if errors.As(err, &pErr) {
		status := http.StatusBadGateway
		switch pErr.Kind {
		case provider.ErrTimeout:
			status = http.StatusGatewayTimeout
		case provider.ErrUnavailable:
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"error": pErr.Error(), "provider": pErr.Provider, "kind": pErr.Kind})
		return
	}

	switch {
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, service.ErrConversationLocked):
		c.JSON(http.StatusLocked, gin.H{"error": "conversation is locked"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
