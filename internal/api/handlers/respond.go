package handlers

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/amirrezabahramy/inquiry-system-server/internal/api/middleware"
	"github.com/amirrezabahramy/inquiry-system-server/internal/apperr"
	"github.com/amirrezabahramy/inquiry-system-server/internal/models"
	"github.com/amirrezabahramy/inquiry-system-server/internal/services"
)

// IAsynqClient defines the interface for the Asynq client methods used by
// the handlers.
type IAsynqClient interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// respondError maps application error kinds onto HTTP status codes. Reasons
// are surfaced verbatim; anything unclassified becomes an opaque 500.
func respondError(c *gin.Context, err error) {
	var status int
	switch apperr.KindOf(err) {
	case apperr.KindNotFound:
		status = http.StatusNotFound
	case apperr.KindForbidden:
		status = http.StatusForbidden
	case apperr.KindMissingParameter, apperr.KindValidation, apperr.KindInvalidTransition:
		status = http.StatusBadRequest
	case apperr.KindUnavailable:
		status = http.StatusServiceUnavailable
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// callerFrom builds the service-layer caller identity from the values the
// auth middleware stored in the Gin context.
func callerFrom(c *gin.Context) (services.Caller, error) {
	idHex := c.GetString(middleware.ContextKeyUserID)
	id, err := primitive.ObjectIDFromHex(idHex)
	if err != nil {
		return services.Caller{}, fmt.Errorf("invalid user id in context: %w", err)
	}
	value, _ := c.Get(middleware.ContextKeyRole)
	role, ok := value.(models.Role)
	if !ok {
		return services.Caller{}, fmt.Errorf("missing role in context")
	}
	return services.Caller{ID: id, Role: role}, nil
}

// kindFrom parses the :kind route parameter.
func kindFrom(c *gin.Context) (models.Kind, error) {
	kind, ok := models.ParseKind(c.Param("kind"))
	if !ok {
		return "", apperr.NotFound("Unknown conversation kind %q.", c.Param("kind"))
	}
	return kind, nil
}
