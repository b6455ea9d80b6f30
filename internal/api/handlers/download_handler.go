package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/amirrezabahramy/inquiry-system-server/internal/apperr"
	"github.com/amirrezabahramy/inquiry-system-server/internal/services"
)

// DownloadHandler serves raw attachment payloads. List projections only
// carry presence flags; these routes are the only place bytes leave the
// store.
type DownloadHandler struct {
	conversationService services.IConversationService
}

// NewDownloadHandler creates a new DownloadHandler.
func NewDownloadHandler(conversationService services.IConversationService) *DownloadHandler {
	return &DownloadHandler{conversationService: conversationService}
}

// ConversationFile handles GET /download/conversations/:id?file=pic|doc.
func (h *DownloadHandler) ConversationFile(c *gin.Context) {
	caller, err := callerFrom(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid identity"})
		return
	}
	conversationID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		respondError(c, apperr.NotFound("Conversation not found."))
		return
	}

	decoded, err := h.conversationService.GetConversationFile(c.Request.Context(), caller, conversationID, c.DefaultQuery("file", "pic"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.Data(http.StatusOK, decoded.ContentType, decoded.Data)
}

// ReplyFile handles GET /download/replies/:replyId?file=pic|doc.
func (h *DownloadHandler) ReplyFile(c *gin.Context) {
	caller, err := callerFrom(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid identity"})
		return
	}
	replyID, err := primitive.ObjectIDFromHex(c.Param("replyId"))
	if err != nil {
		respondError(c, apperr.NotFound("Reply not found."))
		return
	}

	decoded, err := h.conversationService.GetReplyFile(c.Request.Context(), caller, replyID, c.DefaultQuery("file", "pic"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.Data(http.StatusOK, decoded.ContentType, decoded.Data)
}
