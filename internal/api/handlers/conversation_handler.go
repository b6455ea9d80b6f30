package handlers

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/amirrezabahramy/inquiry-system-server/internal/apperr"
	"github.com/amirrezabahramy/inquiry-system-server/internal/models"
	"github.com/amirrezabahramy/inquiry-system-server/internal/services"
	"github.com/amirrezabahramy/inquiry-system-server/internal/tasks"
)

// ConversationHandler handles conversation CRUD and the answer flow.
type ConversationHandler struct {
	conversationService services.IConversationService
	userService         services.IUserService
	taskClient          IAsynqClient
}

// NewConversationHandler creates a new ConversationHandler.
func NewConversationHandler(conversationService services.IConversationService, userService services.IUserService, taskClient IAsynqClient) *ConversationHandler {
	return &ConversationHandler{
		conversationService: conversationService,
		userService:         userService,
		taskClient:          taskClient,
	}
}

func conversationIDFrom(c *gin.Context) (primitive.ObjectID, error) {
	id, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		return primitive.NilObjectID, apperr.NotFound("Conversation not found.")
	}
	return id, nil
}

// enqueueNotification enqueues a notification email task. Delivery is best
// effort; a broker outage must not fail the request that triggered it.
func (h *ConversationHandler) enqueueNotification(c *gin.Context, payload tasks.NotificationPayload) {
	task, err := tasks.NewNotificationTask(payload)
	if err != nil {
		log.Printf("Failed to build notification task: %v", err)
		return
	}
	if _, err := h.taskClient.EnqueueContext(c.Request.Context(), task); err != nil {
		log.Printf("Failed to enqueue notification task: %v", err)
	}
}

// actorName resolves the caller's display name for notifications.
func (h *ConversationHandler) actorName(c *gin.Context, caller services.Caller) string {
	user, err := h.userService.FindByID(c.Request.Context(), caller.ID)
	if err != nil {
		return "Someone"
	}
	return user.FirstName + " " + user.LastName
}

// Create handles POST /conversations/:kind.
func (h *ConversationHandler) Create(c *gin.Context) {
	caller, err := callerFrom(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid identity"})
		return
	}
	kind, err := kindFrom(c)
	if err != nil {
		respondError(c, err)
		return
	}

	var input services.CreateConversationInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	conv, err := h.conversationService.Create(c.Request.Context(), caller, kind, input)
	if err != nil {
		respondError(c, err)
		return
	}

	actor := h.actorName(c, caller)
	for _, thread := range conv.Recipients {
		h.enqueueNotification(c, tasks.NotificationPayload{
			ToUserID:       thread.User.Hex(),
			Event:          tasks.EventConversationCreated,
			ConversationID: conv.ID.Hex(),
			Title:          conv.Title,
			Actor:          actor,
		})
	}

	c.JSON(http.StatusCreated, gin.H{"id": conv.ID.Hex()})
}

// List handles GET /conversations/:kind, dispatching on the caller's role.
func (h *ConversationHandler) List(c *gin.Context) {
	caller, err := callerFrom(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid identity"})
		return
	}
	kind, err := kindFrom(c)
	if err != nil {
		respondError(c, err)
		return
	}
	search := c.Query("search")

	if caller.IsAdmin() {
		summaries, err := h.conversationService.ListForSender(c.Request.Context(), caller, kind, search)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"conversations": summaries})
		return
	}

	rows, err := h.conversationService.ListForRecipient(c.Request.Context(), caller, kind, search)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": rows})
}

// ListRecipients handles GET /conversations/:kind/:id/recipients.
func (h *ConversationHandler) ListRecipients(c *gin.Context) {
	caller, err := callerFrom(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid identity"})
		return
	}
	kind, err := kindFrom(c)
	if err != nil {
		respondError(c, err)
		return
	}
	conversationID, err := conversationIDFrom(c)
	if err != nil {
		respondError(c, err)
		return
	}

	recipients, err := h.conversationService.ListRecipients(c.Request.Context(), caller, kind, conversationID, c.Query("search"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"receivers": recipients})
}

// ListReplies handles both reply listing routes. The admin route carries a
// :userId parameter; the user route does not, and the service resolves a
// plain user to their own thread regardless.
func (h *ConversationHandler) ListReplies(c *gin.Context) {
	caller, err := callerFrom(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid identity"})
		return
	}
	kind, err := kindFrom(c)
	if err != nil {
		respondError(c, err)
		return
	}
	conversationID, err := conversationIDFrom(c)
	if err != nil {
		respondError(c, err)
		return
	}

	recipientID := primitive.NilObjectID
	if raw := c.Param("userId"); raw != "" {
		recipientID, err = primitive.ObjectIDFromHex(raw)
		if err != nil {
			respondError(c, apperr.NotFound("User is not a receiver of this conversation."))
			return
		}
	}

	result, err := h.conversationService.ListReplies(c.Request.Context(), caller, kind, conversationID, recipientID, c.Query("search"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// SubmitAnswerRequest is the answer submission body.
type SubmitAnswerRequest struct {
	Answer         string `json:"answer"`
	ReceiverUserID string `json:"receiverUserId"`
	Message        string `json:"message"`
	Pic            string `json:"pic"`
	Doc            string `json:"doc"`
}

// SubmitAnswer handles PATCH /conversations/:kind/:id/answer.
func (h *ConversationHandler) SubmitAnswer(c *gin.Context) {
	caller, err := callerFrom(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid identity"})
		return
	}
	kind, err := kindFrom(c)
	if err != nil {
		respondError(c, err)
		return
	}
	conversationID, err := conversationIDFrom(c)
	if err != nil {
		respondError(c, err)
		return
	}

	var req SubmitAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	input := services.SubmitAnswerInput{
		Answer:  req.Answer,
		Message: req.Message,
		Pic:     req.Pic,
		Doc:     req.Doc,
	}
	if req.ReceiverUserID != "" {
		input.RecipientID, err = primitive.ObjectIDFromHex(req.ReceiverUserID)
		if err != nil {
			respondError(c, apperr.Validation("receiverUserId is not valid"))
			return
		}
	}

	conv, err := h.conversationService.SubmitAnswer(c.Request.Context(), caller, kind, conversationID, input)
	if err != nil {
		respondError(c, err)
		return
	}

	// Notify the other side of the thread.
	notifyUserID := conv.Sender
	if caller.IsAdmin() {
		notifyUserID = input.RecipientID
	}
	h.enqueueNotification(c, tasks.NotificationPayload{
		ToUserID:       notifyUserID.Hex(),
		Event:          tasks.EventAnswerSubmitted,
		ConversationID: conv.ID.Hex(),
		Title:          conv.Title,
		Actor:          h.actorName(c, caller),
		Answer:         req.Answer,
	})

	threadUserID := caller.ID
	if caller.IsAdmin() {
		threadUserID = input.RecipientID
	}
	thread := conv.Thread(threadUserID)
	response := gin.H{"success": true}
	if thread != nil {
		response["contract"] = models.ContractView{
			ContractStatus: thread.ContractStatus,
			SenderAnswer:   thread.SenderAnswer,
			ReceiverAnswer: thread.ReceiverAnswer,
		}
	}
	c.JSON(http.StatusOK, response)
}
