package handlers_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/amirrezabahramy/inquiry-system-server/internal/api/handlers"
	"github.com/amirrezabahramy/inquiry-system-server/internal/apperr"
	"github.com/amirrezabahramy/inquiry-system-server/internal/models"
	"github.com/amirrezabahramy/inquiry-system-server/internal/negotiation"
	"github.com/amirrezabahramy/inquiry-system-server/internal/services"
)

type convHandlerFixture struct {
	convSvc *MockConversationService
	userSvc *MockUserService
	asynq   *MockAsynqClient
	handler *handlers.ConversationHandler
}

func newConvHandlerFixture() *convHandlerFixture {
	gin.SetMode(gin.TestMode)
	f := &convHandlerFixture{
		convSvc: new(MockConversationService),
		userSvc: new(MockUserService),
		asynq:   new(MockAsynqClient),
	}
	f.handler = handlers.NewConversationHandler(f.convSvc, f.userSvc, f.asynq)
	return f
}

func (f *convHandlerFixture) router(userID primitive.ObjectID, role models.Role) *gin.Engine {
	r := gin.New()
	r.Use(asIdentity(userID, role))
	group := r.Group("/conversations/:kind")
	group.GET("", f.handler.List)
	group.POST("", f.handler.Create)
	group.GET("/:id/recipients", f.handler.ListRecipients)
	group.GET("/:id/recipients/:userId/replies", f.handler.ListReplies)
	group.GET("/:id/replies", f.handler.ListReplies)
	group.PATCH("/:id/answer", f.handler.SubmitAnswer)
	return r
}

func doJSON(r *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func TestConversationHandler_Create_Success(t *testing.T) {
	f := newConvHandlerFixture()
	adminID := primitive.NewObjectID()
	recipientID := primitive.NewObjectID()
	r := f.router(adminID, models.RoleAdmin)

	created := &models.Conversation{
		ID:         primitive.NewObjectID(),
		Kind:       models.KindInquiry,
		Title:      "Steel beams",
		Sender:     adminID,
		Recipients: []models.RecipientThread{models.NewRecipientThread(recipientID)},
	}
	f.convSvc.On("Create", mock.Anything, services.Caller{ID: adminID, Role: models.RoleAdmin}, models.KindInquiry, mock.Anything).
		Return(created, nil)
	f.userSvc.On("FindByID", mock.Anything, adminID).
		Return(&models.User{ID: adminID, FirstName: "Ada", LastName: "Admin"}, nil)
	f.asynq.On("EnqueueContext", mock.Anything, mock.Anything).Return(nil, nil)

	w := doJSON(r, "POST", "/conversations/inquiry", services.CreateConversationInput{
		Title:       "Steel beams",
		Description: "Quote request",
		Recipients:  []string{recipientID.Hex()},
		SegmentName: "steel",
		Count:       40,
	})

	assert.Equal(t, http.StatusCreated, w.Code)
	var respBody map[string]interface{}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &respBody))
	assert.Equal(t, created.ID.Hex(), respBody["id"])
	// One notification per recipient.
	f.asynq.AssertNumberOfCalls(t, "EnqueueContext", 1)
	f.convSvc.AssertExpectations(t)
}

func TestConversationHandler_Create_UnknownKind(t *testing.T) {
	f := newConvHandlerFixture()
	r := f.router(primitive.NewObjectID(), models.RoleAdmin)

	w := doJSON(r, "POST", "/conversations/bulletin", services.CreateConversationInput{Title: "x"})

	assert.Equal(t, http.StatusNotFound, w.Code)
	f.convSvc.AssertNotCalled(t, "Create")
}

func TestConversationHandler_Create_NotificationFailureDoesNotFailRequest(t *testing.T) {
	f := newConvHandlerFixture()
	adminID := primitive.NewObjectID()
	r := f.router(adminID, models.RoleAdmin)

	created := &models.Conversation{
		ID:         primitive.NewObjectID(),
		Kind:       models.KindTicket,
		Title:      "Broken login",
		Sender:     adminID,
		Recipients: []models.RecipientThread{models.NewRecipientThread(primitive.NewObjectID())},
	}
	f.convSvc.On("Create", mock.Anything, mock.Anything, models.KindTicket, mock.Anything).Return(created, nil)
	f.userSvc.On("FindByID", mock.Anything, adminID).Return(nil, apperr.NotFound("User not found."))
	f.asynq.On("EnqueueContext", mock.Anything, mock.Anything).
		Return(nil, assert.AnError)

	w := doJSON(r, "POST", "/conversations/ticket", services.CreateConversationInput{
		Title:       "Broken login",
		Description: "Cannot sign in",
		Recipients:  []string{primitive.NewObjectID().Hex()},
	})

	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestConversationHandler_List_AdminUsesSenderView(t *testing.T) {
	f := newConvHandlerFixture()
	adminID := primitive.NewObjectID()
	r := f.router(adminID, models.RoleAdmin)

	summaries := []models.ConversationSummary{{Title: "Steel beams", UniqueID: "steel-40"}}
	f.convSvc.On("ListForSender", mock.Anything, services.Caller{ID: adminID, Role: models.RoleAdmin}, models.KindInquiry, "steel").
		Return(summaries, nil)

	w := doJSON(r, "GET", "/conversations/inquiry?search=steel", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	var respBody struct {
		Conversations []models.ConversationSummary `json:"conversations"`
	}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &respBody))
	assert.Len(t, respBody.Conversations, 1)
	assert.Equal(t, "steel-40", respBody.Conversations[0].UniqueID)
	f.convSvc.AssertNotCalled(t, "ListForRecipient")
}

func TestConversationHandler_List_UserUsesRecipientView(t *testing.T) {
	f := newConvHandlerFixture()
	userID := primitive.NewObjectID()
	r := f.router(userID, models.RoleUser)

	rows := []models.RecipientConversationRow{{
		ConversationSummary: models.ConversationSummary{Title: "Steel beams"},
		Sender:              models.SenderProfile{Username: "sender"},
		Contract:            models.ContractView{ContractStatus: models.ContractInProgress},
	}}
	f.convSvc.On("ListForRecipient", mock.Anything, services.Caller{ID: userID, Role: models.RoleUser}, models.KindInquiry, "").
		Return(rows, nil)

	w := doJSON(r, "GET", "/conversations/inquiry", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	f.convSvc.AssertNotCalled(t, "ListForSender")
}

func TestConversationHandler_ListRecipients(t *testing.T) {
	f := newConvHandlerFixture()
	adminID := primitive.NewObjectID()
	conversationID := primitive.NewObjectID()
	r := f.router(adminID, models.RoleAdmin)

	statuses := []models.RecipientStatus{{
		User:           models.PublicProfile{ID: primitive.NewObjectID(), Username: "recipient1"},
		ContractStatus: models.ContractInProgress,
	}}
	f.convSvc.On("ListRecipients", mock.Anything, mock.Anything, models.KindInquiry, conversationID, "").
		Return(statuses, nil)

	w := doJSON(r, "GET", "/conversations/inquiry/"+conversationID.Hex()+"/recipients", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	var respBody struct {
		Receivers []models.RecipientStatus `json:"receivers"`
	}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &respBody))
	assert.Len(t, respBody.Receivers, 1)
}

func TestConversationHandler_ListRecipients_BadConversationID(t *testing.T) {
	f := newConvHandlerFixture()
	r := f.router(primitive.NewObjectID(), models.RoleAdmin)

	w := doJSON(r, "GET", "/conversations/inquiry/not-an-id/recipients", nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
	f.convSvc.AssertNotCalled(t, "ListRecipients")
}

func TestConversationHandler_ListReplies_AdminRoute(t *testing.T) {
	f := newConvHandlerFixture()
	adminID := primitive.NewObjectID()
	recipientID := primitive.NewObjectID()
	conversationID := primitive.NewObjectID()
	r := f.router(adminID, models.RoleAdmin)

	result := &services.RepliesResult{
		Replies:     []models.ReplyView{{Message: "What alloy grade?"}},
		ReplyStatus: negotiation.ReplyStatus{Value: negotiation.EligibilityLimited},
	}
	f.convSvc.On("ListReplies", mock.Anything, mock.Anything, models.KindInquiry, conversationID, recipientID, "").
		Return(result, nil)

	w := doJSON(r, "GET", "/conversations/inquiry/"+conversationID.Hex()+"/recipients/"+recipientID.Hex()+"/replies", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	var respBody map[string]json.RawMessage
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &respBody))
	assert.JSONEq(t, `{"value":"limited"}`, string(respBody["replyStatus"]))
}

func TestConversationHandler_ListReplies_BadUserID(t *testing.T) {
	f := newConvHandlerFixture()
	conversationID := primitive.NewObjectID()
	r := f.router(primitive.NewObjectID(), models.RoleAdmin)

	w := doJSON(r, "GET", "/conversations/inquiry/"+conversationID.Hex()+"/recipients/nope/replies", nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
	var respBody map[string]interface{}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &respBody))
	assert.Equal(t, "User is not a receiver of this conversation.", respBody["error"])
	f.convSvc.AssertNotCalled(t, "ListReplies")
}

func TestConversationHandler_SubmitAnswer_UserSuccess(t *testing.T) {
	f := newConvHandlerFixture()
	userID := primitive.NewObjectID()
	senderID := primitive.NewObjectID()
	conversationID := primitive.NewObjectID()
	r := f.router(userID, models.RoleUser)

	thread := models.NewRecipientThread(userID)
	thread.ReceiverAnswer = models.ReceiverAccepted
	conv := &models.Conversation{
		ID:         conversationID,
		Kind:       models.KindInquiry,
		Title:      "Steel beams",
		Sender:     senderID,
		Recipients: []models.RecipientThread{thread},
	}
	expectedInput := services.SubmitAnswerInput{Answer: "accepted", Message: "Works for us."}
	f.convSvc.On("SubmitAnswer", mock.Anything, services.Caller{ID: userID, Role: models.RoleUser}, models.KindInquiry, conversationID, expectedInput).
		Return(conv, nil)
	f.userSvc.On("FindByID", mock.Anything, userID).
		Return(&models.User{ID: userID, FirstName: "Rita", LastName: "Recipient"}, nil)
	f.asynq.On("EnqueueContext", mock.Anything, mock.Anything).Return(nil, nil)

	w := doJSON(r, "PATCH", "/conversations/inquiry/"+conversationID.Hex()+"/answer", handlers.SubmitAnswerRequest{
		Answer:  "accepted",
		Message: "Works for us.",
	})

	assert.Equal(t, http.StatusOK, w.Code)
	var respBody struct {
		Success  bool                `json:"success"`
		Contract models.ContractView `json:"contract"`
	}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &respBody))
	assert.True(t, respBody.Success)
	assert.Equal(t, models.ReceiverAccepted, respBody.Contract.ReceiverAnswer)
	assert.Equal(t, models.ContractInProgress, respBody.Contract.ContractStatus)
	// The sender is notified of the recipient's answer.
	f.asynq.AssertNumberOfCalls(t, "EnqueueContext", 1)
}

func TestConversationHandler_SubmitAnswer_AdminTargetsRecipient(t *testing.T) {
	f := newConvHandlerFixture()
	adminID := primitive.NewObjectID()
	recipientID := primitive.NewObjectID()
	conversationID := primitive.NewObjectID()
	r := f.router(adminID, models.RoleAdmin)

	thread := models.NewRecipientThread(recipientID)
	thread.ReceiverAnswer = models.ReceiverAccepted
	thread.SenderAnswer = models.SenderAccepted
	thread.ContractStatus = models.ContractSuccessful
	conv := &models.Conversation{
		ID:         conversationID,
		Kind:       models.KindInquiry,
		Sender:     adminID,
		Recipients: []models.RecipientThread{thread},
	}
	expectedInput := services.SubmitAnswerInput{Answer: "accepted", RecipientID: recipientID}
	f.convSvc.On("SubmitAnswer", mock.Anything, mock.Anything, models.KindInquiry, conversationID, expectedInput).
		Return(conv, nil)
	f.userSvc.On("FindByID", mock.Anything, adminID).
		Return(&models.User{ID: adminID, FirstName: "Ada", LastName: "Admin"}, nil)
	f.asynq.On("EnqueueContext", mock.Anything, mock.Anything).Return(nil, nil)

	w := doJSON(r, "PATCH", "/conversations/inquiry/"+conversationID.Hex()+"/answer", handlers.SubmitAnswerRequest{
		Answer:         "accepted",
		ReceiverUserID: recipientID.Hex(),
	})

	assert.Equal(t, http.StatusOK, w.Code)
	var respBody struct {
		Contract models.ContractView `json:"contract"`
	}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &respBody))
	assert.Equal(t, models.ContractSuccessful, respBody.Contract.ContractStatus)
}

func TestConversationHandler_SubmitAnswer_InvalidReceiverUserID(t *testing.T) {
	f := newConvHandlerFixture()
	conversationID := primitive.NewObjectID()
	r := f.router(primitive.NewObjectID(), models.RoleAdmin)

	w := doJSON(r, "PATCH", "/conversations/inquiry/"+conversationID.Hex()+"/answer", handlers.SubmitAnswerRequest{
		Answer:         "accepted",
		ReceiverUserID: "garbage",
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	var respBody map[string]interface{}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &respBody))
	assert.Equal(t, "receiverUserId is not valid", respBody["error"])
	f.convSvc.AssertNotCalled(t, "SubmitAnswer")
}

func TestConversationHandler_SubmitAnswer_TransitionRejected(t *testing.T) {
	f := newConvHandlerFixture()
	userID := primitive.NewObjectID()
	conversationID := primitive.NewObjectID()
	r := f.router(userID, models.RoleUser)

	f.convSvc.On("SubmitAnswer", mock.Anything, mock.Anything, models.KindInquiry, conversationID, mock.Anything).
		Return(nil, apperr.InvalidTransition("This conversation is closed."))

	w := doJSON(r, "PATCH", "/conversations/inquiry/"+conversationID.Hex()+"/answer", handlers.SubmitAnswerRequest{
		Answer: "accepted",
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	var respBody map[string]interface{}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &respBody))
	assert.Equal(t, "This conversation is closed.", respBody["error"])
	f.asynq.AssertNotCalled(t, "EnqueueContext")
}

func TestConversationHandler_SubmitAnswer_StorageUnavailable(t *testing.T) {
	f := newConvHandlerFixture()
	conversationID := primitive.NewObjectID()
	r := f.router(primitive.NewObjectID(), models.RoleUser)

	f.convSvc.On("SubmitAnswer", mock.Anything, mock.Anything, models.KindInquiry, conversationID, mock.Anything).
		Return(nil, apperr.Unavailable("storage temporarily unavailable"))

	w := doJSON(r, "PATCH", "/conversations/inquiry/"+conversationID.Hex()+"/answer", handlers.SubmitAnswerRequest{
		Answer: "accepted",
	})

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestConversationHandler_UnclassifiedErrorIsOpaque(t *testing.T) {
	f := newConvHandlerFixture()
	conversationID := primitive.NewObjectID()
	r := f.router(primitive.NewObjectID(), models.RoleUser)

	f.convSvc.On("ListReplies", mock.Anything, mock.Anything, models.KindInquiry, conversationID, primitive.NilObjectID, "").
		Return(nil, assert.AnError)

	w := doJSON(r, "GET", "/conversations/inquiry/"+conversationID.Hex()+"/replies", nil)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	var respBody map[string]interface{}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &respBody))
	assert.Equal(t, "Internal server error", respBody["error"])
}
