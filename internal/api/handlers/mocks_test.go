package handlers_test

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/mock"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/amirrezabahramy/inquiry-system-server/internal/api/middleware"
	"github.com/amirrezabahramy/inquiry-system-server/internal/attachment"
	"github.com/amirrezabahramy/inquiry-system-server/internal/models"
	"github.com/amirrezabahramy/inquiry-system-server/internal/services"
)

// --- Mocks ---

// MockUserService
type MockUserService struct {
	mock.Mock
}

func (m *MockUserService) Signup(ctx context.Context, input services.SignupInput) (*models.User, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserService) Create(ctx context.Context, input services.CreateUserInput) (*models.User, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserService) Authenticate(ctx context.Context, username, password string) (*models.User, error) {
	args := m.Called(ctx, username, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserService) FindByID(ctx context.Context, userID primitive.ObjectID) (*models.User, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserService) Options(ctx context.Context, search string) ([]models.UserOption, error) {
	args := m.Called(ctx, search)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.UserOption), args.Error(1)
}

func (m *MockUserService) EnsureIndexes(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// MockConversationService
type MockConversationService struct {
	mock.Mock
}

func (m *MockConversationService) Create(ctx context.Context, caller services.Caller, kind models.Kind, input services.CreateConversationInput) (*models.Conversation, error) {
	args := m.Called(ctx, caller, kind, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Conversation), args.Error(1)
}

func (m *MockConversationService) ListForSender(ctx context.Context, caller services.Caller, kind models.Kind, search string) ([]models.ConversationSummary, error) {
	args := m.Called(ctx, caller, kind, search)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.ConversationSummary), args.Error(1)
}

func (m *MockConversationService) ListForRecipient(ctx context.Context, caller services.Caller, kind models.Kind, search string) ([]models.RecipientConversationRow, error) {
	args := m.Called(ctx, caller, kind, search)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.RecipientConversationRow), args.Error(1)
}

func (m *MockConversationService) ListRecipients(ctx context.Context, caller services.Caller, kind models.Kind, conversationID primitive.ObjectID, search string) ([]models.RecipientStatus, error) {
	args := m.Called(ctx, caller, kind, conversationID, search)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.RecipientStatus), args.Error(1)
}

func (m *MockConversationService) ListReplies(ctx context.Context, caller services.Caller, kind models.Kind, conversationID, recipientID primitive.ObjectID, search string) (*services.RepliesResult, error) {
	args := m.Called(ctx, caller, kind, conversationID, recipientID, search)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.RepliesResult), args.Error(1)
}

func (m *MockConversationService) SubmitAnswer(ctx context.Context, caller services.Caller, kind models.Kind, conversationID primitive.ObjectID, input services.SubmitAnswerInput) (*models.Conversation, error) {
	args := m.Called(ctx, caller, kind, conversationID, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Conversation), args.Error(1)
}

func (m *MockConversationService) GetConversationFile(ctx context.Context, caller services.Caller, conversationID primitive.ObjectID, file string) (*attachment.Decoded, error) {
	args := m.Called(ctx, caller, conversationID, file)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*attachment.Decoded), args.Error(1)
}

func (m *MockConversationService) GetReplyFile(ctx context.Context, caller services.Caller, replyID primitive.ObjectID, file string) (*attachment.Decoded, error) {
	args := m.Called(ctx, caller, replyID, file)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*attachment.Decoded), args.Error(1)
}

// MockAsynqClient implements handlers.IAsynqClient
type MockAsynqClient struct {
	mock.Mock
}

func (m *MockAsynqClient) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	mockArgs := []interface{}{ctx, task}
	for _, opt := range opts {
		mockArgs = append(mockArgs, opt)
	}
	args := m.Called(mockArgs...)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*asynq.TaskInfo), args.Error(1)
}

// asIdentity injects the auth-middleware context values directly, so handler
// tests don't need to mint real tokens.
func asIdentity(userID primitive.ObjectID, role models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.ContextKeyUserID, userID.Hex())
		c.Set(middleware.ContextKeyRole, role)
		c.Next()
	}
}
