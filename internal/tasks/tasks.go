package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/amirrezabahramy/inquiry-system-server/internal/config"
	"github.com/amirrezabahramy/inquiry-system-server/internal/email"
	"github.com/amirrezabahramy/inquiry-system-server/internal/services"
)

// TaskType defines the type of a background task.
const (
	TypeNotificationEmail = "notification:email"
)

// Notification events carried in the payload.
const (
	EventConversationCreated = "conversation-created"
	EventAnswerSubmitted     = "answer-submitted"
)

// --- Task Client (Enqueuing tasks) ---

func NewClient(rdb *redis.Client) *asynq.Client {
	clientOpt := asynq.RedisClientOpt{
		Addr:     rdb.Options().Addr,
		Password: rdb.Options().Password,
		DB:       rdb.Options().DB,
	}
	return asynq.NewClient(clientOpt)
}

// NotificationPayload is the payload of a notification email task.
type NotificationPayload struct {
	ToUserID       string `json:"to_user_id"`
	Event          string `json:"event"`
	ConversationID string `json:"conversation_id"`
	Title          string `json:"title"`
	Actor          string `json:"actor,omitempty"`  // display name of who triggered the event
	Answer         string `json:"answer,omitempty"` // present for answer-submitted
}

// NewNotificationTask builds an asynq task for the given notification.
func NewNotificationTask(payload NotificationPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal notification payload: %w", err)
	}
	return asynq.NewTask(TypeNotificationEmail, data), nil
}

// --- Task Server (Processing tasks) ---

// TaskProcessor handles the processing of tasks.
// It holds dependencies needed by task handlers.
type TaskProcessor struct {
	cfg         *config.Config
	emailSender email.Sender
	userService services.IUserService
}

func NewTaskProcessor(cfg *config.Config, emailSender email.Sender, userService services.IUserService) *TaskProcessor {
	return &TaskProcessor{
		cfg:         cfg,
		emailSender: emailSender,
		userService: userService,
	}
}

// SetupServer configures and returns an Asynq server instance, blocking
// until the server stops. Call it from the background worker mode only.
func SetupServer(rdb *redis.Client, processor *TaskProcessor) *asynq.Server {
	serverOpt := asynq.RedisClientOpt{
		Addr:     rdb.Options().Addr,
		Password: rdb.Options().Password,
		DB:       rdb.Options().DB,
	}

	srv := asynq.NewServer(
		serverOpt,
		asynq.Config{
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				log.Printf("[Asynq Error] Task Type: %s, Payload: %s, Error: %v", task.Type(), string(task.Payload()), err)
			}),
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeNotificationEmail, processor.HandleNotificationTask)
	log.Println("Registered background task handlers.")

	if err := srv.Run(mux); err != nil {
		log.Fatalf("Could not run Asynq server: %v", err)
	}

	return srv
}

// --- Task Handlers ---

// HandleNotificationTask resolves the target user and delivers a plain-text
// notification email about a conversation event.
func (p *TaskProcessor) HandleNotificationTask(ctx context.Context, t *asynq.Task) error {
	var payload NotificationPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal notification payload: %v: %w", err, asynq.SkipRetry)
	}

	userID, err := primitive.ObjectIDFromHex(payload.ToUserID)
	if err != nil {
		log.Printf("Invalid user ID in notification payload: %s", payload.ToUserID)
		return fmt.Errorf("invalid user ID in payload: %w", asynq.SkipRetry)
	}

	user, err := p.userService.FindByID(ctx, userID)
	if err != nil {
		log.Printf("Error fetching user %s for notification: %v", payload.ToUserID, err)
		if strings.Contains(err.Error(), "not found") {
			return fmt.Errorf("notification target user not found: %w", asynq.SkipRetry)
		}
		return err
	}

	var subject, body string
	switch payload.Event {
	case EventConversationCreated:
		subject = fmt.Sprintf("New conversation: %s", payload.Title)
		body = fmt.Sprintf("Hello %s,\n\n%s started a new conversation with you: %q.\n\nLog in to %s to respond.\n",
			user.FirstName, payload.Actor, payload.Title, p.cfg.AppName)
	case EventAnswerSubmitted:
		subject = fmt.Sprintf("Answer submitted on: %s", payload.Title)
		body = fmt.Sprintf("Hello %s,\n\n%s submitted the answer %q on the conversation %q.\n\nLog in to %s for details.\n",
			user.FirstName, payload.Actor, payload.Answer, payload.Title, p.cfg.AppName)
	default:
		log.Printf("Unknown notification event %q, dropping task.", payload.Event)
		return fmt.Errorf("unknown notification event: %w", asynq.SkipRetry)
	}

	fromAddress := p.cfg.SmtpFromAddress
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("To: %s\r\n", user.Email))
	sb.WriteString(fmt.Sprintf("From: %s\r\n", fromAddress))
	sb.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))
	sb.WriteString("Date: " + time.Now().Format(time.RFC1123Z) + "\r\n")
	sb.WriteString("MIME-Version: 1.0\r\n")
	sb.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	sb.WriteString("\r\n")
	sb.WriteString(body)
	sb.WriteString("\r\n")

	if err := p.emailSender.Send(ctx, []string{user.Email}, subject, []byte(sb.String())); err != nil {
		log.Printf("Notification email sending failed: %v", err)
		return err
	}

	log.Printf("Notification task processed: To=%s, Event=%s, Conversation=%s", user.Email, payload.Event, payload.ConversationID)
	return nil
}
