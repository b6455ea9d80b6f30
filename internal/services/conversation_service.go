package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/amirrezabahramy/inquiry-system-server/internal/apperr"
	"github.com/amirrezabahramy/inquiry-system-server/internal/attachment"
	"github.com/amirrezabahramy/inquiry-system-server/internal/db"
	"github.com/amirrezabahramy/inquiry-system-server/internal/models"
	"github.com/amirrezabahramy/inquiry-system-server/internal/negotiation"
)

// IConversationService defines the interface for conversation operations.
type IConversationService interface {
	Create(ctx context.Context, caller Caller, kind models.Kind, input CreateConversationInput) (*models.Conversation, error)
	ListForSender(ctx context.Context, caller Caller, kind models.Kind, search string) ([]models.ConversationSummary, error)
	ListForRecipient(ctx context.Context, caller Caller, kind models.Kind, search string) ([]models.RecipientConversationRow, error)
	ListRecipients(ctx context.Context, caller Caller, kind models.Kind, conversationID primitive.ObjectID, search string) ([]models.RecipientStatus, error)
	ListReplies(ctx context.Context, caller Caller, kind models.Kind, conversationID, recipientID primitive.ObjectID, search string) (*RepliesResult, error)
	SubmitAnswer(ctx context.Context, caller Caller, kind models.Kind, conversationID primitive.ObjectID, input SubmitAnswerInput) (*models.Conversation, error)
	GetConversationFile(ctx context.Context, caller Caller, conversationID primitive.ObjectID, file string) (*attachment.Decoded, error)
	GetReplyFile(ctx context.Context, caller Caller, replyID primitive.ObjectID, file string) (*attachment.Decoded, error)
}

const conversationsCollection = "conversations"

// CreateConversationInput is the creation payload. Commercial fields and
// attachments only apply to kinds whose descriptor enables them.
type CreateConversationInput struct {
	Title         string     `json:"title"`
	Description   string     `json:"desc"`
	Recipients    []string   `json:"receivers"`
	SegmentName   string     `json:"segmentName"`
	Price         float64    `json:"price"`
	Count         int        `json:"count"`
	Producer      string     `json:"producer"`
	DeliveryDate  *time.Time `json:"deliveryDate"`
	DeliveryPlace string     `json:"deliveryPlace"`
	Pic           string     `json:"pic"`
	Doc           string     `json:"doc"`
}

// SubmitAnswerInput is the answer submission payload. RecipientID is only
// honored for admin callers; plain users always act on their own thread.
type SubmitAnswerInput struct {
	RecipientID primitive.ObjectID
	Answer      string
	Message     string
	Pic         string
	Doc         string
}

// RepliesResult pairs a thread's reply listing with its computed status.
type RepliesResult struct {
	Replies     []models.ReplyView      `json:"replies"`
	ReplyStatus negotiation.ReplyStatus `json:"replyStatus"`
}

// conversationService implements IConversationService.
type conversationService struct {
	db *mongo.Database
}

// NewConversationService creates a new ConversationService.
func NewConversationService(database *mongo.Database) IConversationService {
	return &conversationService{db: database}
}

// Create inserts a new conversation addressed to one or more recipients.
func (s *conversationService) Create(ctx context.Context, caller Caller, kind models.Kind, input CreateConversationInput) (*models.Conversation, error) {
	if !caller.IsAdmin() {
		return nil, apperr.Forbidden("Only admins can start conversations.")
	}

	var missing []string
	if strings.TrimSpace(input.Title) == "" {
		missing = append(missing, "title")
	}
	if strings.TrimSpace(input.Description) == "" {
		missing = append(missing, "desc")
	}
	if len(input.Recipients) == 0 {
		missing = append(missing, "receivers")
	}
	spec := kind.Spec()
	if spec.CommercialFields {
		if strings.TrimSpace(input.SegmentName) == "" {
			missing = append(missing, "segmentName")
		}
		if input.Count <= 0 {
			missing = append(missing, "count")
		}
	}
	if len(missing) > 0 {
		return nil, apperr.MissingParameter("Fields required: %s", strings.Join(missing, ", "))
	}

	seen := make(map[primitive.ObjectID]bool, len(input.Recipients))
	recipientIDs := make([]primitive.ObjectID, 0, len(input.Recipients))
	for _, raw := range input.Recipients {
		id, err := primitive.ObjectIDFromHex(raw)
		if err != nil {
			return nil, apperr.Validation("receiver id %q is not valid", raw)
		}
		if id == caller.ID {
			return nil, apperr.Validation("You cannot send a conversation to yourself.")
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		recipientIDs = append(recipientIDs, id)
	}

	// Every recipient must be an existing plain-role user.
	usersColl := s.db.Collection(usersCollection)
	count, err := usersColl.CountDocuments(ctx, bson.M{
		"_id":  bson.M{"$in": recipientIDs},
		"role": models.RoleUser,
	})
	if err != nil {
		return nil, db.Translate(fmt.Errorf("error checking recipients: %w", err))
	}
	if int(count) != len(recipientIDs) {
		return nil, apperr.Validation("one or more receivers do not exist")
	}

	now := time.Now().UTC()
	conv := &models.Conversation{
		Kind:        kind,
		Title:       strings.TrimSpace(input.Title),
		Description: strings.TrimSpace(input.Description),
		Sender:      caller.ID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if spec.CommercialFields {
		conv.SegmentName = strings.TrimSpace(input.SegmentName)
		conv.Price = input.Price
		conv.Count = input.Count
		conv.Producer = strings.TrimSpace(input.Producer)
		conv.DeliveryDate = input.DeliveryDate
		conv.DeliveryPlace = strings.TrimSpace(input.DeliveryPlace)
		conv.UniqueID = fmt.Sprintf("%s-%d", conv.SegmentName, conv.Count)
	}
	if input.Pic != "" {
		if _, err := attachment.Validate(input.Pic, spec.PicFormats, spec.MaxAttachmentMB); err != nil {
			return nil, err
		}
		conv.Pic = input.Pic
	}
	if input.Doc != "" {
		if _, err := attachment.Validate(input.Doc, spec.DocFormats, spec.MaxAttachmentMB); err != nil {
			return nil, err
		}
		conv.Doc = input.Doc
	}
	for _, id := range recipientIDs {
		conv.Recipients = append(conv.Recipients, models.NewRecipientThread(id))
	}

	collection := s.db.Collection(conversationsCollection)
	result, err := collection.InsertOne(ctx, conv)
	if err != nil {
		return nil, db.Translate(fmt.Errorf("error inserting conversation: %w", err))
	}
	conv.ID = result.InsertedID.(primitive.ObjectID)
	return conv, nil
}

// Whitelisted fields for the sender's text search.
var searchableFields = []string{"title", "desc", "segment_name", "producer", "delivery_place"}

func textSearchFilter(search string) bson.M {
	quoted := regexp.QuoteMeta(search)
	or := make(bson.A, 0, len(searchableFields))
	for _, field := range searchableFields {
		or = append(or, bson.M{field: bson.M{"$regex": quoted, "$options": "i"}})
	}
	return bson.M{"$or": or}
}

func presenceFlag(field string) bson.M {
	return bson.M{"$gt": bson.A{
		bson.M{"$strLenCP": bson.M{"$ifNull": bson.A{field, ""}}},
		0,
	}}
}

// ListForSender returns summaries of the conversations the caller sent,
// newest first. Attachments collapse to presence flags; recipient threads
// are not part of the summary.
func (s *conversationService) ListForSender(ctx context.Context, caller Caller, kind models.Kind, search string) ([]models.ConversationSummary, error) {
	match := bson.M{"kind": kind, "sender": caller.ID}
	if search != "" {
		for k, v := range textSearchFilter(search) {
			match[k] = v
		}
	}

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: match}},
		{{Key: "$addFields", Value: bson.M{
			"has_pic": presenceFlag("$pic"),
			"has_doc": presenceFlag("$doc"),
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "_id", Value: -1}}}},
		{{Key: "$project", Value: bson.M{"receivers": 0, "pic": 0, "doc": 0}}},
	}

	collection := s.db.Collection(conversationsCollection)
	cursor, err := collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, db.Translate(fmt.Errorf("error listing conversations for sender: %w", err))
	}
	defer cursor.Close(ctx)

	summaries := []models.ConversationSummary{}
	if err := cursor.All(ctx, &summaries); err != nil {
		return nil, db.Translate(fmt.Errorf("error decoding conversation summaries: %w", err))
	}
	return summaries, nil
}

// ListForRecipient returns the conversations addressed to the caller, each
// carrying the sender's public fields and only the caller's own thread
// status. The projection never exposes other recipients.
func (s *conversationService) ListForRecipient(ctx context.Context, caller Caller, kind models.Kind, search string) ([]models.RecipientConversationRow, error) {
	match := bson.M{"kind": kind, "receivers.user": caller.ID}
	if search != "" {
		for k, v := range textSearchFilter(search) {
			match[k] = v
		}
	}

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: match}},
		{{Key: "$addFields", Value: bson.M{
			"own_thread": bson.M{"$arrayElemAt": bson.A{
				bson.M{"$filter": bson.M{
					"input": "$receivers",
					"as":    "r",
					"cond":  bson.M{"$eq": bson.A{"$$r.user", caller.ID}},
				}},
				0,
			}},
			"has_pic": presenceFlag("$pic"),
			"has_doc": presenceFlag("$doc"),
		}}},
		{{Key: "$lookup", Value: bson.M{
			"from":         usersCollection,
			"localField":   "sender",
			"foreignField": "_id",
			"as":           "sender_doc",
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "_id", Value: -1}}}},
		{{Key: "$project", Value: bson.M{
			"_id":            1,
			"kind":           1,
			"title":          1,
			"desc":           1,
			"segment_name":   1,
			"price":          1,
			"count":          1,
			"producer":       1,
			"delivery_date":  1,
			"delivery_place": 1,
			"unique_id":      1,
			"has_pic":        1,
			"has_doc":        1,
			"created_at":     1,
			"sender":         bson.M{"$arrayElemAt": bson.A{"$sender_doc", 0}},
			"contract": bson.M{
				"contract_status": "$own_thread.contract_status",
				"sender_answer":   "$own_thread.sender_answer",
				"receiver_answer": "$own_thread.receiver_answer",
			},
		}}},
	}

	collection := s.db.Collection(conversationsCollection)
	cursor, err := collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, db.Translate(fmt.Errorf("error listing conversations for recipient: %w", err))
	}
	defer cursor.Close(ctx)

	rows := []models.RecipientConversationRow{}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, db.Translate(fmt.Errorf("error decoding recipient conversation rows: %w", err))
	}
	return rows, nil
}

// load fetches a conversation by id, optionally pinned to a kind.
func (s *conversationService) load(ctx context.Context, conversationID primitive.ObjectID, kind models.Kind) (*models.Conversation, error) {
	filter := bson.M{"_id": conversationID}
	if kind != "" {
		filter["kind"] = kind
	}
	var conv models.Conversation
	err := s.db.Collection(conversationsCollection).FindOne(ctx, filter).Decode(&conv)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperr.NotFound("Conversation not found.")
		}
		return nil, db.Translate(fmt.Errorf("error loading conversation %s: %w", conversationID.Hex(), err))
	}
	return &conv, nil
}

// ListRecipients returns every recipient thread's user profile and status.
// Only the sender may enumerate recipients.
func (s *conversationService) ListRecipients(ctx context.Context, caller Caller, kind models.Kind, conversationID primitive.ObjectID, search string) ([]models.RecipientStatus, error) {
	conv, err := s.load(ctx, conversationID, kind)
	if err != nil {
		return nil, err
	}
	if conv.Sender != caller.ID {
		return nil, apperr.Forbidden("Only the sender can list recipients.")
	}

	recipientIDs := make([]primitive.ObjectID, 0, len(conv.Recipients))
	for _, t := range conv.Recipients {
		recipientIDs = append(recipientIDs, t.User)
	}

	filter := bson.M{"_id": bson.M{"$in": recipientIDs}}
	if search != "" {
		quoted := regexp.QuoteMeta(search)
		filter["$or"] = bson.A{
			bson.M{"first_name": bson.M{"$regex": quoted, "$options": "i"}},
			bson.M{"last_name": bson.M{"$regex": quoted, "$options": "i"}},
			bson.M{"username": bson.M{"$regex": quoted, "$options": "i"}},
			bson.M{"email": bson.M{"$regex": quoted, "$options": "i"}},
		}
	}

	cursor, err := s.db.Collection(usersCollection).Find(ctx, filter)
	if err != nil {
		return nil, db.Translate(fmt.Errorf("error loading recipient profiles: %w", err))
	}
	defer cursor.Close(ctx)

	profiles := []models.PublicProfile{}
	if err := cursor.All(ctx, &profiles); err != nil {
		return nil, db.Translate(fmt.Errorf("error decoding recipient profiles: %w", err))
	}
	profileByID := make(map[primitive.ObjectID]models.PublicProfile, len(profiles))
	for _, p := range profiles {
		profileByID[p.ID] = p
	}

	statuses := []models.RecipientStatus{}
	for _, t := range conv.Recipients {
		profile, ok := profileByID[t.User]
		if !ok {
			// Filtered out by the search, or the account no longer exists.
			continue
		}
		statuses = append(statuses, models.RecipientStatus{
			User:           profile,
			ContractStatus: t.ContractStatus,
			SenderAnswer:   t.SenderAnswer,
			ReceiverAnswer: t.ReceiverAnswer,
		})
	}
	return statuses, nil
}

// ListReplies returns one recipient thread's replies plus the computed
// reply status for the caller. Admin callers name the recipient; plain
// users always read their own thread.
func (s *conversationService) ListReplies(ctx context.Context, caller Caller, kind models.Kind, conversationID, recipientID primitive.ObjectID, search string) (*RepliesResult, error) {
	conv, err := s.load(ctx, conversationID, kind)
	if err != nil {
		return nil, err
	}

	resolved, err := resolverFor(caller).ResolveRecipient(caller, recipientID)
	if err != nil {
		return nil, err
	}
	if err := canViewThread(caller, conv, resolved); err != nil {
		return nil, err
	}
	thread := conv.Thread(resolved)
	if thread == nil {
		return nil, apperr.NotFound("User is not a receiver of this conversation.")
	}

	// Resolve author display names in one query.
	authorIDs := make([]primitive.ObjectID, 0, 2)
	seenAuthors := make(map[primitive.ObjectID]bool)
	for _, r := range thread.Replies {
		if !seenAuthors[r.From] {
			seenAuthors[r.From] = true
			authorIDs = append(authorIDs, r.From)
		}
	}
	authorByID := make(map[primitive.ObjectID]models.ReplyAuthor)
	if len(authorIDs) > 0 {
		cursor, err := s.db.Collection(usersCollection).Find(ctx, bson.M{"_id": bson.M{"$in": authorIDs}})
		if err != nil {
			return nil, db.Translate(fmt.Errorf("error loading reply authors: %w", err))
		}
		defer cursor.Close(ctx)
		authors := []models.PublicProfile{}
		if err := cursor.All(ctx, &authors); err != nil {
			return nil, db.Translate(fmt.Errorf("error decoding reply authors: %w", err))
		}
		for _, a := range authors {
			authorByID[a.ID] = models.ReplyAuthor{ID: a.ID, FirstName: a.FirstName, LastName: a.LastName}
		}
	}

	needle := strings.ToLower(search)
	views := []models.ReplyView{}
	for _, r := range thread.Replies {
		if needle != "" && !strings.Contains(strings.ToLower(r.Message), needle) {
			continue
		}
		views = append(views, models.ReplyView{
			ID:        r.ID,
			From:      authorByID[r.From],
			Message:   r.Message,
			HasPic:    r.Pic != "",
			HasDoc:    r.Doc != "",
			CreatedAt: r.CreatedAt,
		})
	}

	return &RepliesResult{
		Replies:     views,
		ReplyStatus: negotiation.ReplyEligibility(thread, caller.Role),
	}, nil
}

// SubmitAnswer runs the answer state machine on one recipient thread and
// persists the transition atomically. The update filter pins the thread's
// pre-transition answers, so a concurrent submission that already changed
// them makes this write match nothing instead of clobbering it.
func (s *conversationService) SubmitAnswer(ctx context.Context, caller Caller, kind models.Kind, conversationID primitive.ObjectID, input SubmitAnswerInput) (*models.Conversation, error) {
	if input.Answer == "" {
		return nil, apperr.MissingParameter("Fields required: answer")
	}
	axis := negotiation.AxisForRole(caller.Role)
	if !negotiation.ValidAnswer(axis, input.Answer) {
		return nil, apperr.Validation("answer %q is not valid", input.Answer)
	}

	conv, err := s.load(ctx, conversationID, kind)
	if err != nil {
		return nil, err
	}

	resolved, err := resolverFor(caller).ResolveRecipient(caller, input.RecipientID)
	if err != nil {
		return nil, err
	}
	if err := canViewThread(caller, conv, resolved); err != nil {
		return nil, err
	}
	thread := conv.Thread(resolved)
	if thread == nil {
		return nil, apperr.NotFound("User is not a receiver of this conversation.")
	}

	if err := negotiation.CheckTransition(thread, caller.Role, input.Answer); err != nil {
		return nil, err
	}

	// Validate optional reply attachments before any write.
	spec := conv.Kind.Spec()
	var reply *models.Reply
	if input.Message != "" || input.Pic != "" || input.Doc != "" {
		if strings.TrimSpace(input.Message) == "" {
			return nil, apperr.MissingParameter("Fields required: message")
		}
		if input.Pic != "" {
			if _, err := attachment.Validate(input.Pic, spec.PicFormats, spec.MaxAttachmentMB); err != nil {
				return nil, err
			}
		}
		if input.Doc != "" {
			if _, err := attachment.Validate(input.Doc, spec.DocFormats, spec.MaxAttachmentMB); err != nil {
				return nil, err
			}
		}
		reply = &models.Reply{
			ID:        primitive.NewObjectID(),
			From:      caller.ID,
			Message:   strings.TrimSpace(input.Message),
			Pic:       input.Pic,
			Doc:       input.Doc,
			CreatedAt: time.Now().UTC(),
		}
	}

	prevReceiver := thread.ReceiverAnswer
	prevSender := thread.SenderAnswer
	negotiation.Apply(thread, caller.Role, input.Answer)

	now := time.Now().UTC()
	filter := bson.M{
		"_id": conversationID,
		"receivers": bson.M{"$elemMatch": bson.M{
			"user":            resolved,
			"receiver_answer": prevReceiver,
			"sender_answer":   prevSender,
		}},
	}
	update := bson.M{
		"$set": bson.M{
			"receivers.$.receiver_answer": thread.ReceiverAnswer,
			"receivers.$.sender_answer":   thread.SenderAnswer,
			"receivers.$.contract_status": thread.ContractStatus,
			"updated_at":                  now,
		},
	}
	if reply != nil {
		update["$push"] = bson.M{"receivers.$.replies": reply}
	}

	collection := s.db.Collection(conversationsCollection)
	result, err := collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return nil, db.Translate(fmt.Errorf("error updating conversation %s: %w", conversationID.Hex(), err))
	}
	if result.MatchedCount == 0 {
		// The pre-transition answers no longer match: a concurrent
		// submission got there first. The caller must re-read and decide
		// against the current state.
		return nil, apperr.InvalidTransition("Conversation state changed, please try again.")
	}

	if reply != nil {
		thread.Replies = append(thread.Replies, *reply)
	}
	conv.UpdatedAt = now
	return conv, nil
}

// GetConversationFile returns a conversation-level attachment for download.
// file selects "pic" or "doc".
func (s *conversationService) GetConversationFile(ctx context.Context, caller Caller, conversationID primitive.ObjectID, file string) (*attachment.Decoded, error) {
	conv, err := s.load(ctx, conversationID, "")
	if err != nil {
		return nil, err
	}
	if err := canViewConversation(caller, conv); err != nil {
		return nil, err
	}

	var payload string
	switch file {
	case "pic":
		payload = conv.Pic
	case "doc":
		payload = conv.Doc
	default:
		return nil, apperr.Validation("file must be pic or doc")
	}
	if payload == "" {
		return nil, apperr.NotFound("Attachment not found.")
	}
	return attachment.Decode(payload)
}

// GetReplyFile returns a reply-level attachment for download. Access follows
// thread access: the sender, or the owner of the thread containing the reply.
func (s *conversationService) GetReplyFile(ctx context.Context, caller Caller, replyID primitive.ObjectID, file string) (*attachment.Decoded, error) {
	var conv models.Conversation
	err := s.db.Collection(conversationsCollection).
		FindOne(ctx, bson.M{"receivers.replies._id": replyID}).Decode(&conv)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperr.NotFound("Reply not found.")
		}
		return nil, db.Translate(fmt.Errorf("error loading reply %s: %w", replyID.Hex(), err))
	}

	for i := range conv.Recipients {
		thread := &conv.Recipients[i]
		for _, r := range thread.Replies {
			if r.ID != replyID {
				continue
			}
			if err := canViewThread(caller, &conv, thread.User); err != nil {
				return nil, err
			}
			var payload string
			switch file {
			case "pic":
				payload = r.Pic
			case "doc":
				payload = r.Doc
			default:
				return nil, apperr.Validation("file must be pic or doc")
			}
			if payload == "" {
				return nil, apperr.NotFound("Attachment not found.")
			}
			return attachment.Decode(payload)
		}
	}
	return nil, apperr.NotFound("Reply not found.")
}
