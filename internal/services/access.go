package services

import (
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/amirrezabahramy/inquiry-system-server/internal/apperr"
	"github.com/amirrezabahramy/inquiry-system-server/internal/models"
)

// Caller is the resolved identity attached to every service call.
type Caller struct {
	ID   primitive.ObjectID
	Role models.Role
}

// IsAdmin reports whether the caller acts on the sender side.
func (c Caller) IsAdmin() bool {
	return c.Role == models.RoleAdmin
}

// recipientResolver decides which recipient thread a call targets and what
// store filter scopes the caller's list views. Admins address threads by an
// explicit recipient id; plain users always address their own thread, so a
// user can never reach another recipient's thread by supplying an id.
type recipientResolver interface {
	ResolveRecipient(caller Caller, requested primitive.ObjectID) (primitive.ObjectID, error)
	ScopeFilter(caller Caller) bson.M
}

type adminResolver struct{}

func (adminResolver) ResolveRecipient(_ Caller, requested primitive.ObjectID) (primitive.ObjectID, error) {
	if requested.IsZero() {
		return primitive.NilObjectID, apperr.MissingParameter("Fields required: receiverUserId")
	}
	return requested, nil
}

func (adminResolver) ScopeFilter(caller Caller) bson.M {
	return bson.M{"sender": caller.ID}
}

type userResolver struct{}

func (userResolver) ResolveRecipient(caller Caller, _ primitive.ObjectID) (primitive.ObjectID, error) {
	return caller.ID, nil
}

func (userResolver) ScopeFilter(caller Caller) bson.M {
	return bson.M{"receivers.user": caller.ID}
}

func resolverFor(caller Caller) recipientResolver {
	if caller.IsAdmin() {
		return adminResolver{}
	}
	return userResolver{}
}

// canViewConversation authorizes read access to a loaded conversation: the
// sender sees everything, a recipient sees it scoped to their own thread.
// Non-participants get Forbidden; existence was already proven by the load,
// so this never masks as NotFound.
func canViewConversation(caller Caller, conv *models.Conversation) error {
	if conv.Sender == caller.ID {
		return nil
	}
	if conv.IsRecipient(caller.ID) {
		return nil
	}
	return apperr.Forbidden("You don't have access to this conversation.")
}

// canViewThread authorizes access to one recipient's thread: the sender, or
// the recipient themself.
func canViewThread(caller Caller, conv *models.Conversation, recipientID primitive.ObjectID) error {
	if conv.Sender == caller.ID {
		return nil
	}
	if caller.ID == recipientID && conv.IsRecipient(caller.ID) {
		return nil
	}
	return apperr.Forbidden("You don't have access to this conversation.")
}
