package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Kind tags a conversation with the entity shape it was created as. Both
// kinds share one negotiation flow; an inquiry additionally carries the
// commercial fields and may have file attachments.
type Kind string

const (
	KindInquiry Kind = "inquiry"
	KindTicket  Kind = "ticket"
)

// KindSpec describes what a conversation kind requires and accepts.
type KindSpec struct {
	CommercialFields bool     // segment name, price, count, producer, delivery info
	PicFormats       []string // accepted picture attachment extensions, empty = no pics
	DocFormats       []string // accepted document attachment extensions, empty = no docs
	MaxAttachmentMB  int
}

var kindSpecs = map[Kind]KindSpec{
	KindInquiry: {
		CommercialFields: true,
		PicFormats:       []string{"jpg", "png"},
		DocFormats:       []string{"pdf"},
		MaxAttachmentMB:  5,
	},
	KindTicket: {},
}

// ParseKind validates a kind string coming from a route parameter.
func ParseKind(s string) (Kind, bool) {
	k := Kind(s)
	_, ok := kindSpecs[k]
	return k, ok
}

// Spec returns the descriptor for the kind.
func (k Kind) Spec() KindSpec {
	return kindSpecs[k]
}

// ReceiverAnswer is the recipient-side answer axis.
type ReceiverAnswer string

const (
	ReceiverNotAnswered ReceiverAnswer = "not-answered"
	ReceiverAccepted    ReceiverAnswer = "accepted"
	ReceiverRejected    ReceiverAnswer = "rejected"
	ReceiverMoreInfo    ReceiverAnswer = "additional-info-required"
)

// SenderAnswer is the sender-side answer axis. Accepted and rejected are
// terminal for the whole recipient thread.
type SenderAnswer string

const (
	SenderInProgress SenderAnswer = "offer-in-progress"
	SenderAccepted   SenderAnswer = "accepted"
	SenderRejected   SenderAnswer = "rejected"
)

// ContractStatus summarises a recipient thread's outcome. It is derived from
// the two answer axes and never set by a caller directly.
type ContractStatus string

const (
	ContractInProgress   ContractStatus = "in-progress"
	ContractSuccessful   ContractStatus = "successful"
	ContractUnsuccessful ContractStatus = "unsuccessful"
)

// Reply is one message inside a recipient thread. Attachments are embedded
// base64 data URIs and never included in list projections.
type Reply struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	From      primitive.ObjectID `bson:"from" json:"from"`
	Message   string             `bson:"message" json:"message"`
	Pic       string             `bson:"pic,omitempty" json:"-"`
	Doc       string             `bson:"doc,omitempty" json:"-"`
	CreatedAt time.Time          `bson:"created_at" json:"createdAt"`
}

// RecipientThread is the per-recipient negotiation sub-state embedded in a
// conversation. Replies are append-only.
type RecipientThread struct {
	User           primitive.ObjectID `bson:"user" json:"user"`
	ReceiverAnswer ReceiverAnswer     `bson:"receiver_answer" json:"receiverAnswer"`
	SenderAnswer   SenderAnswer       `bson:"sender_answer" json:"senderAnswer"`
	ContractStatus ContractStatus     `bson:"contract_status" json:"contractStatus"`
	Replies        []Reply            `bson:"replies" json:"replies"`
}

// NewRecipientThread returns a thread in its initial state.
func NewRecipientThread(userID primitive.ObjectID) RecipientThread {
	return RecipientThread{
		User:           userID,
		ReceiverAnswer: ReceiverNotAnswered,
		SenderAnswer:   SenderInProgress,
		ContractStatus: ContractInProgress,
		Replies:        []Reply{},
	}
}

// Conversation is the aggregate document: one sender, one or more recipient
// threads. Commercial fields and attachments are only populated for the
// inquiry kind.
type Conversation struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	Kind        Kind               `bson:"kind" json:"kind"`
	Title       string             `bson:"title" json:"title"`
	Description string             `bson:"desc" json:"desc"`
	Sender      primitive.ObjectID `bson:"sender" json:"sender"`

	SegmentName   string     `bson:"segment_name,omitempty" json:"segmentName,omitempty"`
	Price         float64    `bson:"price,omitempty" json:"price,omitempty"`
	Count         int        `bson:"count,omitempty" json:"count,omitempty"`
	Producer      string     `bson:"producer,omitempty" json:"producer,omitempty"`
	DeliveryDate  *time.Time `bson:"delivery_date,omitempty" json:"deliveryDate,omitempty"`
	DeliveryPlace string     `bson:"delivery_place,omitempty" json:"deliveryPlace,omitempty"`
	UniqueID      string     `bson:"unique_id,omitempty" json:"uniqueId,omitempty"`
	Pic           string     `bson:"pic,omitempty" json:"-"`
	Doc           string     `bson:"doc,omitempty" json:"-"`

	Recipients []RecipientThread `bson:"receivers" json:"receivers,omitempty"`
	CreatedAt  time.Time         `bson:"created_at" json:"createdAt"`
	UpdatedAt  time.Time         `bson:"updated_at" json:"updatedAt"`
}

// Thread returns the recipient thread for userID, nil if the user is not a
// recipient of this conversation.
func (c *Conversation) Thread(userID primitive.ObjectID) *RecipientThread {
	for i := range c.Recipients {
		if c.Recipients[i].User == userID {
			return &c.Recipients[i]
		}
	}
	return nil
}

// IsRecipient reports whether userID appears in the recipient list.
func (c *Conversation) IsRecipient(userID primitive.ObjectID) bool {
	return c.Thread(userID) != nil
}
