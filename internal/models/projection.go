package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ConversationSummary is the sender's list-view row: no recipient list, no
// sender object, attachments reduced to presence flags.
type ConversationSummary struct {
	ID            primitive.ObjectID `bson:"_id" json:"id"`
	Kind          Kind               `bson:"kind" json:"kind"`
	Title         string             `bson:"title" json:"title"`
	Description   string             `bson:"desc" json:"desc"`
	SegmentName   string             `bson:"segment_name,omitempty" json:"segmentName,omitempty"`
	Price         float64            `bson:"price,omitempty" json:"price,omitempty"`
	Count         int                `bson:"count,omitempty" json:"count,omitempty"`
	Producer      string             `bson:"producer,omitempty" json:"producer,omitempty"`
	DeliveryDate  *time.Time         `bson:"delivery_date,omitempty" json:"deliveryDate,omitempty"`
	DeliveryPlace string             `bson:"delivery_place,omitempty" json:"deliveryPlace,omitempty"`
	UniqueID      string             `bson:"unique_id,omitempty" json:"uniqueId,omitempty"`
	HasPic        bool               `bson:"has_pic" json:"hasPic"`
	HasDoc        bool               `bson:"has_doc" json:"hasDoc"`
	CreatedAt     time.Time          `bson:"created_at" json:"createdAt"`
}

// ContractView is the status triple of a single recipient thread.
type ContractView struct {
	ContractStatus ContractStatus `bson:"contract_status" json:"contractStatus"`
	SenderAnswer   SenderAnswer   `bson:"sender_answer" json:"senderAnswer"`
	ReceiverAnswer ReceiverAnswer `bson:"receiver_answer" json:"receiverAnswer"`
}

// RecipientConversationRow is the recipient's list-view row: conversation
// summary plus the sender's public fields plus only the caller's own thread
// status. Other recipients' threads are never present.
type RecipientConversationRow struct {
	ConversationSummary `bson:",inline"`
	Sender              SenderProfile `bson:"sender" json:"sender"`
	Contract            ContractView  `bson:"contract" json:"contract"`
}

// RecipientStatus is one row of the sender's recipient listing: public
// profile plus negotiation status, replies excluded.
type RecipientStatus struct {
	User           PublicProfile  `json:"user"`
	ContractStatus ContractStatus `json:"contractStatus"`
	SenderAnswer   SenderAnswer   `json:"senderAnswer"`
	ReceiverAnswer ReceiverAnswer `json:"receiverAnswer"`
}

// ReplyAuthor is the reply author's display subset.
type ReplyAuthor struct {
	ID        primitive.ObjectID `json:"id"`
	FirstName string             `json:"firstName"`
	LastName  string             `json:"lastName"`
}

// ReplyView is a reply in list context: attachment payloads are replaced by
// presence flags, the raw payload is served by the download operations.
type ReplyView struct {
	ID        primitive.ObjectID `json:"id"`
	From      ReplyAuthor        `json:"from"`
	Message   string             `json:"message"`
	HasPic    bool               `json:"hasPic"`
	HasDoc    bool               `json:"hasDoc"`
	CreatedAt time.Time          `json:"createdAt"`
}
