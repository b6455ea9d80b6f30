// Package negotiation implements the per-recipient answer state machine.
// Every rule here is pure: callers load a recipient thread, check the
// requested transition, apply it, and persist the whole conversation
// atomically themselves.
package negotiation

import (
	"github.com/amirrezabahramy/inquiry-system-server/internal/apperr"
	"github.com/amirrezabahramy/inquiry-system-server/internal/models"
)

// Axis identifies which answer track a caller mutates: admins speak on the
// sender axis, users on the receiver axis.
type Axis int

const (
	AxisReceiver Axis = iota
	AxisSender
)

// AxisForRole maps the caller's role to the axis they are allowed to change.
func AxisForRole(role models.Role) Axis {
	if role == models.RoleAdmin {
		return AxisSender
	}
	return AxisReceiver
}

// ValidAnswer reports whether answer is a submittable value on the axis.
// The initial defaults (not-answered, offer-in-progress) are not
// submittable by receivers; admins may resubmit offer-in-progress to keep
// the negotiation open while requesting changes.
func ValidAnswer(axis Axis, answer string) bool {
	if axis == AxisSender {
		switch models.SenderAnswer(answer) {
		case models.SenderInProgress, models.SenderAccepted, models.SenderRejected:
			return true
		}
		return false
	}
	switch models.ReceiverAnswer(answer) {
	case models.ReceiverAccepted, models.ReceiverRejected, models.ReceiverMoreInfo:
		return true
	}
	return false
}

// Closed reports whether the thread has reached a terminal state: either
// axis rejected, or the sender gave a final answer.
func Closed(t *models.RecipientThread) bool {
	return t.SenderAnswer == models.SenderAccepted ||
		t.SenderAnswer == models.SenderRejected ||
		t.ReceiverAnswer == models.ReceiverRejected
}

// progressValues are the answer values that may be resubmitted to keep a
// negotiation round-trip going.
func isProgressValue(v string) bool {
	return v == string(models.SenderInProgress) || v == string(models.ReceiverMoreInfo)
}

// CheckTransition validates a requested answer submission against the
// thread's current state. It returns nil if the transition may proceed, or
// an InvalidTransition error naming the violated rule. The thread is not
// mutated; checks happen strictly before any write.
func CheckTransition(t *models.RecipientThread, role models.Role, answer string) error {
	admin := role == models.RoleAdmin

	// The receiver must speak first.
	if admin && t.ReceiverAnswer == models.ReceiverNotAnswered {
		return apperr.InvalidTransition("You have to wait until the receiver user replies.")
	}

	// While the receiver still requires additional info, the admin may
	// reject or keep negotiating, but not close the deal as accepted.
	if admin && t.ReceiverAnswer == models.ReceiverMoreInfo && answer == string(models.SenderAccepted) {
		return apperr.InvalidTransition("Admins can't accept requests until receiver users accept.")
	}

	// Once the receiver accepted, the conversation awaits the admin's
	// final word; further receiver-side answers are locked out.
	if !admin && t.ReceiverAnswer == models.ReceiverAccepted {
		return apperr.InvalidTransition("This conversation is closed for you. Wait for admin's final response.")
	}

	if Closed(t) {
		return apperr.InvalidTransition("This conversation is closed.")
	}

	// Resubmitting a settled value is rejected; repeated progress values
	// (additional-info-required round-trips) are allowed.
	current := string(t.ReceiverAnswer)
	if AxisForRole(role) == AxisSender {
		current = string(t.SenderAnswer)
	}
	if !isProgressValue(current) && current == answer {
		return apperr.InvalidTransition("This answer is already submitted.")
	}

	return nil
}

// Apply sets the caller's axis to answer and recomputes the derived
// contract status. Callers must have passed CheckTransition first.
func Apply(t *models.RecipientThread, role models.Role, answer string) {
	if AxisForRole(role) == AxisSender {
		t.SenderAnswer = models.SenderAnswer(answer)
	} else {
		t.ReceiverAnswer = models.ReceiverAnswer(answer)
	}
	t.ContractStatus = ContractStatusFor(t.SenderAnswer, t.ReceiverAnswer)
}

// EligibilityValue is the tri-state value of a reply status: full access,
// no access, or limited (admin may reject or request more info but not
// accept). It marshals as the JSON literals true, false and "limited".
type EligibilityValue int

const (
	EligibilityFalse EligibilityValue = iota
	EligibilityTrue
	EligibilityLimited
)

func (v EligibilityValue) MarshalJSON() ([]byte, error) {
	switch v {
	case EligibilityTrue:
		return []byte("true"), nil
	case EligibilityLimited:
		return []byte(`"limited"`), nil
	default:
		return []byte("false"), nil
	}
}

const (
	ReasonWaitForFirstReply    = "wait-for-first-reply"
	ReasonWaitForAdminResponse = "wait-for-admin-response"
	ReasonConversationClosed   = "conversation-is-closed"
)

// ReplyStatus tells a caller whether submitting an answer on this thread
// would currently succeed, and why not when it would not.
type ReplyStatus struct {
	Value  EligibilityValue `json:"value"`
	Reason string           `json:"reason,omitempty"`
}

// ReplyEligibility is the read-only projection of the transition rules: it
// evaluates the same predicates as CheckTransition without an answer value.
func ReplyEligibility(t *models.RecipientThread, role models.Role) ReplyStatus {
	admin := role == models.RoleAdmin

	if admin && t.ReceiverAnswer == models.ReceiverNotAnswered {
		return ReplyStatus{Value: EligibilityFalse, Reason: ReasonWaitForFirstReply}
	}
	if Closed(t) {
		return ReplyStatus{Value: EligibilityFalse, Reason: ReasonConversationClosed}
	}
	if admin && t.ReceiverAnswer == models.ReceiverMoreInfo {
		return ReplyStatus{Value: EligibilityLimited}
	}
	if !admin && t.ReceiverAnswer == models.ReceiverAccepted {
		return ReplyStatus{Value: EligibilityFalse, Reason: ReasonWaitForAdminResponse}
	}
	return ReplyStatus{Value: EligibilityTrue}
}

// ContractStatusFor derives the contract status from the two answer axes.
// Callers never set the status directly; Apply recomputes it after every
// mutation.
func ContractStatusFor(sa models.SenderAnswer, ra models.ReceiverAnswer) models.ContractStatus {
	switch {
	case sa == models.SenderAccepted:
		return models.ContractSuccessful
	case sa == models.SenderRejected || ra == models.ReceiverRejected:
		return models.ContractUnsuccessful
	default:
		return models.ContractInProgress
	}
}
