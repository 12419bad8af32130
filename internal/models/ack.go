package models

// AckState tracks a read-acknowledgement round-trip for one message.
type AckState string

const (
	// AckStatePending means the acknowledgement request is in flight.
	// At most one pending task may exist per message id.
	AckStatePending AckState = "pending"

	// AckStateConfirmed means the server accepted the acknowledgement.
	// Terminal; the task record is discarded.
	AckStateConfirmed AckState = "confirmed"

	// AckStateFailed means the request failed and the optimistic read
	// flip was rolled back. The message becomes a candidate again on
	// the next sweep.
	AckStateFailed AckState = "failed"
)

// AckTask is the ephemeral record guarding one in-flight
// read-acknowledgement. It is never persisted.
type AckTask struct {
	// MessageID keys the task.
	MessageID string `json:"message_id"`

	// ConversationID is carried for the cross-view notification.
	ConversationID string `json:"conversation_id"`

	// State is the current round-trip state.
	State AckState `json:"state"`
}
