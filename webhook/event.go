package webhook

import (
	"time"

	"github.com/google/uuid"
)

type Resource string

const (
	ResourceJob     Resource = "job"
	ResourceListing Resource = "listing"
)

// Event types. The type is "<resource>.<new status or action>".
const (
	JobCreated         = "job.created"
	JobAccepted        = "job.accepted"
	JobRejected        = "job.rejected"
	JobPaid            = "job.paid"
	JobCompleted       = "job.completed"
	JobCancelled       = "job.cancelled"
	JobDisputed        = "job.disputed"
	JobStreamStarted   = "job.stream_started"
	JobStreamTick      = "job.stream_tick"
	JobStreamPaused    = "job.stream_paused"
	JobStreamResumed   = "job.stream_resumed"
	JobStreamStopped   = "job.stream_stopped"
	JobMessage         = "job.message"
	ListingCreated     = "listing.created"
	ListingApplication = "listing.application"
	ListingClosed      = "listing.closed"
	ListingCancelled   = "listing.cancelled"
	ListingExpired     = "listing.expired"
)

// Event is the JSON payload of every notification.
type Event struct {
	ID             string    `json:"id"`
	Type           string    `json:"type"`
	OccurredAt     time.Time `json:"occurred_at"`
	Resource       Resource  `json:"resource"`
	ResourceID     string    `json:"resource_id"`
	Status         string    `json:"status"`
	PreviousStatus string    `json:"previous_status,omitempty"`
	Data           any       `json:"data,omitempty"`
}

func NewEvent(typ string, res Resource, id, status, previous string, data any, at time.Time) Event {
	return Event{
		ID:             uuid.NewString(),
		Type:           typ,
		OccurredAt:     at,
		Resource:       res,
		ResourceID:     id,
		Status:         status,
		PreviousStatus: previous,
		Data:           data,
	}
}
