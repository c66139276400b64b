package requests

import "time"

// ActType identifies which civil-status act a certified copy is requested for.
type ActType string

const (
	ActBirth    ActType = "birth"
	ActMarriage ActType = "marriage"
	ActDeath    ActType = "death"
)

// Valid reports whether the act type is one of the three enumerated values.
func (t ActType) Valid() bool {
	switch t {
	case ActBirth, ActMarriage, ActDeath:
		return true
	}
	return false
}

// Status is a request lifecycle state.
type Status string

const (
	StatusPending        Status = "pending"
	StatusInReview       Status = "in_review"
	StatusApproved       Status = "approved"
	StatusRejected       Status = "rejected"
	StatusReadyForPickup Status = "ready_for_pickup"
	StatusDelivered      Status = "delivered"
)

// AllStatuses lists every lifecycle state, in display order.
func AllStatuses() []Status {
	return []Status{
		StatusPending,
		StatusInReview,
		StatusApproved,
		StatusRejected,
		StatusReadyForPickup,
		StatusDelivered,
	}
}

// Valid reports whether the status is one of the six lifecycle states.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInReview, StatusApproved, StatusRejected,
		StatusReadyForPickup, StatusDelivered:
		return true
	}
	return false
}

// Attachment describes a supporting document. Only the descriptor is stored;
// the upload pipeline itself is out of scope.
type Attachment struct {
	Name        string `json:"name"`
	Path        string `json:"path"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type"`
}

// Request is a single certificate request. citizen_id never changes after
// creation and rows are never deleted; the lifecycle is soft only.
type Request struct {
	ID             string
	CitizenID      string
	TypeOfAct      ActType
	PersonFullname string
	FatherName     *string
	MotherName     *string
	DateOfBirth    *time.Time
	PlaceOfBirth   *string
	NumberOfCopies int
	Purpose        *string
	Status         Status
	Attachments    []Attachment
	AssignedTo     *string
	Notes          *string
	CreatedAt      time.Time
	UpdatedAt      time.Time

	// OwnerName is joined from profiles for staff listings.
	OwnerName string
}

// Event is an append-only audit entry. Every status change writes exactly
// one event; the comment is optional on the event itself.
type Event struct {
	ID             string
	RequestID      string
	ActorID        *string
	PreviousStatus *Status
	NewStatus      Status
	Comment        *string
	CreatedAt      time.Time
}

// StatusCount pairs a lifecycle state with how many requests sit in it.
type StatusCount struct {
	Status Status
	Count  int
}
