package requests

import "time"

// CreateInput carries the citizen-submitted fields for a new request.
type CreateInput struct {
	TypeOfAct      ActType `validate:"required,oneof=birth marriage death"`
	PersonFullname string  `validate:"required,max=200"`
	FatherName     *string `validate:"omitempty,max=200"`
	MotherName     *string `validate:"omitempty,max=200"`
	DateOfBirth    *time.Time
	PlaceOfBirth   *string `validate:"omitempty,max=200"`
	NumberOfCopies int     `validate:"required,min=1,max=10"`
	Purpose        *string `validate:"omitempty,max=500"`
	Attachments    []Attachment
}

// ListFilter narrows the staff queue. Search matches person_fullname, the
// owner's name, or an id prefix, ignoring diacritics.
type ListFilter struct {
	Status  *Status
	Type    *ActType
	Search  string
	Page    int
	PerPage int
}
