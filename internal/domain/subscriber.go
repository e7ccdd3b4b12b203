package domain

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Subscriber statuses.
const (
	StatusActive   = "active"
	StatusInactive = "inactive"
)

var validate = validator.New()

// Subscriber is one locally stored subscriber record. ID is 0 until the
// record has been persisted. Fields, Tags and Forms are stored as
// comma-joined text columns and merged (union, no duplicates) on update.
type Subscriber struct {
	ID        int64             `json:"id"`
	Email     string            `json:"email" validate:"required,email"`
	FirstName string            `json:"first_name"`
	LastName  string            `json:"last_name"`
	Fields    map[string]string `json:"fields,omitempty"`
	Tags      []int64           `json:"tags,omitempty"`
	Forms     []int64           `json:"forms,omitempty"`
	Status    string            `json:"status"`
	Created   time.Time         `json:"created"`
	Modified  time.Time         `json:"modified"`
}

// NewSubscriber builds an unsaved subscriber from raw field values.
// The email must be syntactically valid; status defaults to active.
func NewSubscriber(email, firstName, lastName string, fields map[string]string, tags, forms []int64) (*Subscriber, error) {
	s := &Subscriber{
		Email:     email,
		FirstName: firstName,
		LastName:  lastName,
		Fields:    fields,
		Tags:      tags,
		Forms:     forms,
		Status:    StatusActive,
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checks the invariants required before persistence.
func (s *Subscriber) Validate() error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("invalid subscriber email %q", s.Email)
	}
	return nil
}

// Merge folds the stored record's array-valued attributes into s.
// Tags and forms become the union of both lists with duplicates removed;
// field values set on s win over stored values for the same name.
func (s *Subscriber) Merge(stored *Subscriber) {
	s.Tags = unionIDs(stored.Tags, s.Tags)
	s.Forms = unionIDs(stored.Forms, s.Forms)

	merged := make(map[string]string, len(stored.Fields)+len(s.Fields))
	for name, value := range stored.Fields {
		merged[name] = value
	}
	for name, value := range s.Fields {
		merged[name] = value
	}
	s.Fields = merged
}

// DisplayName returns "First Last", falling back to the email when both
// names are empty.
func (s *Subscriber) DisplayName() string {
	name := s.FirstName
	if s.LastName != "" {
		if name != "" {
			name += " "
		}
		name += s.LastName
	}
	if name == "" {
		return s.Email
	}
	return name
}

// ValidEmail reports whether email has a valid RFC shape.
func ValidEmail(email string) bool {
	return validate.Var(email, "required,email") == nil
}
