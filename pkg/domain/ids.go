package domain

import (
	"fmt"

	"github.com/google/uuid"

	dErrors "blaze/pkg/domain-errors"
)

// maxIDLength bounds identifiers accepted at trust boundaries.
const maxIDLength = 128

// Typed identifiers. Visitor and session ids are opaque strings because clients
// may carry ids minted elsewhere (cookies, edge workers); event ids are UUIDs.
type (
	VisitorID    string
	SessionID    string
	ExperimentID string
	VariantID    string
	EventID      uuid.UUID
)

func (id VisitorID) String() string    { return string(id) }
func (id SessionID) String() string    { return string(id) }
func (id ExperimentID) String() string { return string(id) }
func (id VariantID) String() string    { return string(id) }
func (id EventID) String() string      { return uuid.UUID(id).String() }

func (id VisitorID) IsNil() bool    { return id == "" }
func (id SessionID) IsNil() bool    { return id == "" }
func (id ExperimentID) IsNil() bool { return id == "" }
func (id VariantID) IsNil() bool    { return id == "" }
func (id EventID) IsNil() bool      { return uuid.UUID(id) == uuid.Nil }

// MarshalText lets EventID travel as a plain UUID string in JSON.
func (id EventID) MarshalText() ([]byte, error) {
	return uuid.UUID(id).MarshalText()
}

func (id *EventID) UnmarshalText(b []byte) error {
	var u uuid.UUID
	if err := u.UnmarshalText(b); err != nil {
		return err
	}
	*id = EventID(u)
	return nil
}

// NewVisitorID mints a durable pseudo-random visitor id.
func NewVisitorID() VisitorID {
	return VisitorID("v_" + uuid.NewString())
}

// NewSessionID mints a session-scoped id.
func NewSessionID() SessionID {
	return SessionID("s_" + uuid.NewString())
}

// NewEventID mints an event id used by the collector for deduplication.
func NewEventID() EventID {
	return EventID(uuid.New())
}

func ParseVisitorID(s string) (VisitorID, error) {
	if err := validateToken("visitor id", s); err != nil {
		return "", err
	}
	return VisitorID(s), nil
}

func ParseSessionID(s string) (SessionID, error) {
	if err := validateToken("session id", s); err != nil {
		return "", err
	}
	return SessionID(s), nil
}

func ParseExperimentID(s string) (ExperimentID, error) {
	if err := validateToken("experiment id", s); err != nil {
		return "", err
	}
	return ExperimentID(s), nil
}

func ParseVariantID(s string) (VariantID, error) {
	if err := validateToken("variant id", s); err != nil {
		return "", err
	}
	return VariantID(s), nil
}

func ParseEventID(s string) (EventID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return EventID{}, dErrors.New(dErrors.CodeInvalidInput, "invalid event id")
	}
	if u == uuid.Nil {
		return EventID{}, dErrors.New(dErrors.CodeInvalidInput, "event id cannot be nil")
	}
	return EventID(u), nil
}

// validateToken accepts [A-Za-z0-9_.:-]{1,128}. Identifiers end up in storage keys,
// so anything that could split or escape a key is rejected.
func validateToken(kind, s string) error {
	if s == "" {
		return dErrors.New(dErrors.CodeInvalidInput, kind+" is required")
	}
	if len(s) > maxIDLength {
		return dErrors.New(dErrors.CodeInvalidInput, fmt.Sprintf("%s exceeds %d characters", kind, maxIDLength))
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '_' || r == '-' || r == '.' || r == ':':
		default:
			return dErrors.New(dErrors.CodeInvalidInput, fmt.Sprintf("%s contains invalid character %q", kind, r))
		}
	}
	return nil
}
