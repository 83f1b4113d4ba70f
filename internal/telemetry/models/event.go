package models

import (
	"fmt"
	"time"

	expmodels "blaze/internal/experiment/models"
	id "blaze/pkg/domain"
	dErrors "blaze/pkg/domain-errors"
)

const (
	MaxEventNameLength = 128
	MaxProperties      = 64
	// MaxBatchEvents is the largest batch the collector accepts in one request.
	MaxBatchEvents = 500
)

// Event is an append-only interaction record. ExperimentContext is a snapshot of
// the visitor's active assignments taken when the event was recorded.
type Event struct {
	ID                id.EventID        `json:"id"`
	EventName         string            `json:"eventName"`
	Timestamp         time.Time         `json:"timestamp"`
	VisitorID         id.VisitorID      `json:"visitorId"`
	SessionID         id.SessionID      `json:"sessionId"`
	Properties        Properties        `json:"properties"`
	ExperimentContext expmodels.Context `json:"experimentContext"`
}

// Batch is the collector wire format: POST /api/experiments {events: [...]}.
type Batch struct {
	Events []Event `json:"events"`
}

// VariantFor returns the variant this event was tagged with for an experiment.
func (e *Event) VariantFor(expID id.ExperimentID) (id.VariantID, bool) {
	v, ok := e.ExperimentContext[expID]
	return v, ok
}

// Validate checks an event received over the wire.
func (e *Event) Validate() error {
	if e.ID.IsNil() {
		return dErrors.New(dErrors.CodeInvalidInput, "event id is required")
	}
	if err := ValidateContent(e.EventName, e.Properties); err != nil {
		return err
	}
	if e.Timestamp.IsZero() {
		return dErrors.New(dErrors.CodeInvalidInput, "event timestamp is required")
	}
	if _, err := id.ParseVisitorID(e.VisitorID.String()); err != nil {
		return err
	}
	if _, err := id.ParseSessionID(e.SessionID.String()); err != nil {
		return err
	}
	for expID, variantID := range e.ExperimentContext {
		if _, err := id.ParseExperimentID(expID.String()); err != nil {
			return err
		}
		if _, err := id.ParseVariantID(variantID.String()); err != nil {
			return err
		}
	}
	return nil
}

// ValidateContent checks the caller-supplied part of an event: its name and
// property count.
func ValidateContent(name string, props Properties) error {
	if name == "" || len(name) > MaxEventNameLength {
		return dErrors.New(dErrors.CodeInvalidInput, fmt.Sprintf("event name must be 1-%d characters", MaxEventNameLength))
	}
	if len(props) > MaxProperties {
		return dErrors.New(dErrors.CodeInvalidInput, fmt.Sprintf("at most %d properties per event", MaxProperties))
	}
	return nil
}
