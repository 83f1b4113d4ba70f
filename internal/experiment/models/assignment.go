package models

import (
	"time"

	id "blaze/pkg/domain"
)

// Assignment is the immutable record of which variant a visitor received for an
// experiment. The JSON shape is the persisted exp_{experimentId} record.
type Assignment struct {
	ExperimentID id.ExperimentID `json:"experimentId"`
	VariantID    id.VariantID    `json:"variantId"`
	AssignedAt   time.Time       `json:"assignedAt"`
}

// Context maps experiment ids to the variant each active assignment selected.
// Events carry a copy taken at record time.
type Context map[id.ExperimentID]id.VariantID

// ContextOf snapshots a set of assignments.
func ContextOf(assignments []Assignment) Context {
	ctx := make(Context, len(assignments))
	for _, a := range assignments {
		ctx[a.ExperimentID] = a.VariantID
	}
	return ctx
}
