package models

import (
	"fmt"
	"math"

	id "blaze/pkg/domain"
	dErrors "blaze/pkg/domain-errors"
)

// WeightEpsilon is the tolerance for variant weights summing to 1.
const WeightEpsilon = 1e-6

// Validate enforces the load-time invariants. Any violation is a configuration
// error: the registry refuses to start rather than evaluate a malformed experiment.
func (e *Experiment) Validate() error {
	if _, err := id.ParseExperimentID(e.ID.String()); err != nil {
		return configError(e.ID, "invalid id: %v", err)
	}
	switch e.Status {
	case StatusActive, StatusPaused:
	default:
		return configError(e.ID, "unknown status %q", e.Status)
	}
	if math.IsNaN(e.TrafficAllocation) || e.TrafficAllocation < 0 || e.TrafficAllocation > 1 {
		return configError(e.ID, "traffic allocation %v outside [0,1]", e.TrafficAllocation)
	}
	if len(e.Variants) == 0 {
		return configError(e.ID, "no variants")
	}

	seen := make(map[id.VariantID]struct{}, len(e.Variants))
	sum := 0.0
	for _, v := range e.Variants {
		if _, err := id.ParseVariantID(v.ID.String()); err != nil {
			return configError(e.ID, "variant: %v", err)
		}
		if _, dup := seen[v.ID]; dup {
			return configError(e.ID, "duplicate variant %q", v.ID)
		}
		seen[v.ID] = struct{}{}
		if math.IsNaN(v.Weight) || v.Weight <= 0 || v.Weight > 1 {
			return configError(e.ID, "variant %q weight %v outside (0,1]", v.ID, v.Weight)
		}
		sum += v.Weight
	}
	if math.Abs(sum-1) > WeightEpsilon {
		return configError(e.ID, "variant weights sum to %v, want 1", sum)
	}

	names := make(map[string]struct{}, len(e.Metrics))
	for _, m := range e.Metrics {
		if m.Name == "" || m.Numerator == "" || m.Denominator == "" {
			return configError(e.ID, "metric %q needs name, numerator and denominator", m.Name)
		}
		if _, dup := names[m.Name]; dup {
			return configError(e.ID, "duplicate metric %q", m.Name)
		}
		names[m.Name] = struct{}{}
	}
	return nil
}

func configError(expID id.ExperimentID, format string, args ...any) error {
	return dErrors.New(dErrors.CodeInvalidConfig, fmt.Sprintf("experiment %q: ", expID)+fmt.Sprintf(format, args...))
}
