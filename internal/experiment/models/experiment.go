package models

import (
	id "blaze/pkg/domain"
)

// Status gates whether an experiment is evaluated at all.
type Status string

const (
	StatusActive Status = "active"
	StatusPaused Status = "paused"
)

// Experiment is a split-test configuration. Variants are ordered; their order
// defines the cumulative weight walk.
type Experiment struct {
	ID                id.ExperimentID    `json:"id" yaml:"id"`
	Name              string             `json:"name,omitempty" yaml:"name"`
	Status            Status             `json:"status" yaml:"status"`
	TrafficAllocation float64            `json:"trafficAllocation" yaml:"traffic_allocation"`
	Variants          []Variant          `json:"variants" yaml:"variants"`
	Metrics           []MetricDefinition `json:"metrics,omitempty" yaml:"metrics"`
}

// Variant is one treatment arm. Config is opaque to the core and only handed to
// presentation-layer subscribers.
type Variant struct {
	ID     id.VariantID   `json:"id" yaml:"id"`
	Name   string         `json:"name,omitempty" yaml:"name"`
	Weight float64        `json:"weight" yaml:"weight"`
	Config map[string]any `json:"config,omitempty" yaml:"config"`
}

// MetricDefinition declares a named ratio: count(Numerator) / count(Denominator).
type MetricDefinition struct {
	Name        string `json:"name" yaml:"name"`
	Numerator   string `json:"numerator" yaml:"numerator"`
	Denominator string `json:"denominator" yaml:"denominator"`
}

// IsActive reports whether the experiment should be evaluated.
func (e *Experiment) IsActive() bool {
	return e.Status == StatusActive
}

// Variant looks up a variant by id.
func (e *Experiment) Variant(variantID id.VariantID) (*Variant, bool) {
	for i := range e.Variants {
		if e.Variants[i].ID == variantID {
			return &e.Variants[i], true
		}
	}
	return nil, false
}

// Clone returns a deep copy, including each variant's Config.
func (e Experiment) Clone() Experiment {
	variants := make([]Variant, len(e.Variants))
	for i, v := range e.Variants {
		v.Config = CloneConfig(v.Config)
		variants[i] = v
	}
	e.Variants = variants
	e.Metrics = append([]MetricDefinition(nil), e.Metrics...)
	return e
}

// CloneConfig deep-copies a variant config decoded from YAML or JSON. Nested
// maps and slices are copied; scalars are shared.
func CloneConfig(cfg map[string]any) map[string]any {
	if cfg == nil {
		return nil
	}
	out := make(map[string]any, len(cfg))
	for k, v := range cfg {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return CloneConfig(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}
