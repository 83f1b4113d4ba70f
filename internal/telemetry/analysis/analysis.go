// Package analysis computes per-variant results for an experiment from a
// snapshot of recorded events. It is read-only and never mutates its input.
package analysis

import (
	"encoding/json"
	"math"
	"sort"

	expmodels "blaze/internal/experiment/models"
	"blaze/internal/telemetry/models"
	id "blaze/pkg/domain"
)

// Ratio is count(numerator events) / count(denominator events). When the
// denominator is zero the ratio is undefined: Value is NaN and it encodes as null.
type Ratio struct {
	Numerator   int     `json:"numerator"`
	Denominator int     `json:"denominator"`
	Value       float64 `json:"-"`
}

// Defined reports whether the ratio has a non-zero denominator.
func (r Ratio) Defined() bool {
	return r.Denominator > 0
}

func (r Ratio) MarshalJSON() ([]byte, error) {
	type wire struct {
		Numerator   int      `json:"numerator"`
		Denominator int      `json:"denominator"`
		Value       *float64 `json:"value"`
		Defined     bool     `json:"defined"`
	}
	w := wire{Numerator: r.Numerator, Denominator: r.Denominator, Defined: r.Defined()}
	if r.Defined() {
		v := r.Value
		w.Value = &v
	}
	return json.Marshal(w)
}

// VariantResult is the aggregate for one variant.
type VariantResult struct {
	VariantID  id.VariantID     `json:"variantId"`
	SampleSize int              `json:"sampleSize"`
	Events     map[string]int   `json:"events"`
	Metrics    map[string]Ratio `json:"metrics"`
}

// Result is the aggregate for one experiment, variants in declaration order.
type Result struct {
	ExperimentID id.ExperimentID `json:"experimentId"`
	TotalEvents  int             `json:"totalEvents"`
	Variants     []VariantResult `json:"variants"`
}

// Variant returns the result for a variant id.
func (r *Result) Variant(variantID id.VariantID) (VariantResult, bool) {
	for _, v := range r.Variants {
		if v.VariantID == variantID {
			return v, true
		}
	}
	return VariantResult{}, false
}

// Aggregate groups events tagged with exp by variant. SampleSize counts
// distinct visitors. Each declared metric becomes a Ratio per variant. Events
// tagged with a variant the experiment no longer declares are reported after
// the declared ones.
func Aggregate(exp expmodels.Experiment, events []models.Event) Result {
	type acc struct {
		visitors map[id.VisitorID]struct{}
		counts   map[string]int
	}
	byVariant := make(map[id.VariantID]*acc)
	order := make([]id.VariantID, 0, len(exp.Variants))
	for _, v := range exp.Variants {
		byVariant[v.ID] = &acc{visitors: map[id.VisitorID]struct{}{}, counts: map[string]int{}}
		order = append(order, v.ID)
	}

	var unknown []id.VariantID
	total := 0
	for i := range events {
		variantID, ok := events[i].VariantFor(exp.ID)
		if !ok {
			continue
		}
		total++
		a, ok := byVariant[variantID]
		if !ok {
			a = &acc{visitors: map[id.VisitorID]struct{}{}, counts: map[string]int{}}
			byVariant[variantID] = a
			unknown = append(unknown, variantID)
		}
		a.visitors[events[i].VisitorID] = struct{}{}
		a.counts[events[i].EventName]++
	}

	sort.Slice(unknown, func(i, j int) bool { return unknown[i] < unknown[j] })
	order = append(order, unknown...)

	result := Result{ExperimentID: exp.ID, TotalEvents: total, Variants: make([]VariantResult, 0, len(order))}
	for _, variantID := range order {
		a := byVariant[variantID]
		vr := VariantResult{
			VariantID:  variantID,
			SampleSize: len(a.visitors),
			Events:     a.counts,
			Metrics:    make(map[string]Ratio, len(exp.Metrics)),
		}
		for _, m := range exp.Metrics {
			vr.Metrics[m.Name] = NewRatio(a.counts[m.Numerator], a.counts[m.Denominator])
		}
		result.Variants = append(result.Variants, vr)
	}
	return result
}

// NewRatio builds a Ratio, NaN when den is zero.
func NewRatio(num, den int) Ratio {
	r := Ratio{Numerator: num, Denominator: den, Value: math.NaN()}
	if den > 0 {
		r.Value = float64(num) / float64(den)
	}
	return r
}
