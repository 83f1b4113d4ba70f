// Package activation delivers finalized assignments to the presentation layer.
//
// Each Activation fires at most once per Dispatcher per experiment. A Dispatcher
// lives as long as one page load (one client), so a reload gets a fresh one.
package activation

import (
	"sync"

	"blaze/internal/experiment/models"
	id "blaze/pkg/domain"
)

// Activation is what a presentation layer needs to apply a variant.
type Activation struct {
	ExperimentID  id.ExperimentID `json:"experimentId"`
	VariantID     id.VariantID    `json:"variantId"`
	VariantConfig map[string]any  `json:"variantConfig,omitempty"`
}

// Applicator is the presentation-side collaborator.
type Applicator interface {
	Apply(Activation)
}

// ApplicatorFunc adapts a function to Applicator.
type ApplicatorFunc func(Activation)

func (f ApplicatorFunc) Apply(a Activation) { f(a) }

// Dispatcher fans activations out to applicators and channel subscribers.
type Dispatcher struct {
	mu         sync.Mutex
	fired      map[id.ExperimentID]struct{}
	applicator []Applicator
	subs       map[chan Activation]struct{}
}

func NewDispatcher(applicators ...Applicator) *Dispatcher {
	return &Dispatcher{
		fired:      make(map[id.ExperimentID]struct{}),
		applicator: applicators,
		subs:       make(map[chan Activation]struct{}),
	}
}

// Dispatch fires the activation for a finalized assignment. It returns false
// when the experiment already fired on this dispatcher.
func (d *Dispatcher) Dispatch(exp models.Experiment, a models.Assignment) bool {
	act := Activation{ExperimentID: a.ExperimentID, VariantID: a.VariantID}
	if v, ok := exp.Variant(a.VariantID); ok {
		act.VariantConfig = models.CloneConfig(v.Config)
	}

	d.mu.Lock()
	if _, done := d.fired[a.ExperimentID]; done {
		d.mu.Unlock()
		return false
	}
	d.fired[a.ExperimentID] = struct{}{}
	applicators := d.applicator
	for ch := range d.subs {
		select {
		case ch <- act:
		default:
			// subscriber is behind; drop to avoid blocking assignment
		}
	}
	d.mu.Unlock()

	for _, ap := range applicators {
		ap.Apply(act)
	}
	return true
}

// Subscribe returns a buffered channel that receives future activations.
func (d *Dispatcher) Subscribe() chan Activation {
	ch := make(chan Activation, 16)
	d.mu.Lock()
	d.subs[ch] = struct{}{}
	d.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber and closes its channel. Channels that are
// not subscribed are left alone.
func (d *Dispatcher) Unsubscribe(ch chan Activation) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.subs[ch]; !ok {
		return
	}
	delete(d.subs, ch)
	close(ch)
}

// Fired reports whether the experiment's activation has fired.
func (d *Dispatcher) Fired(expID id.ExperimentID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.fired[expID]
	return ok
}
