// Package registry holds the canonical, read-only set of configured experiments.
// Definitions are validated when the registry is built, so a malformed experiment
// stops startup instead of surfacing during evaluation.
package registry

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"blaze/internal/experiment/models"
	id "blaze/pkg/domain"
	dErrors "blaze/pkg/domain-errors"
)

// Registry is immutable after construction and safe for concurrent reads.
type Registry struct {
	experiments []models.Experiment
	byID        map[id.ExperimentID]int
}

// file is the on-disk layout. YAML is a superset of JSON, so both load.
type file struct {
	Experiments []models.Experiment `yaml:"experiments"`
}

// New validates every experiment and builds a registry preserving input order.
func New(experiments []models.Experiment) (*Registry, error) {
	r := &Registry{
		experiments: make([]models.Experiment, 0, len(experiments)),
		byID:        make(map[id.ExperimentID]int, len(experiments)),
	}
	for _, exp := range experiments {
		if err := exp.Validate(); err != nil {
			return nil, err
		}
		if _, dup := r.byID[exp.ID]; dup {
			return nil, dErrors.New(dErrors.CodeInvalidConfig, fmt.Sprintf("experiment %q defined twice", exp.ID))
		}
		r.byID[exp.ID] = len(r.experiments)
		r.experiments = append(r.experiments, exp.Clone())
	}
	return r, nil
}

// Parse builds a registry from YAML or JSON bytes.
func Parse(data []byte) (*Registry, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidConfig, "parse experiments")
	}
	return New(f.Experiments)
}

// LoadFile reads and parses an experiments file.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidConfig, "read experiments file")
	}
	return Parse(data)
}

// ListActive returns copies of the active experiments in definition order.
func (r *Registry) ListActive() []models.Experiment {
	out := make([]models.Experiment, 0, len(r.experiments))
	for _, exp := range r.experiments {
		if exp.IsActive() {
			out = append(out, exp.Clone())
		}
	}
	return out
}

// All returns copies of every experiment in definition order.
func (r *Registry) All() []models.Experiment {
	out := make([]models.Experiment, 0, len(r.experiments))
	for _, exp := range r.experiments {
		out = append(out, exp.Clone())
	}
	return out
}

// Get returns a copy of one experiment.
func (r *Registry) Get(expID id.ExperimentID) (models.Experiment, bool) {
	i, ok := r.byID[expID]
	if !ok {
		return models.Experiment{}, false
	}
	return r.experiments[i].Clone(), true
}

// IDs returns the sorted experiment ids.
func (r *Registry) IDs() []id.ExperimentID {
	ids := make([]id.ExperimentID, 0, len(r.byID))
	for expID := range r.byID {
		ids = append(ids, expID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
