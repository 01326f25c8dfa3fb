// Package schedule owns the static job catalog and the poll loop that fires
// jobs on their fixed intervals.
package schedule

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/goliatone/go-tokengate/core"
)

// Registry is the fixed set of named jobs. It is assembled at process start
// and never changes at runtime.
type Registry struct {
	specs map[string]core.JobSpec
	order []string
}

func NewRegistry(specs ...core.JobSpec) (*Registry, error) {
	registry := &Registry{specs: make(map[string]core.JobSpec, len(specs))}
	for _, spec := range specs {
		if err := registry.add(spec); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

func (r *Registry) add(spec core.JobSpec) error {
	if err := spec.Validate(); err != nil {
		return err
	}
	name := strings.TrimSpace(spec.Name)
	if _, exists := r.specs[name]; exists {
		return fmt.Errorf("schedule: job already registered: %s", name)
	}
	spec.Name = name
	r.specs[name] = spec
	r.order = append(r.order, name)
	return nil
}

func (r *Registry) Get(name string) (core.JobSpec, bool) {
	if r == nil {
		return core.JobSpec{}, false
	}
	spec, ok := r.specs[strings.TrimSpace(name)]
	return spec, ok
}

func (r *Registry) Specs() []core.JobSpec {
	if r == nil {
		return nil
	}
	specs := make([]core.JobSpec, 0, len(r.order))
	for _, name := range r.order {
		specs = append(specs, r.specs[name])
	}
	return specs
}

func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	names := append([]string(nil), r.order...)
	sort.Strings(names)
	return names
}

func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.specs)
}

// DefaultRegistry is the production sync-job catalog. Intervals are staggered
// so the heavyweight jobs do not pile onto the same tick.
func DefaultRegistry() (*Registry, error) {
	return NewRegistry(
		core.JobSpec{Name: "sync-analytics", Interval: 24 * time.Hour},
		core.JobSpec{Name: "sync-api-tokens", Interval: 23 * time.Hour},
		core.JobSpec{Name: "sync-applications", Interval: 6 * time.Hour},
		core.JobSpec{Name: "sync-asset-inventory", Interval: 2 * time.Hour},
		core.JobSpec{Name: "sync-companies", Interval: 12 * time.Hour},
		core.JobSpec{Name: "sync-configs", Interval: 4 * time.Hour},
		core.JobSpec{Name: "sync-finance", Interval: 6 * time.Hour},
		core.JobSpec{Name: "sync-functions", Interval: 12 * time.Hour},
		core.JobSpec{Name: "sync-huddles", Interval: time.Hour},
		core.JobSpec{Name: "sync-interviews", Interval: 4 * time.Hour},
		core.JobSpec{Name: "sync-journal-clubs", Interval: 12 * time.Hour},
		core.JobSpec{Name: "sync-mailing-lists", Interval: 20 * time.Hour},
		core.JobSpec{Name: "sync-other", Interval: 18 * time.Hour},
		core.JobSpec{Name: "sync-recorded-meetings", Interval: 2 * time.Hour},
		core.JobSpec{Name: "sync-repos", Interval: 16 * time.Hour},
		core.JobSpec{Name: "sync-rfds", Interval: 14 * time.Hour},
		core.JobSpec{Name: "sync-shipments", Interval: 2 * time.Hour},
		core.JobSpec{Name: "sync-shorturls", Interval: 3 * time.Hour},
		core.JobSpec{Name: "sync-swag-inventory", Interval: 9 * time.Hour},
		core.JobSpec{Name: "sync-travel", Interval: 5 * time.Hour},
	)
}
