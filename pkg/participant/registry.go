package participant

import (
	"fmt"
	"sync"

	"github.com/0x6flab/namegenerator"
	pkgerrors "github.com/absmach/fedasync/pkg/errors"
	"github.com/absmach/fedasync/pkg/fl"
)

// Registry holds the fixed participant population of one run. The scheduler is
// the only writer; readers get copies.
type Registry struct {
	mu      sync.RWMutex
	order   []string
	entries map[string]*entry
}

// NewRegistry creates n idle participants with ids client-1 … client-n.
func NewRegistry(n int) *Registry {
	names := namegenerator.NewGenerator()
	r := &Registry{
		order:   make([]string, 0, n),
		entries: make(map[string]*entry, n),
	}
	for i := 1; i <= n; i++ {
		id := fmt.Sprintf("client-%d", i)
		r.order = append(r.order, id)
		r.entries[id] = &entry{Participant: Participant{ID: id, Name: names.Generate()}}
	}

	return r
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.order)
}

// ListIdle returns the non-busy participants in registration order.
func (r *Registry) ListIdle() []Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()

	idle := make([]Participant, 0, len(r.order))
	for _, id := range r.order {
		if e := r.entries[id]; !e.Busy {
			idle = append(idle, e.snapshot())
		}
	}

	return idle
}

func (r *Registry) List() []Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := make([]Participant, 0, len(r.order))
	for _, id := range r.order {
		all = append(all, r.entries[id].snapshot())
	}

	return all
}

func (r *Registry) Get(id string) (Participant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, err := r.lookup(id)
	if err != nil {
		return Participant{}, err
	}

	return e.snapshot(), nil
}

func (r *Registry) MarkDispatched(id string, round int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, err := r.lookup(id)
	if err != nil {
		return err
	}
	if e.Busy {
		return fmt.Errorf("dispatch %s in round %d: %w", id, round, ErrBusy)
	}
	e.Busy = true
	e.DispatchRound = round
	e.SelectionCount++

	return nil
}

func (r *Registry) MarkAdmitted(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, err := r.lookup(id)
	if err != nil {
		return err
	}
	if !e.Busy {
		return fmt.Errorf("admit %s: %w", id, ErrIdle)
	}
	e.AdmissionCount++

	return nil
}

func (r *Registry) Release(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, err := r.lookup(id)
	if err != nil {
		return err
	}
	if !e.Busy {
		return fmt.Errorf("release %s: %w", id, ErrIdle)
	}
	e.Busy = false

	return nil
}

// SetLocalParams records the latest parameters a participant produced.
func (r *Registry) SetLocalParams(id string, params fl.Params) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, err := r.lookup(id)
	if err != nil {
		return err
	}
	e.params = params.Clone()

	return nil
}

// LocalParams returns a copy of the latest local parameters, nil if the
// participant has not reported any yet.
func (r *Registry) LocalParams(id string) (fl.Params, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, err := r.lookup(id)
	if err != nil {
		return nil, err
	}

	return e.params.Clone(), nil
}

// Summaries returns the selection and admission counters of every participant.
func (r *Registry) Summaries() []Participant {
	return r.List()
}

func (r *Registry) lookup(id string) (*entry, error) {
	e, ok := r.entries[id]
	if !ok {
		return nil, fmt.Errorf("participant %q: %w", id, pkgerrors.ErrNotFound)
	}

	return e, nil
}

func (e *entry) snapshot() Participant {
	p := e.Participant
	p.HasLocalParams = len(e.params) > 0

	return p
}
