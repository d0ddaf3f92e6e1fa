package subscription

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hermod-gw/hermod/internal/event"
	"github.com/hermod-gw/hermod/internal/store"
)

// Registry is the in-memory source of truth for subscribers. Registration
// order is preserved for Matching. An optional store mirrors every mutation
// so registrations survive a restart; mirroring is best-effort and never
// fails the caller.
type Registry struct {
	mu      sync.RWMutex
	order   []string
	subs    map[string]*Subscriber
	persist store.Store
	logger  *slog.Logger
	now     func() time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		subs:   make(map[string]*Subscriber),
		logger: slog.Default(),
		now:    time.Now,
	}
}

// SetLogger replaces the registry logger.
func (r *Registry) SetLogger(l *slog.Logger) {
	if l != nil {
		r.logger = l
	}
}

// SetStore attaches a persistence backend and hydrates the registry from
// it. Records are restored in their original registration order.
func (r *Registry) SetStore(ctx context.Context, st store.Store) error {
	recs, err := st.List(ctx)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.persist = st
	for _, rec := range recs {
		if _, ok := r.subs[rec.ID]; ok {
			continue
		}
		sub := fromRecord(rec)
		r.subs[sub.ID] = sub
		r.order = append(r.order, sub.ID)
	}
	return nil
}

// Register validates and stores a new subscriber. All violations are
// reported together in a single ValidationError.
func (r *Registry) Register(req RegisterRequest) (Subscriber, error) {
	var violations []string
	violations = validateEndpointURL(req.EndpointURL, violations)
	violations = validateEvents(req.Events, violations)
	if len(violations) > 0 {
		return Subscriber{}, &ValidationError{Violations: violations}
	}

	sub := &Subscriber{
		ID:          newID(),
		EndpointURL: req.EndpointURL,
		Events:      append([]event.Kind(nil), req.Events...),
		Secret:      req.Secret,
		Active:      true,
		CreatedAt:   r.now().UTC(),
	}
	if sub.Secret == "" {
		sub.Secret = newSecret()
	}
	if req.Active != nil {
		sub.Active = *req.Active
	}

	r.mu.Lock()
	r.subs[sub.ID] = sub
	r.order = append(r.order, sub.ID)
	snap := *sub
	r.mu.Unlock()

	r.mirror(snap)
	return snap, nil
}

// Update applies a partial update. Validation rules match Register but are
// applied only to the fields present.
func (r *Registry) Update(id string, req UpdateRequest) (Subscriber, error) {
	var violations []string
	if req.EndpointURL != nil {
		violations = validateEndpointURL(*req.EndpointURL, violations)
	}
	if req.Events != nil {
		violations = validateEvents(req.Events, violations)
	}
	if len(violations) > 0 {
		return Subscriber{}, &ValidationError{Violations: violations}
	}

	r.mu.Lock()
	sub, ok := r.subs[id]
	if !ok {
		r.mu.Unlock()
		return Subscriber{}, &NotFoundError{ID: id}
	}
	if req.EndpointURL != nil {
		sub.EndpointURL = *req.EndpointURL
	}
	if req.Events != nil {
		sub.Events = append([]event.Kind(nil), req.Events...)
	}
	if req.Secret != nil {
		sub.Secret = *req.Secret
	}
	if req.Active != nil {
		sub.Active = *req.Active
	}
	snap := *sub
	r.mu.Unlock()

	r.mirror(snap)
	return snap, nil
}

// Remove deletes a subscriber. Unknown ids report NotFoundError.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	if _, ok := r.subs[id]; !ok {
		r.mu.Unlock()
		return &NotFoundError{ID: id}
	}
	delete(r.subs, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	persist := r.persist
	r.mu.Unlock()

	if persist != nil {
		if err := persist.Delete(context.Background(), id); err != nil {
			r.logger.Warn("failed to delete subscriber from store", "id", id, "error", err)
		}
	}
	return nil
}

// Get returns a copy of the subscriber.
func (r *Registry) Get(id string) (Subscriber, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sub, ok := r.subs[id]
	if !ok {
		return Subscriber{}, &NotFoundError{ID: id}
	}
	return *sub, nil
}

// List returns copies of all subscribers in registration order.
func (r *Registry) List() []Subscriber {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Subscriber, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.subs[id])
	}
	return out
}

// Matching returns the active subscribers whose event set contains kind,
// in registration order.
func (r *Registry) Matching(kind event.Kind) []Subscriber {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Subscriber
	for _, id := range r.order {
		sub := r.subs[id]
		if sub.Active && sub.Subscribes(kind) {
			out = append(out, *sub)
		}
	}
	return out
}

// RecordSuccess bumps the success counter and delivery timestamp after a
// 2xx response. Called only by the delivery pipeline.
func (r *Registry) RecordSuccess(id string, at time.Time) {
	r.mu.Lock()
	sub, ok := r.subs[id]
	if !ok {
		r.mu.Unlock()
		return
	}
	sub.SuccessCount++
	t := at.UTC()
	sub.LastDeliveredAt = &t
	snap := *sub
	r.mu.Unlock()

	r.mirror(snap)
}

// RecordFailure bumps the failure counter after a task is dropped
// permanently. Called only by the delivery pipeline.
func (r *Registry) RecordFailure(id string) {
	r.mu.Lock()
	sub, ok := r.subs[id]
	if !ok {
		r.mu.Unlock()
		return
	}
	sub.FailureCount++
	snap := *sub
	r.mu.Unlock()

	r.mirror(snap)
}

func (r *Registry) mirror(sub Subscriber) {
	r.mu.RLock()
	persist := r.persist
	r.mu.RUnlock()
	if persist == nil {
		return
	}
	if err := persist.Save(context.Background(), toRecord(sub)); err != nil {
		r.logger.Warn("failed to persist subscriber", "id", sub.ID, "error", err)
	}
}

func toRecord(sub Subscriber) store.Record {
	events := make([]string, len(sub.Events))
	for i, k := range sub.Events {
		events[i] = string(k)
	}
	return store.Record{
		ID:              sub.ID,
		EndpointURL:     sub.EndpointURL,
		Events:          events,
		Secret:          sub.Secret,
		Active:          sub.Active,
		CreatedAt:       sub.CreatedAt,
		LastDeliveredAt: sub.LastDeliveredAt,
		SuccessCount:    sub.SuccessCount,
		FailureCount:    sub.FailureCount,
	}
}

func fromRecord(rec store.Record) *Subscriber {
	kinds := make([]event.Kind, 0, len(rec.Events))
	for _, e := range rec.Events {
		kinds = append(kinds, event.Kind(e))
	}
	return &Subscriber{
		ID:              rec.ID,
		EndpointURL:     rec.EndpointURL,
		Events:          kinds,
		Secret:          rec.Secret,
		Active:          rec.Active,
		CreatedAt:       rec.CreatedAt,
		LastDeliveredAt: rec.LastDeliveredAt,
		SuccessCount:    rec.SuccessCount,
		FailureCount:    rec.FailureCount,
	}
}
