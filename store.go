package statestore

import (
	"log/slog"
	"maps"
	"slices"
	"sync"

	"github.com/jpalmerr/statestore/internal/id"
	"github.com/jpalmerr/statestore/internal/merge"
	"github.com/jpalmerr/statestore/internal/registry"
)

// State is the observed value held by a [Store], keyed by field.
//
// Nested values are usually map[string]any and []any, as produced by
// encoding/json or YAML decoders. The store never mutates a State it has
// published, so values returned by [Store.State] or passed to listeners
// stay stable; callers must treat them as read-only.
type State[K ~string] map[K]any

// Data is the unobserved payload held alongside state.
type Data map[string]any

// Listener is called after an accepted update with the new state and the
// state it replaced. oldState is nil when the store had no state before the
// update.
type Listener[K ~string] func(newState, oldState State[K])

// entry is one registration. Its address is its identity.
type entry[K ~string] struct {
	listener Listener[K]
	match    func(K) bool
}

// Store is an in-memory observable container for a state value and a data
// value.
//
// [Store.SetState] deep-merges a partial update into state and notifies the
// listeners whose selector covers a changed field. [Store.SetData] overlays
// data one level deep and notifies nobody.
//
// Notification is synchronous: every listener has returned before SetState
// does. Listeners may call back into the store, including SetState,
// Subscribe and Unsubscribe. Each update is dispatched to the registrations
// that existed when its state was swapped in; registrations added or removed
// during dispatch only affect later updates.
//
// Store is safe for concurrent use. Its lock is never held while listeners
// run, so updates made concurrently from several goroutines may interleave
// their notifications.
type Store[K ~string] struct {
	id     string
	logger *slog.Logger

	mu         sync.Mutex
	state      State[K]
	data       Data
	keyed      *registry.Lists[slot[K], entry[K]]
	predicates registry.List[entry[K]]
}

// New creates a [Store] with optional initial state and data. Either may be
// nil, in which case [Store.State] or [Store.Data] returns nil until the
// first write.
//
// The initial values are copied; later changes to the arguments do not
// affect the store.
//
// Example:
//
//	s, err := statestore.New(statestore.State[string]{"count": 0}, nil)
//	if err != nil {
//	    return err
//	}
//	sub, _ := s.Subscribe(func(newState, oldState statestore.State[string]) {
//	    slog.Info("count changed", "count", newState["count"])
//	}, statestore.Key("count"))
//	defer sub.Unsubscribe()
//
//	s.SetState(statestore.State[string]{"count": 1})
//
// Returns an error if any option is invalid.
func New[K ~string](state State[K], data Data, opts ...Option) (*Store[K], error) {
	cfg := &storeConfig{
		newID: id.New,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	// default to slog.Default() if no logger provided
	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	var initialData Data
	if data != nil {
		initialData = maps.Clone(data)
	}

	return &Store[K]{
		id:     cfg.newID(),
		logger: logger,
		state:  merge.Copy(state),
		data:   initialData,
		keyed:  registry.NewLists[slot[K], entry[K]](),
	}, nil
}

// ID returns the identifier assigned when the store was created.
func (s *Store[K]) ID() string {
	return s.id
}

// State returns the current state, or nil if none has been set.
func (s *Store[K]) State() State[K] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Data returns the current data, or nil if none has been set.
func (s *Store[K]) Data() Data {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data
}

// SetData overlays the top-level entries of partial on the current data.
// Nested values are replaced, not merged. No listener is notified.
func (s *Store[K]) SetData(partial Data) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = merge.Shallow(s.data, partial)
}

// SetState merges partial into the state and notifies listeners.
//
// A nil or empty partial is ignored. Otherwise the new state is a deep merge
// of the current state and partial: nested maps merge key by key, slices are
// concatenated, other values in partial replace the current ones.
//
// A field counts as changed when the store had no state, when the field was
// absent, or when the current value differs from the value in partial (==
// for comparable values, identity for maps and slices). Changed fields are
// visited in ascending order. Listeners are then called with the new and the
// previous state:
//
//  1. for each changed field, the listeners registered with [Key] for that
//     field, in registration order
//  2. the listeners registered with [All], on every accepted update, even
//     when no field changed
//  3. the listeners registered with [Match] whose predicate accepted at least
//     one changed field, once each, in the order they first matched
//
// A panicking listener is logged and skipped; the remaining listeners still
// run.
func (s *Store[K]) SetState(partial State[K]) {
	if len(partial) == 0 {
		return
	}

	s.mu.Lock()
	oldState := s.state
	newState := merge.Deep(oldState, partial)
	s.state = newState
	changed := changedKeys(oldState, partial)
	n := s.snapshot(changed)
	s.mu.Unlock()

	s.logger.Debug("state updated",
		"store_id", s.id,
		"changed_keys", changed,
	)

	s.dispatch(n, newState, oldState)
}

// Subscribe registers listener for the updates chosen by sel. A nil sel
// selects every accepted update, like [All].
//
// Every call creates a new registration, even for a listener that is already
// subscribed; the returned [Subscription] removes exactly that registration.
//
// Returns [ErrNilListener] if listener is nil and [ErrNilPredicate] if sel
// was built by [Match] from a nil function.
func (s *Store[K]) Subscribe(listener Listener[K], sel Selector[K]) (*Subscription[K], error) {
	if listener == nil {
		return nil, ErrNilListener
	}

	e := &entry[K]{listener: listener}
	sub := &Subscription[K]{store: s, entry: e}

	switch sel := sel.(type) {
	case matchSelector[K]:
		if sel.match == nil {
			return nil, ErrNilPredicate
		}
		e.match = sel.match
		sub.predicate = true
	case keySelector[K]:
		sub.slot = sel.slot
	default:
		sub.slot = slot[K]{all: true}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if sub.predicate {
		s.predicates.Add(e)
	} else {
		s.keyed.Add(sub.slot, e)
	}
	return sub, nil
}

// ListenerCount returns the number of active registrations of any kind.
func (s *Store[K]) ListenerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.keyed.Len() + s.predicates.Len()
}

// notification is the set of registrations one update is dispatched to,
// captured while the lock is held.
type notification[K ~string] struct {
	keys       []K
	keyed      [][]*entry[K] // parallel to keys
	all        []*entry[K]
	predicates []*entry[K]
}

// snapshot must be called with s.mu held.
func (s *Store[K]) snapshot(changed []K) notification[K] {
	n := notification[K]{
		keys:  changed,
		keyed: make([][]*entry[K], len(changed)),
		all:   s.keyed.Snapshot(slot[K]{all: true}),
	}
	for i, k := range changed {
		n.keyed[i] = s.keyed.Snapshot(slot[K]{key: k})
	}
	if len(changed) > 0 {
		n.predicates = s.predicates.Snapshot()
	}
	return n
}

func (s *Store[K]) dispatch(n notification[K], newState, oldState State[K]) {
	var queued []*entry[K]

	for i, key := range n.keys {
		for _, e := range n.keyed[i] {
			s.call(e, newState, oldState)
		}
		for _, e := range n.predicates {
			if s.matches(e, key) && !slices.Contains(queued, e) {
				queued = append(queued, e)
			}
		}
	}

	for _, e := range n.all {
		s.call(e, newState, oldState)
	}

	for _, e := range queued {
		s.call(e, newState, oldState)
	}
}

// call invokes a listener with panic recovery.
// Panics are logged but do not propagate.
func (s *Store[K]) call(e *entry[K], newState, oldState State[K]) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("listener panicked",
				"panic", r,
				"store_id", s.id,
			)
		}
	}()
	e.listener(newState, oldState)
}

// matches evaluates a predicate with panic recovery. A panicking predicate
// does not match.
func (s *Store[K]) matches(e *entry[K], key K) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("predicate panicked",
				"panic", r,
				"store_id", s.id,
				"key", string(key),
			)
			ok = false
		}
	}()
	return e.match(key)
}

// changedKeys returns the keys of partial that differ from oldState, in
// ascending order.
func changedKeys[K ~string](oldState, partial State[K]) []K {
	keys := slices.Sorted(maps.Keys(partial))
	if oldState == nil {
		return keys
	}

	changed := keys[:0]
	for _, k := range keys {
		old, ok := oldState[k]
		if !ok || !merge.Same(old, partial[k]) {
			changed = append(changed, k)
		}
	}
	return changed
}
