package statestore

// Subscription is the handle for one registration made by
// [Store.Subscribe].
type Subscription[K ~string] struct {
	store     *Store[K]
	entry     *entry[K]
	slot      slot[K]
	predicate bool
}

// Unsubscribe removes the registration. Other registrations, including ones
// of the same listener under the same selector, are unaffected.
//
// Calling Unsubscribe more than once is a no-op, as is calling it on a nil
// Subscription. It may be called from inside a listener; the update being
// dispatched still reaches the listener, later ones do not.
func (sub *Subscription[K]) Unsubscribe() {
	if sub == nil || sub.store == nil {
		return
	}

	s := sub.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if sub.predicate {
		s.predicates.Remove(sub.entry)
		return
	}
	s.keyed.Remove(sub.slot, sub.entry)
}

// Active reports whether the registration is still in place.
func (sub *Subscription[K]) Active() bool {
	if sub == nil || sub.store == nil {
		return false
	}

	s := sub.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if sub.predicate {
		return s.predicates.Contains(sub.entry)
	}
	return s.keyed.Contains(sub.slot, sub.entry)
}
