// Package registry holds ordered listener registrations.
//
// A registration is identified by its pointer, so registering the same
// callback twice yields two independent entries and removing one leaves the
// other in place. Snapshots are copies: callers iterate them while the
// registry itself keeps changing.
//
// Registries are not synchronized; the owner serializes access.
package registry

import "slices"

// List is an ordered sequence of registrations.
type List[T any] struct {
	items []*T
}

// Add appends item. Insertion order is iteration order.
func (l *List[T]) Add(item *T) {
	l.items = append(l.items, item)
}

// Remove deletes the first occurrence of item and reports whether it was
// present. Removing an unknown item is a no-op.
func (l *List[T]) Remove(item *T) bool {
	i := slices.Index(l.items, item)
	if i < 0 {
		return false
	}
	l.items = slices.Delete(l.items, i, i+1)
	return true
}

// Contains reports whether item is registered.
func (l *List[T]) Contains(item *T) bool {
	return slices.Contains(l.items, item)
}

// Snapshot returns a copy of the current registrations, or nil when empty.
func (l *List[T]) Snapshot() []*T {
	if len(l.items) == 0 {
		return nil
	}
	return slices.Clone(l.items)
}

// Len returns the number of registrations.
func (l *List[T]) Len() int {
	return len(l.items)
}

// Lists groups ordered registrations by key. Keys with no registrations are
// dropped, so [Lists.Has] reports whether anything is listening on a key.
type Lists[S comparable, T any] struct {
	lists map[S]*List[T]
}

// NewLists creates an empty [Lists].
func NewLists[S comparable, T any]() *Lists[S, T] {
	return &Lists[S, T]{lists: make(map[S]*List[T])}
}

// Add appends item to the list for key, creating the list if needed.
func (g *Lists[S, T]) Add(key S, item *T) {
	l, ok := g.lists[key]
	if !ok {
		l = &List[T]{}
		g.lists[key] = l
	}
	l.Add(item)
}

// Remove deletes item from the list for key and reports whether it was
// present.
func (g *Lists[S, T]) Remove(key S, item *T) bool {
	l, ok := g.lists[key]
	if !ok {
		return false
	}
	removed := l.Remove(item)
	if l.Len() == 0 {
		delete(g.lists, key)
	}
	return removed
}

// Contains reports whether item is registered under key.
func (g *Lists[S, T]) Contains(key S, item *T) bool {
	l, ok := g.lists[key]
	return ok && l.Contains(item)
}

// Has reports whether key has at least one registration.
func (g *Lists[S, T]) Has(key S) bool {
	_, ok := g.lists[key]
	return ok
}

// Snapshot returns a copy of the registrations under key.
func (g *Lists[S, T]) Snapshot(key S) []*T {
	l, ok := g.lists[key]
	if !ok {
		return nil
	}
	return l.Snapshot()
}

// Len returns the number of registrations across all keys.
func (g *Lists[S, T]) Len() int {
	n := 0
	for _, l := range g.lists {
		n += l.Len()
	}
	return n
}
