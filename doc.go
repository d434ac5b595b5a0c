// Package statestore provides a small, typed, in-memory observable store.
//
// A [Store] holds two values: a state, which is observed, and a data payload,
// which is not. Partial updates are deep-merged into the state, and only the
// listeners interested in the fields that actually changed are notified.
//
// # Quick Start
//
//	s, _ := statestore.New(statestore.State[string]{"count": 0, "name": "a"}, nil)
//
//	// fires when "count" changes
//	s.Subscribe(func(newState, oldState statestore.State[string]) {
//	    fmt.Println("count:", oldState["count"], "->", newState["count"])
//	}, statestore.Key("count"))
//
//	// fires on every accepted update
//	s.Subscribe(func(newState, _ statestore.State[string]) {
//	    fmt.Println("state:", newState)
//	}, nil)
//
//	s.SetState(statestore.State[string]{"count": 1})
//
// # Selectors
//
// The second argument to [Store.Subscribe] is a [Selector]:
//
//   - [Key]: a single field
//   - [All] (or nil): every accepted update
//   - [Match]: a predicate over field names; the listener fires at most once
//     per update however many changed fields it accepts
//   - [Keys]: shorthand for a [Match] over a fixed set of fields
//
// Typed field names work naturally:
//
//	type Field string
//
//	const (
//	    Count Field = "count"
//	    Name  Field = "name"
//	)
//
//	s, _ := statestore.New(statestore.State[Field]{Count: 0}, nil)
//	s.Subscribe(onCount, statestore.Key(Count))
//
// # Notification order
//
// For one [Store.SetState] call, key listeners run first (per changed field,
// in ascending field order), then [All] listeners, then predicate listeners.
// See [Store.SetState] for the exact rules, including the fact that [All]
// listeners fire even when no field changed.
//
// # Architecture
//
// The store is backed by several internal packages (under internal/):
//
//   - internal/merge: deep and shallow merge, change comparison
//   - internal/registry: ordered listener registrations with snapshots
//   - internal/id: store identifier generation
//   - internal/feed: buffered fan-out of change events to HTTP clients
//   - internal/server: HTTP inspection API with Server-Sent Events
//
// The config and script packages load declarative scripts (YAML or TOML)
// and replay them against a store; cmd/statestore exposes both on the
// command line and serves a store, with the inspector page from the
// dashboard package, over HTTP.
package statestore
