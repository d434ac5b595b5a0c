package statestore

// Selector chooses which updates a listener observes.
//
// A Selector is one of two variants:
//
//   - keyed, built with [Key] or [All]: the listener fires when that field
//     changes, or on every accepted update for [All]
//   - predicate, built with [Match]: the listener fires at most once per
//     update when the predicate accepts any changed field
//
// The set of variants is closed; a nil Selector is treated as [All].
type Selector[K ~string] interface {
	selector()
}

// slot is the subscription key of a keyed registration. The all flag keeps
// the ALL sentinel distinct from every field key, including "".
type slot[K ~string] struct {
	key K
	all bool
}

type keySelector[K ~string] struct {
	slot slot[K]
}

func (keySelector[K]) selector() {}

type matchSelector[K ~string] struct {
	match func(K) bool
}

func (matchSelector[K]) selector() {}

// Key selects updates that change the given field.
func Key[K ~string](key K) Selector[K] {
	return keySelector[K]{slot: slot[K]{key: key}}
}

// All selects every accepted update, whether or not any field changed.
func All[K ~string]() Selector[K] {
	return keySelector[K]{slot: slot[K]{all: true}}
}

// Match selects updates that change at least one field for which match
// returns true. The predicate is evaluated once per changed field and must
// not block.
func Match[K ~string](match func(key K) bool) Selector[K] {
	return matchSelector[K]{match: match}
}

// Keys selects updates that change any of the given fields. It is a
// convenience over [Match].
func Keys[K ~string](keys ...K) Selector[K] {
	set := make(map[K]struct{}, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}
	return Match(func(key K) bool {
		_, ok := set[key]
		return ok
	})
}
