// Package merge provides the structural merge and comparison helpers used by
// the store.
//
// The main components are:
//
//   - [Deep]: recursive merge of a partial map over a base map
//   - [Shallow]: one-level overlay of a partial map over a base map
//   - [Copy]: recursive copy of a map and everything reachable from it
//   - [Same]: shallow equality used for change detection
//
// None of the helpers mutate their inputs. Maps returned by [Deep] and [Copy]
// share no mutable values with their arguments.
package merge
