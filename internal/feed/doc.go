// Package feed fans store change events out to asynchronous consumers.
//
// Store listeners run synchronously inside SetState; HTTP clients do not.
// This package bridges the two: a listener publishes a [ChangeEvent] and
// every subscriber receives it on its own buffered channel.
//
// The main components are:
//
//   - [Feed]: Interface defining publish and subscription operations
//   - [MemoryFeed]: In-memory implementation of Feed
//   - [ChangeEvent]: One accepted state update, ready for JSON encoding
//
// Sends are non-blocking: a subscriber whose buffer is full misses the
// event rather than stalling the store. Dropped events are counted.
package feed
