package feed

import "time"

// ChangeEvent describes one accepted state update.
//
// ChangeEvent is the wire representation used by the Server-Sent Events
// stream. It is decoupled from the store's generic types so the server can
// encode it directly.
type ChangeEvent struct {
	// StoreID identifies the store that produced the event.
	StoreID string `json:"store_id"`

	// Seq is the 1-based position of the event in the feed.
	Seq uint64 `json:"seq"`

	// Changed lists the top-level fields whose values differ from the
	// previous state, in ascending order. It is empty for updates that
	// changed nothing.
	Changed []string `json:"changed"`

	// State is the state after the update.
	State map[string]any `json:"state"`

	// At is when the event was published.
	At time.Time `json:"at"`
}

// Feed defines the interface for publishing and subscribing to change events.
//
// Feed implementations must be safe for concurrent access.
type Feed interface {
	// Publish assigns the next sequence number to ev and delivers it to all
	// subscribers. It never blocks.
	Publish(ev ChangeEvent) ChangeEvent

	// Subscribe returns a channel that receives events published from now on.
	// The returned channel has a buffer; slow consumers may miss events.
	// Caller must call Unsubscribe when done to prevent resource leaks.
	Subscribe() <-chan ChangeEvent

	// Unsubscribe removes a subscription and closes the channel.
	// Safe to call with a channel that was already unsubscribed.
	Unsubscribe(ch <-chan ChangeEvent)

	// Subscribers returns the number of active subscriptions.
	Subscribers() int

	// Dropped returns how many deliveries were skipped because a subscriber's
	// buffer was full.
	Dropped() uint64
}
