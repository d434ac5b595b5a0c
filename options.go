package statestore

import (
	"log/slog"

	"github.com/jpalmerr/statestore/internal/id"
)

// storeConfig holds mutable settings during Store construction.
type storeConfig struct {
	logger *slog.Logger
	newID  func() string
}

// Option is a function that configures a [Store] during construction.
//
// Option implements the functional options pattern, allowing optional
// configuration to be passed to [New] in a type-safe, extensible way.
// Options return an error if validation fails.
//
// Built-in options: [WithLogger], [WithIDGenerator], [WithTimestampIDs].
type Option func(*storeConfig) error

// WithLogger sets a custom [slog.Logger] for the store.
//
// The store logs accepted updates at Debug level and recovered listener
// panics at Error level. If not specified, [slog.Default] is used.
//
// Example:
//
//	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
//	s, err := statestore.New[string](nil, nil, statestore.WithLogger(logger))
//
// Returns an error if the logger is nil.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *storeConfig) error {
		if logger == nil {
			return ErrNilLogger
		}
		cfg.logger = logger
		return nil
	}
}

// WithIDGenerator replaces the identifier generator.
//
// The generator is called exactly once, during [New]. It should return
// strings that are unique within the process with overwhelming probability.
// By default a random UUID is used.
//
// Returns an error if gen is nil.
func WithIDGenerator(gen func() string) Option {
	return func(cfg *storeConfig) error {
		if gen == nil {
			return ErrNilIDGenerator
		}
		cfg.newID = gen
		return nil
	}
}

// WithTimestampIDs makes the store identifier the creation time in Unix
// milliseconds followed by a random four-digit number.
func WithTimestampIDs() Option {
	return WithIDGenerator(id.Timestamped)
}
