package statestore

import "errors"

var (
	// ErrNilListener is returned by [Store.Subscribe] when no listener is given.
	ErrNilListener = errors.New("listener cannot be nil")

	// ErrNilPredicate is returned by [Store.Subscribe] for a [Match] selector
	// built from a nil function.
	ErrNilPredicate = errors.New("predicate cannot be nil")

	// ErrNilLogger is returned by [WithLogger] when given a nil logger.
	ErrNilLogger = errors.New("logger cannot be nil")

	// ErrNilIDGenerator is returned by [WithIDGenerator] when given a nil function.
	ErrNilIDGenerator = errors.New("id generator cannot be nil")
)
