package syncqueue

import "errors"

var (
	ErrQueuePersistFailure = errors.New("syncqueue: failed to persist queue")
	ErrQueueLoadFailure    = errors.New("syncqueue: failed to load queue")
	ErrInvalidOperation    = errors.New("syncqueue: invalid operation")
	ErrHeadChanged         = errors.New("syncqueue: queue head changed during drain")
)
