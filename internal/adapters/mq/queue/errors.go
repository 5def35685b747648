package queue

import "errors"

// ErrClosed is returned when waiting on a queue that has been closed.
var ErrClosed = errors.New("queue closed")
