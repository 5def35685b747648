package repository

import "errors"

// Sentinel kinds for repository errors.
var (
	ErrNotFound     = errors.New("run not found")
	ErrDuplicateRun = errors.New("run already stored")
	ErrInvalidLimit = errors.New("invalid run limit")
	ErrUnknownKind  = errors.New("unknown store kind")
)
