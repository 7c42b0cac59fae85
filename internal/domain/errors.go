package domain

import "errors"

var (
	ErrNotFound       = errors.New("not found")
	ErrCorruptedStore = errors.New("corrupted store document")
)
