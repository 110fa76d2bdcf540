package store

import "errors"

var (
	ErrNotFound         = errors.New("record not found")
	ErrAlreadyExists    = errors.New("record already exists")
	ErrStoreUnavailable = errors.New("store unavailable")
)
