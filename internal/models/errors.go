package models

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrAtCapacity        = errors.New("staff member at capacity")
	ErrConflict          = errors.New("assignment state changed")
	ErrInvalidTransition = errors.New("complaint is closed")
)
