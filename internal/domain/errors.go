package domain

import "errors"

var (
	ErrNotFound       = errors.New("not found")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrInvalidInput   = errors.New("invalid input")
	ErrNotLoaded      = errors.New("reviews not loaded")
	ErrLoadFailed     = errors.New("primary review load failed")
	ErrMutationFailed = errors.New("approval mutation failed")
)
