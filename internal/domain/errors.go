package domain

import "errors"

var (
	ErrValidation      = errors.New("validation error")
	ErrNotFound        = errors.New("not found")
	ErrDuplicateRecord = errors.New("duplicate record")
	ErrTrialsExhausted = errors.New("free trials exhausted")
	ErrSettingsMissing = errors.New("billing settings are not configured")
)
