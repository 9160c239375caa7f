package session

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidFormat    = errors.New("contact number has invalid format")
	ErrChannelRejected  = errors.New("channel rejected the contact")
	ErrNoSendAffordance = errors.New("send control did not appear")
	ErrNoCapacity       = errors.New("no channel session available")
	ErrClosed           = errors.New("session manager is closed")
)

// DispatchError is a terminal dispatch failure. Cause is the error of the
// last attempt; First keeps the first attempt's error when a replay ran.
type DispatchError struct {
	Contact  string
	Attempts int
	First    error
	Cause    error
}

func (e *DispatchError) Error() string {
	if e == nil {
		return "<nil>"
	}

	parts := make([]string, 0, 4)
	parts = append(parts, "dispatch failed")

	if e.Attempts > 0 {
		parts = append(parts, fmt.Sprintf("attempts=%d", e.Attempts))
	}
	if e.First != nil {
		parts = append(parts, "first: "+e.First.Error())
	}
	if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}

	return strings.Join(parts, ": ")
}

func (e *DispatchError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}
