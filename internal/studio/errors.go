package studio

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failed persistence or conversion request.
type ErrorKind int

const (
	// KindClientError marks a request the server rejected (4xx or a
	// malformed response). Retrying the same payload will not help.
	KindClientError ErrorKind = iota + 1
	// KindTransient marks a network-level or server-side failure (5xx).
	KindTransient
)

// RequestError wraps a failed API request with its classification.
type RequestError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// IsClientError reports whether err is a client-classified request failure.
func IsClientError(err error) bool {
	var re *RequestError
	return errors.As(err, &re) && re.Kind == KindClientError
}

// IsTransient reports whether err is a transient request failure.
func IsTransient(err error) bool {
	var re *RequestError
	return errors.As(err, &re) && re.Kind == KindTransient
}

var (
	// ErrEmptySource is returned by Submit when the source URL is blank.
	ErrEmptySource = errors.New("source url is empty")

	// ErrConversionFailed marks a failed or malformed conversion response.
	// The session enters PhaseFailed and the input is re-enabled.
	ErrConversionFailed = errors.New("stream conversion failed")

	// ErrPlaybackFailed marks a decoder that could not play the manifest.
	// Distinct from ErrConversionFailed: the conversion itself succeeded.
	ErrPlaybackFailed = errors.New("playback failed")
)
