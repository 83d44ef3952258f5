package feed

import (
	"errors"
	"fmt"

	"BlockPulse/internal/domain/models"
)

var (
	// ErrNetwork matches any NetworkError.
	ErrNetwork = errors.New("feed network error")
	// ErrDecode matches any DecodeError.
	ErrDecode = errors.New("feed decode error")
)

// NetworkError reports a transport failure or a non-2xx response.
type NetworkError struct {
	Source models.Source
	URL    string
	Status int
	Err    error
}

func (e *NetworkError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: fetch %s: status %d", e.Source, e.URL, e.Status)
	}
	return fmt.Sprintf("%s: fetch %s: %v", e.Source, e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

func (e *NetworkError) Is(target error) bool { return target == ErrNetwork }

// DecodeError reports a response body that did not yield a valid value.
type DecodeError struct {
	Source models.Source
	Path   string
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: decode %q: %s: %v", e.Source, e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: decode %q: %s", e.Source, e.Path, e.Reason)
}

func (e *DecodeError) Unwrap() error { return e.Err }

func (e *DecodeError) Is(target error) bool { return target == ErrDecode }
