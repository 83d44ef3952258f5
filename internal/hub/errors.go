package hub

import (
	"errors"
	"fmt"
)

// ErrClosed is returned by Accept after Close.
var ErrClosed = errors.New("hub closed")

// TransportError reports a failed write to one subscriber.
type TransportError struct {
	SubscriberID uint64
	Err          error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("subscriber %d: %v", e.SubscriberID, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
