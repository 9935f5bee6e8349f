package poller

import "errors"

var (
	// ErrInvalidArgument is returned by Start when there is nothing to poll
	// or the interval is not positive. No session is created.
	ErrInvalidArgument = errors.New("poller: invalid argument")

	// ErrFetchFailed wraps a single failed poll. It is reported through
	// Callbacks.OnError and never ends the session.
	ErrFetchFailed = errors.New("poller: fetch failed")
)
