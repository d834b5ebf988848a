package comm

import "errors"

// Errors reported by endpoints. Returned errors wrap these and should be
// tested with errors.Is.
var (
	// ErrInvalidPeer means the peer rank cannot be addressed.
	ErrInvalidPeer = errors.New("invalid peer")

	// ErrInvalidTag means a negative tag other than AnyTag on a receive.
	ErrInvalidTag = errors.New("invalid tag")

	// ErrInvalidBuffer means the buffer does not hold whole elements of the
	// datatype.
	ErrInvalidBuffer = errors.New("invalid buffer")

	// ErrInvalidHandle means the request is nil, belongs to another
	// endpoint, or was already consumed.
	ErrInvalidHandle = errors.New("invalid request handle")

	// ErrTransport means the world failed while the request was in flight.
	ErrTransport = errors.New("transport failure")

	// ErrTruncate means the matched message did not fit the receive buffer.
	ErrTruncate = errors.New("message truncated")

	// ErrUnmatched means no matching operation was posted within the
	// world's match timeout.
	ErrUnmatched = errors.New("request not matched in time")

	// ErrNotInitialized means the world has not been initialized.
	ErrNotInitialized = errors.New("world not initialized")

	// ErrAlreadyInitialized means Init was called twice.
	ErrAlreadyInitialized = errors.New("world already initialized")

	// ErrFinalized means the world has been finalized.
	ErrFinalized = errors.New("world finalized")

	// ErrPendingRequests means Finalize found requests not yet consumed.
	ErrPendingRequests = errors.New("requests still pending")
)
