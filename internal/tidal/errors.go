package tidal

import "errors"

var (
	// ErrNotFound indicates the catalog has no object with the given id.
	ErrNotFound = errors.New("not found")

	// ErrRemoteRejected indicates the remote service answered with an error
	// payload or a non-success HTTP status.
	ErrRemoteRejected = errors.New("remote rejected request")

	// ErrStaleQueue indicates a queue mutation was rejected because its
	// version token no longer matches. The caller must refetch the queue
	// before retrying.
	ErrStaleQueue = errors.New("stale queue version token")
)
