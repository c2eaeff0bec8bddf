package fetch

import "errors"

var (
	// ErrTransport is returned when every attempt to reach a URL failed at
	// the transport level (DNS, connection, TLS, timeout).
	ErrTransport = errors.New("transport error")

	// ErrCacheIO is returned when a cache file cannot be read or written.
	ErrCacheIO = errors.New("cache I/O error")

	// ErrDecode is returned when a response body cannot be read or decoded
	// to UTF-8 text. It is never retried.
	ErrDecode = errors.New("failed to decode response body")
)
