package config

import "errors"

// Configuration errors.
// Every error returned by Parse and Validate wraps ErrInvalidConfig so callers
// can separate configuration problems from runtime failures with errors.Is.
// The more specific sentinels are wrapped alongside it.
var (
	// ErrInvalidConfig is the umbrella error for any configuration problem.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrConfigNotFound is returned when the document file does not exist.
	ErrConfigNotFound = errors.New("configuration file not found")

	// ErrNoURL is returned when neither url nor urls is set.
	ErrNoURL = errors.New("no URL specified: set config.url or config.urls")

	// ErrInvalidURL is returned when a URL is not absolute.
	ErrInvalidURL = errors.New("invalid URL: must be absolute with scheme and host")

	// ErrInvalidTimeout is returned when the timeout is negative.
	ErrInvalidTimeout = errors.New("invalid timeout: must be non-negative")

	// ErrInvalidRetries is returned when the retry count is negative.
	ErrInvalidRetries = errors.New("invalid retries: must be non-negative")

	// ErrInvalidDelay is returned when the delay is negative.
	ErrInvalidDelay = errors.New("invalid delay: must be non-negative")

	// ErrInvalidProxy is returned when the proxy is not a valid URL.
	ErrInvalidProxy = errors.New("invalid proxy URL")

	// ErrInvalidPagination is returned for inconsistent pagination settings,
	// for example an endPage before startPage.
	ErrInvalidPagination = errors.New("invalid pagination")

	// ErrInvalidField is returned for an empty field name or a field without
	// a selector.
	ErrInvalidField = errors.New("invalid field")
)
