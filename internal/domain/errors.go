package domain

import "errors"

// RetriableError defines an interface for errors that can be retried
type RetriableError interface {
	error
	IsRetriable() bool
}

// IsRetriable checks if an error is retriable
func IsRetriable(err error) bool {
	var re RetriableError
	if errors.As(err, &re) {
		return re.IsRetriable()
	}
	return false
}

// NetworkError represents a network-related error that may be retriable
type NetworkError struct {
	Op        string // Operation that failed (e.g., "fetch", "dial", "push")
	Err       error  // Underlying error
	Retriable bool   // Whether this error is retriable
}

func (e *NetworkError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *NetworkError) IsRetriable() bool {
	return e.Retriable
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// NewNetworkError creates a new retriable network error
func NewNetworkError(op string, err error) *NetworkError {
	return &NetworkError{Op: op, Err: err, Retriable: true}
}

// NewFatalNetworkError creates a non-retriable network error
func NewFatalNetworkError(op string, err error) *NetworkError {
	return &NetworkError{Op: op, Err: err, Retriable: false}
}

// ConfigError represents a configuration error (never retriable)
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return "config error [" + e.Field + "]: " + e.Err.Error()
}

func (e *ConfigError) IsRetriable() bool {
	return false
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

var (
	// ErrFeedUnavailable is returned when the upstream feed yields no data
	// this cycle. The cycle is skipped, not failed.
	ErrFeedUnavailable = errors.New("upstream feed unavailable")

	// ErrEmptyFeed is returned when the upstream responds but with zero
	// usable instruments.
	ErrEmptyFeed = errors.New("upstream feed returned no instruments")

	// ErrSnapshotNotFound is returned when a durable snapshot has never
	// been written.
	ErrSnapshotNotFound = errors.New("snapshot not found")

	// ErrConnectionFailed is returned when the websocket connection fails.
	// It's usually retriable.
	ErrConnectionFailed = errors.New("connection failed")
)
