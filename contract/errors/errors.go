package errors

// Error codes for the bus, store and consumer contracts. Keep stable; used across adapters and packages.
const (
	// connection
	ErrCodeNotConnected = "servicebus.not_connected"
	ErrCodeClosed       = "servicebus.closed"

	// handlers
	ErrCodeHandlerFailed  = "servicebus.handler_failed"
	ErrCodeHandlerTimeout = "servicebus.handler_timeout"

	// publishing and routing
	ErrCodePublishFailed       = "servicebus.publish_failed"
	ErrCodeSerializationFailed = "servicebus.serialization_failed"
	ErrCodeInvalidPattern      = "servicebus.invalid_pattern"
	ErrCodeInvalidConfig       = "servicebus.invalid_config"

	// persistence
	ErrCodeNotFound    = "store.not_found"
	ErrCodePersistence = "store.persistence_failed"

	// domain events
	ErrCodeUnknownEvent = "events.unknown_type"
	ErrCodeInvalidEvent = "events.invalid_payload"
	ErrCodeCascadeDepth = "consumer.cascade_depth_exceeded"
)

// Code returns an error value that carries only a code string.
// It implements error by returning the code string in Error().
func Code(code string) error { return codedError(code) }

type codedError string

func (e codedError) Error() string { return string(e) }

var (
	ErrNotConnected        = Code(ErrCodeNotConnected)
	ErrClosed              = Code(ErrCodeClosed)
	ErrHandlerFailed       = Code(ErrCodeHandlerFailed)
	ErrHandlerTimeout      = Code(ErrCodeHandlerTimeout)
	ErrPublishFailed       = Code(ErrCodePublishFailed)
	ErrSerializationFailed = Code(ErrCodeSerializationFailed)
	ErrInvalidPattern      = Code(ErrCodeInvalidPattern)
	ErrInvalidConfig       = Code(ErrCodeInvalidConfig)
	ErrNotFound            = Code(ErrCodeNotFound)
	ErrPersistence         = Code(ErrCodePersistence)
	ErrUnknownEvent        = Code(ErrCodeUnknownEvent)
	ErrInvalidEvent        = Code(ErrCodeInvalidEvent)
	ErrCascadeDepth        = Code(ErrCodeCascadeDepth)
)
