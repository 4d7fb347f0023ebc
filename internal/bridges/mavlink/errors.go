package mavlink

import "errors"

// Domain errors for the MAVLink bridge package.
var (
	// ErrReceiveTimeout is returned by a Source when no record arrived
	// within the receive timeout. It is not a failure.
	ErrReceiveTimeout = errors.New("mavlink: receive timeout")

	// ErrSourceClosed is returned when the underlying transport has closed.
	ErrSourceClosed = errors.New("mavlink: source closed")

	// ErrDecodeFailed is returned when a frame cannot be decoded into a
	// record. It ends the current listen session.
	ErrDecodeFailed = errors.New("mavlink: decode failed")

	// ErrUnsupportedField is returned when a message field has a type the
	// decoder cannot represent.
	ErrUnsupportedField = errors.New("mavlink: unsupported field type")

	// ErrListenFailed is returned when the transport endpoint cannot be opened.
	ErrListenFailed = errors.New("mavlink: listen failed")

	// ErrInvalidSettings is returned when publish settings are out of range.
	ErrInvalidSettings = errors.New("mavlink: invalid publish settings")

	// ErrBrokerConnect is returned when a broker session cannot be established.
	ErrBrokerConnect = errors.New("mavlink: broker connect failed")
)
