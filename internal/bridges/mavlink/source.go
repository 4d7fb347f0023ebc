package mavlink

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/bluenviron/gomavlib/v3"
	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"

	"github.com/nerrad567/mavbridge/internal/telemetry"
)

// outSystemID is the system ID the bridge would use for outgoing frames.
// The bridge never sends, but gomavlib requires one. 255 is the value
// conventionally used by ground stations.
const outSystemID = 255

// Source yields decoded records from a MAVLink transport.
// This allows mocking the transport in tests.
type Source interface {
	// Next blocks until a record arrives, the timeout elapses
	// (ErrReceiveTimeout) or ctx is cancelled (ctx.Err()).
	// A frame that cannot be decoded yields an error wrapping ErrDecodeFailed.
	Next(ctx context.Context, timeout time.Duration) (telemetry.Record, error)

	// Close releases the transport endpoint. Safe to call more than once.
	Close() error
}

// SourceOpener opens a Source bound to address:port.
type SourceOpener func(address string, port int) (Source, error)

// OpenUDPSource is the default SourceOpener. It binds a UDP server
// endpoint on address:port and accepts frames from any peer.
func OpenUDPSource(address string, port int) (Source, error) {
	src, err := NewUDPSource(address, port)
	if err != nil {
		return nil, err
	}
	return src, nil
}

// UDPSource receives MAVLink v1/v2 frames over UDP using a gomavlib node
// with the common dialect.
type UDPSource struct {
	node      *gomavlib.Node
	closeOnce sync.Once
}

// NewUDPSource binds a UDP endpoint and starts receiving.
//
// Parameters:
//   - address: Local address to bind, e.g. "0.0.0.0"
//   - port: Local UDP port, e.g. 14550
//
// Returns:
//   - *UDPSource: Receiving source (call Close when done)
//   - error: If the endpoint cannot be bound
func NewUDPSource(address string, port int) (*UDPSource, error) {
	if port < 1 || port > 65535 {
		return nil, fmt.Errorf("invalid port %d", port)
	}

	node, err := gomavlib.NewNode(gomavlib.NodeConf{
		Endpoints: []gomavlib.EndpointConf{
			gomavlib.EndpointUDPServer{Address: net.JoinHostPort(address, strconv.Itoa(port))},
		},
		Dialect:          common.Dialect,
		OutVersion:       gomavlib.V2,
		OutSystemID:      outSystemID,
		HeartbeatDisable: true,
	})
	if err != nil {
		return nil, fmt.Errorf("binding udp %s:%d: %w", address, port, err)
	}

	return &UDPSource{node: node}, nil
}

// Next implements Source.
func (s *UDPSource) Next(ctx context.Context, timeout time.Duration) (telemetry.Record, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return telemetry.Record{}, ctx.Err()

		case <-timer.C:
			return telemetry.Record{}, ErrReceiveTimeout

		case evt, ok := <-s.node.Events():
			if !ok {
				return telemetry.Record{}, ErrSourceClosed
			}

			switch e := evt.(type) {
			case *gomavlib.EventFrame:
				return Decode(e.Message())
			case *gomavlib.EventParseError:
				return telemetry.Record{}, fmt.Errorf("%w: %w", ErrDecodeFailed, e.Error)
			}
			// Channel open/close events are not records; keep waiting.
		}
	}
}

// Close implements Source.
func (s *UDPSource) Close() error {
	s.closeOnce.Do(func() {
		s.node.Close()
	})
	return nil
}
