package connection

import "fmt"

// Kind is the ConnectionManager's slice of the overall error taxonomy.
type Kind int

const (
	KindTransportDisconnected Kind = iota
	KindConnectTimeout
	KindServiceDiscoveryTimeout
	KindPermissionDenied
	KindWriteFailed
)

func (k Kind) String() string {
	switch k {
	case KindTransportDisconnected:
		return "transport_disconnected"
	case KindConnectTimeout:
		return "connect_timeout"
	case KindServiceDiscoveryTimeout:
		return "service_discovery_timeout"
	case KindPermissionDenied:
		return "permission_denied"
	case KindWriteFailed:
		return "write_failed"
	default:
		return "unknown"
	}
}

// Error wraps an underlying transport/timeout failure with the kind that
// determines the ConnectionManager's recovery action: retry with
// back-off, fail without retry, or log-and-continue.
type Error struct {
	Kind    Kind
	Address string
	Err     error
}

func (e *Error) Error() string {
	if e.Address != "" {
		return fmt.Sprintf("connection: %s (%s): %v", e.Kind, e.Address, e.Err)
	}
	return fmt.Sprintf("connection: %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Recoverable reports whether the manager should retry with back-off
// (true) or transition to Failed terminally (false), per the §7 table.
func (e *Error) Recoverable() bool {
	return e.Kind == KindTransportDisconnected
}
