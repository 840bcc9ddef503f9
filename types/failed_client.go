package types

import "fmt"

// FailedClient tells which side of a relay has failed in a way that can not
// be handled by retrying the request. The relay must be rebuilt from
// scratch (with fresh clients and a fresh race state) after it is reported.
type FailedClient uint8

const (
	// FailedSource is reported when the source client has failed.
	FailedSource FailedClient = iota + 1
	// FailedTarget is reported when the target client has failed.
	FailedTarget
	// FailedBoth is reported when both clients have failed, or when it is
	// unclear which of them is responsible.
	FailedBoth
)

// Merge returns the failure that covers both fc and other.
func (fc FailedClient) Merge(other FailedClient) FailedClient {
	if fc == other || other == 0 {
		return fc
	}
	if fc == 0 {
		return other
	}
	return FailedBoth
}

func (fc FailedClient) String() string {
	switch fc {
	case FailedSource:
		return "source"
	case FailedTarget:
		return "target"
	case FailedBoth:
		return "both"
	default:
		return fmt.Sprintf("FailedClient(%d)", uint8(fc))
	}
}

// Error implements error, so a FailedClient can be returned from a relay
// loop directly and matched with errors.As.
func (fc FailedClient) Error() string {
	return fmt.Sprintf("%s client has failed", fc.String())
}
