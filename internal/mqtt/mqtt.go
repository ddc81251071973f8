// Package mqtt mirrors relay state to an MQTT feed service and accepts feed
// commands back, with abstraction for testing.
//
// The broker layout follows the Adafruit IO convention: every feed is a topic
// named <user>/feeds/<feed> and carries plain text values.
package mqtt

import (
	"errors"
	"fmt"
)

// ErrCloudUnavailable is returned when the mirror cannot reach the broker.
var ErrCloudUnavailable = errors.New("cloud mirror unavailable")

// Payload values on the relay feed.
const (
	PayloadOn  = "1"
	PayloadOff = "0"
)

// FeedTopic returns the topic for feed under user's account.
func FeedTopic(user, feed string) string {
	return fmt.Sprintf("%s/feeds/%s", user, feed)
}

// FormatState returns the relay feed payload for on.
func FormatState(on bool) []byte {
	if on {
		return []byte(PayloadOn)
	}
	return []byte(PayloadOff)
}

// ParseState decodes a relay feed payload. Anything other than "1" or "0"
// is rejected.
func ParseState(payload []byte) (bool, error) {
	switch string(payload) {
	case PayloadOn:
		return true, nil
	case PayloadOff:
		return false, nil
	default:
		return false, fmt.Errorf("unexpected feed payload %q", payload)
	}
}

// Token tracks an asynchronous broker operation.
type Token interface {
	// Done is closed once the operation completes.
	Done() <-chan struct{}
	// Error is valid after Done is closed.
	Error() error
}

// Session is the broker client collaborator. None of its methods may block
// the caller.
type Session interface {
	// Connect starts connecting and returns immediately.
	Connect() Token
	// IsConnected reports whether the session is currently up.
	IsConnected() bool
	// Publish queues payload for topic.
	Publish(topic string, payload []byte) error
	// Subscribe registers fn for messages on topic. fn runs on the
	// client's goroutine.
	Subscribe(topic string, fn func(payload []byte)) error
	// Disconnect drops the session.
	Disconnect()
}
