package mqtt

import (
	"errors"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PahoSession is a Session backed by an actual MQTT broker.
type PahoSession struct {
	client paho.Client
	logger *zap.Logger
}

// NewPahoSession creates an unconnected session. The client ID carries a
// random suffix so two controllers on one account do not evict each other.
func NewPahoSession(broker, username, key, clientID string, logger *zap.Logger) *PahoSession {
	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(fmt.Sprintf("%s-%s", clientID, uuid.NewString()[:8])).
		SetUsername(username).
		SetPassword(key).
		SetConnectTimeout(DefaultHandshakeTimeout).
		SetAutoReconnect(true).
		SetMaxReconnectInterval(time.Minute).
		SetConnectRetry(false)

	return &PahoSession{
		client: paho.NewClient(opts),
		logger: logger.With(zap.String("component", "mqtt")),
	}
}

// Connect starts connecting. paho.Token satisfies Token.
func (s *PahoSession) Connect() Token {
	return s.client.Connect()
}

// IsConnected reports whether the client has a live connection.
func (s *PahoSession) IsConnected() bool {
	return s.client.IsConnectionOpen()
}

// Publish sends payload at QoS 0, not retained. Completion is not awaited.
func (s *PahoSession) Publish(topic string, payload []byte) error {
	if !s.client.IsConnectionOpen() {
		return errors.New("not connected")
	}
	tok := s.client.Publish(topic, 0, false, payload)
	select {
	case <-tok.Done():
		if err := tok.Error(); err != nil {
			return fmt.Errorf("publish %s: %w", topic, err)
		}
	default:
	}
	return nil
}

// Subscribe registers fn for topic at QoS 1. A failed subscription is
// logged when the broker answers.
func (s *PahoSession) Subscribe(topic string, fn func(payload []byte)) error {
	if !s.client.IsConnectionOpen() {
		return errors.New("not connected")
	}
	tok := s.client.Subscribe(topic, 1, func(_ paho.Client, msg paho.Message) {
		fn(msg.Payload())
	})
	go func() {
		<-tok.Done()
		if err := tok.Error(); err != nil {
			s.logger.Warn("subscribe failed", zap.String("topic", topic), zap.Error(err))
		}
	}()
	return nil
}

// Disconnect closes the connection, waiting up to one second for in-flight
// work.
func (s *PahoSession) Disconnect() {
	s.client.Disconnect(1000)
}
