package mqtt

import "errors"

// FakeToken is a Token completed by the test.
type FakeToken struct {
	done chan struct{}
	err  error
}

// NewFakeToken returns a pending token.
func NewFakeToken() *FakeToken {
	return &FakeToken{done: make(chan struct{})}
}

// Complete finishes the token with err. It must be called at most once.
func (t *FakeToken) Complete(err error) {
	t.err = err
	close(t.done)
}

func (t *FakeToken) Done() <-chan struct{} { return t.done }
func (t *FakeToken) Error() error          { return t.err }

// Published is one recorded publish.
type Published struct {
	Topic   string
	Payload string
}

// FakeSession records session calls for test assertions.
type FakeSession struct {
	// Token is returned by the next Connect. A fresh pending token is used
	// when nil.
	Token *FakeToken

	// Connected controls IsConnected.
	Connected bool

	// PublishError, if set, is returned by Publish.
	PublishError error

	// Publishes contains every successful publish.
	Publishes []Published

	// Handlers maps subscribed topics to their callbacks.
	Handlers map[string]func([]byte)

	Connects    int
	Disconnects int
}

// NewFakeSession creates a disconnected FakeSession.
func NewFakeSession() *FakeSession {
	return &FakeSession{Handlers: make(map[string]func([]byte))}
}

func (f *FakeSession) Connect() Token {
	f.Connects++
	if f.Token == nil {
		f.Token = NewFakeToken()
	}
	tok := f.Token
	f.Token = nil
	return tok
}

func (f *FakeSession) IsConnected() bool { return f.Connected }

func (f *FakeSession) Publish(topic string, payload []byte) error {
	if f.PublishError != nil {
		return f.PublishError
	}
	if !f.Connected {
		return errors.New("not connected")
	}
	f.Publishes = append(f.Publishes, Published{Topic: topic, Payload: string(payload)})
	return nil
}

func (f *FakeSession) Subscribe(topic string, fn func([]byte)) error {
	f.Handlers[topic] = fn
	return nil
}

func (f *FakeSession) Disconnect() {
	f.Disconnects++
	f.Connected = false
}

// Deliver invokes the handler for topic as if the broker sent payload.
// It reports false when nothing is subscribed.
func (f *FakeSession) Deliver(topic string, payload string) bool {
	fn, ok := f.Handlers[topic]
	if !ok {
		return false
	}
	fn([]byte(payload))
	return true
}

// PayloadsFor returns the payloads published to topic, in order.
func (f *FakeSession) PayloadsFor(topic string) []string {
	var out []string
	for _, p := range f.Publishes {
		if p.Topic == topic {
			out = append(out, p.Payload)
		}
	}
	return out
}
