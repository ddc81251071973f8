package mqtt

// bufferedMsg is a publish held back while the session is down.
type bufferedMsg struct {
	topic   string
	payload []byte
}

// outbox queues publishes made while offline, oldest first. Once full, each
// push discards the oldest entry. Not safe for concurrent use.
type outbox struct {
	msgs    []bufferedMsg
	limit   int
	dropped int // since the last drain
}

func newOutbox(limit int) *outbox {
	return &outbox{msgs: make([]bufferedMsg, 0, limit), limit: limit}
}

// push queues msg. It returns true on the first drop since the last drain.
func (o *outbox) push(msg bufferedMsg) bool {
	if len(o.msgs) < o.limit {
		o.msgs = append(o.msgs, msg)
		return false
	}
	o.dropped++
	if o.limit > 0 {
		copy(o.msgs, o.msgs[1:])
		o.msgs[len(o.msgs)-1] = msg
	}
	return o.dropped == 1
}

// drain empties the outbox, returning the queued messages and how many were
// discarded since the previous drain.
func (o *outbox) drain() ([]bufferedMsg, int) {
	if len(o.msgs) == 0 && o.dropped == 0 {
		return nil, 0
	}
	msgs := append([]bufferedMsg(nil), o.msgs...)
	dropped := o.dropped
	o.msgs = o.msgs[:0]
	o.dropped = 0
	return msgs, dropped
}

func (o *outbox) len() int { return len(o.msgs) }
