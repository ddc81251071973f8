package mqtt

import (
	"testing"
)

func TestOutboxEmptyDrain(t *testing.T) {
	ob := newOutbox(4)
	msgs, dropped := ob.drain()
	if msgs != nil || dropped != 0 {
		t.Errorf("expected empty drain, got %d items and %d dropped", len(msgs), dropped)
	}
}

func TestOutboxKeepsOrder(t *testing.T) {
	ob := newOutbox(4)
	for _, p := range []string{"1", "0", "1"} {
		ob.push(bufferedMsg{topic: "u/feeds/relay", payload: []byte(p)})
	}

	got, dropped := ob.drain()
	if len(got) != 3 || dropped != 0 {
		t.Fatalf("expected 3 items and no drops, got %d and %d", len(got), dropped)
	}
	for i, want := range []string{"1", "0", "1"} {
		if string(got[i].payload) != want {
			t.Errorf("item %d: got %s, want %s", i, got[i].payload, want)
		}
		if got[i].topic != "u/feeds/relay" {
			t.Errorf("item %d: topic %s", i, got[i].topic)
		}
	}
	if msgs, _ := ob.drain(); msgs != nil {
		t.Error("second drain should be empty")
	}
}

func TestOutboxDropsOldest(t *testing.T) {
	ob := newOutbox(3)

	var reports int
	for i := 0; i < 6; i++ {
		if ob.push(bufferedMsg{payload: []byte{byte(i)}}) {
			reports++
		}
	}
	if reports != 1 {
		t.Errorf("overflow should be reported once, got %d", reports)
	}

	got, dropped := ob.drain()
	if dropped != 3 {
		t.Errorf("expected 3 dropped, got %d", dropped)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 items, got %d", len(got))
	}
	for i := 0; i < 3; i++ {
		if want := byte(i + 3); got[i].payload[0] != want {
			t.Errorf("item %d: expected %d, got %d", i, want, got[i].payload[0])
		}
	}

	// The report fires again once the outbox has been drained.
	for i := 0; i < 4; i++ {
		if ob.push(bufferedMsg{payload: []byte{byte(i)}}) != (i == 3) {
			t.Errorf("push %d: unexpected overflow report", i)
		}
	}
}

func TestOutboxZeroLimit(t *testing.T) {
	ob := newOutbox(0)
	if !ob.push(bufferedMsg{topic: "t"}) {
		t.Error("first push into a zero-size outbox should report a drop")
	}
	if ob.len() != 0 {
		t.Errorf("expected len 0, got %d", ob.len())
	}
	if _, dropped := ob.drain(); dropped != 1 {
		t.Errorf("expected 1 dropped, got %d", dropped)
	}
}

func TestOutboxLen(t *testing.T) {
	ob := newOutbox(10)
	ob.push(bufferedMsg{topic: "t"})
	ob.push(bufferedMsg{topic: "t"})
	if ob.len() != 2 {
		t.Errorf("expected len 2, got %d", ob.len())
	}
	ob.drain()
	if ob.len() != 0 {
		t.Errorf("expected len 0 after drain, got %d", ob.len())
	}
}
