package monitor

import (
	"testing"

	"birdnest/internal/violation"
)

func TestHubFanOutAndDrop(t *testing.T) {
	h := NewHub()
	idA, a := h.Subscribe(2)
	_, b := h.Subscribe(1)

	v := violation.Violation{SerialNumber: "A1"}
	h.Publish(Update{Serial: "A1", Violation: &v})
	h.Publish(Update{Serial: "A1"})

	if len(a) != 2 || len(b) != 1 {
		t.Fatalf("unexpected buffered counts: a=%d b=%d", len(a), len(b))
	}
	st := h.Stats()
	if st.Subscribers != 2 || st.Sent != 3 || st.Dropped != 1 {
		t.Fatalf("unexpected stats: %+v", st)
	}

	first := <-a
	first.Violation.Model = "changed"
	if got := <-b; got.Violation.Model != "" {
		t.Fatalf("subscribers share record memory")
	}

	if !h.Unsubscribe(idA) {
		t.Fatalf("unsubscribe failed")
	}
	<-a
	if _, ok := <-a; ok {
		t.Fatalf("channel not closed after unsubscribe")
	}
	if h.Unsubscribe(idA) {
		t.Fatalf("second unsubscribe succeeded")
	}
}
