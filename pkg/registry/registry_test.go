package registry

import (
	"testing"

	"backchannel/pkg/models"
)

type fakeConn struct {
	peer   string
	closed bool
	sent   []models.Event
}

func (f *fakeConn) Send(ev models.Event) error { f.sent = append(f.sent, ev); return nil }
func (f *fakeConn) RemotePeer() string         { return f.peer }
func (f *fakeConn) Close() error               { f.closed = true; return nil }

func TestRegisterReplaceClosesOld(t *testing.T) {
	r := New()
	first := &fakeConn{peer: "p1"}
	second := &fakeConn{peer: "p2"}
	r.Register("user-1", first)
	r.Register("user-1", second)
	if !first.closed {
		t.Fatalf("expected superseded connection to be closed")
	}
	if second.closed {
		t.Fatalf("replacement connection must stay open")
	}
	got, ok := r.Get("user-1")
	if !ok || got != Conn(second) {
		t.Fatalf("expected replacement to be tracked")
	}
	if r.Len() != 1 {
		t.Fatalf("expected 1 entry got %d", r.Len())
	}
}

func TestRegisterSameConnNoClose(t *testing.T) {
	r := New()
	c := &fakeConn{peer: "p1"}
	r.Register("user-1", c)
	r.Register("user-1", c)
	if c.closed {
		t.Fatalf("re-registering the same connection must not close it")
	}
}

func TestRekey(t *testing.T) {
	r := New()
	c := &fakeConn{peer: "p1"}
	r.Register("p1", c)
	r.Rekey("p1", "user-1")
	if _, ok := r.Get("p1"); ok {
		t.Fatalf("provisional key should be gone after rekey")
	}
	got, ok := r.Get("user-1")
	if !ok || got != Conn(c) {
		t.Fatalf("expected connection under new key")
	}
	// rekeying a missing key is a no-op
	r.Rekey("nope", "user-2")
	if _, ok := r.Get("user-2"); ok {
		t.Fatalf("rekey of missing key must not create an entry")
	}
}

func TestRekeyClosesDisplaced(t *testing.T) {
	// simultaneous dial: an outbound conn already holds the contact key
	// when the inbound provisional conn resolves to the same contact
	r := New()
	outbound := &fakeConn{peer: "p1"}
	inbound := &fakeConn{peer: "p1"}
	r.Register("user-1", outbound)
	r.Register("prov-token", inbound)
	r.Rekey("prov-token", "user-1")
	if !outbound.closed {
		t.Fatalf("expected displaced connection to be closed")
	}
	if inbound.closed {
		t.Fatalf("rekeyed connection must stay open")
	}
	got, ok := r.Get("user-1")
	if !ok || got != Conn(inbound) {
		t.Fatalf("expected rekeyed connection under contact key")
	}
	if r.Len() != 1 {
		t.Fatalf("expected 1 entry got %d", r.Len())
	}
}

func TestFindKeyForConn(t *testing.T) {
	r := New()
	c := &fakeConn{peer: "p1"}
	r.Register("user-1", c)
	key, ok := r.FindKeyForConn(c)
	if !ok || key != "user-1" {
		t.Fatalf("expected user-1 got %q ok=%v", key, ok)
	}
	if _, ok := r.FindKeyForConn(&fakeConn{peer: "p2"}); ok {
		t.Fatalf("expected no key for untracked conn")
	}
}

func TestUnregisterConditional(t *testing.T) {
	r := New()
	cur := &fakeConn{peer: "p1"}
	stale := &fakeConn{peer: "p0"}
	r.Register("user-1", cur)
	// stale close event for a replaced connection must not evict the live one
	r.Unregister("user-1", stale)
	if _, ok := r.Get("user-1"); !ok {
		t.Fatalf("live connection evicted by stale unregister")
	}
	r.Unregister("user-1", cur)
	if _, ok := r.Get("user-1"); ok {
		t.Fatalf("expected entry removed")
	}
	r.Register("user-1", cur)
	r.Unregister("user-1", nil)
	if r.Len() != 0 {
		t.Fatalf("nil conn must unregister unconditionally")
	}
}
