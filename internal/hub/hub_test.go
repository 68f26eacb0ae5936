package hub

import (
	"errors"
	"sync"
	"testing"
	"time"
)

type testViewer struct {
	mu     sync.Mutex
	writes [][]byte
	fail   bool
	block  chan struct{}
	done   chan struct{}
	once   sync.Once
	got    chan struct{}
}

func newTestViewer() *testViewer {
	return &testViewer{done: make(chan struct{}), got: make(chan struct{}, 16)}
}

func (v *testViewer) Write(message []byte) error {
	if v.block != nil {
		<-v.block
	}
	v.mu.Lock()
	v.writes = append(v.writes, message)
	v.mu.Unlock()
	v.got <- struct{}{}
	if v.fail {
		return errTest
	}
	return nil
}

func (v *testViewer) Close() error {
	v.once.Do(func() { close(v.done) })
	return nil
}

func (v *testViewer) Done() <-chan struct{} { return v.done }

func (v *testViewer) count() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.writes)
}

var errTest = errors.New("test")

func waitWrite(t *testing.T, v *testViewer) {
	t.Helper()
	select {
	case <-v.got:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for write")
	}
}

func TestHub_BroadcastSkipsClosedViewer(t *testing.T) {
	h := New()
	v1, v2, v3 := newTestViewer(), newTestViewer(), newTestViewer()
	h.Subscribe(v1, "")
	h.Subscribe(v2, "")
	h.Subscribe(v3, "")
	v2.Close()

	delivered := h.Broadcast("owner", []byte("x"))
	if delivered != 2 {
		t.Fatalf("expected 2 deliveries, got %d", delivered)
	}
	waitWrite(t, v1)
	waitWrite(t, v3)
	if v2.count() != 0 {
		t.Fatalf("closed viewer should not receive writes")
	}
}

func TestHub_OwnerScope(t *testing.T) {
	h := New()
	admin, alice, bob := newTestViewer(), newTestViewer(), newTestViewer()
	h.Subscribe(admin, "")
	h.Subscribe(alice, "alice")
	h.Subscribe(bob, "bob")

	if n := h.Broadcast("alice", []byte("x")); n != 2 {
		t.Fatalf("expected 2 deliveries, got %d", n)
	}
	waitWrite(t, admin)
	waitWrite(t, alice)
	if bob.count() != 0 {
		t.Fatalf("bob should not see alice's events")
	}
}

func TestHub_Unsubscribe(t *testing.T) {
	h := New()
	v := newTestViewer()
	sub := h.Subscribe(v, "")

	h.Broadcast("", []byte("x"))
	waitWrite(t, v)

	h.Unsubscribe(sub)
	h.Unsubscribe(sub)
	if n := h.Broadcast("", []byte("x")); n != 0 {
		t.Fatalf("expected no deliveries after unsubscribe, got %d", n)
	}
}

func TestHub_SlowViewerDoesNotBlock(t *testing.T) {
	h := NewWithQueueSize(1)
	slow := newTestViewer()
	slow.block = make(chan struct{})
	fast := newTestViewer()
	h.Subscribe(slow, "")
	h.Subscribe(fast, "")

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			h.Broadcast("", []byte("x"))
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("broadcast blocked on slow viewer")
	}
	close(slow.block)
}

func TestHub_RemovesFailedViewer(t *testing.T) {
	h := New()
	v := newTestViewer()
	v.fail = true
	h.Subscribe(v, "")

	h.Broadcast("", []byte("x"))
	waitWrite(t, v)

	deadline := time.Now().Add(2 * time.Second)
	for h.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("failed viewer was not removed")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
