package approval

import (
	"context"
	"testing"
	"time"

	"github.com/opsgate/opsgate/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return s
}

func TestSubmitAndResolve(t *testing.T) {
	s := newTestStore(t)

	if err := s.Submit("key-1", "delete_file", "Delete /tmp/x", "This will DELETE: /tmp/x", 0); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	status, err := s.Check("key-1")
	if err != nil {
		t.Fatal(err)
	}
	if status != StatusPending {
		t.Fatalf("status = %s, want pending", status)
	}

	if err := s.Approve("key-1"); err != nil {
		t.Fatalf("Approve: %v", err)
	}
	status, err = s.Check("key-1")
	if err != nil {
		t.Fatal(err)
	}
	if status != StatusApproved {
		t.Errorf("status = %s, want approved", status)
	}
}

func TestResolveTwiceFails(t *testing.T) {
	s := newTestStore(t)
	if err := s.Submit("key-1", "x", "d", "", 0); err != nil {
		t.Fatal(err)
	}
	if err := s.Deny("key-1"); err != nil {
		t.Fatal(err)
	}
	if err := s.Approve("key-1"); err == nil {
		t.Error("approving a resolved request should fail")
	}
}

func TestSubmitExistingIsNoop(t *testing.T) {
	s := newTestStore(t)
	if err := s.Submit("key-1", "x", "first", "", 0); err != nil {
		t.Fatal(err)
	}
	if err := s.Submit("key-1", "x", "second", "", 0); err != nil {
		t.Fatal(err)
	}
	list, err := s.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].Description != "first" {
		t.Errorf("list = %+v", list)
	}
}

func TestExpiry(t *testing.T) {
	s := newTestStore(t)
	if err := s.Submit("key-1", "x", "d", "", time.Millisecond); err != nil {
		t.Fatal(err)
	}
	time.Sleep(10 * time.Millisecond)

	status, err := s.Check("key-1")
	if err != nil {
		t.Fatal(err)
	}
	if status != StatusExpired {
		t.Errorf("status = %s, want expired", status)
	}
}

func TestKeyValidation(t *testing.T) {
	s := newTestStore(t)
	for _, key := range []string{"", "../evil", "a/b", "x y"} {
		if err := s.Submit(key, "x", "d", "", 0); err == nil {
			t.Errorf("Submit(%q) should reject the key", key)
		}
	}
}

func TestListSortedByCreation(t *testing.T) {
	s := newTestStore(t)
	s.Submit("b", "x", "d", "", 0)
	time.Sleep(5 * time.Millisecond)
	s.Submit("a", "x", "d", "", 0)

	list, err := s.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].Key != "b" {
		t.Errorf("list order: %+v", list)
	}
}

func TestApproverResolvesApprove(t *testing.T) {
	s := newTestStore(t)
	a := NewApprover(s, 0)
	a.pollInterval = 10 * time.Millisecond

	keyCh := make(chan string, 1)
	a.Notify = func(k string, r Request) { keyCh <- k }

	done := make(chan model.Verdict, 1)
	go func() {
		v, _ := a.Approve(context.Background(), "Delete /tmp/x", "preview")
		done <- v
	}()

	// Wait for the request to be filed, then resolve it like a second
	// terminal would.
	var key string
	select {
	case key = <-keyCh:
	case <-time.After(2 * time.Second):
		t.Fatal("request never filed")
	}
	if err := s.Approve(key); err != nil {
		t.Fatal(err)
	}

	select {
	case v := <-done:
		if v != model.VerdictApprove {
			t.Errorf("verdict = %s, want approve", v)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("approver never returned")
	}
}

func TestApproverCancellationDenies(t *testing.T) {
	s := newTestStore(t)
	a := NewApprover(s, 0)
	a.pollInterval = 10 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	v, err := a.Approve(ctx, "desc", "preview")
	if v != model.VerdictDeny {
		t.Errorf("verdict = %s, want deny on cancellation", v)
	}
	if err == nil {
		t.Error("expected context error")
	}
}

func TestApproverDenyAndBlacklist(t *testing.T) {
	s := newTestStore(t)
	a := NewApprover(s, 0)
	a.pollInterval = 10 * time.Millisecond

	keyCh := make(chan string, 1)
	a.Notify = func(k string, r Request) { keyCh <- k }

	done := make(chan model.Verdict, 1)
	go func() {
		v, _ := a.Approve(context.Background(), "desc", "preview")
		done <- v
	}()

	var key string
	select {
	case key = <-keyCh:
	case <-time.After(2 * time.Second):
		t.Fatal("request never filed")
	}
	if err := s.DenyAndBlacklist(key); err != nil {
		t.Fatal(err)
	}

	select {
	case v := <-done:
		if v != model.VerdictDenyAndBlacklist {
			t.Errorf("verdict = %s, want deny-and-blacklist", v)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("approver never returned")
	}
}
