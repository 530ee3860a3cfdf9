package matchmaker

import (
	"testing"

	"github.com/NP5555/BlockChain-Chess-Arena/internal/session"
)

func newTestMatchmaker(t *testing.T) (*Matchmaker, *session.Registry) {
	t.Helper()
	r := session.NewRegistry(nil, session.Config{})
	t.Cleanup(r.Stop)
	return New(r), r
}

func TestFIFOPairingSameCriteria(t *testing.T) {
	m, _ := newTestMatchmaker(t)
	crit := Criteria{TimeControl: "5+0"}

	out1, err := m.RequestMatch("alice", crit)
	if err != nil {
		t.Fatalf("RequestMatch alice: %v", err)
	}
	if out1.Paired || out1.Ticket == nil {
		t.Fatalf("first request must queue, got %+v", out1)
	}

	out2, err := m.RequestMatch("bob", crit)
	if err != nil {
		t.Fatalf("RequestMatch bob: %v", err)
	}
	if !out2.Paired || out2.Session == nil {
		t.Fatalf("second request must pair, got %+v", out2)
	}
	// earlier ticket becomes white
	if out2.Session.White != "alice" || out2.Session.Black != "bob" {
		t.Fatalf("color assignment wrong: white=%q black=%q", out2.Session.White, out2.Session.Black)
	}
	if out2.Session.State != session.StateActive {
		t.Fatalf("paired session must be Active, got %q", out2.Session.State)
	}
	if out2.Session.Config.TimeControl != "5+0" {
		t.Fatalf("criteria must carry into session config")
	}
	if m.QueuedCount() != 0 {
		t.Fatalf("queue must be drained after pairing")
	}
}

func TestCriteriaPartitioning(t *testing.T) {
	m, _ := newTestMatchmaker(t)

	if _, err := m.RequestMatch("alice", Criteria{TimeControl: "5+0"}); err != nil {
		t.Fatalf("queue alice: %v", err)
	}
	out, err := m.RequestMatch("bob", Criteria{TimeControl: "10+0"})
	if err != nil {
		t.Fatalf("queue bob: %v", err)
	}
	if out.Paired {
		t.Fatalf("incompatible criteria must not pair")
	}
	if m.QueuedCount() != 2 {
		t.Fatalf("expected 2 queued, got %d", m.QueuedCount())
	}

	// a third client compatible with alice pairs with alice, not bob
	out3, err := m.RequestMatch("carol", Criteria{TimeControl: "5+0"})
	if err != nil {
		t.Fatalf("queue carol: %v", err)
	}
	if !out3.Paired || out3.Session.White != "alice" {
		t.Fatalf("expected carol paired against alice, got %+v", out3)
	}
}

func TestAlreadyQueued(t *testing.T) {
	m, _ := newTestMatchmaker(t)
	if _, err := m.RequestMatch("alice", Criteria{}); err != nil {
		t.Fatalf("first request: %v", err)
	}
	if _, err := m.RequestMatch("alice", Criteria{}); err != ErrAlreadyQueued {
		t.Fatalf("expected ErrAlreadyQueued, got %v", err)
	}
}

func TestCancelMatch(t *testing.T) {
	m, _ := newTestMatchmaker(t)

	// cancelling an unknown client is a no-op, not an error
	if m.CancelMatch("ghost") {
		t.Fatalf("cancel of absent client must report false")
	}

	if _, err := m.RequestMatch("alice", Criteria{}); err != nil {
		t.Fatalf("queue alice: %v", err)
	}
	if !m.CancelMatch("alice") {
		t.Fatalf("cancel of queued client must report true")
	}

	// a cancelled ticket is never paired
	out, err := m.RequestMatch("bob", Criteria{})
	if err != nil {
		t.Fatalf("queue bob: %v", err)
	}
	if out.Paired {
		t.Fatalf("bob must queue, alice's ticket was cancelled")
	}

	// alice can queue again after cancelling
	out2, err := m.RequestMatch("alice", Criteria{})
	if err != nil {
		t.Fatalf("requeue alice: %v", err)
	}
	if !out2.Paired {
		t.Fatalf("alice must now pair with bob")
	}
}

func TestPairingFailureRequeuesHead(t *testing.T) {
	r := session.NewRegistry(nil, session.Config{MaxSessions: 1})
	t.Cleanup(r.Stop)
	if _, err := r.Create("filler", session.GameConfig{}); err != nil {
		t.Fatalf("filler: %v", err)
	}

	m := New(r)
	if _, err := m.RequestMatch("alice", Criteria{}); err != nil {
		t.Fatalf("queue alice: %v", err)
	}
	if _, err := m.RequestMatch("bob", Criteria{}); err != session.ErrCapacity {
		t.Fatalf("expected ErrCapacity, got %v", err)
	}
	// alice keeps her place at the head of the queue
	if m.QueuedCount() != 1 {
		t.Fatalf("head ticket must be requeued, got %d", m.QueuedCount())
	}
}
