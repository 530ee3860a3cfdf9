package session

import (
	"context"
	"fmt"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T) *RedisStore {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	return NewRedisStoreFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
}

func TestStoreSaveLoadDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sess := &Session{
		ID:       "s1",
		White:    "alice",
		Black:    "bob",
		State:    StateActive,
		Turn:     "white",
		MovesUCI: []string{"e2e4"},
	}
	if err := s.Save(ctx, sess); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := s.LoadAll(ctx)
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(loaded) != 1 || loaded[0].ID != "s1" || len(loaded[0].MovesUCI) != 1 {
		t.Fatalf("unexpected load result: %+v", loaded)
	}

	if err := s.Delete(ctx, "s1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	loaded, err = s.LoadAll(ctx)
	if err != nil {
		t.Fatalf("LoadAll after delete: %v", err)
	}
	if len(loaded) != 0 {
		t.Fatalf("expected empty store, got %d sessions", len(loaded))
	}
}

func TestStoreURLRoundTrip(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	store, err := NewRedisStore(fmt.Sprintf("redis://%s/0", mr.Addr()))
	if err != nil {
		t.Fatalf("NewRedisStore: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	if _, err := NewRedisStore("http://nope"); err == nil {
		t.Fatalf("expected error for unsupported scheme")
	}
}

func TestRegistryRecovery(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	r1 := NewRegistry(store, Config{})
	active, err := r1.CreatePaired("alice", "bob", GameConfig{TimeControl: "5+0"})
	if err != nil {
		t.Fatalf("CreatePaired: %v", err)
	}
	done, _ := r1.CreatePaired("erin", "frank", GameConfig{})
	done.Lock()
	r1.End(done, StateFinished, &Result{Outcome: "draw"})
	done.Unlock()
	r1.Stop()

	// a fresh registry against the same store picks up only live sessions
	r2 := NewRegistry(store, Config{})
	t.Cleanup(r2.Stop)
	if err := r2.Recover(ctx); err != nil {
		t.Fatalf("Recover: %v", err)
	}
	got, err := r2.Get(active.ID)
	if err != nil {
		t.Fatalf("recovered session missing: %v", err)
	}
	if got.White != "alice" || got.Black != "bob" || got.State != StateActive {
		t.Fatalf("recovered session corrupt: %+v", got)
	}
	if _, ok := r2.GetByClient("alice"); !ok {
		t.Fatalf("client index must be rebuilt on recovery")
	}
	if _, err := r2.Get(done.ID); err != ErrNotFound {
		t.Fatalf("terminal sessions must not be recovered, got %v", err)
	}
}
