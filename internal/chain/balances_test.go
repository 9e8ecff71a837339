package chain

import (
	"context"
	"errors"
	"testing"

	"automa/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestRefreshLiveCachesBalances(t *testing.T) {
	st := newTestStore(t)
	m := NewMockChain()
	m.CreditsCents = 777
	m.USDC = 3.5

	bal, err := Refresh(context.Background(), m, st)
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if bal.Source != "live" {
		t.Errorf("expected live source, got %q", bal.Source)
	}
	if bal.CreditsCents != 777 || bal.USDC != 3.5 {
		t.Errorf("unexpected balances: %+v", bal)
	}
	if bal.CheckedAt.IsZero() {
		t.Error("expected CheckedAt to be stamped")
	}

	if got := st.GetKVInt(store.KeyCachedCredits, -1); got != 777 {
		t.Errorf("expected cached credits 777, got %d", got)
	}
	if _, ok := st.GetKVTime(store.KeyBalancesCheckedAt); !ok {
		t.Error("expected balances_checked_at to be set")
	}
}

func TestRefreshFallsBackToCache(t *testing.T) {
	st := newTestStore(t)
	m := NewMockChain()
	m.CreditsCents = 250
	m.USDC = 1.25

	if _, err := Refresh(context.Background(), m, st); err != nil {
		t.Fatalf("seeding refresh failed: %v", err)
	}

	m.Err = errors.New("facilitator down")
	bal, err := Refresh(context.Background(), m, st)
	if err == nil {
		t.Fatal("expected refresh error when facilitator is down")
	}
	if bal == nil {
		t.Fatal("expected cached balances alongside the error")
	}
	if bal.Source != "cached" {
		t.Errorf("expected cached source, got %q", bal.Source)
	}
	if bal.CreditsCents != 250 || bal.USDC != 1.25 {
		t.Errorf("expected cached values to survive, got %+v", bal)
	}
}

func TestCachedWithEmptyStore(t *testing.T) {
	st := newTestStore(t)

	bal := Cached(st)
	if bal.Source != "cached" {
		t.Errorf("expected cached source, got %q", bal.Source)
	}
	if bal.CreditsCents != 0 || bal.USDC != 0 {
		t.Errorf("expected zero balances, got %+v", bal)
	}
	if !bal.CheckedAt.IsZero() {
		t.Errorf("expected zero CheckedAt, got %v", bal.CheckedAt)
	}
}
