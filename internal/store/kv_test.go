package store

import (
	"testing"
	"time"
)

func TestKVSetGetDelete(t *testing.T) {
	s := newTestStore(t)

	if _, ok, err := s.GetKV("missing"); err != nil || ok {
		t.Fatalf("GetKV(missing) = ok=%v err=%v, want absent", ok, err)
	}

	if err := s.SetKV(KeyCurrentTier, "normal"); err != nil {
		t.Fatal(err)
	}
	v, ok, err := s.GetKV(KeyCurrentTier)
	if err != nil || !ok || v != "normal" {
		t.Fatalf("GetKV = %q ok=%v err=%v", v, ok, err)
	}

	// Upsert replaces in place.
	if err := s.SetKV(KeyCurrentTier, "critical"); err != nil {
		t.Fatal(err)
	}
	v, _, _ = s.GetKV(KeyCurrentTier)
	if v != "critical" {
		t.Fatalf("after upsert got %q", v)
	}

	if err := s.DeleteKV(KeyCurrentTier); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := s.GetKV(KeyCurrentTier); ok {
		t.Fatal("key survived delete")
	}
	// Deleting an absent key is a no-op.
	if err := s.DeleteKV(KeyCurrentTier); err != nil {
		t.Fatal(err)
	}
}

func TestKVTimeRoundTrip(t *testing.T) {
	s := newTestStore(t)

	want := time.Date(2026, 5, 1, 13, 30, 0, 250_000_000, time.UTC)
	if err := s.SetKVTime(KeySleepUntil, want); err != nil {
		t.Fatal(err)
	}
	got, ok := s.GetKVTime(KeySleepUntil)
	if !ok {
		t.Fatal("GetKVTime reported absent")
	}
	if !got.Equal(want) {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestKVTimeCorruptValue(t *testing.T) {
	s := newTestStore(t)
	if err := s.SetKV(KeySleepUntil, "not-a-time"); err != nil {
		t.Fatal(err)
	}
	if _, ok := s.GetKVTime(KeySleepUntil); ok {
		t.Fatal("corrupt timestamp must read as absent")
	}
}

func TestKVIntFallback(t *testing.T) {
	s := newTestStore(t)

	if n := s.GetKVInt(KeyConsecutiveErrors, 0); n != 0 {
		t.Fatalf("missing int = %d, want fallback 0", n)
	}
	if err := s.SetKVInt(KeyConsecutiveErrors, 5); err != nil {
		t.Fatal(err)
	}
	if n := s.GetKVInt(KeyConsecutiveErrors, 0); n != 5 {
		t.Fatalf("got %d, want 5", n)
	}

	if err := s.SetKV(KeyConsecutiveErrors, "garbage"); err != nil {
		t.Fatal(err)
	}
	if n := s.GetKVInt(KeyConsecutiveErrors, 7); n != 7 {
		t.Fatalf("garbage int = %d, want fallback 7", n)
	}
}

func TestAppendCappedList(t *testing.T) {
	s := newTestStore(t)

	type transition struct {
		Seq int `json:"seq"`
	}

	for i := 0; i < 60; i++ {
		if err := s.AppendCappedList(KeyTierTransitions, transition{Seq: i}, 50); err != nil {
			t.Fatal(err)
		}
	}

	var items []transition
	if err := s.GetList(KeyTierTransitions, &items); err != nil {
		t.Fatal(err)
	}
	if len(items) != 50 {
		t.Fatalf("got %d entries, want 50", len(items))
	}
	// Oldest ten dropped; newest kept in order.
	if items[0].Seq != 10 || items[49].Seq != 59 {
		t.Fatalf("window wrong: first=%d last=%d", items[0].Seq, items[49].Seq)
	}
}

func TestAppendCappedListRecoversFromCorruption(t *testing.T) {
	s := newTestStore(t)

	if err := s.SetKV(KeyResurrectionHistory, "{{{not json"); err != nil {
		t.Fatal(err)
	}
	if err := s.AppendCappedList(KeyResurrectionHistory, "rebirth", 50); err != nil {
		t.Fatal(err)
	}
	var items []string
	if err := s.GetList(KeyResurrectionHistory, &items); err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 || items[0] != "rebirth" {
		t.Fatalf("got %v", items)
	}
}

func TestGetListMissingKey(t *testing.T) {
	s := newTestStore(t)
	var items []string
	if err := s.GetList("nope", &items); err != nil {
		t.Fatal(err)
	}
	if len(items) != 0 {
		t.Fatalf("expected empty list, got %v", items)
	}
}
