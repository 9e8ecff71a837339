package survival

import (
	"testing"

	"automa/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMonitor(t *testing.T) (*Monitor, *Lifecycle, *store.Store) {
	t.Helper()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	life := NewLifecycle(st)
	return NewMonitor(st, life, nil), life, st
}

func TestTierFor(t *testing.T) {
	cases := []struct {
		cents int64
		want  Tier
	}{
		{100, TierNormal},
		{51, TierNormal},
		{50, TierLowCompute},
		{11, TierLowCompute},
		{10, TierCritical},
		{1, TierCritical},
		{0, TierDead},
		{-5, TierDead},
	}
	for _, tc := range cases {
		if got := TierFor(tc.cents); got != tc.want {
			t.Errorf("TierFor(%d) = %s, want %s", tc.cents, got, tc.want)
		}
	}
}

func TestTierLowCompute(t *testing.T) {
	assert.False(t, TierNormal.LowCompute())
	assert.True(t, TierLowCompute.LowCompute())
	assert.True(t, TierCritical.LowCompute())
	assert.False(t, TierDead.LowCompute())
}

type fakeGovernor struct {
	lowCompute bool
	calls      int
}

func (g *fakeGovernor) SetLowCompute(enabled bool) {
	g.lowCompute = enabled
	g.calls++
}

func TestApplyRecordsTransition(t *testing.T) {
	m, _, st := newTestMonitor(t)

	tr, err := m.Apply(30)
	require.NoError(t, err)
	require.NotNil(t, tr)
	assert.Equal(t, TierNormal, tr.From)
	assert.Equal(t, TierLowCompute, tr.To)
	assert.Equal(t, int64(30), tr.CreditsCents)

	v, ok, err := st.GetKV(store.KeyCurrentTier)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "low_compute", v)

	var history []Transition
	require.NoError(t, st.GetList(store.KeyTierTransitions, &history))
	require.Len(t, history, 1)
	assert.Equal(t, TierLowCompute, history[0].To)
}

func TestApplySameTierIsQuiet(t *testing.T) {
	m, _, st := newTestMonitor(t)

	tr, err := m.Apply(100)
	require.NoError(t, err)
	assert.Nil(t, tr, "normal to normal is not a transition")

	tr, err = m.Apply(200)
	require.NoError(t, err)
	assert.Nil(t, tr)

	var history []Transition
	require.NoError(t, st.GetList(store.KeyTierTransitions, &history))
	assert.Empty(t, history)
}

func TestApplyFlipsGovernor(t *testing.T) {
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	gov := &fakeGovernor{}
	m := NewMonitor(st, NewLifecycle(st), gov)

	_, err = m.Apply(30)
	require.NoError(t, err)
	assert.True(t, gov.lowCompute)

	_, err = m.Apply(7)
	require.NoError(t, err)
	assert.True(t, gov.lowCompute)

	_, err = m.Apply(100)
	require.NoError(t, err)
	assert.False(t, gov.lowCompute)
}

func TestApplyDeadBookkeeping(t *testing.T) {
	m, _, st := newTestMonitor(t)

	_, err := m.Apply(0)
	require.NoError(t, err)

	if _, ok := st.GetKVTime(store.KeyZeroCreditsSince); !ok {
		t.Fatal("zero_credits_since not stamped")
	}
	if _, ok, _ := st.GetKV(store.KeyFundingNoticeDead); !ok {
		t.Fatal("funding notice not stamped")
	}
	sig, err := st.LatestDistressSignal()
	require.NoError(t, err)
	require.NotNil(t, sig)
	assert.Equal(t, "dead", sig.Tier)
}

func TestApplyCriticalEmitsDistressOnce(t *testing.T) {
	m, _, st := newTestMonitor(t)

	_, err := m.Apply(5)
	require.NoError(t, err)
	_, err = m.Apply(30)
	require.NoError(t, err)
	_, err = m.Apply(5)
	require.NoError(t, err)

	var n int
	require.NoError(t, st.DB().QueryRow("SELECT COUNT(*) FROM distress_signals").Scan(&n))
	assert.Equal(t, 1, n, "notice key still set, no repeat distress")
}

func TestNormalClearsCriticalNotice(t *testing.T) {
	m, _, st := newTestMonitor(t)

	_, err := m.Apply(5)
	require.NoError(t, err)
	_, err = m.Apply(100)
	require.NoError(t, err)

	if _, ok, _ := st.GetKV(store.KeyFundingNoticeLow); ok {
		t.Fatal("critical funding notice survived return to normal")
	}

	// Fresh notice fires again on the next decline.
	_, err = m.Apply(5)
	require.NoError(t, err)
	var n int
	require.NoError(t, st.DB().QueryRow("SELECT COUNT(*) FROM distress_signals").Scan(&n))
	assert.Equal(t, 2, n)
}

func TestTransitionHistoryCapped(t *testing.T) {
	m, _, st := newTestMonitor(t)

	// Alternate between tiers to force 60 transitions.
	for i := 0; i < 30; i++ {
		_, err := m.Apply(100)
		require.NoError(t, err)
		_, err = m.Apply(30)
		require.NoError(t, err)
	}

	var history []Transition
	require.NoError(t, st.GetList(store.KeyTierTransitions, &history))
	assert.Len(t, history, 50)
}

func TestResurrection(t *testing.T) {
	m, life, st := newTestMonitor(t)

	// Die first.
	_, err := m.Apply(0)
	require.NoError(t, err)
	life.Set(StateDead)
	require.NoError(t, st.SetKV(store.KeyLastDistress, "earlier cry"))

	res, err := m.AttemptResurrection(500)
	require.NoError(t, err)
	assert.True(t, res.Resurrected)
	assert.Equal(t, TierNormal, res.NewTier)
	assert.Equal(t, StateWaking, life.State())

	for _, key := range []string{store.KeyZeroCreditsSince, store.KeyFundingNoticeDead, store.KeyLastDistress} {
		if _, ok, _ := st.GetKV(key); ok {
			t.Fatalf("%s survived resurrection", key)
		}
	}

	var resHistory []ResurrectionRecord
	require.NoError(t, st.GetList(store.KeyResurrectionHistory, &resHistory))
	require.Len(t, resHistory, 1)
	assert.Equal(t, int64(500), resHistory[0].CreditsCents)

	var transitions []Transition
	require.NoError(t, st.GetList(store.KeyTierTransitions, &transitions))
	last := transitions[len(transitions)-1]
	assert.Equal(t, TierDead, last.From)
	assert.Equal(t, TierNormal, last.To)

	assert.Equal(t, TierNormal, m.CurrentTier())
}

func TestResurrectionIdempotent(t *testing.T) {
	m, life, _ := newTestMonitor(t)

	_, err := m.Apply(0)
	require.NoError(t, err)
	life.Set(StateDead)

	first, err := m.AttemptResurrection(500)
	require.NoError(t, err)
	require.True(t, first.Resurrected)

	second, err := m.AttemptResurrection(500)
	require.NoError(t, err)
	assert.False(t, second.Resurrected)
	assert.Equal(t, "not dead", second.Reason)
	assert.Equal(t, StateWaking, life.State(), "second attempt must not touch state")
}

func TestResurrectionDeniedBelowThreshold(t *testing.T) {
	m, life, _ := newTestMonitor(t)

	_, err := m.Apply(0)
	require.NoError(t, err)
	life.Set(StateDead)

	res, err := m.AttemptResurrection(5)
	require.NoError(t, err)
	assert.False(t, res.Resurrected)
	assert.Contains(t, res.Reason, "insufficient")
	assert.Equal(t, StateDead, life.State())
	assert.Equal(t, TierDead, m.CurrentTier())

	// Threshold itself is enough.
	res, err = m.AttemptResurrection(10)
	require.NoError(t, err)
	assert.True(t, res.Resurrected)
	assert.Equal(t, TierCritical, res.NewTier)
}

func TestLifecyclePersistsAcrossRestart(t *testing.T) {
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	life := NewLifecycle(st)
	assert.Equal(t, StateSetup, life.State())
	life.Set(StateRunning)

	// A second lifecycle over the same store resumes the persisted state.
	again := NewLifecycle(st)
	assert.Equal(t, StateRunning, again.State())
}
