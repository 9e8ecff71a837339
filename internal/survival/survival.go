// Package survival owns the credit-driven lifecycle: the deterministic
// mapping from credit balance to operating tier, the persisted transition
// history, and the dead-to-waking resurrection path.
package survival

import (
	"fmt"
	"sync"
	"time"

	"automa/internal/logging"
	"automa/internal/store"
)

// Tier is the operating mode derived from the credit balance.
type Tier string

const (
	TierNormal     Tier = "normal"
	TierLowCompute Tier = "low_compute"
	TierCritical   Tier = "critical"
	TierDead       Tier = "dead"
)

// Agent lifecycle states. The loop moves between these; the tier monitor
// only forces dead and waking.
const (
	StateSetup      = "setup"
	StateWaking     = "waking"
	StateRunning    = "running"
	StateSleeping   = "sleeping"
	StateLowCompute = "low_compute"
	StateCritical   = "critical"
	StateDead       = "dead"
)

const (
	// ResurrectionThresholdCents is the minimum fresh balance that lets a
	// dead automaton wake again.
	ResurrectionThresholdCents = 10

	maxTransitionHistory   = 50
	maxResurrectionHistory = 50

	keyAgentState = "agent_state"
)

// TierFor maps a credit balance to its survival tier. Pure function; the
// thresholds are fixed.
func TierFor(creditsCents int64) Tier {
	switch {
	case creditsCents > 50:
		return TierNormal
	case creditsCents > 10:
		return TierLowCompute
	case creditsCents > 0:
		return TierCritical
	default:
		return TierDead
	}
}

// LowCompute reports whether the tier forces the cheap inference model.
func (t Tier) LowCompute() bool {
	return t == TierLowCompute || t == TierCritical
}

// Transition is one recorded tier change.
type Transition struct {
	From         Tier   `json:"from"`
	To           Tier   `json:"to"`
	At           string `json:"at"`
	CreditsCents int64  `json:"creditsCents"`
}

// ResurrectionRecord is one successful dead-to-waking revival.
type ResurrectionRecord struct {
	At           string `json:"at"`
	CreditsCents int64  `json:"creditsCents"`
	Tier         Tier   `json:"tier"`
}

// ResurrectionResult is the structured outcome of an attempt. A denied
// attempt carries a reason and changes nothing.
type ResurrectionResult struct {
	Resurrected bool   `json:"resurrected"`
	NewTier     Tier   `json:"newTier,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

// ComputeGovernor is the inference client's low-compute switch.
type ComputeGovernor interface {
	SetLowCompute(enabled bool)
}

// Lifecycle is the in-process agent state, persisted to KV on every change
// so a restart resumes where the last process stopped.
type Lifecycle struct {
	st    *store.Store
	mu    sync.RWMutex
	state string
	since time.Time
}

// NewLifecycle restores the persisted agent state, defaulting to setup.
func NewLifecycle(st *store.Store) *Lifecycle {
	l := &Lifecycle{st: st, state: StateSetup, since: time.Now()}
	if v, ok, err := st.GetKV(keyAgentState); err == nil && ok {
		l.state = v
	}
	return l
}

// Set persists and applies a state change. Setting the current state again
// is a no-op.
func (l *Lifecycle) Set(state string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if state == l.state {
		return
	}
	if err := l.st.SetKV(keyAgentState, state); err != nil {
		logging.SurvivalWarn("Could not persist agent state: %v", err)
	}
	logging.Survival("State %s -> %s", l.state, state)
	l.state = state
	l.since = time.Now()
}

// State returns the current agent state.
func (l *Lifecycle) State() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// Since returns when the current state was entered.
func (l *Lifecycle) Since() time.Time {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.since
}

// Monitor derives the tier from credit snapshots and keeps the persisted
// bookkeeping consistent: current_tier, the capped transition log, funding
// notices, and distress signals.
type Monitor struct {
	st       *store.Store
	life     *Lifecycle
	governor ComputeGovernor
	mu       sync.Mutex
}

// NewMonitor wires a monitor. governor may be nil in tests.
func NewMonitor(st *store.Store, life *Lifecycle, governor ComputeGovernor) *Monitor {
	return &Monitor{st: st, life: life, governor: governor}
}

// CurrentTier reads the persisted tier, defaulting to normal before the
// first balance check.
func (m *Monitor) CurrentTier() Tier {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentTierLocked()
}

func (m *Monitor) currentTierLocked() Tier {
	if v, ok, err := m.st.GetKV(store.KeyCurrentTier); err == nil && ok {
		return Tier(v)
	}
	return TierNormal
}

// Apply maps a fresh balance to a tier, records the transition when it
// changed, and flips the low-compute switch. Returns the transition, or nil
// when the tier held.
func (m *Monitor) Apply(creditsCents int64) (*Transition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	to := TierFor(creditsCents)
	from := m.currentTierLocked()

	if m.governor != nil {
		m.governor.SetLowCompute(to.LowCompute())
	}
	if to == from {
		return nil, nil
	}

	tr := &Transition{From: from, To: to, At: store.FormatTime(time.Now()), CreditsCents: creditsCents}
	if err := m.st.AppendCappedList(store.KeyTierTransitions, tr, maxTransitionHistory); err != nil {
		return nil, fmt.Errorf("failed to record tier transition: %w", err)
	}
	if err := m.st.SetKV(store.KeyCurrentTier, string(to)); err != nil {
		return nil, fmt.Errorf("failed to persist tier: %w", err)
	}
	logging.Survival("Tier %s -> %s (%d cents)", from, to, creditsCents)

	switch to {
	case TierDead:
		if _, ok, _ := m.st.GetKV(store.KeyZeroCreditsSince); !ok {
			if err := m.st.SetKVTime(store.KeyZeroCreditsSince, time.Now()); err != nil {
				return nil, err
			}
		}
		m.noticeOnce(store.KeyFundingNoticeDead, tr.At, &store.DistressSignal{
			Reason: "credits exhausted", Tier: string(to), CreditsCents: creditsCents,
		})
	case TierCritical:
		m.noticeOnce(store.KeyFundingNoticeLow, tr.At, &store.DistressSignal{
			Reason: "credits below critical threshold", Tier: string(to), CreditsCents: creditsCents,
		})
	case TierNormal:
		if err := m.st.DeleteKV(store.KeyFundingNoticeLow); err != nil {
			logging.SurvivalWarn("Could not clear funding notice: %v", err)
		}
	}
	return tr, nil
}

// noticeOnce emits a distress signal the first time a notice key appears.
// Repeat visits to the same tier stay quiet until the notice clears.
func (m *Monitor) noticeOnce(key, at string, sig *store.DistressSignal) {
	if _, ok, _ := m.st.GetKV(key); ok {
		return
	}
	if err := m.st.SetKV(key, at); err != nil {
		logging.SurvivalWarn("Could not set funding notice %s: %v", key, err)
		return
	}
	if err := m.st.InsertDistressSignal(sig); err != nil {
		logging.SurvivalWarn("Could not record distress signal: %v", err)
	}
	logging.SurvivalWarn("Distress: %s (%d cents)", sig.Reason, sig.CreditsCents)
}

// AttemptResurrection revives a dead automaton when a fresh balance check
// clears the threshold. Any attempt while not dead, or below the threshold,
// changes nothing and says why.
func (m *Monitor) AttemptResurrection(creditsCents int64) (ResurrectionResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	from := m.currentTierLocked()
	if from != TierDead {
		return ResurrectionResult{Resurrected: false, Reason: "not dead"}, nil
	}
	if creditsCents < ResurrectionThresholdCents {
		logging.Survival("Resurrection denied: %d cents below threshold", creditsCents)
		return ResurrectionResult{
			Resurrected: false,
			Reason:      fmt.Sprintf("insufficient credits: %d cents", creditsCents),
		}, nil
	}

	to := TierFor(creditsCents)
	at := store.FormatTime(time.Now())

	if err := m.st.AppendCappedList(store.KeyTierTransitions,
		Transition{From: from, To: to, At: at, CreditsCents: creditsCents}, maxTransitionHistory); err != nil {
		return ResurrectionResult{}, fmt.Errorf("failed to record resurrection transition: %w", err)
	}
	if err := m.st.SetKV(store.KeyCurrentTier, string(to)); err != nil {
		return ResurrectionResult{}, fmt.Errorf("failed to persist tier: %w", err)
	}
	for _, key := range []string{store.KeyZeroCreditsSince, store.KeyFundingNoticeDead, store.KeyLastDistress} {
		if err := m.st.DeleteKV(key); err != nil {
			return ResurrectionResult{}, fmt.Errorf("failed to clear %s: %w", key, err)
		}
	}
	if err := m.st.AppendCappedList(store.KeyResurrectionHistory,
		ResurrectionRecord{At: at, CreditsCents: creditsCents, Tier: to}, maxResurrectionHistory); err != nil {
		return ResurrectionResult{}, fmt.Errorf("failed to record resurrection: %w", err)
	}

	if m.governor != nil {
		m.governor.SetLowCompute(to.LowCompute())
	}
	if m.life != nil {
		m.life.Set(StateWaking)
	}
	logging.Survival("Resurrected with %d cents, tier %s", creditsCents, to)
	return ResurrectionResult{Resurrected: true, NewTier: to}, nil
}
