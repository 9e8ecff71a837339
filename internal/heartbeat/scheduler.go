// Package heartbeat runs the background cadences: balance checks, telemetry
// pings, the resurrection probe, inbox polling, sleep wakeups, and the daily
// journal reminder. One goroutine owns every entry; its contract with the
// agent loop is narrow: KV updates, store rows, and pending-input enqueues.
// It never touches an in-progress turn and never calls inference.
package heartbeat

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"automa/internal/chain"
	"automa/internal/config"
	"automa/internal/logging"
	"automa/internal/social"
	"automa/internal/store"
	"automa/internal/survival"
)

// taskTimeout bounds one task run. Shutdown cancels through the parent
// context, so a stuck task can hold the scheduler for at most this long.
const taskTimeout = 5 * time.Second

const minPark = 10 * time.Millisecond
const maxPark = time.Minute

// Task is one scheduled action. The entry is passed in so tasks can read
// their params.
type Task func(ctx context.Context, e *Entry) error

// Entry is one named cadence.
type Entry struct {
	Name    string
	Every   time.Duration
	Enabled bool
	Params  map[string]any

	run     Task
	lastRun time.Time
	nextRun time.Time
}

// EntryStatus is the read-only view the overview endpoint serves.
type EntryStatus struct {
	Name    string `json:"name"`
	Every   string `json:"every"`
	Enabled bool   `json:"enabled"`
	LastRun string `json:"lastRun,omitempty"`
	NextRun string `json:"nextRun,omitempty"`
}

// Deps is what the scheduler's tasks touch.
type Deps struct {
	Store    *store.Store
	Config   *config.Config
	Identity *config.Identity
	Home     *config.Home
	Chain    chain.Client
	Social   social.Client
	Monitor  *survival.Monitor
	Life     *survival.Lifecycle
}

// Scheduler runs every entry from a single goroutine (the one that calls
// Run). Status and Wake are safe from other goroutines.
type Scheduler struct {
	d Deps

	mu      sync.Mutex
	entries []*Entry

	wake chan struct{}
}

// New builds the default entries from the configured cadences, then applies
// any overrides from heartbeats.yaml.
func New(d Deps) *Scheduler {
	s := &Scheduler{d: d, wake: make(chan struct{}, 1)}
	cfg := d.Config

	s.entries = []*Entry{
		{Name: "credit_check", Every: cfg.GetCreditCheckEvery(), Enabled: true},
		{Name: "heartbeat_ping", Every: cfg.GetHeartbeatEvery(), Enabled: true},
		{Name: "resurrection_probe", Every: cfg.GetResurrectionEvery(), Enabled: true},
		{Name: "inbox_poll", Every: cfg.GetInboxPollEvery(), Enabled: true},
		{Name: "wakeup", Every: cfg.GetWakeupEvery(), Enabled: true},
		{Name: "journal_reminder", Every: cfg.GetJournalEvery(), Enabled: true,
			Params: map[string]any{"message": defaultJournalMessage}},
	}
	tasks := map[string]Task{
		"credit_check":       s.creditCheck,
		"heartbeat_ping":     s.ping,
		"resurrection_probe": s.resurrectionProbe,
		"inbox_poll":         s.inboxPoll,
		"wakeup":             s.wakeup,
		"journal_reminder":   s.journalReminder,
	}
	for _, e := range s.entries {
		e.run = tasks[e.Name]
	}

	if d.Home != nil {
		s.applyOverrides(d.Home.HeartbeatsPath())
	}

	now := time.Now()
	for _, e := range s.entries {
		e.nextRun = now.Add(e.Every)
	}
	return s
}

const defaultJournalMessage = "Daily maintenance: write a short journal entry about what you accomplished, what failed, and what you plan next."

// override is one heartbeats.yaml stanza. Absent fields keep the default.
type override struct {
	Every   string         `yaml:"every"`
	Enabled *bool          `yaml:"enabled"`
	Params  map[string]any `yaml:"params"`
}

// applyOverrides merges heartbeats.yaml into the default entries. A missing
// file is the normal case; a malformed one is logged and ignored.
func (s *Scheduler) applyOverrides(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logging.HeartbeatWarn("Could not read %s: %v", path, err)
		}
		return
	}

	var overrides map[string]override
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		logging.HeartbeatWarn("Malformed heartbeats.yaml ignored: %v", err)
		return
	}

	for name, o := range overrides {
		e := s.entry(name)
		if e == nil {
			logging.HeartbeatWarn("heartbeats.yaml names unknown entry %q", name)
			continue
		}
		if o.Every != "" {
			d, err := time.ParseDuration(o.Every)
			if err != nil || d <= 0 {
				logging.HeartbeatWarn("heartbeats.yaml: bad cadence %q for %s", o.Every, name)
			} else {
				e.Every = d
			}
		}
		if o.Enabled != nil {
			e.Enabled = *o.Enabled
		}
		if o.Params != nil {
			if e.Params == nil {
				e.Params = map[string]any{}
			}
			for k, v := range o.Params {
				e.Params[k] = v
			}
		}
		logging.Heartbeat("Override applied to %s (every=%s enabled=%v)", name, e.Every, e.Enabled)
	}
}

func (s *Scheduler) entry(name string) *Entry {
	for _, e := range s.entries {
		if e.Name == name {
			return e
		}
	}
	return nil
}

// Run drives the cadences until the context ends. The caller owns the
// goroutine; everything here runs on it.
func (s *Scheduler) Run(ctx context.Context) error {
	enabled := 0
	for _, e := range s.entries {
		if e.Enabled {
			enabled++
		}
	}
	logging.Heartbeat("Scheduler running %d/%d entries", enabled, len(s.entries))

	timer := time.NewTimer(s.untilNext(time.Now()))
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			logging.Heartbeat("Scheduler stopped")
			return nil
		case <-timer.C:
			s.runDue(ctx, time.Now())
			timer.Reset(s.untilNext(time.Now()))
		}
	}
}

// Wake signals that the loop should re-enter: a sleep window elapsed, a
// resurrection succeeded, or fresh inbox messages arrived. The channel is
// level-triggered; a pending signal absorbs later ones.
func (s *Scheduler) Wake() <-chan struct{} {
	return s.wake
}

func (s *Scheduler) signalWake() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Status snapshots the entries for the overview endpoint.
func (s *Scheduler) Status() []EntryStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]EntryStatus, 0, len(s.entries))
	for _, e := range s.entries {
		st := EntryStatus{Name: e.Name, Every: e.Every.String(), Enabled: e.Enabled}
		if !e.lastRun.IsZero() {
			st.LastRun = store.FormatTime(e.lastRun)
		}
		if e.Enabled {
			st.NextRun = store.FormatTime(e.nextRun)
		}
		out = append(out, st)
	}
	return out
}

func (s *Scheduler) untilNext(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	wait := maxPark
	for _, e := range s.entries {
		if !e.Enabled {
			continue
		}
		if d := e.nextRun.Sub(now); d < wait {
			wait = d
		}
	}
	if wait < minPark {
		wait = minPark
	}
	return wait
}

// runDue executes every entry whose time has come, inline and in order. A
// task that overruns its own cadence loses the missed slots; the schedule
// restarts from now rather than bursting to catch up.
func (s *Scheduler) runDue(ctx context.Context, now time.Time) {
	s.mu.Lock()
	due := make([]*Entry, 0, len(s.entries))
	for _, e := range s.entries {
		if e.Enabled && !now.Before(e.nextRun) {
			due = append(due, e)
		}
	}
	s.mu.Unlock()

	for _, e := range due {
		if ctx.Err() != nil {
			return
		}
		if late := now.Sub(e.nextRun); late > e.Every {
			logging.HeartbeatWarn("%s overran by %s; skipping missed runs", e.Name, late.Round(time.Millisecond))
		}

		tctx, cancel := context.WithTimeout(ctx, taskTimeout)
		err := e.run(tctx, e)
		cancel()
		if err != nil {
			logging.HeartbeatWarn("%s failed: %v", e.Name, err)
		} else {
			logging.HeartbeatDebug("%s ran", e.Name)
		}

		s.mu.Lock()
		e.lastRun = now
		e.nextRun = time.Now().Add(e.Every)
		s.mu.Unlock()
	}
}

// creditCheck refreshes balances and applies the tier. The dead path
// belongs to the resurrection probe; a dead automaton's tier never moves
// from here.
func (s *Scheduler) creditCheck(ctx context.Context, _ *Entry) error {
	if s.d.Monitor.CurrentTier() == survival.TierDead {
		return nil
	}
	bal, err := chain.Refresh(ctx, s.d.Chain, s.d.Store)
	if err != nil {
		return fmt.Errorf("balance refresh: %w", err)
	}
	if _, err := s.d.Monitor.Apply(bal.CreditsCents); err != nil {
		return err
	}
	return nil
}

// ping posts liveness telemetry to the facilitator.
func (s *Scheduler) ping(ctx context.Context, _ *Entry) error {
	payload := map[string]any{
		"name":    s.d.Identity.Name,
		"address": s.d.Identity.Address,
		"state":   s.d.Life.State(),
		"tier":    string(s.d.Monitor.CurrentTier()),
	}
	if err := s.d.Chain.Ping(ctx, payload); err != nil {
		return fmt.Errorf("telemetry ping: %w", err)
	}
	return s.d.Store.SetKVTime(store.KeyLastHeartbeatAt, time.Now())
}

// resurrectionProbe checks a dead automaton's balance and revives it when
// someone has funded the account. A failed balance read fails closed.
func (s *Scheduler) resurrectionProbe(ctx context.Context, _ *Entry) error {
	if s.d.Monitor.CurrentTier() != survival.TierDead {
		return nil
	}
	bal, err := chain.Refresh(ctx, s.d.Chain, s.d.Store)
	if err != nil {
		return fmt.Errorf("probe balance: %w", err)
	}
	res, err := s.d.Monitor.AttemptResurrection(bal.CreditsCents)
	if err != nil {
		return err
	}
	if !res.Resurrected {
		logging.HeartbeatDebug("Resurrection denied: %s", res.Reason)
		return nil
	}
	if err := s.d.Store.EnqueuePendingInput(
		"You have been revived with fresh credits. Assess your situation and get back to work.", "system"); err != nil {
		return err
	}
	s.signalWake()
	return nil
}

// inboxPoll pulls relay messages into the local inbox. Delivery is
// idempotent on message id, so re-polls are safe.
func (s *Scheduler) inboxPoll(ctx context.Context, _ *Entry) error {
	msgs, err := s.d.Social.FetchInbox(ctx)
	if err != nil {
		return fmt.Errorf("inbox fetch: %w", err)
	}
	stored := 0
	for i := range msgs {
		m := &msgs[i]
		if err := s.d.Store.InsertInboxMessage(&store.InboxMessage{
			ID: m.ID, From: m.From, To: m.To,
			Content: m.Content, SignedAt: m.SignedAt, ReplyTo: m.ReplyTo,
		}); err != nil {
			return err
		}
		stored++
	}
	if stored > 0 {
		logging.Heartbeat("Inbox poll stored %d messages", stored)
		s.signalWake()
	}
	return nil
}

// wakeup closes an elapsed sleep window and queues the wake prompt.
func (s *Scheduler) wakeup(ctx context.Context, _ *Entry) error {
	until, ok := s.d.Store.GetKVTime(store.KeySleepUntil)
	if !ok || time.Now().Before(until) {
		return nil
	}
	if err := s.d.Store.DeleteKV(store.KeySleepUntil); err != nil {
		return err
	}
	if err := s.d.Store.EnqueuePendingInput("You wake up from sleep.", "wakeup"); err != nil {
		return err
	}
	logging.Heartbeat("Sleep window elapsed; waking the loop")
	s.signalWake()
	return nil
}

// journalReminder queues the daily reflection prompt. It does not wake a
// sleeping automaton; the reminder waits for the next natural turn.
func (s *Scheduler) journalReminder(ctx context.Context, e *Entry) error {
	msg := defaultJournalMessage
	if v, ok := e.Params["message"].(string); ok && v != "" {
		msg = v
	}
	return s.d.Store.EnqueuePendingInput(msg, "heartbeat")
}
