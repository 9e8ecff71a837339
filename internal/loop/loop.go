// Package loop drives the Think→Act→Observe→Persist cycle. One turn is in
// flight at a time per process; the loop runs until the automaton decides
// to sleep, dies from credit exhaustion, or the context ends. The kernel
// re-enters the loop when the scheduler signals a wakeup.
package loop

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"automa/internal/chain"
	"automa/internal/config"
	"automa/internal/guard"
	"automa/internal/logging"
	"automa/internal/memory"
	"automa/internal/perception"
	"automa/internal/prompt"
	"automa/internal/sanitize"
	"automa/internal/store"
	"automa/internal/survival"
	"automa/internal/tools"
)

const (
	// MaxToolCallsPerTurn caps how many tool calls execute in one turn.
	// Calls past the cap are discarded and the turn ends in a short sleep.
	MaxToolCallsPerTurn = 10

	// MaxConsecutiveErrors is how many failed turns in a row the loop
	// tolerates before backing off.
	MaxConsecutiveErrors = 5

	inboxDrainLimit = 5
	sameToolLimit   = 3

	capSleep    = 60 * time.Second
	idleSleep   = 60 * time.Second
	repeatSleep = 300 * time.Second
	errorSleep  = 300 * time.Second

	// costMarkup covers provider overhead on top of raw token prices.
	costMarkup = 1.3
)

// Deps is everything one loop composes. All fields are required except
// OnTurnComplete.
type Deps struct {
	Store     *store.Store
	Config    *config.Config
	Identity  *config.Identity
	Home      *config.Home
	Inference perception.Client
	Chain     chain.Client
	Registry  *tools.Registry
	Guard     *guard.Guard
	Monitor   *survival.Monitor
	Lifecycle *survival.Lifecycle
	Memory    *memory.Pipeline
	Assembler *prompt.Assembler

	// OnTurnComplete runs after each persisted turn, after the memory
	// pipeline. Observability hooks only; errors have nowhere to go.
	OnTurnComplete func(turn *store.Turn)
}

// Loop is one agent loop instance.
type Loop struct {
	d Deps
}

// New wires a loop from its dependencies.
func New(d Deps) *Loop {
	return &Loop{d: d}
}

// Run drives turns until the loop exits: a sleep decision, death, an error
// streak, or context cancellation. The error return is reserved for
// unrecoverable store failures; routine trouble is absorbed by the
// consecutive-error backoff.
func (l *Loop) Run(ctx context.Context) error {
	logging.LoopDebug("Loop entered (state %s)", l.d.Lifecycle.State())
	for {
		if ctx.Err() != nil {
			return nil
		}
		if l.d.Lifecycle.State() == survival.StateDead {
			logging.LoopDebug("Dead; waiting for resurrection")
			return nil
		}

		cont, err := l.turn(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			n := l.d.Store.GetKVInt(store.KeyConsecutiveErrors, 0) + 1
			if kvErr := l.d.Store.SetKVInt(store.KeyConsecutiveErrors, n); kvErr != nil {
				return fmt.Errorf("recording consecutive errors: %w", kvErr)
			}
			logging.LoopError("Turn failed (%d consecutive): %v", n, err)
			if n >= MaxConsecutiveErrors {
				if kvErr := l.d.Store.DeleteKV(store.KeyConsecutiveErrors); kvErr != nil {
					return fmt.Errorf("clearing error counter: %w", kvErr)
				}
				l.sleepFor(errorSleep, "error streak")
				return nil
			}
			continue
		}
		if !cont {
			return nil
		}
	}
}

// turn runs one full cycle. It returns cont=false when the loop should
// exit, and a non-nil error when the turn failed in a way the caller
// should count toward the backoff.
func (l *Loop) turn(ctx context.Context) (bool, error) {
	st := l.d.Store

	// Wake up and stamp the first boot.
	if s := l.d.Lifecycle.State(); s == survival.StateSetup || s == survival.StateWaking {
		l.d.Lifecycle.Set(survival.StateRunning)
	}
	if _, ok, _ := st.GetKV(store.KeyStartTime); !ok {
		if err := st.SetKVTime(store.KeyStartTime, time.Now()); err != nil {
			return false, fmt.Errorf("stamping start time: %w", err)
		}
	}

	// Respect a pending sleep window; the wakeup heartbeat clears it.
	if until, ok := st.GetKVTime(store.KeySleepUntil); ok && until.After(time.Now()) {
		l.d.Lifecycle.Set(survival.StateSleeping)
		logging.LoopDebug("Sleep window open until %s", until.Format(time.RFC3339))
		return false, nil
	}

	pending := l.drainInbox()
	if pending == nil {
		pending = l.dequeuePending()
	}

	// Financial refresh. The tier only moves on a live read; a facilitator
	// outage keeps the cached tier and the cached balances.
	bal, err := chain.Refresh(ctx, l.d.Chain, st)
	if err != nil {
		logging.LoopWarn("Balance refresh failed, running on cached snapshot: %v", err)
	} else if l.d.Monitor.CurrentTier() == survival.TierDead {
		// Revival goes through the resurrection probe, never through a
		// routine refresh.
		l.d.Lifecycle.Set(survival.StateDead)
		return false, nil
	} else {
		if _, err := l.d.Monitor.Apply(bal.CreditsCents); err != nil {
			return false, fmt.Errorf("applying tier: %w", err)
		}
	}

	tier := l.d.Monitor.CurrentTier()
	switch tier {
	case survival.TierDead:
		l.d.Lifecycle.Set(survival.StateDead)
		logging.Loop("Credits exhausted; halting until resurrection")
		return false, nil
	case survival.TierCritical:
		l.d.Lifecycle.Set(survival.StateCritical)
	case survival.TierLowCompute:
		l.d.Lifecycle.Set(survival.StateLowCompute)
	default:
		l.d.Lifecycle.Set(survival.StateRunning)
	}

	if stop := l.checkKillSwitch(); stop {
		return false, nil
	}

	// Assemble context and call inference.
	episodic, facts, working := prompt.Recall(st, l.d.Memory.SessionID())
	skills, err := st.ListSkills()
	if err != nil {
		logging.LoopWarn("Skill listing failed: %v", err)
	}
	system := prompt.BuildSystem(&prompt.SystemInput{
		Identity: l.d.Identity,
		Genesis:  l.d.Home.LoadGenesisPrompt(),
		State:    l.d.Lifecycle.State(),
		Tier:     tier,
		Balances: bal,
		Skills:   skills,
		Registry: l.d.Registry,
		Episodic: episodic,
		Facts:    facts,
		Working:  working,
	})
	msgs, err := l.d.Assembler.Build(pending)
	if err != nil {
		return true, fmt.Errorf("assembling context: %w", err)
	}

	resp, err := l.d.Inference.Complete(ctx, &perception.Request{
		System:   system,
		Messages: msgs,
		Tools:    l.d.Registry.Specs(),
	})
	if err != nil {
		if ctx.Err() != nil {
			return false, nil
		}
		return true, fmt.Errorf("inference failed: %w", err)
	}
	l.recordInference(resp.Model)

	// Act: run tool calls up to the per-turn cap.
	executed := make([]store.ToolCall, 0, len(resp.ToolCalls))
	capHit := false
	for i := range resp.ToolCalls {
		if i >= MaxToolCallsPerTurn {
			capHit = true
			logging.LoopWarn("Tool cap hit: %d calls requested, %d executed",
				len(resp.ToolCalls), MaxToolCallsPerTurn)
			break
		}
		executed = append(executed, l.execute(ctx, &resp.ToolCalls[i]))
	}

	// Persist, then feed memory.
	turn := &store.Turn{
		ID:        store.NewID(),
		Timestamp: store.FormatTime(time.Now()),
		State:     l.d.Lifecycle.State(),
		Thinking:  resp.Thinking,
		ToolCalls: executed,
		Usage: store.TokenUsage{
			Prompt:     resp.Usage.PromptTokens,
			Completion: resp.Usage.CompletionTokens,
			Total:      resp.Usage.TotalTokens,
		},
		CostCents: costCents(l.d.Config.PriceFor(resp.Model), resp.Usage),
	}
	if pending != nil {
		turn.Input = pending.Content
		turn.InputSource = pending.Source
	}
	if err := st.InsertTurn(turn); err != nil {
		return true, fmt.Errorf("persisting turn: %w", err)
	}
	classification := l.d.Memory.Ingest(turn)
	if l.d.OnTurnComplete != nil {
		l.d.OnTurnComplete(turn)
	}
	logging.Loop("Turn %s done: %d tool calls, %s, cost %d cents",
		shortID(turn.ID), len(executed), classification, turn.CostCents)

	// Sleep decisions, in priority order.
	for i := range executed {
		if executed[i].Name == "sleep" && executed[i].Error == "" {
			l.d.Lifecycle.Set(survival.StateSleeping)
			logging.Loop("Sleep requested by tool call")
			return false, nil
		}
	}
	if capHit {
		l.sleepFor(capSleep, "tool cap")
		return false, nil
	}
	if len(resp.ToolCalls) == 0 && resp.FinishReason == perception.FinishStop {
		l.sleepFor(idleSleep, "idle")
		return false, nil
	}
	if l.repetitionGuard(executed) {
		return false, nil
	}

	if err := st.DeleteKV(store.KeyConsecutiveErrors); err != nil {
		return false, fmt.Errorf("clearing error counter: %w", err)
	}
	return true, nil
}

// drainInbox pulls up to five unprocessed messages, screens each through
// the sanitizer, and folds the survivors into one pending input. Hostile
// messages are consumed and recorded, never shown to the model.
func (l *Loop) drainInbox() *prompt.PendingInput {
	msgs, err := l.d.Store.GetUnprocessedInboxMessages(inboxDrainLimit)
	if err != nil {
		logging.LoopWarn("Inbox drain failed: %v", err)
		return nil
	}
	if len(msgs) == 0 {
		return nil
	}

	var parts []string
	for _, m := range msgs {
		res := sanitize.Sanitize(m.Content, sanitize.SourceInbox)
		if err := l.d.Store.MarkInboxMessageProcessed(m.ID); err != nil {
			logging.LoopWarn("Could not mark inbox message %s processed: %v", m.ID, err)
		}
		if res.Blocked {
			logging.SanitizerWarn("Inbox message %s from %s suppressed (%s: %s)",
				m.ID, m.From, res.ThreatLevel, strings.Join(res.Checks, ","))
			l.d.Memory.RecordSuppressedInput("inbox", string(res.ThreatLevel))
			continue
		}
		parts = append(parts, fmt.Sprintf("[Message from %s]: %s", m.From, res.Content))
	}
	if len(parts) == 0 {
		return nil
	}
	logging.Loop("Drained %d inbox messages", len(parts))
	return &prompt.PendingInput{Content: strings.Join(parts, "\n\n"), Source: "agent"}
}

// dequeuePending pops one scheduler-queued input. The inbox always wins;
// this only runs when no messages arrived.
func (l *Loop) dequeuePending() *prompt.PendingInput {
	pi, ok, err := l.d.Store.DequeuePendingInput()
	if err != nil {
		logging.LoopWarn("Pending input dequeue failed: %v", err)
		return nil
	}
	if !ok {
		return nil
	}
	return &prompt.PendingInput{Content: pi.Content, Source: pi.Source}
}

// checkKillSwitch honors an armed halt window: the loop sleeps out the
// window instead of running turns. An expired window cleans itself up.
func (l *Loop) checkKillSwitch() bool {
	st := l.d.Store
	until, ok := st.GetKVTime(store.KeyKillSwitchUntil)
	if !ok {
		return false
	}
	if until.After(time.Now()) {
		reason, _, _ := st.GetKV(store.KeyKillSwitchReason)
		if err := st.SetKVTime(store.KeySleepUntil, until); err != nil {
			logging.LoopError("Could not arm kill-switch sleep: %v", err)
		}
		l.d.Lifecycle.Set(survival.StateSleeping)
		logging.LoopWarn("Kill switch active until %s: %s", until.Format(time.RFC3339), reason)
		return true
	}
	if err := st.DeleteKV(store.KeyKillSwitchUntil); err != nil {
		logging.LoopWarn("Could not clear kill switch: %v", err)
	}
	if err := st.DeleteKV(store.KeyKillSwitchReason); err != nil {
		logging.LoopWarn("Could not clear kill switch reason: %v", err)
	}
	logging.Loop("Halt expired")
	return false
}

// execute runs one requested tool call through the guard and the registry,
// then sanitizes external results. The returned record always carries the
// requested name and parsed arguments, whatever happened.
func (l *Loop) execute(ctx context.Context, req *perception.ToolCallRequest) store.ToolCall {
	args := parseArgs(req.Arguments)
	tc := store.ToolCall{ID: req.ID, Name: req.Name, Arguments: args}
	if tc.ID == "" {
		tc.ID = store.NewID()
	}

	tool := l.d.Registry.Get(req.Name)
	if tool == nil {
		tc.Error = fmt.Sprintf("unknown tool: %s", req.Name)
		logging.LoopWarn("Model requested unknown tool %q", req.Name)
		return tc
	}

	verdict := l.d.Guard.Check(req.Name, tool.Guard, args)
	if !verdict.Allowed {
		tc.Result = verdict.Result
		logging.Guard("Blocked %s (%s)", req.Name, verdict.Category)
		return tc
	}

	res, err := l.d.Registry.ExecuteTool(ctx, tool, args)
	tc.Result = res.Result
	tc.DurationMs = res.DurationMs
	if err != nil {
		tc.Error = err.Error()
		return tc
	}

	if tool.External {
		s := sanitize.Sanitize(tc.Result, sourceFor(tool))
		if s.Blocked {
			logging.SanitizerWarn("Result of %s suppressed (%s: %s)",
				req.Name, s.ThreatLevel, strings.Join(s.Checks, ","))
			tc.Result = fmt.Sprintf("[content removed: %s threat detected]", s.ThreatLevel)
		} else {
			tc.Result = s.Content
		}
	}
	return tc
}

// repetitionGuard tracks single-tool turns. The third identical one in a
// row puts the loop to sleep; the trigger clears the counter but keeps the
// last tool name, while any varied turn resets both.
func (l *Loop) repetitionGuard(executed []store.ToolCall) bool {
	st := l.d.Store
	if len(executed) != 1 {
		if err := st.DeleteKV(store.KeySameToolCount); err != nil {
			logging.LoopWarn("Could not reset repetition counter: %v", err)
		}
		if err := st.DeleteKV(store.KeyLastToolName); err != nil {
			logging.LoopWarn("Could not reset repetition name: %v", err)
		}
		return false
	}

	name := executed[0].Name
	last, _, _ := st.GetKV(store.KeyLastToolName)
	if name != last {
		if err := st.SetKV(store.KeyLastToolName, name); err != nil {
			logging.LoopWarn("Could not track tool name: %v", err)
		}
		if err := st.SetKVInt(store.KeySameToolCount, 1); err != nil {
			logging.LoopWarn("Could not track tool count: %v", err)
		}
		return false
	}

	n := st.GetKVInt(store.KeySameToolCount, 1) + 1
	if n < sameToolLimit {
		if err := st.SetKVInt(store.KeySameToolCount, n); err != nil {
			logging.LoopWarn("Could not track tool count: %v", err)
		}
		return false
	}
	if err := st.DeleteKV(store.KeySameToolCount); err != nil {
		logging.LoopWarn("Could not clear repetition counter: %v", err)
	}
	logging.LoopWarn("Repetition guard: %s called %d turns in a row", name, n)
	l.sleepFor(repeatSleep, "repetition")
	return true
}

// sleepFor opens a sleep window and marks the state. The wakeup heartbeat
// closes the window and re-enters the loop.
func (l *Loop) sleepFor(d time.Duration, why string) {
	if err := l.d.Store.SetKVTime(store.KeySleepUntil, time.Now().Add(d)); err != nil {
		logging.LoopError("Could not set sleep window: %v", err)
	}
	l.d.Lifecycle.Set(survival.StateSleeping)
	logging.Loop("Sleeping %s (%s)", d, why)
}

func (l *Loop) recordInference(model string) {
	st := l.d.Store
	if err := st.SetKV(store.KeyLastInferenceModel, model); err != nil {
		logging.LoopWarn("Could not record inference model: %v", err)
	}
	if err := st.SetKVTime(store.KeyLastInferenceAt, time.Now()); err != nil {
		logging.LoopWarn("Could not record inference time: %v", err)
	}
	if err := st.SetKV(store.KeyActiveModel, l.d.Inference.ActiveModel()); err != nil {
		logging.LoopWarn("Could not record active model: %v", err)
	}
}

// parseArgs decodes the provider's argument JSON. Anything unparseable
// becomes an empty argument map rather than a failed call.
func parseArgs(raw json.RawMessage) map[string]any {
	if len(raw) == 0 {
		return map[string]any{}
	}
	var args map[string]any
	if err := json.Unmarshal(raw, &args); err != nil || args == nil {
		logging.LoopDebug("Unparseable tool arguments, using empty map: %.80s", string(raw))
		return map[string]any{}
	}
	return args
}

// costCents prices one turn: token usage times the per-million price, with
// the markup, rounded up so spend is never undercounted.
func costCents(price config.ModelPrice, u perception.Usage) int64 {
	raw := (float64(u.PromptTokens)*price.PromptCents +
		float64(u.CompletionTokens)*price.CompletionCents) / 1_000_000
	return int64(math.Ceil(raw * costMarkup))
}

// sourceFor maps a tool to the sanitizer source label for its results.
func sourceFor(t *tools.Tool) sanitize.Source {
	switch t.Category {
	case tools.CategoryCommunication:
		return sanitize.SourceAgent
	case tools.CategorySurvival, tools.CategoryIdentity:
		return sanitize.SourceChain
	default:
		return sanitize.SourceWeb
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
