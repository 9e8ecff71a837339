package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Reserved KV keys. The loop, tier monitor, and scheduler coordinate through
// these; everything else in the KV table is free-form.
const (
	KeySleepUntil          = "sleep_until"
	KeyKillSwitchUntil     = "kill_switch_until"
	KeyKillSwitchReason    = "kill_switch_reason"
	KeyCurrentTier         = "current_tier"
	KeyZeroCreditsSince    = "zero_credits_since"
	KeyLastDistress        = "last_distress"
	KeyResurrectionHistory = "resurrection_history"
	KeyTierTransitions     = "tier_transitions"
	KeySameToolCount       = "same_tool_count"
	KeyLastToolName        = "last_tool_name"
	KeyActiveModel         = "active_model"
	KeyLastInferenceModel  = "last_inference_model"
	KeyLastInferenceAt     = "last_inference_at"
	KeyStartTime           = "start_time"
	KeyFundingNoticeDead   = "funding_notice_dead"
	KeyFundingNoticeLow    = "funding_notice_critical"
	KeyLastHeartbeatAt     = "last_heartbeat_at"
	KeyConsecutiveErrors   = "consecutive_errors"
	KeyCachedCredits       = "cached_credits_cents"
	KeyCachedUSDC          = "cached_usdc_balance"
	KeyBalancesCheckedAt   = "balances_checked_at"
	KeyAgentCardID         = "erc8004_agent_id"
)

// GetKV returns the value for key, with ok=false when the key is absent.
func (s *Store) GetKV(key string) (string, bool, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM kv WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get kv %s: %w", key, err)
	}
	return value, true, nil
}

// SetKV writes key=value, last writer wins.
func (s *Store) SetKV(key, value string) error {
	_, err := s.db.Exec(`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, FormatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("failed to set kv %s: %w", key, err)
	}
	return nil
}

// DeleteKV removes key. Deleting an absent key is a no-op.
func (s *Store) DeleteKV(key string) error {
	if _, err := s.db.Exec("DELETE FROM kv WHERE key = ?", key); err != nil {
		return fmt.Errorf("failed to delete kv %s: %w", key, err)
	}
	return nil
}

// GetKVTime parses the value for key in the canonical time layout. Returns
// the zero time when absent or unparseable.
func (s *Store) GetKVTime(key string) (time.Time, bool) {
	value, ok, err := s.GetKV(key)
	if err != nil || !ok {
		return time.Time{}, false
	}
	t, err := ParseTime(value)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// SetKVTime writes a timestamp value in the canonical layout.
func (s *Store) SetKVTime(key string, t time.Time) error {
	return s.SetKV(key, FormatTime(t))
}

// GetKVInt parses the value for key as an integer, with fallback on absence
// or garbage.
func (s *Store) GetKVInt(key string, fallback int64) int64 {
	value, ok, err := s.GetKV(key)
	if err != nil || !ok {
		return fallback
	}
	var n int64
	if _, err := fmt.Sscanf(value, "%d", &n); err != nil {
		return fallback
	}
	return n
}

// SetKVInt writes an integer value.
func (s *Store) SetKVInt(key string, n int64) error {
	return s.SetKV(key, fmt.Sprintf("%d", n))
}

// AppendCappedList appends item to the JSON array stored under key,
// retaining only the newest max entries. A missing or corrupt value starts
// a fresh array.
func (s *Store) AppendCappedList(key string, item any, max int) error {
	value, ok, err := s.GetKV(key)
	if err != nil {
		return err
	}

	var list []json.RawMessage
	if ok {
		if err := json.Unmarshal([]byte(value), &list); err != nil {
			list = nil
		}
	}

	raw, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to marshal list item: %w", err)
	}
	list = append(list, raw)
	if max > 0 && len(list) > max {
		list = list[len(list)-max:]
	}

	data, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("failed to marshal list: %w", err)
	}
	return s.SetKV(key, string(data))
}

// GetList decodes the JSON array stored under key into out.
func (s *Store) GetList(key string, out any) error {
	value, ok, err := s.GetKV(key)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	return json.Unmarshal([]byte(value), out)
}
