package api

import (
	"math"
	"net/http"
	"time"

	"automa/internal/chain"
	"automa/internal/heartbeat"
	"automa/internal/store"
)

// Overview is the one-call dashboard snapshot.
type Overview struct {
	Identity IdentitySummary       `json:"identity"`
	Runtime  RuntimeSummary        `json:"runtime"`
	Model    ModelSummary          `json:"model"`
	Balances BalanceSummary        `json:"balances"`
	Distress *store.DistressSignal `json:"distress"`
}

// IdentitySummary is the persistent identity, minus anything secret.
type IdentitySummary struct {
	Name           string `json:"name"`
	Address        string `json:"address"`
	CreatorAddress string `json:"creatorAddress"`
	Role           string `json:"role,omitempty"`
	CreatedAt      string `json:"createdAt,omitempty"`
}

// RuntimeSummary describes the live loop.
type RuntimeSummary struct {
	State            string                  `json:"state"`
	Tier             string                  `json:"tier"`
	TurnCount        int                     `json:"turnCount"`
	LastTurnAt       string                  `json:"lastTurnAt,omitempty"`
	ActiveHeartbeats []heartbeat.EntryStatus `json:"activeHeartbeats"`
	LastHeartbeatAt  string                  `json:"lastHeartbeatAt,omitempty"`
	UptimeSeconds    int64                   `json:"uptimeSeconds"`
}

// ModelSummary describes inference model selection.
type ModelSummary struct {
	Configured      string `json:"configured"`
	Active          string `json:"active"`
	LastUsed        string `json:"lastUsed,omitempty"`
	LastInferenceAt string `json:"lastInferenceAt,omitempty"`
}

// BalanceSummary is the cached financial snapshot. The dashboard never
// calls the facilitator; it reports what the last refresh recorded.
type BalanceSummary struct {
	CreditsCents int64   `json:"creditsCents"`
	CreditsUSD   float64 `json:"creditsUsd"`
	USDC         float64 `json:"usdc"`
	Source       string  `json:"source"`
	CheckedAt    string  `json:"checkedAt,omitempty"`
}

func (s *Server) handleOverview(w http.ResponseWriter, _ *http.Request) {
	ov, err := s.overview()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, ov)
}

func (s *Server) overview() (*Overview, error) {
	st := s.d.Store

	turnCount, err := st.CountTurns()
	if err != nil {
		return nil, err
	}
	last, err := st.GetLastTurn()
	if err != nil {
		return nil, err
	}
	distress, err := st.LatestDistressSignal()
	if err != nil {
		return nil, err
	}

	ov := &Overview{
		Identity: IdentitySummary{
			Name:           s.d.Identity.Name,
			Address:        s.d.Identity.Address,
			CreatorAddress: s.d.Identity.CreatorAddress,
			Role:           s.d.Identity.Role,
			CreatedAt:      s.d.Identity.CreatedAt,
		},
		Runtime: RuntimeSummary{
			State:            s.d.Life.State(),
			Tier:             string(s.d.Monitor.CurrentTier()),
			TurnCount:        turnCount,
			ActiveHeartbeats: []heartbeat.EntryStatus{},
		},
		Model: ModelSummary{
			Configured: s.d.Config.Inference.Model,
		},
		Distress: distress,
	}

	if last != nil {
		ov.Runtime.LastTurnAt = last.Timestamp
	}
	if s.d.Heartbeats != nil {
		ov.Runtime.ActiveHeartbeats = s.d.Heartbeats.Status()
	}
	if at, ok := st.GetKVTime(store.KeyLastHeartbeatAt); ok {
		ov.Runtime.LastHeartbeatAt = store.FormatTime(at)
	}
	if start, ok := st.GetKVTime(store.KeyStartTime); ok {
		ov.Runtime.UptimeSeconds = int64(time.Since(start).Seconds())
	}

	if s.d.Inference != nil {
		ov.Model.Active = s.d.Inference.ActiveModel()
	}
	if v, ok, _ := st.GetKV(store.KeyLastInferenceModel); ok {
		ov.Model.LastUsed = v
	}
	if v, ok, _ := st.GetKV(store.KeyLastInferenceAt); ok {
		ov.Model.LastInferenceAt = v
	}

	bal := chain.Cached(st)
	ov.Balances = BalanceSummary{
		CreditsCents: bal.CreditsCents,
		CreditsUSD:   round(float64(bal.CreditsCents)/100, 2),
		USDC:         round(bal.USDC, 6),
		Source:       bal.Source,
	}
	if !bal.CheckedAt.IsZero() {
		ov.Balances.CheckedAt = store.FormatTime(bal.CheckedAt)
	}

	return ov, nil
}

func round(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}
