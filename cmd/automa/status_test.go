package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"automa/internal/api"
	"automa/internal/heartbeat"
	"automa/internal/store"
)

func sampleOverview() *api.Overview {
	return &api.Overview{
		Identity: api.IdentitySummary{
			Name:    "automa-7",
			Address: "0x1234abcd",
		},
		Runtime: api.RuntimeSummary{
			State:         "running",
			Tier:          "critical",
			TurnCount:     42,
			LastTurnAt:    "2026-02-11T09:30:00.000Z",
			UptimeSeconds: 3_600,
			ActiveHeartbeats: []heartbeat.EntryStatus{
				{Name: "credit_check", Every: "5m0s", Enabled: true, LastRun: "2026-02-11T09:29:00.000Z"},
				{Name: "journal_reminder", Every: "24h0m0s", Enabled: false},
			},
		},
		Model: api.ModelSummary{
			Configured: "claude-sonnet-4-5",
			Active:     "claude-haiku-4-5",
		},
		Balances: api.BalanceSummary{
			CreditsCents: 8,
			CreditsUSD:   0.08,
			USDC:         1.25,
			Source:       "cached",
		},
		Distress: &store.DistressSignal{
			Reason:       "credits critically low",
			Tier:         "critical",
			CreditsCents: 8,
			CreatedAt:    "2026-02-11T09:25:00.000Z",
		},
	}
}

func TestFetchOverview(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/overview", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(sampleOverview()))
	}))
	defer ts.Close()

	ov, err := fetchOverview(ts.URL)
	require.NoError(t, err)
	assert.Equal(t, "automa-7", ov.Identity.Name)
	assert.Equal(t, "critical", ov.Runtime.Tier)
	assert.Equal(t, int64(8), ov.Balances.CreditsCents)
}

func TestFetchOverviewErrorStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer ts.Close()

	_, err := fetchOverview(ts.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestFetchOverviewUnreachable(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	ts.Close()

	_, err := fetchOverview(ts.URL)
	require.Error(t, err)
}

func TestRenderOverview(t *testing.T) {
	out := renderOverview(sampleOverview())

	assert.Contains(t, out, "automa-7")
	assert.Contains(t, out, "0x1234abcd")
	assert.Contains(t, out, "running")
	assert.Contains(t, out, "critical")
	assert.Contains(t, out, "42")
	assert.Contains(t, out, "claude-sonnet-4-5 (active claude-haiku-4-5)")
	assert.Contains(t, out, "$0.08 (cached)")
	assert.Contains(t, out, "credit_check")
	assert.Contains(t, out, "off", "disabled heartbeats should be marked")
	assert.Contains(t, out, "DISTRESS")
	assert.Contains(t, out, "credits critically low")
}

func TestRenderOverviewQuietRuntime(t *testing.T) {
	ov := &api.Overview{
		Runtime:  api.RuntimeSummary{State: "setup", Tier: "normal"},
		Model:    api.ModelSummary{Configured: "mock-model", Active: "mock-model"},
		Balances: api.BalanceSummary{Source: "cached"},
	}
	out := renderOverview(ov)

	assert.Contains(t, out, "automa", "missing name falls back to the binary name")
	assert.Contains(t, out, "setup")
	assert.NotContains(t, out, "DISTRESS")
	assert.NotContains(t, out, "Heartbeats")
	assert.NotContains(t, out, "(active", "matching models need no active suffix")
}
