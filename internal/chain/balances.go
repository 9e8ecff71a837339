package chain

import (
	"context"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"automa/internal/store"
)

// Balances is a snapshot of the automaton's finances. Source says whether
// the numbers came from a live facilitator call or from the local cache.
type Balances struct {
	CreditsCents int64     `json:"creditsCents"`
	USDC         float64   `json:"usdc"`
	Source       string    `json:"source"`
	CheckedAt    time.Time `json:"checkedAt"`
}

// Refresh fetches live balances and caches them in KV. The credit and USDC
// reads are independent facilitator calls and run in parallel. When either
// fails it returns the last cached snapshot together with the fetch error;
// callers must not change survival tier on a failed refresh.
func Refresh(ctx context.Context, c Client, st *store.Store) (*Balances, error) {
	var (
		credits int64
		usdc    float64
	)
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		credits, err = c.GetCreditsCents(ctx)
		return err
	})
	g.Go(func() error {
		var err error
		usdc, err = c.GetUSDCBalance(ctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return Cached(st), err
	}

	now := time.Now().UTC()
	_ = st.SetKVInt(store.KeyCachedCredits, credits)
	_ = st.SetKV(store.KeyCachedUSDC, strconv.FormatFloat(usdc, 'f', -1, 64))
	_ = st.SetKVTime(store.KeyBalancesCheckedAt, now)

	return &Balances{
		CreditsCents: credits,
		USDC:         usdc,
		Source:       "live",
		CheckedAt:    now,
	}, nil
}

// Cached returns the last cached snapshot. With no cache on record the
// snapshot is zero-valued with a zero CheckedAt.
func Cached(st *store.Store) *Balances {
	b := &Balances{Source: "cached"}
	b.CreditsCents = st.GetKVInt(store.KeyCachedCredits, 0)
	if raw, ok, err := st.GetKV(store.KeyCachedUSDC); err == nil && ok {
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			b.USDC = v
		}
	}
	if t, ok := st.GetKVTime(store.KeyBalancesCheckedAt); ok {
		b.CheckedAt = t
	}
	return b
}
