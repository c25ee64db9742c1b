package keeper

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"yield-adapter-lab/internal/chain"
	"yield-adapter-lab/internal/config"
	"yield-adapter-lab/internal/domain"
	"yield-adapter-lab/internal/harness"
	"yield-adapter-lab/internal/storage/memory"
)

var errBoom = errors.New("boom")

// chanSource replays a fixed list of heads, then closes.
type chanSource struct {
	heads []domain.Head
}

func (s *chanSource) SubscribeHeads(ctx context.Context) (<-chan domain.Head, error) {
	ch := make(chan domain.Head)
	go func() {
		defer close(ch)
		for _, h := range s.heads {
			select {
			case ch <- h:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

func heads(n int) []domain.Head {
	out := make([]domain.Head, n)
	for i := range out {
		out[i] = domain.Head{Number: uint64(100 + i), Timestamp: int64(1_000 + 12*i)}
	}
	return out
}

type fakeVault struct {
	mu        sync.Mutex
	reports   int
	claims    int
	reportErr error
	storeErr  error
	claimErr  error
}

func (v *fakeVault) Report(_ context.Context, _ common.Address) (*domain.HarvestReport, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.reportErr != nil {
		return nil, v.reportErr
	}
	v.reports++
	return &domain.HarvestReport{BlockNumber: uint64(v.reports), TotalAssets: big.NewInt(42)}, v.storeErr
}

func (v *fakeVault) Claim(_ context.Context, _ common.Address) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.claimErr != nil {
		return v.claimErr
	}
	v.claims++
	return nil
}

func (v *fakeVault) counts() (int, int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.reports, v.claims
}

func TestRun_Cadence(t *testing.T) {
	defer goleak.VerifyNone(t)

	v := &fakeVault{}
	k := New(Options{
		Source:             &chanSource{heads: heads(6)},
		Targets:            []Target{{Name: "a", Vault: v}},
		HarvestEveryBlocks: 2,
		ClaimEveryBlocks:   3,
	})

	err := k.Run(context.Background())
	require.ErrorIs(t, err, ErrSourceClosed)

	reports, claims := v.counts()
	assert.Equal(t, 3, reports)
	assert.Equal(t, 2, claims)

	st := k.Status()
	assert.False(t, st.Running)
	assert.Equal(t, uint64(6), st.HeadsSeen)
	assert.Equal(t, uint64(105), st.LastBlock)
	assert.Equal(t, 3, st.Harvests)
	assert.Equal(t, 2, st.Claims)
	assert.Zero(t, st.Errors)
	assert.Equal(t, "42", st.Targets["a"].LastTotalAssets)
}

func TestRun_DefaultsToEveryHead(t *testing.T) {
	v := &fakeVault{}
	k := New(Options{Source: &chanSource{heads: heads(4)}, Targets: []Target{{Name: "a", Vault: v}}})

	require.ErrorIs(t, k.Run(context.Background()), ErrSourceClosed)
	reports, claims := v.counts()
	assert.Equal(t, 4, reports)
	assert.Zero(t, claims)
}

func TestRun_FailuresAreNotFatal(t *testing.T) {
	failing := &fakeVault{reportErr: errBoom, claimErr: errBoom}
	unsaved := &fakeVault{storeErr: errBoom}
	healthy := &fakeVault{}

	k := New(Options{
		Source: &chanSource{heads: heads(2)},
		Targets: []Target{
			{Name: "failing", Vault: failing},
			{Name: "unsaved", Vault: unsaved},
			{Name: "healthy", Vault: healthy},
		},
		HarvestEveryBlocks: 1,
		ClaimEveryBlocks:   2,
	})
	require.ErrorIs(t, k.Run(context.Background()), ErrSourceClosed)

	st := k.Status()
	// failing: 2 harvests + 1 claim; unsaved: 2 harvests.
	assert.Equal(t, 5, st.Errors)
	assert.Equal(t, 4, st.Harvests)
	assert.Equal(t, 2, st.Claims)
	assert.Equal(t, "boom", st.Targets["failing"].LastError)
	assert.Equal(t, "boom", st.Targets["unsaved"].LastError)
	assert.Empty(t, st.Targets["healthy"].LastError)

	reports, _ := healthy.counts()
	assert.Equal(t, 2, reports)
}

func TestRun_NoSource(t *testing.T) {
	require.ErrorIs(t, New(Options{}).Run(context.Background()), ErrNoSource)
}

func TestRun_StopsOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	env := chain.NewEnv(chain.EnvOptions{})
	src, err := NewSimulatedSource(env, time.Millisecond, 5)
	require.NoError(t, err)

	v := &fakeVault{}
	k := New(Options{Source: src, Targets: []Target{{Name: "a", Vault: v}}})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- k.Run(ctx) }()

	require.Eventually(t, func() bool {
		reports, _ := v.counts()
		return reports >= 3
	}, 2*time.Second, time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("keeper did not stop")
	}

	st := k.Status()
	assert.GreaterOrEqual(t, env.BlockNumber(), chain.DefaultStartBlock+5*st.HeadsSeen)
}

func TestNewSimulatedSource_Validation(t *testing.T) {
	_, err := NewSimulatedSource(chain.NewEnv(chain.EnvOptions{}), 0, 1)
	require.ErrorIs(t, err, ErrInvalidInterval)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	src, err := NewSimulatedSource(chain.NewEnv(chain.EnvOptions{}), time.Second, 0)
	require.NoError(t, err)
	_, err = src.SubscribeHeads(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestFollowSource_MinesPerHead(t *testing.T) {
	defer goleak.VerifyNone(t)

	env := chain.NewEnv(chain.EnvOptions{})
	upstream := heads(3)
	upstream[2].Hash = common.HexToHash("0xbeef")

	ch, err := NewFollowSource(env, &chanSource{heads: upstream}).SubscribeHeads(context.Background())
	require.NoError(t, err)

	var got []domain.Head
	for h := range ch {
		got = append(got, h)
	}
	require.Len(t, got, 3)
	for i, h := range got {
		assert.Equal(t, chain.DefaultStartBlock+uint64(i)+1, h.Number)
	}
	assert.Equal(t, common.HexToHash("0xbeef"), got[2].Hash)
	assert.Equal(t, env.Timestamp(), got[2].Timestamp)
	assert.Equal(t, uint64(chain.DefaultStartBlock)+3, env.BlockNumber())
}

func TestRun_HarvestsScenarioVault(t *testing.T) {
	ctx := context.Background()
	sc, err := config.Load("../../scenarios/curve_steth.yaml")
	require.NoError(t, err)

	store := memory.NewHarvestReportStore()
	w, err := harness.Build(ctx, sc, harness.BuildOptions{RunID: "keeper-session", Reports: store})
	require.NoError(t, err)

	v, ok := w.Vault("curve-steth")
	require.True(t, ok)
	alice, err := sc.Address("alice")
	require.NoError(t, err)
	deposit, err := sc.Amount("500", v.Adapter().Asset())
	require.NoError(t, err)
	require.NoError(t, v.Deposit(ctx, alice, deposit))

	k := New(Options{
		Source:             &chanSource{heads: heads(3)},
		Targets:            []Target{{Name: "curve-steth", Vault: v, Caller: v.Adapter().Roles().Keeper}},
		HarvestEveryBlocks: 1,
		ClaimEveryBlocks:   1,
	})
	require.ErrorIs(t, k.Run(ctx), ErrSourceClosed)

	st := k.Status()
	assert.Zero(t, st.Errors)
	assert.Equal(t, 3, st.Harvests)
	assert.Equal(t, 3, st.Claims)
	assert.Equal(t, deposit.String(), st.Targets["curve-steth"].LastTotalAssets)

	all, err := store.GetByAdapter(ctx, "curve-steth")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "keeper-session", all[0].RunID)
}

func TestHandler(t *testing.T) {
	k := New(Options{Targets: []Target{{Name: "a", Vault: &fakeVault{}}}})
	srv := httptest.NewServer(NewHandler(k))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var st Status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	assert.False(t, st.Running)
	assert.Contains(t, st.Targets, "a")

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/missing")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServe_ShutsDownOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, "127.0.0.1:0", http.NotFoundHandler(), nil) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
