package syncer_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"agentnav/internal/cache"
	"agentnav/internal/config"
	"agentnav/internal/network"
	"agentnav/internal/syncer"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("database/sql.(*DB).connectionOpener"))
}

type fakeFetcher struct {
	records []network.Record
	err     error
	delay   time.Duration
	active  *atomic.Int32
	peak    *atomic.Int32
}

func (f fakeFetcher) List(ctx context.Context) ([]network.Record, error) {
	if f.active != nil {
		n := f.active.Add(1)
		defer f.active.Add(-1)
		for {
			p := f.peak.Load()
			if n <= p || f.peak.CompareAndSwap(p, n) {
				break
			}
		}
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.records, f.err
}

func openStore(t *testing.T) *cache.Store {
	t.Helper()
	s, err := cache.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRun_AllSucceed(t *testing.T) {
	store := openStore(t)
	fetchers := map[string]fakeFetcher{
		"local":   {records: []network.Record{{AgentName: "a/b"}}},
		"staging": {records: []network.Record{{AgentName: "c"}, {AgentName: "d/e"}}},
	}
	s := syncer.New(func(srv config.Server) syncer.Fetcher { return fetchers[srv.Name] }, store, zap.NewNop())

	report, err := s.Run(context.Background(), []config.Server{{Name: "local"}, {Name: "staging"}})
	require.NoError(t, err)
	require.Len(t, report.Outcomes, 2)
	assert.Equal(t, "local", report.Outcomes[0].Server)
	assert.Equal(t, 1, report.Outcomes[0].Snapshot.Count)
	assert.Equal(t, 2, report.Outcomes[1].Snapshot.Count)
	assert.Empty(t, report.Failed())

	_, recs, err := store.Latest(context.Background(), "staging")
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "d/e"}, network.Names(recs))
}

func TestRun_OneFailureDoesNotStopOthers(t *testing.T) {
	store := openStore(t)
	boom := errors.New("boom")
	fetchers := map[string]fakeFetcher{
		"bad":  {err: boom},
		"good": {records: []network.Record{{AgentName: "x"}}, delay: 20 * time.Millisecond},
	}
	s := syncer.New(func(srv config.Server) syncer.Fetcher { return fetchers[srv.Name] }, store, nil)

	report, err := s.Run(context.Background(), []config.Server{{Name: "bad"}, {Name: "good"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), `server "bad"`)

	failed := report.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, "bad", failed[0].Server)

	_, recs, err := store.Latest(context.Background(), "good")
	require.NoError(t, err)
	assert.Len(t, recs, 1)

	_, _, err = store.Latest(context.Background(), "bad")
	assert.ErrorIs(t, err, cache.ErrNoSnapshot)
}

func TestRun_Timeout(t *testing.T) {
	store := openStore(t)
	slow := fakeFetcher{delay: time.Second}
	s := syncer.New(func(config.Server) syncer.Fetcher { return slow }, store, nil)

	_, err := s.Run(context.Background(), []config.Server{{Name: "slow", Timeout: 20 * time.Millisecond}})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRun_ConcurrencyLimit(t *testing.T) {
	store := openStore(t)
	var active, peak atomic.Int32
	f := fakeFetcher{delay: 20 * time.Millisecond, active: &active, peak: &peak}
	s := syncer.New(func(config.Server) syncer.Fetcher { return f }, store, nil)
	s.SetConcurrency(2)

	servers := make([]config.Server, 6)
	for i := range servers {
		servers[i] = config.Server{Name: string(rune('a' + i))}
	}
	_, err := s.Run(context.Background(), servers)
	require.NoError(t, err)
	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.GreaterOrEqual(t, peak.Load(), int32(1))
}

func TestRun_NoServers(t *testing.T) {
	s := syncer.New(nil, openStore(t), nil)
	report, err := s.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, report.Outcomes)
}
