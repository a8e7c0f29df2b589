// Package syncer refreshes the snapshot cache from every configured agent
// server at once.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"agentnav/internal/cache"
	"agentnav/internal/config"
	"agentnav/internal/network"
)

// DefaultConcurrency caps the number of servers fetched at the same time.
const DefaultConcurrency = 4

// Fetcher lists the networks of one server.
type Fetcher interface {
	List(ctx context.Context) ([]network.Record, error)
}

// FetcherFunc builds a Fetcher for a configured server.
type FetcherFunc func(srv config.Server) Fetcher

// Store persists listings.
type Store interface {
	Save(ctx context.Context, server string, records []network.Record) (cache.Snapshot, error)
}

// Outcome is the result of syncing one server.
type Outcome struct {
	Server   string
	Snapshot cache.Snapshot
	Err      error
}

// Report lists one Outcome per server, in the order servers were given.
type Report struct {
	Outcomes []Outcome
}

// Failed returns the outcomes that carry an error.
func (r Report) Failed() []Outcome {
	var out []Outcome
	for _, o := range r.Outcomes {
		if o.Err != nil {
			out = append(out, o)
		}
	}
	return out
}

// Syncer fetches and stores listings.
type Syncer struct {
	fetch       FetcherFunc
	store       Store
	logger      *zap.Logger
	concurrency int
}

// New returns a Syncer. A nil logger is replaced by a no-op logger.
func New(fetch FetcherFunc, store Store, logger *zap.Logger) *Syncer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Syncer{fetch: fetch, store: store, logger: logger, concurrency: DefaultConcurrency}
}

// SetConcurrency changes how many servers are fetched at once. Values below
// one are ignored.
func (s *Syncer) SetConcurrency(n int) {
	if n > 0 {
		s.concurrency = n
	}
}

// Run syncs every server. A failing server does not stop the others; the
// returned error joins every per-server failure and is nil when all
// succeeded. Each fetch is bounded by its server's timeout.
func (s *Syncer) Run(ctx context.Context, servers []config.Server) (Report, error) {
	report := Report{Outcomes: make([]Outcome, len(servers))}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, srv := range servers {
		report.Outcomes[i].Server = srv.Name
		g.Go(func() error {
			snap, err := s.syncOne(gctx, srv)
			report.Outcomes[i].Snapshot = snap
			report.Outcomes[i].Err = err
			return nil
		})
	}
	_ = g.Wait()

	var errs []error
	for _, o := range report.Outcomes {
		if o.Err != nil {
			errs = append(errs, fmt.Errorf("server %q: %w", o.Server, o.Err))
		}
	}
	return report, errors.Join(errs...)
}

func (s *Syncer) syncOne(ctx context.Context, srv config.Server) (cache.Snapshot, error) {
	timeout := srv.Timeout
	if timeout <= 0 {
		timeout = config.DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	records, err := s.fetch(srv).List(ctx)
	if err != nil {
		s.logger.Warn("sync failed", zap.String("server", srv.Name), zap.Error(err))
		return cache.Snapshot{}, err
	}
	snap, err := s.store.Save(ctx, srv.Name, records)
	if err != nil {
		return cache.Snapshot{}, fmt.Errorf("save: %w", err)
	}
	s.logger.Info("synced",
		zap.String("server", srv.Name),
		zap.Int("networks", snap.Count),
		zap.Duration("elapsed", time.Since(start)))
	return snap, nil
}
