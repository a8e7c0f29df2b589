package main

// source.go — Resolves where networks are read from and builds the tree.

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"agentnav/internal/browse"
	"agentnav/internal/cache"
	"agentnav/internal/config"
	"agentnav/internal/network"
	"agentnav/internal/neurosan"
	"agentnav/internal/tree"
)

// listing is a set of networks together with a name for where they came from.
// client is set only when the networks were read from a live server.
type listing struct {
	source  string
	records []network.Record
	server  config.Server
	client  *neurosan.Client
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// withServerTimeout bounds ctx by the server's request timeout.
func withServerTimeout(ctx context.Context, srv config.Server) (context.Context, context.CancelFunc) {
	timeout := srv.Timeout
	if timeout <= 0 {
		timeout = config.DefaultTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

func workspaceRoot() (string, error) {
	if workspace != "" {
		return workspace, nil
	}
	return os.Getwd()
}

func loadSettings() (*config.Settings, error) {
	root, err := workspaceRoot()
	if err != nil {
		return nil, err
	}
	return config.Load(root)
}

// selectedServer returns the server named by --url or --server, falling back
// to the configured default.
func newClient(srv config.Server) *neurosan.Client {
	opts := []neurosan.Option{neurosan.WithLogger(logger)}
	if srv.User != "" {
		opts = append(opts, neurosan.WithUserID(srv.User))
	}
	return neurosan.NewClient(srv.URL, opts...)
}

func selectedServer(settings *config.Settings) (config.Server, error) {
	if serverURL != "" {
		return config.Server{Name: serverURL, URL: serverURL, Timeout: config.DefaultTimeout}, nil
	}
	return settings.Server(serverName)
}

// fetchListing reads networks from the highest-precedence source:
// --manifest, then the snapshot cache when --offline, then the server.
func fetchListing(ctx context.Context, settings *config.Settings) (listing, error) {
	if manifestPath != "" {
		logger.Debug("reading manifest", zap.String("path", manifestPath))
		records, err := network.LoadManifest(manifestPath)
		if err != nil {
			return listing{}, err
		}
		return listing{source: manifestPath, records: records}, nil
	}

	srv, err := selectedServer(settings)
	if err != nil {
		return listing{}, err
	}

	if offline {
		store, err := cache.Open(settings.CachePath)
		if err != nil {
			return listing{}, err
		}
		defer store.Close()
		snap, records, err := store.Latest(ctx, srv.Name)
		if errors.Is(err, cache.ErrNoSnapshot) {
			return listing{}, fmt.Errorf("no snapshot for %q; run 'agentnav sync' first", srv.Name)
		}
		if err != nil {
			return listing{}, err
		}
		logger.Debug("using snapshot",
			zap.String("server", srv.Name),
			zap.String("snapshot", snap.ID),
			zap.Time("taken_at", snap.TakenAt))
		return listing{source: srv.Name + " (offline)", records: records}, nil
	}

	ctx, cancel := withServerTimeout(ctx, srv)
	defer cancel()
	client := newClient(srv)
	records, err := client.List(ctx)
	if err != nil {
		return listing{}, err
	}
	return listing{source: srv.Name, records: records, server: srv, client: client}, nil
}

// loadTree resolves the source, drops hidden networks and builds the tree.
func loadTree(cmd *cobra.Command) (listing, *tree.Result, error) {
	settings, err := loadSettings()
	if err != nil {
		return listing{}, nil, err
	}
	l, err := fetchListing(commandContext(cmd), settings)
	if err != nil {
		return listing{}, nil, err
	}
	visible := settings.Filter(l.records)
	logger.Debug("networks loaded",
		zap.String("source", l.source),
		zap.Int("total", len(l.records)),
		zap.Int("hidden", len(l.records)-len(visible)))
	return l, tree.Build(visible), nil
}

// inspector returns a browse.Inspector bound to the listing's server, or nil
// when the networks did not come from one.
func (l listing) inspector() browse.Inspector {
	if l.client == nil {
		return nil
	}
	return func(ctx context.Context, name string) (network.Inspection, error) {
		ctx, cancel := withServerTimeout(ctx, l.server)
		defer cancel()
		return l.client.Inspect(ctx, name)
	}
}
