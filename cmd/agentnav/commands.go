package main

import (
	"fmt"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"agentnav/internal/browse"
	"agentnav/internal/cache"
	"agentnav/internal/config"
	"agentnav/internal/network"
	"agentnav/internal/render"
	"agentnav/internal/syncer"
	"agentnav/internal/vault"
)

// ---------------------------------------------------------------------------
// tree
// ---------------------------------------------------------------------------

func runTree(cmd *cobra.Command, args []string) error {
	_, res, err := loadTree(cmd)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(res.Roots) == 0 {
		fmt.Fprintln(out, "no networks")
		return nil
	}
	r := render.New(render.Options{Pretty: pretty, HideTags: hideTags})
	fmt.Fprintln(out, r.Render(res))
	return nil
}

// ---------------------------------------------------------------------------
// browse
// ---------------------------------------------------------------------------

func runBrowse(cmd *cobra.Command, args []string) error {
	l, res, err := loadTree(cmd)
	if err != nil {
		return err
	}
	var opts []browse.Option
	if fn := l.inspector(); fn != nil {
		opts = append(opts, browse.WithInspector(fn))
	}
	selected, err := browse.Run(l.source, res, opts...)
	if err != nil {
		return fmt.Errorf("browse: %w", err)
	}
	if selected != "" {
		fmt.Fprintln(cmd.OutOrStdout(), selected)
	}
	return nil
}

// ---------------------------------------------------------------------------
// lookup
// ---------------------------------------------------------------------------

func runLookup(cmd *cobra.Command, args []string) error {
	name := args[0]
	l, res, err := loadTree(cmd)
	if err != nil {
		return err
	}
	rec, ok := res.Lookup(name)
	if !ok {
		if _, isFolder := res.Find(name); isFolder {
			return fmt.Errorf("%q is a folder, not a network", name)
		}
		return fmt.Errorf("network %q not found", name)
	}

	var (
		inspection *network.Inspection
		inspectErr error
	)
	if fn := l.inspector(); fn != nil {
		got, err := fn(commandContext(cmd), rec.AgentName)
		if err != nil {
			logger.Warn("agent graph unavailable", zap.String("network", rec.AgentName), zap.Error(err))
			inspectErr = err
		} else {
			inspection = &got
		}
	}

	out := cmd.OutOrStdout()
	if asJSON {
		data, err := sonic.Marshal(lookupResult{Record: rec, Inspection: inspection})
		if err != nil {
			return fmt.Errorf("marshal %q: %w", name, err)
		}
		fmt.Fprintln(out, string(data))
		return nil
	}
	fmt.Fprintf(out, "name:        %s\n", rec.AgentName)
	if rec.Description != "" {
		fmt.Fprintf(out, "description: %s\n", rec.Description)
	}
	if len(rec.Tags) > 0 {
		fmt.Fprintf(out, "tags:        %s\n", strings.Join(rec.Tags, ", "))
	}
	switch {
	case inspectErr != nil:
		fmt.Fprintln(out, "agents:      unavailable")
	case inspection != nil:
		if inspection.Function != "" {
			fmt.Fprintf(out, "function:    %s\n", inspection.Function)
		}
		if len(inspection.Agents) > 0 {
			r := render.New(render.Options{Pretty: pretty})
			fmt.Fprintln(out, "agents:")
			fmt.Fprintln(out, r.Graph(inspection.Agents))
		}
	}
	return nil
}

// lookupResult is the --json shape of lookup: the listing entry plus, when
// read from a server, its function and agent graph.
type lookupResult struct {
	network.Record
	Inspection *network.Inspection `json:"inspection,omitempty"`
}

// ---------------------------------------------------------------------------
// export
// ---------------------------------------------------------------------------

func runExport(cmd *cobra.Command, args []string) error {
	dir := args[0]
	_, res, err := loadTree(cmd)
	if err != nil {
		return err
	}
	bundle, err := vault.Export(res, dir)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	logger.Info("vault written", zap.String("dir", dir), zap.Int("pages", len(bundle.Paths())))
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %d pages to %s\n", len(bundle.Paths()), dir)
	return nil
}

// ---------------------------------------------------------------------------
// sync
// ---------------------------------------------------------------------------

func runSync(cmd *cobra.Command, args []string) error {
	settings, err := loadSettings()
	if err != nil {
		return err
	}
	servers := settings.Servers
	if serverName != "" || serverURL != "" {
		srv, err := selectedServer(settings)
		if err != nil {
			return err
		}
		servers = []config.Server{srv}
	}
	if len(servers) == 0 {
		return fmt.Errorf("no servers configured; add one to .agentnav/settings.yaml or pass --url")
	}

	store, err := cache.Open(settings.CachePath)
	if err != nil {
		return err
	}
	defer store.Close()

	fetch := func(srv config.Server) syncer.Fetcher {
		return newClient(srv)
	}
	report, runErr := syncer.New(fetch, store, logger).Run(commandContext(cmd), servers)

	out := cmd.OutOrStdout()
	for _, o := range report.Outcomes {
		if o.Err != nil {
			fmt.Fprintf(out, "%-20s failed: %v\n", o.Server, o.Err)
			continue
		}
		fmt.Fprintf(out, "%-20s %d networks\n", o.Server, o.Snapshot.Count)
	}
	if runErr != nil {
		return fmt.Errorf("%d of %d servers failed", len(report.Failed()), len(servers))
	}
	return nil
}

// ---------------------------------------------------------------------------
// ping
// ---------------------------------------------------------------------------

func runPing(cmd *cobra.Command, args []string) error {
	settings, err := loadSettings()
	if err != nil {
		return err
	}
	srv, err := selectedServer(settings)
	if err != nil {
		return err
	}

	ctx, cancel := withServerTimeout(commandContext(cmd), srv)
	defer cancel()
	h, err := newClient(srv).Health(ctx)
	if err != nil {
		return fmt.Errorf("%s: unreachable: %w", srv.Name, err)
	}
	if !h.Healthy {
		return fmt.Errorf("%s: unhealthy (status %q)", srv.Name, h.Status)
	}
	version := h.Version
	if version == "" {
		version = "unknown version"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: healthy (neuro-san %s)\n", srv.Name, version)
	return nil
}
