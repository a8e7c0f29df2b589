// Command agentnav lists the agent networks of a neuro-san server as a tree.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	logger *zap.Logger

	// Persistent flags.
	workspace    string
	verbose      bool
	serverName   string
	serverURL    string
	manifestPath string
	offline      bool

	// Command flags.
	pretty   bool
	hideTags bool
	asJSON   bool
)

var rootCmd = &cobra.Command{
	Use:   "agentnav",
	Short: "Browse the agent networks of a neuro-san server",
	Long: `agentnav turns the flat, slash-namespaced network names served by a
neuro-san agent server into a navigable tree.

Networks come from, in order of precedence: --manifest, the local snapshot
cache (--offline), --url, or a server configured in .agentnav/settings.yaml.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg := zap.NewProductionConfig()
		if verbose {
			cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = cfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var treeCmd = &cobra.Command{
	Use:   "tree",
	Short: "Print the network tree",
	Args:  cobra.NoArgs,
	RunE:  runTree,
}

var browseCmd = &cobra.Command{
	Use:   "browse",
	Short: "Browse the network tree interactively",
	Long: `Open the interactive browser. Enter on a network prints its name and
exits; q quits without a selection.`,
	Args: cobra.NoArgs,
	RunE: runBrowse,
}

var lookupCmd = &cobra.Command{
	Use:   "lookup <network>",
	Short: "Show one network",
	Args:  cobra.ExactArgs(1),
	RunE:  runLookup,
}

var exportCmd = &cobra.Command{
	Use:   "export <dir>",
	Short: "Write the network tree as an Obsidian vault",
	Args:  cobra.ExactArgs(1),
	RunE:  runExport,
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Refresh the snapshot cache from every configured server",
	Args:  cobra.NoArgs,
	RunE:  runSync,
}

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check that the agent server is healthy",
	Args:  cobra.NoArgs,
	RunE:  runPing,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "Workspace directory holding .agentnav/ (default: current)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&serverName, "server", "s", "", "Configured server to use (default: default_server)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "url", "", "Agent server base URL, bypassing settings")
	rootCmd.PersistentFlags().StringVarP(&manifestPath, "manifest", "m", "", "Read networks from a YAML or JSON manifest instead of a server")
	rootCmd.PersistentFlags().BoolVar(&offline, "offline", false, "Read networks from the last synced snapshot")

	treeCmd.Flags().BoolVar(&pretty, "pretty", false, "Start-case labels")
	treeCmd.Flags().BoolVar(&hideTags, "no-tags", false, "Leave tags out")
	lookupCmd.Flags().BoolVar(&asJSON, "json", false, "Print the record as JSON")

	rootCmd.AddCommand(treeCmd, browseCmd, lookupCmd, exportCmd, syncCmd, pingCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
