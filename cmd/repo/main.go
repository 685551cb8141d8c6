// Command repo is the repocore CLI: every working-copy and maintenance
// operation as a cobra subcommand, returning 0 on success, 1 on a
// user-facing error, and 2 on an internal/invariant violation.
//
// Flag/startup wiring is built on github.com/spf13/cobra subcommands
// rather than hand-parsed os.Args, matching the CLI surface concern far
// more directly than stdlib flag parsing.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"repocore"
	"repocore/config"
	"repocore/logger"
	"repocore/statusd"
)

var (
	cfgManager *config.Manager
	status     *statusd.Server
	cmdTrace   *logger.TraceContext
)

var rootCmd = &cobra.Command{
	Use:   "repo",
	Short: "repocore: a content-addressed check-in history and working-copy tool",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setup(cmd)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		teardown()
	},
}

func init() {
	rootCmd.PersistentFlags().String("repo-file", "", "path to the repository WAL file (overrides REPOCORE_REPO_FILE)")
	rootCmd.PersistentFlags().String("work-dir", "", "working copy root (overrides REPOCORE_WORK_DIR)")
	rootCmd.PersistentFlags().String("user", "", "committer identity (overrides REPOCORE_USER/$USER)")
	rootCmd.PersistentFlags().String("log-level", "", "trace|debug|info|warn|error (overrides REPOCORE_LOG_LEVEL)")
	rootCmd.PersistentFlags().String("status-addr", "", "optional diagnostics listen address (overrides REPOCORE_STATUS_ADDR)")
}

// setup resolves configuration, configures the logger, starts the optional
// diagnostics listener, and opens a trace for the command being run; it
// runs once before every subcommand.
func setup(cmd *cobra.Command) error {
	yamlPath := os.Getenv("REPOCORE_CONFIG")
	m, err := config.NewManager(yamlPath)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	for _, name := range []string{"repo-file", "work-dir", "log-level", "status-addr"} {
		v, _ := flags.GetString(name)
		m.ApplyFlag(name, v, flags.Changed(name))
	}
	if u, _ := flags.GetString("user"); flags.Changed("user") {
		m.Config().User = u
	}
	cfgManager = m

	if err := logger.SetLogLevel(m.Config().LogLevel); err != nil {
		logger.Warn("main: %v", err)
	}
	logger.InitLogBridge()

	if len(m.Config().TraceSubsystems) > 0 {
		logger.EnableTracing(true)
		logger.EnableTrace(m.Config().TraceSubsystems...)
	}
	cmdTrace = logger.StartTrace(cmd.CommandPath())

	if m.Config().StatusAddr != "" {
		status = statusd.New(m.Config().StatusAddr)
		status.Start()
	}
	return nil
}

func teardown() {
	if cmdTrace != nil {
		cmdTrace.EndTrace()
	}
	if status != nil {
		_ = status.Stop(5 * time.Second)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(exitCodeFor(err))
	}
}

// exitCodeFor maps an error to the CLI's exit code contract: 0 is handled
// by the caller never reaching this function, 1 is any resolved
// repocore.ErrKind short of an invariant violation, 2 is KindCorrupt or an
// error this CLI did not originate (a bug, not a user mistake).
func exitCodeFor(err error) int {
	kind, ok := repocore.KindOf(err)
	if !ok {
		return 2
	}
	if kind == repocore.KindCorrupt {
		return 2
	}
	return 1
}
