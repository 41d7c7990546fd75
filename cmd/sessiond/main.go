// Command sessiond is the reference binary wiring the session runtime
// together: an append-only SQLite event log, the provider/tool/MCP
// adapters, the actor-based supervisor, and an HTTP/SSE surface over it.
//
// Grounded on
// _examples/telnet2-opencode/go-opencode/cmd/opencode-server/main.go and
// cmd/opencode/commands/{root,serve}.go for the flag/config/logging
// bootstrap sequence, adapted to construct a supervisor.Supervisor
// instead of the teacher's session.Service + internal/server.Server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/opencode-ai/opencode/internal/agent"
	"github.com/opencode-ai/opencode/internal/config"
	"github.com/opencode-ai/opencode/internal/domain/action"
	"github.com/opencode-ai/opencode/internal/event"
	"github.com/opencode-ai/opencode/internal/eventstore"
	"github.com/opencode-ai/opencode/internal/logging"
	"github.com/opencode-ai/opencode/internal/mcp"
	"github.com/opencode-ai/opencode/internal/provider"
	"github.com/opencode-ai/opencode/internal/runtime/dispatcher"
	"github.com/opencode-ai/opencode/internal/runtime/interpreter"
	runtimeprovider "github.com/opencode-ai/opencode/internal/runtime/provider"
	"github.com/opencode-ai/opencode/internal/runtime/subagent"
	"github.com/opencode-ai/opencode/internal/runtime/supervisor"
	"github.com/opencode-ai/opencode/internal/runtime/toolexec"
	"github.com/opencode-ai/opencode/internal/storage"
	"github.com/opencode-ai/opencode/internal/tool"
	"github.com/opencode-ai/opencode/internal/vcs"
	"github.com/opencode-ai/opencode/pkg/types"
)

// Version/BuildTime are set at build time, mirroring the teacher's
// cmd/opencode/commands.Version/BuildTime.
var (
	Version   = "0.1.0"
	BuildTime = "dev"
)

var (
	flagPort      int
	flagDirectory string
	flagDBPath    string
	flagLogLevel  string
	flagPrintLogs bool
	flagMaxActive int
)

var rootCmd = &cobra.Command{
	Use:     "sessiond",
	Short:   "sessiond runs the session runtime as a headless HTTP/SSE server",
	Version: Version,
	RunE:    runServe,
}

func init() {
	rootCmd.Flags().IntVarP(&flagPort, "port", "p", 8080, "Port to listen on")
	rootCmd.Flags().StringVar(&flagDirectory, "directory", "", "Working directory (defaults to cwd)")
	rootCmd.Flags().StringVar(&flagDBPath, "db", "", "Path to the SQLite event log (defaults under the config data dir)")
	rootCmd.Flags().StringVar(&flagLogLevel, "log-level", "INFO", "Log level (DEBUG|INFO|WARN|ERROR)")
	rootCmd.Flags().BoolVar(&flagPrintLogs, "print-logs", false, "Print logs to stderr")
	rootCmd.Flags().IntVar(&flagMaxActive, "max-active-sessions", 0, "Max hydrated sessions held in memory (0 = runtime default)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	logCfg := logging.Config{
		Level:  logging.ParseLevel(flagLogLevel),
		Output: os.Stderr,
		Pretty: flagPrintLogs,
	}
	if !flagPrintLogs {
		logCfg.Level = logging.FatalLevel
	}
	logging.Init(logCfg)

	workDir := flagDirectory
	if workDir == "" {
		var err error
		workDir, err = os.Getwd()
		if err != nil {
			return fmt.Errorf("get working directory: %w", err)
		}
	}

	paths := config.GetPaths()
	if err := paths.EnsurePaths(); err != nil {
		return fmt.Errorf("ensure data directories: %w", err)
	}

	appConfig, err := config.Load(workDir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	dbPath := flagDBPath
	if dbPath == "" {
		dbPath = filepath.Join(paths.StoragePath(), "sessiond.db")
	}
	store, err := eventstore.OpenSQLite(dbPath)
	if err != nil {
		return fmt.Errorf("open event store: %w", err)
	}

	ctx := context.Background()

	providerReg, err := provider.InitializeProviders(ctx, appConfig)
	if err != nil {
		logging.Warn().Err(err).Msg("failed to initialize some model providers")
	}
	modelCaller := runtimeprovider.New(providerReg)

	fileStore := storage.New(paths.StoragePath())
	toolReg := tool.DefaultRegistry(workDir, fileStore)

	// agent.Registry.LoadFromConfig expects internal/agent's own
	// AgentConfig shape, distinct from types.AgentConfig (the config
	// file's JSON shape) and never bridged by the teacher outside its
	// own tests; built-in agent profiles are used as-is rather than
	// inventing that conversion here.
	agentReg := agent.NewRegistry()
	toolReg.RegisterTaskTool(agentReg)

	toolAdapter := toolexec.New(toolReg, workDir)

	mcpClient := mcp.NewClient()
	mcpConfigs := buildMCPConfigs(appConfig)
	for name, mcpCfg := range mcpConfigs {
		if err := mcpClient.AddServer(ctx, name, mcpCfg); err != nil {
			logging.Warn().Err(err).Str("server", name).Msg("failed to connect MCP server")
		}
	}
	defer mcpClient.Close()

	metrics := dispatcher.NewChannelMetrics(prometheus.NewRegistry())
	disp, eventCh := dispatcher.New(metrics)

	interp := interpreter.New(store, disp, modelCaller, toolAdapter, mcpClient, mcpConfigs, workDir)

	maxActive := flagMaxActive
	sup, err := supervisor.New(store, disp, eventCh, interp, maxActive)
	if err != nil {
		return fmt.Errorf("build supervisor: %w", err)
	}
	defer sup.Shutdown()

	toolReg.SetTaskExecutor(subagent.New(sup, agentReg))

	watcher := startVCSWatcher(ctx, workDir, sup)
	if watcher != nil {
		defer watcher.Stop()
	}

	srv := NewServer(serverConfigFromFlags(), sup)

	logging.Info().Int("port", flagPort).Str("directory", workDir).Msg("sessiond starting")

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-quit:
	}

	logging.Info().Msg("sessiond shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func serverConfigFromFlags() ServerConfig {
	cfg := DefaultServerConfig()
	cfg.Port = flagPort
	return cfg
}

// buildMCPConfigs translates appConfig.MCP (types.MCPConfig, the config
// file's shape) into mcp.Config, mirroring
// internal/server/server.go's InitializeMCP.
func buildMCPConfigs(appConfig *types.Config) map[string]*mcp.Config {
	if appConfig == nil || appConfig.MCP == nil {
		return nil
	}
	out := make(map[string]*mcp.Config, len(appConfig.MCP))
	for name, cfg := range appConfig.MCP {
		out[name] = &mcp.Config{
			Enabled:     cfg.Enabled == nil || *cfg.Enabled,
			Type:        mcp.TransportType(cfg.Type),
			URL:         cfg.URL,
			Headers:     cfg.Headers,
			Command:     cfg.Command,
			Environment: cfg.Environment,
			Timeout:     cfg.Timeout,
		}
	}
	return out
}

// startVCSWatcher wires internal/vcs.Watcher's .git/HEAD monitoring into
// the supervisor: every observed branch change is broadcast to every
// currently active session as a WorkspaceChanged action, the production
// wiring internal/domain/event.WorkspaceChanged's doc comment names.
// internal/vcs.Watcher itself only knows how to publish on the
// process-wide internal/event bus (it has no notion of sessions), so
// this is the one place that bridges that side-channel bus back into
// the session runtime. Sessions hydrate lazily, so only sessions
// already active receive the notification directly; a suspended
// session picks up the branch the next time it's resumed and replays
// its own WorkspaceChanged event from the log, same as any other
// durable event.
func startVCSWatcher(ctx context.Context, workDir string, sup *supervisor.Supervisor) *vcs.Watcher {
	w, err := vcs.NewWatcher(workDir)
	if err != nil {
		logging.Warn().Err(err).Msg("vcs watcher unavailable")
		return nil
	}
	if w == nil {
		return nil
	}

	event.Subscribe(event.VcsBranchUpdated, func(e event.Event) {
		data, ok := e.Data.(event.VcsBranchUpdatedData)
		if !ok {
			return
		}
		for _, session := range sup.ListActiveSessions() {
			act := action.NewWorkspaceChanged(session, data.Branch)
			if err := sup.DispatchAction(ctx, session, act); err != nil {
				logging.Warn().Err(err).Str("sessionID", string(session)).Msg("failed to dispatch WorkspaceChanged")
			}
		}
	})

	w.Start()
	return w
}
