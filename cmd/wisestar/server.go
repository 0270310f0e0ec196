package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/kalambet/wisestar/internal/api"
	"github.com/kalambet/wisestar/internal/backend"
	"github.com/kalambet/wisestar/internal/chat"
	"github.com/kalambet/wisestar/internal/config"
	"github.com/kalambet/wisestar/internal/conversation"
	"github.com/kalambet/wisestar/internal/intent"
	"github.com/kalambet/wisestar/internal/storage"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the wisestar server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		mcpStdio, _ := cmd.Flags().GetBool("mcp")
		return runServer(mcpStdio)
	},
}

func init() {
	startCmd.Flags().Bool("mcp", true, "serve MCP tools over stdin/stdout")
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running wisestar server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show wisestar system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "wisestar.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

// kvCloser is a conversation backend that owns a resource.
type kvCloser interface {
	conversation.Backend
	Close() error
}

// openConversationKV picks the durable store for the conversation
// collection. The SQLite store is shared with the interaction log.
func openConversationKV(cfg config.Config, db *storage.Store) (conversation.Backend, func(), error) {
	switch cfg.Storage.Backend {
	case config.StorageBolt:
		kv, err := storage.OpenBolt(cfg.Storage.DataDir)
		if err != nil {
			return nil, nil, err
		}
		return kv, closeLogged(kv, "bolt"), nil
	case config.StorageMemory:
		return storage.NewMemoryKV(), func() {}, nil
	default:
		return db, func() {}, nil
	}
}

func closeLogged(c kvCloser, name string) func() {
	return func() {
		if err := c.Close(); err != nil {
			slog.Warn("closing storage", "backend", name, "error", err)
		}
	}
}

func runServer(mcpStdio bool) error {
	fmt.Fprintf(os.Stderr, "wisestar version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Initialize structured logging.
	logLevel, err := config.ParseLogLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	apiToken, err := config.EnsureAPIToken(cfg)
	if err != nil {
		return fmt.Errorf("initializing API token: %w", err)
	}
	slog.Info("API bearer token available")

	// Write PID file. Check if server is already running via health endpoint.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("wisestar is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("wisestar is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Open storage. The memory backend keeps the interaction log in memory too.
	dbDir := cfg.Storage.DataDir
	if cfg.Storage.Backend == config.StorageMemory {
		dbDir = ":memory:"
	}
	db, err := storage.Open(dbDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	kv, closeKV, err := openConversationKV(cfg, db)
	if err != nil {
		return fmt.Errorf("opening conversation storage: %w", err)
	}
	defer closeKV()

	convs := conversation.New(kv, cfg.Storage.Key)
	convs.Initialize()
	slog.Info("conversations loaded",
		"backend", cfg.Storage.Backend,
		"count", len(convs.Conversations()),
		"current", convs.CurrentID(),
	)

	// Tutoring backend.
	timeout, err := cfg.Backend.TimeoutDuration()
	if err != nil {
		return err
	}
	tutor := backend.New(cfg.Backend.BaseURL,
		backend.WithTimeout(timeout),
		backend.WithToken(cfg.Backend.APIToken),
	)
	printStep("Checking tutoring backend at %s", tutor.BaseURL())
	backend.EnsureReachable(ctx, tutor)

	// Chat flow.
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	chatSvc := chat.NewService(convs, intent.NewDispatcher(tutor), db, chat.NewMetrics(reg))

	handler := api.NewHandler(api.Deps{
		Conversations: convs,
		Chat:          chatSvc,
		Interactions:  db,
		Tutor:         tutor,
		Token:         apiToken,
		Metrics:       promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		Logger:        slog.Default(),
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// MCP server over stdio, sharing the chat flow with the HTTP API.
	if mcpStdio {
		mcpSrv := api.NewMCPServer(api.MCPDeps{
			Conversations: convs,
			Chat:          chatSvc,
			Version:       version,
		})
		stdioSrv := server.NewStdioServer(mcpSrv)
		go func() {
			if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("MCP stdio server error", "error", err)
			}
		}()
		slog.Info("MCP server started (stdio transport)")
	}

	// Start server in a goroutine.
	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "wisestar listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for signal or server error.
	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	// Graceful shutdown with timeout.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := convs.LastPersistError(); err != nil {
		slog.Warn("last conversation write failed", "error", err)
	}
	return nil
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("wisestar is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop wisestar (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to wisestar (PID %d)", pid)
	return nil
}

func showStatus(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		// Still show partial status even if config fails.
		printError("config error: %v", err)
		return nil
	}

	// Check server health.
	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	running := false
	resp, err := client.Get(serverURL + "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			running = true
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	// Check the tutoring backend. Status is a quick look, so it shares the
	// health check's short-timeout client instead of the backend timeout.
	tutor := backend.New(cfg.Backend.BaseURL,
		backend.WithHTTPClient(client),
		backend.WithToken(cfg.Backend.APIToken),
	)
	if tutor.IsRunning(ctx) {
		printStatus("Backend", "running at %s", cfg.Backend.BaseURL)
		printDashboard(ctx, tutor)
	} else {
		printStatus("Backend", "not reachable at %s", cfg.Backend.BaseURL)
	}

	// Show conversation and interaction counts if server is running.
	if running {
		if c, err := newAPIClient(); err == nil {
			printServerCounts(ctx, c)
		}
	}

	printStatus("Storage", "%s", cfg.Storage.Backend)
	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}

func printDashboard(ctx context.Context, tutor *backend.Client) {
	d, err := tutor.Dashboard(ctx)
	if err != nil {
		printStatus("Dashboard", "unavailable (%v)", err)
		return
	}
	printStatus("Solved", "%d (success rate %.1f%%)", d.Statistics.Total, d.Statistics.SuccessRate)
	if len(d.Memory.WeakPoints) > 0 {
		printStatus("Weak points", "%s", strings.Join(d.Memory.WeakPoints, ", "))
	}
}

func printServerCounts(ctx context.Context, c *apiClient) {
	if resp, err := c.get(ctx, "/conversations"); err == nil {
		var convs []json.RawMessage
		if decodeJSON(resp, &convs) == nil {
			printStatus("Conversations", "%d", len(convs))
		}
	}
	if resp, err := c.get(ctx, "/interactions?limit=100"); err == nil {
		var interactions []json.RawMessage
		if decodeJSON(resp, &interactions) == nil {
			printStatus("Interactions", "%s", countLabel(len(interactions), 100))
		}
	}
}

func countLabel(count, limit int) string {
	if count >= limit {
		return fmt.Sprintf("%d+", count)
	}
	return fmt.Sprintf("%d", count)
}
