package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/hpnssflw/voicekeeper/internal/analyzer"
	"github.com/hpnssflw/voicekeeper/internal/api"
	"github.com/hpnssflw/voicekeeper/internal/cascade"
	"github.com/hpnssflw/voicekeeper/internal/config"
	"github.com/hpnssflw/voicekeeper/internal/credentials"
	"github.com/hpnssflw/voicekeeper/internal/discovery"
	"github.com/hpnssflw/voicekeeper/internal/gemini"
	"github.com/hpnssflw/voicekeeper/internal/generator"
	"github.com/hpnssflw/voicekeeper/internal/keycheck"
	"github.com/hpnssflw/voicekeeper/internal/profile"
	"github.com/hpnssflw/voicekeeper/internal/storage"
	"github.com/hpnssflw/voicekeeper/internal/worker"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the voicekeeper server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running voicekeeper server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show voicekeeper status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

const workerPollInterval = 500 * time.Millisecond

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "voicekeeper.pid")
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

// services is the assembled generation pipeline shared by the HTTP API, the
// MCP server and the analysis worker.
type services struct {
	creds     credentials.Provider
	profiles  *profile.Manager
	analyzer  *analyzer.Analyzer
	generator *generator.Generator
	validator *keycheck.Validator
}

func buildServices(cfg config.Config, store *storage.Store) services {
	// A user's stored key wins; the deployment key is the fallback.
	creds := credentials.Chain{credentials.NewStoreProvider(store)}
	if cfg.Gemini.APIKey != "" {
		creds = append(creds, credentials.NewStaticProvider(credentials.ProviderGemini, cfg.Gemini.APIKey))
	}

	listVersion := "v1beta"
	if len(cfg.Gemini.APIVersions) > 0 {
		listVersion = cfg.Gemini.APIVersions[0]
	}

	client := gemini.New(cfg.Gemini.BaseURL)
	models := discovery.New(client, discovery.Config{
		ListVersion:   listVersion,
		DefaultModels: cfg.Gemini.DefaultModels,
		PriorityModel: cfg.Gemini.PriorityModel,
		MaxModels:     cfg.Gemini.MaxModels,
		TTL:           cfg.Gemini.CatalogTTLDuration(),
		Timeout:       cfg.Gemini.DiscoveryTimeoutDuration(),
	})
	invoker := cascade.New(client, models, cascade.Config{
		Versions:        cfg.Gemini.APIVersions,
		AttemptTimeout:  cfg.Gemini.AttemptTimeoutDuration(),
		Temperature:     cfg.Gemini.Temperature,
		MaxOutputTokens: cfg.Gemini.MaxOutputTokens,
	})

	return services{
		creds:     creds,
		profiles:  profile.NewManager(store),
		analyzer:  analyzer.New(invoker),
		generator: generator.New(creds, invoker),
		validator: keycheck.New(invoker, cfg.Gemini.ValidationAttempts),
	}
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "voicekeeper version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// The MCP stdio transport owns stdout, so logs always go to stderr.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.Log.SlogLevel()})))

	apiToken, err := config.GetAPIToken(config.NewSecretStore())
	if err != nil {
		return fmt.Errorf("initializing API token: %w", err)
	}
	slog.Info("API bearer token available")

	if cfg.Gemini.APIKey == "" {
		slog.Info("no deployment Gemini key configured; users must store their own")
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("voicekeeper is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("voicekeeper is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer os.Remove(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	svc := buildServices(cfg, store)

	handler := api.NewAppHandler(api.AppDeps{
		Store:     store,
		Profiles:  svc.profiles,
		Creds:     svc.creds,
		Analyzer:  svc.analyzer,
		Generator: svc.generator,
		Validator: svc.validator,
		Token:     apiToken,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	g, gctx := errgroup.WithContext(ctx)

	w := worker.New(store, svc.creds, svc.analyzer, svc.profiles, workerPollInterval)
	g.Go(func() error {
		w.Run(gctx)
		return nil
	})

	if cfg.Server.MCPEnabled {
		mcpSrv := api.NewMCPServer(api.MCPDeps{
			Store:     store,
			Profiles:  svc.profiles,
			Creds:     svc.creds,
			Analyzer:  svc.analyzer,
			Generator: svc.generator,
			Validator: svc.validator,
			UserID:    userID,
		})
		stdioSrv := server.NewStdioServer(mcpSrv)
		g.Go(func() error {
			if err := stdioSrv.Listen(gctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("MCP stdio server error", "error", err)
			}
			return nil
		})
		slog.Info("MCP server started (stdio transport)", "user_id", userID)
	}

	g.Go(func() error {
		fmt.Fprintf(os.Stderr, "voicekeeper listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		fmt.Fprintln(os.Stderr, "shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
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
		printError("voicekeeper is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop voicekeeper (PID %d): %v", pid, err)
		os.Remove(pidPath)
		return err
	}

	printSuccess("Sent stop signal to voicekeeper (PID %d)", pid)
	return nil
}

func showStatus(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}

	running := false
	if resp, err := healthClient.Get(serverURL + "/health"); err != nil {
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

	printStatus("Backend", "%s (versions %s)", cfg.Gemini.BaseURL, strings.Join(cfg.Gemini.APIVersions, ", "))
	printStatus("Priority model", "%s", cfg.Gemini.PriorityModel)
	if cfg.Gemini.APIKey != "" {
		printStatus("Deployment key", "configured")
	} else {
		printStatus("Deployment key", "not set")
	}

	if running {
		if client, err := newAPIClient(); err == nil {
			printUserStatus(ctx, client, userID)
		}
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}

// printUserStatus reports whether the user has a stored profile and how many
// generations they have.
func printUserStatus(ctx context.Context, client *apiClient, id string) {
	if resp, err := client.get(ctx, userPath(id, "profile")); err == nil {
		var p struct {
			Stored bool `json:"stored"`
		}
		if decodeJSON(resp, &p) == nil {
			if p.Stored {
				printStatus("Style profile", "stored for %s", id)
			} else {
				printStatus("Style profile", "none for %s (run `voicekeeper analyze`)", id)
			}
		}
	}

	if resp, err := client.get(ctx, userPath(id, "generations?limit=100")); err == nil {
		var gens []json.RawMessage
		if decodeJSON(resp, &gens) == nil {
			printStatus("Generations", "%s", countLabel(len(gens), 100))
		}
	}
}

func countLabel(count, limit int) string {
	if count >= limit {
		return fmt.Sprintf("%d+", count)
	}
	return fmt.Sprintf("%d", count)
}
