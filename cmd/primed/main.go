// Command primed is the control-plane daemon: it accepts daemon-link
// connections, runs the tool-driven brain loop against inbound chat
// messages, fires scheduled tasks, and serves the operator monitoring HTTP
// surface. Grounded on cmd/agent-controller/main.go's composition-root
// shape (flag-based config, context.WithCancel + signal.Notify graceful
// shutdown), generalized from its single-reconciler wiring to every
// collaborator package this control plane assembles.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/socketmode"
	"go.uber.org/zap"

	"github.com/0xcha05/prime/internal/audit"
	"github.com/0xcha05/prime/internal/brain"
	"github.com/0xcha05/prime/internal/chatadapter"
	"github.com/0xcha05/prime/internal/chatturn"
	"github.com/0xcha05/prime/internal/config"
	"github.com/0xcha05/prime/internal/daemonlink"
	"github.com/0xcha05/prime/internal/eventbus"
	"github.com/0xcha05/prime/internal/httpapi"
	"github.com/0xcha05/prime/internal/logging"
	"github.com/0xcha05/prime/internal/registry"
	"github.com/0xcha05/prime/internal/scheduler"
	"github.com/0xcha05/prime/internal/slackprovider"
	"github.com/0xcha05/prime/internal/storage"
	"github.com/0xcha05/prime/internal/telemetry"
	"github.com/0xcha05/prime/internal/transcript"
	"github.com/0xcha05/prime/internal/types"
	"github.com/0xcha05/prime/internal/workspace"
)

func main() {
	var (
		configPath   = flag.String("config", "", "Path to config.yaml (defaults to config.yaml in the nearest ancestor .prime directory, then ~/.prime/config.yaml)")
		stateDir     = flag.String("state-dir", "./prime-state", "Root directory for persisted state (audit log, transcripts, workspaces, schedule, patterns, chat media)")
		modelName    = flag.String("model", "claude-sonnet-4-20250514", "Anthropic model the brain loop invokes")
		maxTokens    = flag.Int64("max-tokens", 4096, "Max tokens per model response")
		roundBudget  = flag.Int("round-budget", brain.MinRoundBudget, "Max tool-call rounds per brain loop turn")
		turnDeadline = flag.Duration("turn-deadline", 5*time.Minute, "Wall-clock deadline for one brain loop turn")
		autoPromote  = flag.Bool("auto-promote-patterns", false, "Automatically promote repeated corrections into learned patterns")
		chatAllowed  = flag.String("chat-allowed-users", "", "Comma-separated chat user IDs allowed to reach the brain loop")
	)
	flag.Parse()

	if err := config.Initialize(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load config: %v\n", err)
		os.Exit(1)
	}
	settings := config.GetRuntimeSettings()

	logger, err := logging.New(settings.LogLevel, settings.LogJSON)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: build logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := telemetry.Init("primed"); err != nil {
		logger.Warn("telemetry init failed, continuing without instrumentation", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	}()
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown", zap.Error(err))
		}
	}()

	reg := registry.New(settings.RegistrationKey)
	mux := daemonlink.New(logger)
	bus := eventbus.New(logger)
	defer bus.Close()

	sink, err := audit.Open(filepath.Join(*stateDir, "audit"))
	if err != nil {
		logger.Fatal("open audit sink", zap.Error(err))
	}
	defer func() {
		if err := sink.Close(); err != nil {
			logger.Warn("close audit sink", zap.Error(err))
		}
	}()

	// Every event crossing the bus is audited, per internal/audit's
	// "every privileged action" contract — daemon connects, chat
	// messages, scheduled firings alike.
	bus.Subscribe("*", func(ctx context.Context, ev types.Event) {
		if _, err := sink.Append(audit.Entry{
			Source: ev.Source,
			Action: ev.Type,
			ChatID: ev.Context.ChatID,
			UserID: ev.Context.UserID,
		}); err != nil {
			logger.Warn("audit append failed", zap.Error(err))
		}
	})

	ts, err := transcript.Open(filepath.Join(*stateDir, "transcript"), transcript.DefaultWindowSize)
	if err != nil {
		logger.Fatal("open transcript store", zap.Error(err))
	}

	wsManager, err := workspace.New(filepath.Join(*stateDir, "workspace"))
	if err != nil {
		logger.Fatal("open workspace manager", zap.Error(err))
	}

	patterns, err := brain.NewPatternStore(filepath.Join(*stateDir, "patterns.json"), *autoPromote)
	if err != nil {
		logger.Fatal("open pattern store", zap.Error(err))
	}

	// Scheduled tasks re-enter the ordinary chat pipeline: firing one
	// publishes an event the same subscription below feeds into the
	// brain loop's serializer, rather than giving the scheduler its own
	// dispatch path.
	schedRunner := func(ctx context.Context, task *types.ScheduledTask) error {
		payload, err := json.Marshal(map[string]string{"text": task.Action})
		if err != nil {
			return fmt.Errorf("marshal scheduled task payload: %w", err)
		}
		bus.Publish(types.Event{
			Source:  "scheduler",
			Type:    "fired",
			Payload: payload,
			Context: types.EventContext{ChatID: task.ChatID},
		})
		return nil
	}
	sched, err := scheduler.New(filepath.Join(*stateDir, "schedule.json"), schedRunner, logger)
	if err != nil {
		logger.Fatal("open scheduler", zap.Error(err))
	}

	slackClient := slack.New(settings.ChatBotToken, slack.OptionAppLevelToken(settings.ChatAppToken))
	botUserID := ""
	if authResp, err := slackClient.AuthTest(); err != nil {
		logger.Warn("slack auth test failed, inbound bot-echo filtering disabled", zap.Error(err))
	} else {
		botUserID = authResp.UserID
	}
	smClient := socketmode.New(slackClient)
	provider := slackprovider.New(slackClient, logger)
	fetcher := slackprovider.NewSocketFetcher(smClient, botUserID, logger)

	var allowedUsers []string
	if *chatAllowed != "" {
		allowedUsers = strings.Split(*chatAllowed, ",")
	}
	chatAdapter, err := chatadapter.New(bus, allowedUsers, filepath.Join(*stateDir, "media"), logger)
	if err != nil {
		logger.Fatal("open chat adapter", zap.Error(err))
	}
	outbound := chatadapter.NewOutbound(provider, logger)
	poller := chatadapter.NewPoller(chatAdapter, fetcher, filepath.Join(*stateDir, "chat-cursor.json"), 2*time.Second, logger)

	var cache storage.Store
	if settings.RedisURL != "" {
		cache, err = storage.NewRedisStore(settings.RedisURL, settings.RedisNamespace)
		if err != nil {
			logger.Warn("redis cache unavailable, falling back to in-process cache", zap.Error(err))
			cache = storage.NewMemoryStore()
		}
	} else {
		cache = storage.NewMemoryStore()
	}
	defer cache.Close()

	services := &brain.Services{
		Registry:   reg,
		Mux:        mux,
		Scheduler:  sched,
		Workspace:  wsManager,
		Outbound:   outbound,
		Transcript: ts,
		Local:      brain.NewLocalRunner(brain.CommandTimeout),
		HTTP:       &http.Client{Timeout: 30 * time.Second},
		SearchURL:  settings.SearchURL,
		Cache:      cache,
	}
	catalog := brain.NewCatalog(services)
	model := brain.NewModelClient(settings.AnthropicAPIKey, *modelName, *maxTokens)

	// NewLoop requires a Serializer built from its own RunTurn, and
	// NewLoop itself requires the Serializer: break the cycle with a
	// forwarding closure captured by reference, resolved once loop is
	// assigned below.
	var loop *brain.Loop
	serializer := chatturn.New(func(ctx context.Context, chatID string, trigger types.Event) {
		loop.RunTurn(ctx, chatID, trigger)
	})
	loop = brain.NewLoop(model, catalog, patterns, serializer, reg, ts, services, *roundBudget, *turnDeadline)

	bus.Subscribe(chatadapter.EventSource+":"+chatadapter.MessageEvent, func(ctx context.Context, ev types.Event) {
		serializer.Submit(ctx, ev.Context.ChatID, ev)
	})
	bus.Subscribe("scheduler:fired", func(ctx context.Context, ev types.Event) {
		serializer.Submit(ctx, ev.Context.ChatID, ev)
	})

	linkServer := daemonlink.NewServer(logger, reg, mux, bus, sink, settings.RegistrationKey)
	ln, err := net.Listen("tcp", settings.DaemonTCPAddr)
	if err != nil {
		logger.Fatal("listen on daemon TCP address", zap.String("addr", settings.DaemonTCPAddr), zap.Error(err))
	}
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	httpSrv := httpapi.New(logger, reg, mux, settings.HTTPToken)

	logger.Info("starting primed",
		zap.String("daemon_addr", settings.DaemonTCPAddr),
		zap.String("http_addr", settings.HTTPAddr),
	)

	errCh := make(chan error, 4)
	go func() { errCh <- linkServer.Serve(ln) }()
	go func() { errCh <- httpSrv.Start(ctx, settings.HTTPAddr) }()
	go func() { errCh <- sched.Run(ctx) }()
	go func() { errCh <- poller.Run(ctx) }()

	for {
		select {
		case <-ctx.Done():
			logger.Info("primed stopping")
			return
		case err := <-errCh:
			if err != nil && err != context.Canceled && err != http.ErrServerClosed {
				logger.Error("component exited", zap.Error(err))
			}
			if ctx.Err() == nil {
				// A component that wasn't asked to stop has no
				// supervisor to restart it; treat it as fatal
				// rather than limping along half-wired.
				logger.Fatal("unexpected component exit, shutting down", zap.Error(err))
			}
		}
	}
}
