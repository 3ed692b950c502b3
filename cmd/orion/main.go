// Command orion runs every pipeline component — watcher, Guardian, Brain,
// Approval Coordinator, Commander, and the Audit Store — in a single
// process, wired together over the same Redis bus. This mirrors
// kubilitics-backend/cmd/server's "everything in one process for now"
// posture, but with real component wiring in place of that teacher's
// literal comment-only stub body (see kubilitics-ai/cmd/server/main.go).
//
// The production deployment shape runs these as separate per-component
// processes (cmd/guardian, cmd/brain, cmd/approval, cmd/commander,
// cmd/audit); those binaries are not built in this tree, and this binary
// exists for local development and demos.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/orion-sre/orion/internal/approval"
	"github.com/orion-sre/orion/internal/audit"
	"github.com/orion-sre/orion/internal/brain"
	"github.com/orion-sre/orion/internal/breaker"
	"github.com/orion-sre/orion/internal/bus"
	"github.com/orion-sre/orion/internal/bus/redisbus"
	"github.com/orion-sre/orion/internal/clock"
	"github.com/orion-sre/orion/internal/commander"
	"github.com/orion-sre/orion/internal/config"
	"github.com/orion-sre/orion/internal/contracts"
	"github.com/orion-sre/orion/internal/cooldown"
	"github.com/orion-sre/orion/internal/council"
	"github.com/orion-sre/orion/internal/council/aggregate"
	"github.com/orion-sre/orion/internal/council/external"
	"github.com/orion-sre/orion/internal/council/local"
	"github.com/orion-sre/orion/internal/feed"
	"github.com/orion-sre/orion/internal/guardian"
	"github.com/orion-sre/orion/internal/hostmetrics"
	"github.com/orion-sre/orion/internal/logging"
	"github.com/orion-sre/orion/internal/policy"
	hostwatcher "github.com/orion-sre/orion/watchers/hostmetrics"
)

func main() {
	configPath := flag.String("config", "", "path to config YAML (optional; env/defaults used otherwise)")
	flag.Parse()

	mgr := config.NewManager(*configPath)
	if err := mgr.Load(); err != nil {
		panic(err)
	}
	cfg := mgr.Get()

	log, err := logging.New(logging.Config{Level: cfg.Logging.Level, Development: cfg.Logging.Development})
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	log.Info("orion: starting", zap.String("autonomy_level", cfg.Brain.AutonomyLevel))

	clk := clock.Real

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
	validator := contracts.NewValidator()
	b := redisbus.New(redisClient, validator, log.Named("bus"),
		redisbus.WithPrefix(cfg.Bus.Prefix),
		redisbus.WithMaxLen(cfg.Bus.MaxLen),
	)
	defer b.Close()

	policyStore := policy.NewStore()
	if err := policyStore.Load(cfg.Policy.SafeFile, cfg.Policy.RiskyFile, cfg.Policy.CooldownsFile, log.Named("policy")); err != nil {
		log.Warn("orion: policy load failed, continuing fail-closed", zap.Error(err))
	}

	identity, err := approval.LoadIdentity(cfg.AdminIdentityFile)
	if err != nil {
		log.Fatal("orion: admin identity required", zap.Error(err))
	}

	auditStore, err := audit.New(audit.Config{
		Dir:        cfg.Audit.Dir,
		MaxSizeMB:  cfg.Audit.MaxSizeMB,
		MaxBackups: cfg.Audit.MaxBackups,
		MaxAgeDays: cfg.Audit.MaxAgeDays,
		Compress:   cfg.Audit.Compress,
	})
	if err != nil {
		log.Fatal("orion: cannot open audit store", zap.Error(err))
	}
	defer auditStore.Close()

	cooldowns := cooldown.New(clk)
	circuitBreaker := breaker.New(clk)

	var brainOpts []brain.Option
	brainOpts = append(brainOpts,
		brain.WithPolicy(policyStore),
		brain.WithCooldowns(cooldowns),
		brain.WithBreaker(circuitBreaker),
		brain.WithApprovalTimeout(time.Duration(cfg.Brain.ApprovalTimeoutS)*time.Second),
	)
	if cfg.Council.Enabled {
		brainOpts = append(brainOpts, brain.WithCouncil(buildCouncil(cfg, log)))
	}

	g := guardian.New(b, clk, log.Named("guardian"))
	br := brain.New(b, clk, log.Named("brain"), contracts.AutonomyLevel(cfg.Brain.AutonomyLevel), brainOpts...)
	coordinator := approval.New(b, clk, log.Named("approval"), identity,
		approval.WithApprovalTimeout(time.Duration(cfg.Brain.ApprovalTimeoutS)*time.Second))

	executors := map[string]commander.Executor{
		"acknowledge_incident": commander.NewAcknowledgeIncident(clk, log.Named("commander.acknowledge_incident")),
	}
	cmdr := commander.New(b, clk, log.Named("commander"), policyStore, executors)

	watcher := hostwatcher.New(b, clk, log.Named("watcher.hostmetrics"), hostmetrics.New())

	dashboardFeed := feed.New(log.Named("feed"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error { return g.Run(egCtx, "guardian", "guardian-1") })
	eg.Go(func() error { return br.Run(egCtx, "brain", "brain-1") })
	eg.Go(func() error { return coordinator.Run(egCtx, "approval", "approval-1") })
	eg.Go(func() error { return cmdr.Run(egCtx, "commander-decision", "commander-1", "commander-approval", "commander-1") })
	eg.Go(func() error { return watcher.Run(egCtx) })
	eg.Go(func() error { return runAuditMirror(egCtx, b, auditStore, log.Named("audit")) })
	eg.Go(func() error { return runApprovalSweeper(egCtx, coordinator) })
	eg.Go(func() error { return runMetricsServer(egCtx, cfg.Metrics.Addr, log.Named("metrics")) })
	eg.Go(func() error { return runAdminServer(egCtx, cfg.Admin.Addr, coordinator, dashboardFeed, log.Named("admin")) })
	eg.Go(func() error { return runFeedMirror(egCtx, b, dashboardFeed) })
	eg.Go(func() error {
		dashboardFeed.Run(egCtx.Done())
		return nil
	})

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
		log.Info("orion: shutdown signal received")
	case <-egCtx.Done():
	}
	cancel()

	if err := eg.Wait(); err != nil && err != context.Canceled {
		log.Warn("orion: component exited with error", zap.Error(err))
	}
	log.Info("orion: stopped")
}

// buildCouncil wires the Council orchestrator from cfg, using whichever
// external providers have a configured API key. The local validator's
// model client is left unconfigured in this all-in-one demo binary — a
// local model server is an operational dependency outside this tree's
// scope — so local validation always reports zero confidence ("BLOCKED"
// when host resources are short, "ERROR: model unreachable" otherwise),
// which is the spec's documented fail-closed behavior for "no local model
// reachable".
func buildCouncil(cfg *config.Config, log *zap.Logger) *council.Orchestrator {
	var providers []external.Provider
	if p, ok := external.NewClaudeProvider(os.Getenv("ANTHROPIC_API_KEY")); ok {
		providers = append(providers, p)
	} else {
		log.Info("orion: ANTHROPIC_API_KEY not set, skipping Claude council provider")
	}
	if p, ok := external.NewOpenAIProvider(os.Getenv("OPENAI_API_KEY")); ok {
		providers = append(providers, p)
	} else {
		log.Info("orion: OPENAI_API_KEY not set, skipping OpenAI council provider")
	}

	localValidator := local.New(hostmetrics.New(), noLocalModel{}, log.Named("council.local"),
		local.WithMinFreeRAMMB(cfg.Council.MinFreeRAMMB),
		local.WithCPUTempWarnCelsius(cfg.Council.CPUTempWarnCelsius),
	)
	externalValidator := external.New(log.Named("council.external"), providers...)
	aggregator := aggregate.New(log.Named("council.aggregate"),
		aggregate.WithConfidenceThreshold(cfg.Council.ConfidenceThreshold),
		aggregate.WithSafetyVetoThreshold(cfg.Council.SafetyVetoThreshold),
	)

	return &council.Orchestrator{
		Aggregator: aggregator,
		Local:      localValidator,
		External:   externalValidator,
	}
}

// noLocalModel reports every call as unreachable — the honest behavior when
// no local inference server is configured for this binary.
type noLocalModel struct{}

func (noLocalModel) Generate(ctx context.Context, prompt string) (string, error) {
	return "", errNoLocalModel
}

var errNoLocalModel = errNoLocalModelError("council: no local model server configured")

type errNoLocalModelError string

func (e errNoLocalModelError) Error() string { return string(e) }

// runAuditMirror subscribes to the event, incident, and decision streams
// under its own consumer group and appends every message verbatim into the
// audit store — independent of Guardian/Brain's own consumer-group
// position, so the audit trail survives a consumer-group reset on either.
func runAuditMirror(ctx context.Context, b bus.Bus, store *audit.Store, log *zap.Logger) error {
	kinds := []contracts.Kind{contracts.KindEvent, contracts.KindIncident, contracts.KindDecision}

	eg, egCtx := errgroup.WithContext(ctx)
	for _, kind := range kinds {
		kind := kind
		eg.Go(func() error {
			return b.Subscribe(egCtx, kind, "audit-mirror", "audit-mirror-1", func(_ context.Context, msg bus.Message) error {
				var v interface{}
				if err := json.Unmarshal(msg.Data, &v); err != nil {
					log.Error("audit: malformed message, skipping", zap.String("kind", string(kind)), zap.Error(err))
					return nil
				}
				if err := store.Append(kind, v); err != nil {
					log.Error("audit: append failed", zap.String("kind", string(kind)), zap.Error(err))
				}
				return nil
			})
		})
	}
	return eg.Wait()
}

// runFeedMirror republishes every incident and decision onto dashboardFeed
// for connected WebSocket clients — a second, independent consumer group so
// a slow or disconnected dashboard never affects Guardian/Brain/audit
// delivery.
func runFeedMirror(ctx context.Context, b bus.Bus, dashboardFeed *feed.Hub) error {
	kinds := []contracts.Kind{contracts.KindIncident, contracts.KindDecision}

	eg, egCtx := errgroup.WithContext(ctx)
	for _, kind := range kinds {
		kind := kind
		eg.Go(func() error {
			return b.Subscribe(egCtx, kind, "dashboard-feed", "dashboard-feed-1", func(_ context.Context, msg bus.Message) error {
				dashboardFeed.Publish(msg.Data)
				return nil
			})
		})
	}
	return eg.Wait()
}

func runApprovalSweeper(ctx context.Context, coordinator *approval.Coordinator) error {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			coordinator.SweepExpired()
		}
	}
}

func runMetricsServer(ctx context.Context, addr string, log *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		log.Info("orion: metrics server listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

// runAdminServer exposes the Approval Coordinator's CLI-channel surface
// (list/approve/deny/force) for orionctl to drive over a plain loopback
// HTTP connection — this binary has no separate RPC layer, and the admin
// operations are already channel-gated by Identity.Verify. It also mounts
// the read-only incident/decision dashboard feed at /feed.
func runAdminServer(ctx context.Context, addr string, coordinator *approval.Coordinator, dashboardFeed *feed.Hub, log *zap.Logger) error {
	mux := http.NewServeMux()
	approval.NewHandler(coordinator).Register(mux)
	mux.Handle("/feed", dashboardFeed)
	srv := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		log.Info("orion: admin server listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
