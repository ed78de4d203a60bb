package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/whalecell/witness/internal/config"
	"github.com/whalecell/witness/internal/core/ecs"
	coresys "github.com/whalecell/witness/internal/core/system"
	"github.com/whalecell/witness/internal/entityreg"
	gonet "github.com/whalecell/witness/internal/net"
	"github.com/whalecell/witness/internal/net/packet"
	"github.com/whalecell/witness/internal/ops"
	"github.com/whalecell/witness/internal/persist"
	"github.com/whalecell/witness/internal/metrics"
	"github.com/whalecell/witness/internal/system"
	"github.com/whalecell/witness/internal/witness"
	"github.com/whalecell/witness/internal/world"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfgPath := "config/cell.toml"
	if p := os.Getenv("WITNESS_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := loadConfigWithFlags(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	log.Info("starting cell witness server",
		zap.String("cell_id", cfg.Server.CellID),
		zap.String("bind", cfg.Network.BindAddress))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	db, err := persist.NewDB(ctx, cfg.Database, log)
	cancel()
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer db.Close()

	if err := persist.RunMigrations(context.Background(), db.Pool); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	log.Info("database migrations applied")

	mapConfigRepo := persist.NewMapConfigRepo(db)
	if err := mapConfigRepo.Refresh(context.Background()); err != nil {
		log.Warn("initial space_aoi_config refresh failed, using server defaults", zap.Error(err))
	}

	registry := prometheus.NewRegistry()
	metrics.MustRegister(registry)
	go serveMetrics(cfg.Network.BindAddress, registry, log)

	redisClient := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	overrunPublisher := ops.NewPublisher(redisClient, cfg.Server.CellID, log)

	policy, err := witness.NewVisibilityPolicy(cfg.AOI.PolicyDir, log)
	if err != nil {
		return fmt.Errorf("load aoi visibility policy: %w", err)
	}
	defer policy.Close()

	ecsWorld := ecs.NewWorld()
	entities := entityreg.New(ecsWorld)
	cachedLookup := witness.NewCachedLookup(entities, cfg.AOI.EntityCacheSize)
	grid := world.NewAOIGrid(cfg.AOI.CellSize)

	cores := make(map[uint64]sessionState)

	pktReg := packet.NewRegistry(log)
	registerAOIHandlers(pktReg, cores, log)

	netServer, err := gonet.NewServer(cfg.Network.BindAddress, cfg.Network.InQueueSize, cfg.Network.OutQueueSize, log)
	if err != nil {
		return fmt.Errorf("net server: %w", err)
	}
	go netServer.AcceptLoop()

	runner := coresys.NewRunner()
	runner.Register(system.NewCleanupSystem(ecsWorld))

	witnessCfg := witness.Config{
		CoordinateSystemEnabled: cfg.AOI.CoordinateSystemEnabled,
		DefaultAoiRadius:        cfg.AOI.DefaultAoiRadius,
		DefaultAoiHysteresis:    cfg.AOI.DefaultAoiHysteresis,
		GhostDistance:           cfg.AOI.GhostDistance,
		AliasIDsEnabled:         cfg.AOI.AliasIDsEnabled,
		PacketMaxSizeTCP:        cfg.AOI.PacketMaxSizeTCP,
	}
	ticks := &tickClock{}

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	systemTicker := time.NewTicker(cfg.Network.TickRate)
	defer systemTicker.Stop()
	configRefresh := time.NewTicker(time.Minute)
	defer configRefresh.Stop()

	log.Info("cell witness ready", zap.String("addr", netServer.Addr().String()))

	for {
		select {
		case sess := <-netServer.NewSessions():
			onSessionConnected(sess, cfg, witnessCfg, ticks, entities, cachedLookup, grid, policy, mapConfigRepo, runner, overrunPublisher, cores, pktReg, log)

		case sessID := <-netServer.DeadSessions():
			if st, ok := cores[sessID]; ok {
				if h, ok := cachedLookup.Find(st.entityID); ok {
					core := st.core
					core.Detach(h)
				}
				entities.Despawn(st.entityID)
				cachedLookup.Invalidate(st.entityID)
				delete(cores, sessID)
			}

		case <-systemTicker.C:
			ticks.n++
			runner.Tick(cfg.Network.TickRate)

		case <-configRefresh.C:
			if err := mapConfigRepo.Refresh(context.Background()); err != nil {
				log.Warn("space_aoi_config refresh failed, serving stale cache", zap.Error(err))
			}

		case sig := <-shutdownCh:
			log.Info("shutdown signal received", zap.String("signal", sig.String()))
			netServer.Shutdown()
			return nil
		}
	}
}

// sessionState is the game loop's record of one connected session's witness
// and the stable entity id backing it, so a disconnect can detach and
// despawn without re-deriving either from the session alone.
type sessionState struct {
	core     *witness.WitnessCore
	entityID witness.EntityID
}

// tickClock implements witness.TickSource with a monotonically increasing
// counter bumped once per systemTicker fire, not wall-clock time — ticks
// are the unit spec.md's staleness checks operate on.
type tickClock struct{ n uint64 }

func (t *tickClock) Tick() uint64 { return t.n }

func onSessionConnected(
	sess *gonet.Session,
	cfg *config.Config,
	witnessCfg witness.Config,
	ticks *tickClock,
	entities *entityreg.Registry,
	lookup witness.EntityLookup,
	grid *world.AOIGrid,
	policy *witness.VisibilityPolicy,
	mapConfigRepo *persist.MapConfigRepo,
	runner *coresys.Runner,
	reporter *ops.Publisher,
	cores map[uint64]sessionState,
	pktReg *packet.Registry,
	log *zap.Logger,
) {
	ch := gonet.NewChannel(sess)
	mailbox := gonet.NewMailbox(ch)

	const playerScriptType = 1
	const spaceID = 0
	wid := entities.Spawn(playerScriptType, mailbox)

	// space_aoi_config overrides the server-wide defaults when the session's
	// space has its own tuning on record; a miss just falls back to cfg.AOI.
	baseRadius, baseHysteresis := cfg.AOI.DefaultAoiRadius, cfg.AOI.DefaultAoiHysteresis
	effectiveCfg := witnessCfg
	if spaceCfg, ok := mapConfigRepo.Lookup(spaceID); ok {
		baseRadius, baseHysteresis = spaceCfg.AoiRadius, spaceCfg.AoiHysteresis
		effectiveCfg.GhostDistance = spaceCfg.GhostDistance
	}

	core := witness.NewWitnessCore(effectiveCfg, ticks, log, lookup, runner, reporter)
	decision := policy.Evaluate(playerScriptType, baseRadius, baseHysteresis)

	handle, ok := lookup.Find(wid)
	if !ok {
		log.Error("spawned entity missing immediately after Spawn", zap.Uint32("entity", uint32(wid)))
		return
	}
	if err := core.Attach(handle); err != nil {
		log.Error("witness attach failed", zap.Error(err))
		return
	}
	if !decision.Veto {
		core.SetAoiRadius(decision.Radius, decision.Hysteresis)
		core.OnEnterSpace(spaceID, grid)
	}

	cores[sess.ID] = sessionState{core: core, entityID: wid}
	sess.SetState(packet.StateInWorld)
	go drainInbound(sess, pktReg)
	log.Info("session entered world", zap.Uint64("session", sess.ID), zap.Uint32("entity", uint32(wid)))
}

// drainInbound runs for the lifetime of one session, feeding every inbound
// frame through the opcode registry. Runs off the game-loop goroutine since
// dispatch only touches session-local state (spec §5's no-shared-mutable-
// state boundary is the game loop's ECS/witness state, not per-session I/O).
func drainInbound(sess *gonet.Session, reg *packet.Registry) {
	for data := range sess.InQueue {
		if err := reg.Dispatch(sess, sess.State(), data); err != nil {
			sess.Close()
			return
		}
	}
}

// registerAOIHandlers wires the one client-originated message this domain
// defines: a request to override the caller's own AOI radius/hysteresis.
// The session-to-witness map is authoritative for which entity is acting —
// the entity id on the wire is for backward-compat framing only and is
// never trusted to target another session's witness.
func registerAOIHandlers(reg *packet.Registry, cores map[uint64]sessionState, log *zap.Logger) {
	const opSetAoiRadius = 0xF1
	reg.Register(opSetAoiRadius, []packet.SessionState{packet.StateInWorld}, func(sess any, r *packet.Reader) {
		_ = r.ReadDU() // entity id on the wire, ignored: see doc comment above
		radius := r.ReadF32()
		hysteresis := r.ReadF32()

		s, ok := sess.(*gonet.Session)
		if !ok {
			log.Error("set-aoi-radius handler received a non-session caller")
			return
		}
		st, ok := cores[s.ID]
		if !ok {
			log.Warn("set-aoi-radius request from session with no attached witness", zap.Uint64("session", s.ID))
			return
		}
		st.core.SetAoiRadius(radius, hysteresis)
	})
}

func serveMetrics(bindAddr string, reg *prometheus.Registry, log *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	addr := metricsAddr(bindAddr)
	log.Info("metrics endpoint listening", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Error("metrics server stopped", zap.Error(err))
	}
}

// metricsAddr shifts the game port by one so the metrics server never
// collides with the TCP game listener on the same host.
func metricsAddr(bindAddr string) string {
	for i := len(bindAddr) - 1; i >= 0; i-- {
		if bindAddr[i] == ':' {
			if port, err := strconv.Atoi(bindAddr[i+1:]); err == nil {
				return bindAddr[:i] + ":" + strconv.Itoa(port+1)
			}
			return bindAddr[:i] + ":9100"
		}
	}
	return ":9100"
}

func loadConfigWithFlags(defaultPath string) (*config.Config, error) {
	fs := pflag.NewFlagSet("cellwitness", pflag.ContinueOnError)
	cfgPath := fs.String("config", defaultPath, "path to cell.toml")
	if err := fs.Parse(os.Args[1:]); err != nil {
		return nil, err
	}
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return nil, err
	}
	config.BindFlags(cfg, fs)
	if err := fs.Parse(os.Args[1:]); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapCfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		zapCfg.DisableStacktrace = true
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	return zapCfg.Build()
}
