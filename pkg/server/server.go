package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	//nolint:gosec // only exposed if pprofAddr config is set
	_ "net/http/pprof"

	r "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/ethpandaops/trace-processor/internal/version"
	"github.com/ethpandaops/trace-processor/pkg/api"
	"github.com/ethpandaops/trace-processor/pkg/clickhouse"
	"github.com/ethpandaops/trace-processor/pkg/ethereum"
	"github.com/ethpandaops/trace-processor/pkg/leaderelection"
	"github.com/ethpandaops/trace-processor/pkg/logging"
	"github.com/ethpandaops/trace-processor/pkg/observability"
	"github.com/ethpandaops/trace-processor/pkg/processor"
	"github.com/ethpandaops/trace-processor/pkg/redis"
	"github.com/ethpandaops/trace-processor/pkg/rpc"
	"github.com/ethpandaops/trace-processor/pkg/store"
)

type Server struct {
	log       logrus.FieldLogger
	config    *Config
	namespace string

	logs      *logging.Ring
	pool      *ethereum.Pool
	store     store.Store
	processor *processor.Manager
	rpc       *rpc.Server
	memory    *MemoryStatsCollector

	// electorRedis holds the leader lock; created on first election.
	electorMu    sync.Mutex
	electorRedis *r.Client

	pprofServer  *http.Server
	healthServer *http.Server
	apiServer    *http.Server
}

func NewServer(_ context.Context, log logrus.FieldLogger, namespace string, config *Config) (*Server, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	// Validate has already checked the level.
	ringLevel, _ := parseLevel(config.Logging.Level)
	logs := logging.NewRing(config.Logging.Lines, ringLevel)
	addHook(log, logs)

	pool := ethereum.NewPool(log.WithField("component", "ethereum"), namespace, &config.Ethereum)

	st, err := store.New(log, &config.Store)
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}

	s := &Server{
		log:       log,
		config:    config,
		namespace: namespace,
		logs:      logs,
		pool:      pool,
		store:     st,
		memory:    NewMemoryStatsCollector(log, config.MemoryMonitor),
	}

	var exporter *processor.Exporter

	if config.Processor.Export.Enabled {
		client, err := clickhouse.New(log, &config.Processor.Export.Config)
		if err != nil {
			return nil, errors.Join(fmt.Errorf("failed to create clickhouse client: %w", err), st.Close())
		}

		exporter = processor.NewExporter(log, client, &config.Processor.Export)
	}

	s.processor = processor.NewManager(log, &config.Processor, processor.Dependencies{
		Pool:       pool,
		Store:      st,
		Exporter:   exporter,
		NewElector: s.newElector,
	})

	// Validate has already parsed the accounts.
	accounts, _ := config.Node.AccountAddresses()

	rpcServer, err := rpc.New(log, &config.RPC, rpc.Dependencies{
		ClientVersion: version.Full(),
		Chain:         pool,
		Sync:          pool,
		Accounts:      rpc.StaticAccounts(accounts),
		Miner:         pool,
		Logs:          logs,
		Settings:      rpc.SettingsFunc(s.networkSettings),
		Traces:        st,
	})
	if err != nil {
		return nil, errors.Join(fmt.Errorf("failed to create rpc server: %w", err), st.Close())
	}

	s.rpc = rpcServer

	return s, nil
}

func parseLevel(level string) (logrus.Level, error) {
	return logrus.ParseLevel(level)
}

// addHook attaches hook to the logger behind log.
func addHook(log logrus.FieldLogger, hook logrus.Hook) {
	switch l := log.(type) {
	case *logrus.Logger:
		l.AddHook(hook)
	case *logrus.Entry:
		l.Logger.AddHook(hook)
	}
}

// newElector elects through Redis when enabled, otherwise this node always leads.
func (s *Server) newElector(network string) (leaderelection.Elector, error) {
	cfg := &s.config.Processor.LeaderElection
	if !cfg.Enabled {
		return leaderelection.NewStandalone(cfg.NodeID), nil
	}

	redisConfig := &s.config.Store.Redis.Config

	client, err := redis.New(redisConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create leader election redis client: %w", err)
	}

	s.electorMu.Lock()
	s.electorRedis = client
	s.electorMu.Unlock()

	return leaderelection.NewRedisElector(s.log, client, redisConfig.Key("leader", network), network, cfg)
}

func (s *Server) networkSettings() rpc.NetworkSettings {
	settings := rpc.NetworkSettings{
		Name:         s.config.Node.Name,
		NetworkPort:  s.config.Node.NetworkPort,
		MaxPeers:     s.config.Node.MaxPeers,
		RPCEnabled:   s.config.RPC.Enabled,
		RPCInterface: s.config.RPC.Interface,
		RPCPort:      s.config.RPC.Port,
	}

	if network := s.processor.Network(); network != nil {
		settings.Chain = network.Name
	}

	return settings
}

func (s *Server) Start(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Bind failures are fatal before anything else starts.
	if s.rpc != nil {
		if err := s.rpc.Start(ctx); err != nil {
			return errors.Join(err, s.store.Close())
		}
	}

	if err := s.memory.Start(ctx); err != nil {
		return errors.Join(err, s.stop())
	}

	g, ctx := errgroup.WithContext(ctx)

	// Start metrics server
	g.Go(func() error {
		return observability.StartMetricsServer(ctx, s.config.MetricsAddr)
	})

	// Start pprof server if configured
	if s.config.PProfAddr != nil {
		s.pprofServer = &http.Server{
			Addr:              *s.config.PProfAddr,
			Handler:           http.DefaultServeMux,
			ReadHeaderTimeout: 120 * time.Second,
		}

		g.Go(func() error {
			return s.serve(s.pprofServer, "pprof")
		})
	}

	// Start health check server if configured
	if s.config.HealthCheckAddr != nil {
		s.healthServer = &http.Server{
			Addr:              *s.config.HealthCheckAddr,
			Handler:           http.HandlerFunc(s.health),
			ReadHeaderTimeout: 120 * time.Second,
		}

		g.Go(func() error {
			return s.serve(s.healthServer, "healthcheck")
		})
	}

	// Start admin API if configured
	if s.config.APIAddr != nil {
		mux := http.NewServeMux()
		api.NewHandler(s.log, s.processor, s.store).RegisterRoutes(mux)

		s.apiServer = &http.Server{
			Addr:              *s.config.APIAddr,
			Handler:           mux,
			ReadHeaderTimeout: 120 * time.Second,
		}

		g.Go(func() error {
			return s.serve(s.apiServer, "api")
		})
	}

	// Start ethereum pool
	g.Go(func() error {
		s.pool.Start(ctx)

		return nil
	})

	// Start processor
	g.Go(func() error {
		if err := s.processor.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}

		return nil
	})

	// Wait for shutdown signal
	g.Go(func() error {
		<-ctx.Done()

		return s.stop()
	})

	return g.Wait()
}

func (s *Server) serve(srv *http.Server, name string) error {
	s.log.WithField("addr", srv.Addr).Infof("Starting %s server", name)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("%s server failed: %w", name, err)
	}

	return nil
}

// health reports 503 until an upstream node is healthy.
func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	if !s.pool.HasHealthyExecutionNodes() {
		w.WriteHeader(http.StatusServiceUnavailable)

		return
	}

	w.WriteHeader(http.StatusOK)
}

// stop runs on a fresh context; the one passed to Start is already done.
func (s *Server) stop() error {
	cleanupCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	s.log.Info("Starting graceful shutdown...")

	if s.rpc != nil {
		if err := s.rpc.Stop(cleanupCtx); err != nil {
			s.log.WithError(err).Error("failed to stop rpc server")
		}
	}

	for name, srv := range map[string]*http.Server{
		"api":    s.apiServer,
		"pprof":  s.pprofServer,
		"health": s.healthServer,
	} {
		if srv == nil {
			continue
		}

		if err := srv.Shutdown(cleanupCtx); err != nil {
			s.log.WithError(err).Errorf("failed to shutdown %s server", name)
		}
	}

	s.log.Info("Stopping processor...")

	if err := s.processor.Stop(cleanupCtx); err != nil {
		s.log.WithError(err).Error("failed to stop processor")
	}

	if err := s.pool.Stop(cleanupCtx); err != nil {
		s.log.WithError(err).Error("failed to stop ethereum pool")
	}

	if err := s.memory.Stop(cleanupCtx); err != nil {
		s.log.WithError(err).Error("failed to stop memory stats collector")
	}

	if err := s.store.Close(); err != nil {
		s.log.WithError(err).Error("failed to close store")
	}

	s.electorMu.Lock()
	electorRedis := s.electorRedis
	s.electorRedis = nil
	s.electorMu.Unlock()

	if electorRedis != nil {
		s.log.Info("Closing Redis connection...")

		if err := electorRedis.Close(); err != nil {
			s.log.WithError(err).Error("failed to close redis")
		}
	}

	if err := observability.StopMetricsServer(cleanupCtx); err != nil {
		s.log.WithError(err).Error("failed to stop metrics server")
	}

	s.log.Info("Server stopped gracefully")

	return nil
}
