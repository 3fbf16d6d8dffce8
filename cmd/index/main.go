// Command index runs the cluster-wide index coordinator process: it answers
// node REGISTER/QUERY/NEW_ENTRY on the control stream and drives the
// periodic reorganization engine over GET_STATS/REORG.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/umr-dbs/mapping-cache/internal/config"
	"github.com/umr-dbs/mapping-cache/internal/indexsrv"
	"github.com/umr-dbs/mapping-cache/internal/logging"
	"github.com/umr-dbs/mapping-cache/internal/metrics"
	"github.com/umr-dbs/mapping-cache/internal/reorg"
	"github.com/umr-dbs/mapping-cache/internal/remote"
	"github.com/umr-dbs/mapping-cache/pkg/cachecore"
)

func main() {
	configFile := flag.String("config", "", "path to index config file (defaults to configs/index.yaml)")
	logLevel := flag.String("log-level", "info", "log level: debug|info|warn|error")
	metricsAddr := flag.String("metrics-addr", ":2113", "address to serve /metrics on")
	flag.Parse()

	logger, err := logging.New(*logLevel, "index")
	if err != nil {
		fmt.Fprintln(os.Stderr, "index: logger init:", err)
		os.Exit(1)
	}
	defer logger.Sync()

	cfg, err := config.LoadIndex(*configFile)
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() { <-sig; cancel() }()

	registry := prometheus.NewRegistry()
	sink := metrics.New(registry)
	go serveMetrics(*metricsAddr, registry, logger)

	dir := indexsrv.NewDirectory()
	nodeRegistry := indexsrv.NewNodeRegistry()
	coord := indexsrv.NewCoordinator(dir, nodeRegistry)
	coord.SetBatching(cfg.Batching.Enable)
	coord.SetScheduler(indexsrv.SchedulerByName(cfg.Scheduler))

	controlServer := indexsrv.NewServer(coord, nodeRegistry, logger)

	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		logger.Fatal("listen", zap.Error(err))
	}
	go func() {
		if err := controlServer.Serve(ln); err != nil {
			logger.Warn("control server stopped", zap.Error(err))
		}
	}()

	nodeClient := remote.NewNodeControlClient(logger)

	workerServer := indexsrv.NewWorkerServer(coord, nodeRegistry, nodeClient, logger)
	workerLn, err := net.Listen("tcp", cfg.ListenWorker)
	if err != nil {
		logger.Fatal("listen worker", zap.Error(err))
	}
	go func() {
		if err := workerServer.Serve(workerLn); err != nil {
			logger.Warn("worker server stopped", zap.Error(err))
		}
	}()

	relevance, err := cachecore.RelevanceByName(cfg.Reorg.Relevance)
	if err != nil {
		logger.Fatal("reorg relevance", zap.Error(err))
	}
	policy, err := reorg.PolicyByName(cfg.Reorg.Strategy, cfg.Reorg.QuotaBytes)
	if err != nil {
		logger.Fatal("reorg policy", zap.Error(err))
	}

	engine := reorg.NewEngine(reorg.EngineConfig{
		Registry:  nodeRegistry,
		Stats:     nodeClient,
		Sink:      nodeClient,
		Lister:    dir,
		Relevance: relevance,
		Policy:    policy,
		Active:    coord.ActiveTracker(),
		Directory: dir,
		Metrics:   sink,
		Interval:  cfg.Reorg.Interval,
		Logger:    logger,
	})
	go func() {
		if err := engine.Run(ctx); err != nil {
			logger.Warn("reorg engine stopped", zap.Error(err))
		}
	}()

	logger.Info("index coordinator listening", zap.String("addr", cfg.Listen),
		zap.String("scheduler", cfg.Scheduler), zap.Duration("reorg_interval", cfg.Reorg.Interval))

	<-ctx.Done()
	ln.Close()
	workerLn.Close()
	logger.Info("index shutting down")
}

func serveMetrics(addr string, reg *prometheus.Registry, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Warn("metrics server stopped", zap.Error(err))
	}
}
