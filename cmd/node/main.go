// Command node runs one node cache manager process: it answers peer
// DELIVER/PICKUP requests on the delivery stream and the index's
// GET_STATS/REORG/delivery-prep on a control listener, while registering
// with the index coordinator and routing misses through it.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/umr-dbs/mapping-cache/internal/artifactcodec"
	"github.com/umr-dbs/mapping-cache/internal/config"
	"github.com/umr-dbs/mapping-cache/internal/logging"
	"github.com/umr-dbs/mapping-cache/internal/metrics"
	"github.com/umr-dbs/mapping-cache/internal/remote"
	"github.com/umr-dbs/mapping-cache/internal/wire"
	"github.com/umr-dbs/mapping-cache/pkg/cachecore"
)

func main() {
	configFile := flag.String("config", "", "path to node config file (defaults to configs/node.yaml)")
	logLevel := flag.String("log-level", "info", "log level: debug|info|warn|error")
	metricsAddr := flag.String("metrics-addr", ":2112", "address to serve /metrics on")
	flag.Parse()

	logger, err := logging.New(*logLevel, "node")
	if err != nil {
		fmt.Fprintln(os.Stderr, "node: logger init:", err)
		os.Exit(1)
	}
	defer logger.Sync()

	cfg, err := config.LoadNode(*configFile)
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

	cachecore.RasterCanvasFactory = artifactcodec.NewRasterCanvas
	cachecore.FeatureCollectionFactory = artifactcodec.NewFeatureSet

	codec := artifactcodec.Codec{}
	fetcher := remote.NewFetcher(codec, logger)

	admission, err := cachecore.AdmissionByName(cfg.Cache.Strategy)
	if err != nil {
		logger.Fatal("admission strategy", zap.Error(err))
	}
	relevance, err := cachecore.RelevanceByName(cfg.Cache.Local.Replacement)
	if err != nil {
		logger.Fatal("replacement policy", zap.Error(err))
	}

	opts := []cachecore.ManagerOption{
		cachecore.WithAdmission(admission),
		cachecore.WithRelevance(relevance),
		cachecore.WithLogger(logger),
		cachecore.WithPartFetcher(fetcher),
	}
	for name, size := range cfg.Cache.Size {
		rt, err := cachecore.ResultTypeByName(name)
		if err != nil {
			logger.Warn("ignoring unknown result type in cache.size", zap.String("name", name))
			continue
		}
		opts = append(opts, cachecore.WithTypeBudget(rt, size))
	}
	manager := cachecore.NewManager(opts...)

	reporter := metrics.NewReporter(manager, sink)
	go reporter.Run(ctx, 10*time.Second)

	indexConn := remote.NewIndexConn(cfg.IndexAddr, logger)
	deliveryPort := listenPort(cfg.ListenDelivery)
	controlPort := listenPort(cfg.ListenControl)
	nodeID, err := indexConn.Register(ctx, deliveryPort, controlPort, registerEntries(manager))
	if err != nil {
		logger.Fatal("register with index", zap.Error(err))
	}
	logger.Info("registered with index", zap.String("node_id", nodeID), zap.String("index_addr", cfg.IndexAddr))

	deliveryQueue := remote.NewDeliveryQueue(cfg.DeliveryTTL)
	deliveryServer := remote.NewServer(manager, deliveryQueue, codec, cfg.Threads, logger)
	preparer := deliveryPreparer{manager: manager, queue: deliveryQueue}
	controlServer := remote.NewControlServer(managerStatsAdapter{manager}, manager, preparer, logger)

	deliveryLn, err := net.Listen("tcp", cfg.ListenDelivery)
	if err != nil {
		logger.Fatal("listen delivery", zap.Error(err))
	}
	controlLn, err := net.Listen("tcp", cfg.ListenControl)
	if err != nil {
		logger.Fatal("listen control", zap.Error(err))
	}

	go func() {
		if err := deliveryServer.Serve(deliveryLn); err != nil {
			logger.Warn("delivery server stopped", zap.Error(err))
		}
	}()
	go func() {
		if err := controlServer.Serve(controlLn); err != nil {
			logger.Warn("control server stopped", zap.Error(err))
		}
	}()

	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sink.SetDeliveryQueueDepth(deliveryQueue.Len())
			}
		}
	}()

	// A recompute-capable query entrypoint would construct one WorkerContext
	// per request, embedding indexConn, and call manager.Wrapper(rt).Query/
	// Put; the operator graph that supplies artifact computation lives
	// outside this cache.

	<-ctx.Done()
	deliveryLn.Close()
	controlLn.Close()
	logger.Info("node shutting down")
}

type managerStatsAdapter struct{ m *cachecore.Manager }

func (a managerStatsAdapter) StatsSnapshot() []cachecore.TypeStatsSnapshot { return a.m.StatsSnapshot() }

// deliveryPreparer answers the index's delivery-prep request: resolve a
// full local hit, trim it to the query window, queue it for pickup.
type deliveryPreparer struct {
	manager *cachecore.Manager
	queue   *remote.DeliveryQueue
}

func (p deliveryPreparer) PrepareDelivery(rt cachecore.ResultType, semanticID string, q cachecore.QueryRectangle) (string, bool) {
	store := p.manager.Wrapper(rt).Store()
	result, err := store.Query(semanticID, q)
	if err != nil || result.HasRemainder() || len(result.Items) != 1 {
		return "", false
	}
	e, err := store.Get(result.Items[0].Key)
	if err != nil {
		return "", false
	}
	return p.queue.Enqueue(rt, e.Data.Cut(q)), true
}

func registerEntries(m *cachecore.Manager) []wire.MetaEntry {
	var out []wire.MetaEntry
	for rt, handshake := range m.AllMeta() {
		for _, metas := range handshake {
			for _, meta := range metas {
				out = append(out, wire.MetaEntry{
					ResultType: rt, Key: meta.Key, Cube: meta.Cube, SizeBytes: meta.SizeBytes,
					Profile: meta.Profile, LastAccess: meta.LastAccess, AccessCount: meta.AccessCount,
				})
			}
		}
	}
	return out
}

func listenPort(addr string) uint16 {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return 0
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return 0
	}
	return uint16(port)
}

func serveMetrics(addr string, reg *prometheus.Registry, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Warn("metrics server stopped", zap.Error(err))
	}
}
