// Command proxy starts the MySQL/MariaDB routing proxy: it loads a
// configuration file, builds the worker pool, router factories and
// frontend listeners it describes, and serves until interrupted.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/relaydb/proxy/config"
	"github.com/relaydb/proxy/internal/cluster"
	"github.com/relaydb/proxy/internal/frontend"
	"github.com/relaydb/proxy/internal/metrics"
	"github.com/relaydb/proxy/internal/model"
	"github.com/relaydb/proxy/internal/router"
	"github.com/relaydb/proxy/internal/worker"
)

func main() {
	configPath := flag.StringP("config", "c", "/etc/relaydb/proxy.yaml", "path to the configuration file")
	nodeStorePath := flag.String("node-store", "relaydb-nodes.db", "path to the persisted cluster-node store")
	metricsAddr := flag.String("metrics-addr", ":8081", "address to serve /metrics on")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "proxy: logger init: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(*configPath, *nodeStorePath, *metricsAddr, logger); err != nil {
		logger.Fatal("proxy exited", zap.Error(err))
	}
}

func run(configPath, nodeStorePath, metricsAddr string, logger *zap.Logger) error {
	cfg, err := config.NewViperSource(configPath).Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	m := metrics.New()

	servers := map[string]*model.Server{}
	for name, sc := range cfg.Servers {
		srv := model.NewServer(sc.Name, sc.Address, sc.Port)
		srv.HealthPort = sc.ExtraPort
		srv.MonitorUser = sc.MonitorUser
		srv.MonitorPass = sc.MonitorPassword
		srv.Priority = sc.Priority
		srv.PoolMax = sc.PersistPoolMax
		srv.PoolMaxAge = int64(sc.PersistMaxTime)
		srv.ProxyProtocol = sc.ProxyProtocol
		if sc.Rank == "secondary" {
			srv.Rank = model.RankSecondary
		}
		if len(cfg.Monitors) == 0 {
			// No monitor configured to report health: assume static
			// servers are up so routing has something to target.
			srv.SetStatus(model.StatusRunning)
		}
		servers[name] = srv
	}

	store, err := cluster.OpenStore(cluster.StorePath(nodeStorePath))
	if err != nil {
		return fmt.Errorf("open node store: %w", err)
	}
	defer store.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var monitorErrs = make(chan error, len(cfg.Monitors))
	for name, mc := range cfg.Monitors {
		var bootstrap []cluster.BootstrapNode
		for _, s := range mc.Servers {
			if srv, ok := servers[s]; ok {
				bootstrap = append(bootstrap, cluster.BootstrapNode{IP: srv.Address, MySQLPort: srv.Port})
			}
		}
		monCfg := cluster.Config{
			Name:                   name,
			BootstrapNodes:         bootstrap,
			MonitorUser:            mc.User,
			MonitorPassword:        mc.Password,
			ClusterMonitorInterval: durationOrDefault(mc.ClusterMonitorInterval, 2*time.Second),
			HealthCheckThreshold:   int64(mc.HealthCheckThreshold),
			HealthCheckPort:        mc.HealthCheckPort,
			Metrics:                m,
		}
		mon := cluster.NewMonitor(monCfg, store, logger)
		go func(mon *cluster.Monitor) {
			if err := mon.Run(ctx); err != nil && ctx.Err() == nil {
				monitorErrs <- fmt.Errorf("monitor: %w", err)
			}
		}(mon)
	}

	workerCfg := worker.Config{TickInterval: 100 * time.Millisecond}
	group := worker.NewGroup(threadCount(cfg.Threads), workerCfg, logger)
	for _, w := range group.Workers {
		w.WithMetrics(m)
	}
	group.Start(ctx)
	go group.RunRebalancer(ctx, worker.RebalanceConfig{
		Window:    rebalanceWindow,
		Threshold: rebalanceThreshold,
	})

	services := map[string]*frontend.Service{}
	for name, sc := range cfg.Services {
		var candidates []*model.Server
		for _, s := range sc.Servers {
			if srv, ok := servers[s]; ok {
				candidates = append(candidates, srv)
			}
		}
		services[name] = &frontend.Service{
			Name:       sc.Name,
			Factory:    router.NewRoundRobinFactory(candidates),
			Candidates: candidates,
			Username:   sc.User,
			Password:   sc.Password,
		}
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}))
	metricsSrv := &http.Server{Addr: metricsAddr, Handler: mux}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server stopped", zap.Error(err))
		}
	}()

	var listeners []net.Listener
	for name, lc := range cfg.Listeners {
		svc, ok := services[lc.Service]
		if !ok {
			return fmt.Errorf("listener %s: unknown service %q", name, lc.Service)
		}
		ln, err := bind(lc)
		if err != nil {
			return fmt.Errorf("listener %s: %w", name, err)
		}
		listeners = append(listeners, ln)

		fl := frontend.NewListener(name, svc, group, logger)
		name := name
		go func() {
			if err := fl.Serve(ctx, ln); err != nil && ctx.Err() == nil {
				logger.Error("listener stopped", zap.String("listener", name), zap.Error(err))
			}
		}()
	}

	select {
	case <-ctx.Done():
	case err := <-monitorErrs:
		logger.Error("cluster monitor failed", zap.Error(err))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = metricsSrv.Shutdown(shutdownCtx)
	for _, ln := range listeners {
		_ = ln.Close()
	}

	var allServers []*model.Server
	for _, s := range servers {
		allServers = append(allServers, s)
	}
	return group.Shutdown(shutdownCtx, allServers)
}

func bind(lc config.Listener) (net.Listener, error) {
	if lc.Socket != "" {
		return net.Listen("unix", lc.Socket)
	}
	return net.Listen("tcp", fmt.Sprintf(":%d", lc.Port))
}

// rebalanceWindow/rebalanceThreshold are not yet exposed as config keys
// (spec §6 does not list them under [maxscale]). rebalanceWindow matches
// the Window default of worker.Group.RunRebalancer; Threshold has no
// default there, so rebalanceThreshold is the only source of its value.
const (
	rebalanceWindow    = 10
	rebalanceThreshold = 4
)

func threadCount(n int) int {
	if n <= 0 {
		return 1
	}
	return n
}

func durationOrDefault(seconds int, def time.Duration) time.Duration {
	if seconds <= 0 {
		return def
	}
	return time.Duration(seconds) * time.Second
}
