package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	api "github.com/justinsb/mxinvoke/pkg/api/v1alpha1"
	"github.com/justinsb/mxinvoke/pkg/engine"
	"github.com/justinsb/mxinvoke/pkg/ndarray"
	"github.com/justinsb/mxinvoke/pkg/telemetry"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"k8s.io/klog/v2"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	klog.InitFlags(nil)
	cfg, err := ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		return err
	}

	log := klog.FromContext(ctx)

	e, err := engine.NewEngine(cfg.Engine)
	if err != nil {
		return err
	}
	metrics := telemetry.NewMetrics("mxinvoke")
	rt := ndarray.NewRuntime(e, ndarray.WithObserver(metrics))
	if err := rt.Catalog().Build(ctx); err != nil {
		return fmt.Errorf("building operator catalog: %w", err)
	}

	lis, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return fmt.Errorf("listening on %q: %w", cfg.Listen, err)
	}

	grpcServer := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	api.RegisterCalculatorServer(grpcServer, NewCalcServer(rt))
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus(api.Calculator_ServiceName, healthpb.HealthCheckResponse_SERVING)

	g, ctx := errgroup.WithContext(ctx)

	log.Info("Starting tensorserver", "listen", cfg.Listen, "engine", cfg.Engine)
	g.Go(func() error {
		if err := grpcServer.Serve(lis); err != nil {
			return fmt.Errorf("serving GRPC: %w", err)
		}
		return nil
	})

	var metricsServer *http.Server
	if cfg.MetricsListen != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		metricsServer = &http.Server{
			Addr:              cfg.MetricsListen,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		log.Info("Serving metrics", "listen", cfg.MetricsListen)
		g.Go(func() error {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("serving metrics: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		log.Info("Shutting down tensorserver")
		healthServer.Shutdown()
		grpcServer.GracefulStop()
		if metricsServer != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				log.Error(err, "shutting down metrics server")
			}
		}
		return nil
	})

	return g.Wait()
}
