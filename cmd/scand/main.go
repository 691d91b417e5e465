package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/arl/statsviz"
	"github.com/exaring/otelpgx"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/automaxprocs/maxprocs"
	"golang.org/x/sync/errgroup"

	"github.com/ahrav/scand/internal/api"
	"github.com/ahrav/scand/internal/app/callbacks"
	"github.com/ahrav/scand/internal/app/orchestration"
	"github.com/ahrav/scand/internal/app/policy"
	"github.com/ahrav/scand/internal/app/statemachine"
	"github.com/ahrav/scand/internal/config"
	"github.com/ahrav/scand/internal/config/fileloader"
	"github.com/ahrav/scand/internal/domain/wifi"
	"github.com/ahrav/scand/internal/infra/driver/sim"
	"github.com/ahrav/scand/internal/infra/eventbus/kafka"
	"github.com/ahrav/scand/internal/infra/settings/memory"
	"github.com/ahrav/scand/internal/infra/storage"
	"github.com/ahrav/scand/internal/infra/storage/postgres"
	"github.com/ahrav/scand/pkg/common"
	"github.com/ahrav/scand/pkg/common/logger"
	"github.com/ahrav/scand/pkg/common/otel"
	"github.com/ahrav/scand/pkg/common/timeutil"
	scanmetrics "github.com/ahrav/scand/pkg/metrics"
)

func main() {
	configPath := flag.String("config", "", "path to scand.yaml")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "scand: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	_, _ = maxprocs.Set()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	hostname, err := os.Hostname()
	if err != nil {
		return fmt.Errorf("failed to get hostname: %w", err)
	}

	logEvents := logger.Events{
		Error: func(ctx context.Context, r logger.Record) {
			errorAttrs := map[string]any{
				"error_message": r.Message,
				"error_time":    r.Time.UTC().Format(time.RFC3339),
				"trace_id":      otel.GetTraceID(ctx),
			}
			for k, v := range r.Attributes {
				errorAttrs[k] = v
			}

			errorAttrsJSON, err := json.Marshal(errorAttrs)
			if err != nil {
				fmt.Fprintf(os.Stderr, "failed to marshal error attributes: %v\n", err)
				return
			}
			fmt.Fprintf(os.Stderr, "Error event: %s, details: %s\n", r.Message, errorAttrsJSON)
		},
	}
	metadata := map[string]string{
		"hostname":  hostname,
		"device_id": cfg.Service.DeviceID,
	}
	log := logger.NewWithMetadata(os.Stdout, cfg.LogLevel(), cfg.Service.Name, otel.GetTraceID, logEvents, metadata)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tp, mp, teardown, err := setupTelemetry(log, cfg)
	if err != nil {
		return err
	}
	defer teardown(context.Background())
	tracer := tp.Tracer(cfg.Service.Name)

	clock := timeutil.Default()
	sched := timeutil.DefaultScheduler()

	// Durable results are optional.
	var storeOpts []memory.Option
	if cfg.Postgres.DSN != "" {
		pool, err := openPostgres(ctx, cfg.Postgres)
		if err != nil {
			return err
		}
		defer pool.Close()
		log.Info(ctx, "Migrations applied, scan results persisted to postgres")
		storeOpts = append(storeOpts, memory.WithResultRepository(postgres.NewScanResultStore(pool, tracer)))
	}

	store := memory.NewStore(log, append(storeOpts,
		memory.WithHardwarePno(cfg.Driver.HardwarePno),
		memory.WithSavedNetworks(cfg.Device.NetworkConfigs()),
	)...)
	store.SetScreenState(cfg.Device.ScreenOn)

	var policyLoader config.Loader
	if cfg.Scan.PolicyFile != "" {
		policyLoader = fileloader.NewFileLoader(cfg.Scan.PolicyFile)
		info, err := policyLoader.Load(ctx)
		if err != nil {
			return fmt.Errorf("loading scan policy: %w", err)
		}
		store.SetScanControlInfo(info)
	}

	sinks := []wifi.ScanCallbacks{callbacks.NewLoggingSink(log)}
	if len(cfg.Kafka.Brokers) > 0 {
		pubMetrics, err := kafka.NewPublisherMetrics(mp)
		if err != nil {
			return fmt.Errorf("creating publisher metrics: %w", err)
		}
		publisher, client, err := kafka.ConnectPublisher(&kafka.ClientConfig{
			Brokers:  cfg.Kafka.Brokers,
			ClientID: cfg.Kafka.ClientID,
			Topic:    cfg.Kafka.Topic,
		}, log, pubMetrics, tracer)
		if err != nil {
			return err
		}
		defer client.Close()
		defer publisher.Close()
		sinks = append(sinks, callbacks.NewPublishingSink(publisher, cfg.Service.DeviceID, clock, log, tracer))
	}

	driver := sim.New(sim.Config{
		ScanLatency: cfg.Driver.ScanLatency,
		PnoLatency:  cfg.Driver.PnoLatency,
		HardwarePno: cfg.Driver.HardwarePno,
	}, sched, clock, log)
	driver.SetAirNetworks(cfg.Driver.AirNetworks())

	machine := statemachine.NewMachine(
		statemachine.NewLoop(), driver, store, sched, clock,
		statemachine.Config{
			WaitResultTimeout:   cfg.Scan.WaitResultTimeout,
			SoftwarePnoInterval: cfg.Scan.SoftwarePnoInterval,
		},
		log,
		statemachine.WithMetrics(scanmetrics.New("scand", prometheus.DefaultRegisterer)),
		statemachine.WithTracer(tracer),
	)
	driver.Subscribe(machine.OnDriverEvent)

	orchMetrics, err := orchestration.NewOrchestrationMetrics(mp)
	if err != nil {
		return fmt.Errorf("creating orchestration metrics: %w", err)
	}
	engine := policy.NewEngine(policy.NewStore(wifi.ScanControlInfo{}), clock, log)
	orch := orchestration.NewOrchestrator(
		machine, engine, store, callbacks.NewFanout(sinks...), clock,
		orchestration.Config{
			DefaultBand:              cfg.Scan.Band(),
			SystemScanMinInterval:    cfg.Scan.SystemScanMinInterval,
			SystemScanMaxInterval:    cfg.Scan.SystemScanMaxInterval,
			DisconnectedScanInterval: cfg.Scan.DisconnectedScanInterval,
			MaxPnoFailures:           cfg.Scan.MaxPnoFailures,
			PnoRestartInitialBackoff: cfg.Scan.PnoRestartInitialBackoff,
			PnoRestartMaxBackoff:     cfg.Scan.PnoRestartMaxBackoff,
			PnoScanInterval:          cfg.Scan.PnoScanInterval,
			PnoMinRssi2Dot4GHz:       cfg.Scan.PnoMinRssi2Dot4GHz,
			PnoMinRssi5GHz:           cfg.Scan.PnoMinRssi5GHz,
		},
		log, orchMetrics, tracer,
	)

	apiMetrics, err := api.NewAPIMetrics(mp)
	if err != nil {
		return fmt.Errorf("creating api metrics: %w", err)
	}
	apiServer := api.NewServer(api.Config{
		Addr:            cfg.HTTP.Addr,
		ReadTimeout:     cfg.HTTP.ReadTimeout,
		WriteTimeout:    cfg.HTTP.WriteTimeout,
		ShutdownTimeout: cfg.HTTP.ShutdownTimeout,
		RateLimit:       cfg.HTTP.RateLimit,
		RateBurst:       cfg.HTTP.RateBurst,
		Service:         orch,
		PolicyLoader:    policyLoader,
		PolicySink:      store,
		Results:         store,
	}, log, apiMetrics, tracer)

	// The loop outlives ctx so Finish can still run on it during shutdown.
	loopCtx, stopLoop := context.WithCancel(context.Background())
	defer stopLoop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := machine.Run(loopCtx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("scan loop: %w", err)
		}
		return nil
	})

	if err := orch.Init(ctx); err != nil {
		stopLoop()
		_ = g.Wait()
		return err
	}

	g.Go(func() error { return apiServer.Start(gctx) })
	if cfg.HTTP.MetricsAddr != "" {
		g.Go(func() error { return common.RunMetricsServer(gctx, cfg.HTTP.MetricsAddr) })
	}
	if cfg.HTTP.DebugAddr != "" {
		g.Go(func() error { return runDebugServer(gctx, cfg.HTTP.DebugAddr) })
	}
	g.Go(func() error {
		<-gctx.Done()
		defer stopLoop()

		finishCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		if err := orch.Finish(finishCtx); err != nil {
			log.Error(finishCtx, "Failed to finish scan service", "err", err)
		}
		log.Info(finishCtx, "Scan service stopped")
		return nil
	})

	return g.Wait()
}

func setupTelemetry(log *logger.Logger, cfg *config.Config) (trace.TracerProvider, metric.MeterProvider, func(context.Context), error) {
	attrs := map[string]string{"device.id": cfg.Service.DeviceID}
	if !cfg.Telemetry.Enabled {
		mp := otel.NewLocalMeterProvider(cfg.Service.Name, attrs)
		return tracenoop.NewTracerProvider(), mp, func(ctx context.Context) { _ = mp.Shutdown(ctx) }, nil
	}

	tp, mp, teardown, err := otel.InitTelemetry(log, otel.Config{
		ServiceName:      cfg.Service.Name,
		ExporterEndpoint: cfg.Telemetry.OTLPEndpoint,
		ExcludedRoutes: map[string]struct{}{
			"GET /v1/health":    {},
			"GET /v1/readiness": {},
		},
		Probability:        1,
		ResourceAttributes: attrs,
		InsecureExporter:   true,
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("initializing telemetry: %w", err)
	}
	return tp, mp, teardown, nil
}

func openPostgres(ctx context.Context, cfg config.PostgresConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse db config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	poolCfg.ConnConfig.Tracer = otelpgx.NewTracer()

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}
	if err := storage.RunMigrations(pool); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

func runDebugServer(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	if err := statsviz.Register(mux); err != nil {
		return fmt.Errorf("registering statsviz: %w", err)
	}

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	}
}
