package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"edgewatch/internal/config"
	"edgewatch/internal/domain/origin"
	"edgewatch/internal/domain/traffic"
	"edgewatch/internal/edgeapi"
	"edgewatch/internal/notifier"
	"edgewatch/internal/obs"
	"edgewatch/internal/probe"
	kafkaRepo "edgewatch/internal/repository/kafka"
	"edgewatch/internal/repository/state"
	"edgewatch/internal/services/healthcheck"
	"edgewatch/internal/services/incidents"
	"edgewatch/internal/services/supervisor"
	"edgewatch/internal/services/threshold"
	"edgewatch/internal/statuspage"
)

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func main() {
	// init
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "./config/edgewatch.yaml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatal(err)
	}

	// logger
	l, err := obs.NewLogger(cfg.AsLoggerConfig())
	if err != nil {
		log.Fatal(err)
	}
	l.Info("starting edgewatch",
		zap.String("state_backend", cfg.State.Backend),
		zap.String("metrics_addr", cfg.MetricsAddr),
	)

	// otel
	otelCloser, err := obs.SetupOTel(ctx, cfg.AsOTELConfig())
	if err != nil {
		l.Fatal("otel init", zap.Error(err))
	}
	defer func() { _ = otelCloser.Shutdown(context.Background()) }()

	// state store
	var (
		store  state.Store
		health func(ctx context.Context) error
	)
	switch cfg.State.Backend {
	case "postgres":
		pg, err := state.NewPostgresStore(ctx, cfg.State.DB, l)
		if err != nil {
			l.Fatal("state db connect", zap.Error(err))
		}
		defer pg.Close()
		store = pg
		health = func(ctx context.Context) error {
			hctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
			defer cancel()
			return pg.Ping(hctx)
		}
	default:
		fs, err := state.NewFileStore(cfg.State.Dir, l)
		if err != nil {
			l.Fatal("state dir", zap.Error(err))
		}
		store = fs
		health = func(context.Context) error { return nil }
	}

	// kafka (optional alert-event mirror)
	var events notifier.AlertEvents
	if cfg.Kafka.Enabled {
		prod := kafkaRepo.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic).WithLogger(l)
		defer func() { _ = prod.Close() }()
		events = kafkaRepo.NewAlertEventsKafka(prod)
	}

	// run metrics server
	ms := obs.BootstrapMetricsServer(cfg.MetricsAddr, health, l)

	// wiring
	clock := systemClock{}
	fanout := notifier.NewFanout(
		l,
		notifier.NewTelegram(cfg.Notify.Telegram, l),
		events,
		clock,
		cfg.Notify.AlertChatID,
		cfg.Notify.Admins,
	)

	healthMon := healthcheck.New(ctx, l, probe.New(cfg.Probe), fanout, store, clock, cfg.Health.Config)
	trafficMon := threshold.New(ctx, l, edgeapi.NewAnalyticsClient(cfg.Analytics, l), fanout, store, cfg.Traffic.Config)
	incidentMon := incidents.New(ctx, l, statuspage.NewClient(cfg.Status.Feed, l), fanout, store, cfg.Status.Config)

	seed(ctx, l, cfg, healthMon, trafficMon)

	sup := supervisor.New(l, healthMon, trafficMon, incidentMon)

	// run
	done := make(chan struct{})
	go func() {
		sup.Run(ctx)
		close(done)
	}()

	l.Info("edgewatch started")

	// loop
	<-ctx.Done()
	<-done

	// graceful shutdown
	shCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_ = ms.Shutdown(shCtx)
	l.Info("bye")
}

// seed applies config-declared origins and thresholds on top of the
// loaded state. Already-tracked origins are left alone so their
// accumulated counters survive restarts.
func seed(ctx context.Context, l *zap.Logger, cfg *config.Config, hm *healthcheck.Monitor, tm *threshold.Monitor) {
	tracked := map[string]bool{}
	for _, o := range hm.Origins() {
		tracked[o.URL] = true
	}
	for _, s := range cfg.Health.Seed {
		normalized, err := origin.Normalize(s.URL)
		if err != nil {
			l.Warn("skipping seed origin", zap.String("url", s.URL), zap.Error(err))
			continue
		}
		if tracked[normalized] {
			continue
		}
		hm.AddOrigin(ctx, s.URL, s.Owner, s.Interval, s.Timeout)
	}

	for w, min := range cfg.Traffic.Thresholds {
		if !tm.SetThreshold(ctx, traffic.Window(w), min) {
			l.Warn("skipping unknown traffic window", zap.String("window", w))
		}
	}
	if cfg.Traffic.Enabled {
		tm.Enable(ctx)
	}
}
