package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iota-uz/orgchart/internal/server"
	"github.com/iota-uz/orgchart/modules/org"
	"github.com/iota-uz/orgchart/modules/org/infrastructure/persistence"
	"github.com/iota-uz/orgchart/pkg/configuration"
	"github.com/iota-uz/orgchart/pkg/logging"
	"github.com/iota-uz/orgchart/pkg/metrics"
	pkgserver "github.com/iota-uz/orgchart/pkg/server"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			log.Println(r)
			debug.PrintStack()
			os.Exit(1)
		}
	}()

	conf := configuration.Use()
	logger := conf.Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if conf.OpenTelemetry.Enabled {
		tracingCleanup, err := logging.SetupTracing(ctx, conf.OpenTelemetry.ServiceName, conf.OpenTelemetry.TempoURL)
		if err != nil {
			logger.WithError(err).Warn("OpenTelemetry tracing disabled")
		} else {
			defer tracingCleanup()
			logger.Info("OpenTelemetry tracing enabled, exporting to Tempo at " + conf.OpenTelemetry.TempoURL)
		}
	}

	var pool *pgxpool.Pool
	if conf.Org.Storage != "memory" {
		if conf.Org.AutoMigrate {
			migrate(ctx, conf)
		}
		connectCtx, cancel := context.WithTimeout(ctx, time.Second*5)
		var err error
		pool, err = pgxpool.New(connectCtx, conf.Database.Opts)
		cancel()
		if err != nil {
			panic(err)
		}
		defer pool.Close()
	} else {
		logger.Warn("ORG_STORAGE=memory: data is lost on restart")
	}

	orgModule, err := org.NewModule(conf, pool)
	if err != nil {
		log.Fatalf("failed to load org module: %v", err)
	}
	defer func() { _ = orgModule.Close() }()

	controllers := []pkgserver.Controller{orgModule}
	if conf.Prometheus.Enabled {
		controllers = append(controllers, metrics.NewPrometheusController(conf.Prometheus.Path))
	}
	serverInstance := server.Default(&server.DefaultOptions{
		Logger:        logger,
		Configuration: conf,
		Pool:          pool,
		Controllers:   controllers,
	})

	log.Printf("Listening on: %s\n", conf.SocketAddress)
	if err := serverInstance.Start(ctx, conf.SocketAddress); err != nil {
		log.Fatalf("failed to start server: %v", err)
	}
}

func migrate(ctx context.Context, conf *configuration.Configuration) {
	m, err := persistence.OpenMigrator(conf.Database.Opts)
	if err != nil {
		panic(err)
	}
	defer func() { _ = m.Close() }()

	applied, err := m.Up(ctx)
	if err != nil {
		panic(err)
	}
	if len(applied) > 0 {
		conf.Logger().WithField("versions", applied).Info("org migrations applied")
	}
}
