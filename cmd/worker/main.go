package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/hospital-intake/internal/config"
	"github.com/jwalitptl/hospital-intake/internal/email"
	"github.com/jwalitptl/hospital-intake/internal/repository/postgres"
	internalWorker "github.com/jwalitptl/hospital-intake/internal/worker"
	"github.com/jwalitptl/hospital-intake/pkg/logger"
	"github.com/jwalitptl/hospital-intake/pkg/messaging"
	"github.com/jwalitptl/hospital-intake/pkg/messaging/redis"
	"github.com/jwalitptl/hospital-intake/pkg/metrics"
	"github.com/jwalitptl/hospital-intake/pkg/worker"
)

const healthAddr = ":8081"

func setupHealthCheck(logger *logger.Logger, reg *prometheus.Registry, ready func(context.Context) error) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/health/live", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := ready(ctx); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: healthAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error(err, "Health check server failed")
			os.Exit(1)
		}
	}()
	return srv
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	appLog := logger.NewLogger(&logger.Config{
		Level:      logger.ParseLevel(cfg.Log.Level),
		TimeFormat: time.RFC3339,
		Output:     os.Stdout,
		Console:    cfg.Log.Console,
	})
	hostname, _ := os.Hostname()
	appLog = appLog.WithFields(map[string]interface{}{"worker_id": fmt.Sprintf("worker-%s-%d", hostname, os.Getpid())})

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		appLog.Fatal(err, "Failed to connect to database")
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client, err := redis.NewClient(ctx, cfg.Redis.ToBrokerConfig())
	if err != nil {
		appLog.Fatal(err, "Failed to connect to Redis")
	}
	broker := redis.NewRedisBroker(client, appLog)
	defer broker.Close()

	reg := prometheus.NewRegistry()
	m := metrics.New("intake_worker", reg)

	base := postgres.NewBaseRepository(db)
	processor := worker.NewOutboxProcessor(
		postgres.NewOutboxRepository(base),
		broker,
		cfg.Outbox.ToWorkerConfig(),
		appLog,
		m,
	)

	if cfg.Email.Enabled {
		relay := email.NewRelay(
			email.NewSMTPService(email.Config{
				Host:     cfg.Email.Host,
				Port:     cfg.Email.Port,
				Username: cfg.Email.Username,
				Password: cfg.Email.Password,
				From:     cfg.Email.From,
			}),
			postgres.NewDoctorRepository(base),
			postgres.NewNotificationRepository(base),
			appLog,
		)
		if err := relay.Run(ctx, messaging.NewBrokerAdapter(broker, appLog), cfg.Outbox.Channel); err != nil {
			appLog.Fatal(err, "Failed to subscribe email relay")
		}
		appLog.Info("Email relay subscribed", "channel", cfg.Outbox.Channel)
	}

	if cfg.Intake.ReconcileInterval > 0 {
		reconciler := internalWorker.NewWardReconcileWorker(
			postgres.NewWardRepository(base),
			cfg.Intake.ReconcileInterval,
			appLog,
			m,
		)
		go reconciler.Start(ctx)
	}

	health := setupHealthCheck(appLog, reg, func(ctx context.Context) error {
		if err := db.PingContext(ctx); err != nil {
			return err
		}
		return client.Ping(ctx).Err()
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		appLog.Info("Shutting down...")
		cancel()
	}()

	processor.Start(ctx)

	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	_ = health.Shutdown(shutdownCtx)
}
