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
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/hospital-intake/internal/config"
	admissionHandler "github.com/jwalitptl/hospital-intake/internal/handler/admission"
	"github.com/jwalitptl/hospital-intake/internal/handler/health"
	intakeHandler "github.com/jwalitptl/hospital-intake/internal/handler/intake"
	promHandler "github.com/jwalitptl/hospital-intake/internal/handler/prometheus"
	wardHandler "github.com/jwalitptl/hospital-intake/internal/handler/ward"
	"github.com/jwalitptl/hospital-intake/internal/middleware"
	"github.com/jwalitptl/hospital-intake/internal/repository"
	"github.com/jwalitptl/hospital-intake/internal/repository/postgres"
	redisRepo "github.com/jwalitptl/hospital-intake/internal/repository/redis"
	"github.com/jwalitptl/hospital-intake/internal/router"
	admissionService "github.com/jwalitptl/hospital-intake/internal/service/admission"
	"github.com/jwalitptl/hospital-intake/internal/service/assignment"
	bedService "github.com/jwalitptl/hospital-intake/internal/service/bed"
	"github.com/jwalitptl/hospital-intake/internal/service/identity"
	intakeService "github.com/jwalitptl/hospital-intake/internal/service/intake"
	"github.com/jwalitptl/hospital-intake/internal/service/notification"
	"github.com/jwalitptl/hospital-intake/internal/service/sequence"
	"github.com/jwalitptl/hospital-intake/pkg/auth"
	"github.com/jwalitptl/hospital-intake/pkg/clock"
	"github.com/jwalitptl/hospital-intake/pkg/logger"
	"github.com/jwalitptl/hospital-intake/pkg/messaging/redis"
	"github.com/jwalitptl/hospital-intake/pkg/metrics"
)

const metricsNamespace = "intake"

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	appLog := logger.NewLogger(&logger.Config{
		Level:      logger.ParseLevel(cfg.Log.Level),
		TimeFormat: time.RFC3339,
		Output:     os.Stdout,
		Console:    cfg.Log.Console,
	})

	loc, err := cfg.Location()
	if err != nil {
		appLog.Fatal(err, "invalid timezone")
	}
	clk := clock.New(loc)

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		appLog.Fatal(err, "failed to connect to database")
	}
	defer db.Close()

	ctx := context.Background()
	if cfg.Database.Migrate {
		applied, err := postgres.Migrate(ctx, db)
		if err != nil {
			appLog.Fatal(err, "failed to apply migrations")
		}
		for _, name := range applied {
			appLog.Info("applied migration", "name", name)
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(metricsNamespace, reg)

	healthChecks := []health.Check{{Name: "postgres", Ping: db.PingContext}}

	// Initialize repositories
	base := postgres.NewBaseRepository(db).WithClock(clk.Now)
	patientRepo := postgres.NewPatientRepository(base)
	doctorRepo := postgres.NewDoctorRepository(base)
	departmentRepo := postgres.NewDepartmentRepository(base)
	visitRepo := postgres.NewVisitRepository(base)
	wardRepo := postgres.NewWardRepository(base)
	admissionRepo := postgres.NewAdmissionRepository(base)
	notificationRepo := postgres.NewNotificationRepository(base)

	var counters repository.CounterStore = postgres.NewCounterRepository(base)
	if cfg.Redis.Sequences {
		client, err := redis.NewClient(ctx, cfg.Redis.ToBrokerConfig())
		if err != nil {
			appLog.Fatal(err, "failed to connect to Redis")
		}
		defer client.Close()
		counters = redisRepo.NewCounterStore(client, redisRepo.DefaultTTL)
		healthChecks = append(healthChecks, health.Check{Name: "redis", Ping: func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		}})
		appLog.Info("sequence counters backed by Redis")
	}

	// Initialize services
	sequenceSvc := sequence.NewService(counters, sequence.Config{
		MaxAttempts: cfg.Intake.SequenceAttempts,
		Limit:       cfg.Intake.SequenceLimit,
	}, appLog, m)
	identitySvc := identity.NewService(patientRepo, identity.PhoneRules{
		CountryCode: cfg.Intake.CountryCode,
		TrunkPrefix: cfg.Intake.TrunkPrefix,
	}, appLog)
	balancerSvc := assignment.NewService(doctorRepo, visitRepo, cfg.Intake.RosterCacheTTL, appLog)
	intakeSvc := intakeService.NewService(intakeService.Deps{
		Patients:    patientRepo,
		Visits:      visitRepo,
		Departments: departmentRepo,
		Identity:    identitySvc,
		Sequences:   sequenceSvc,
		Balancer:    balancerSvc,
		Logger:      appLog,
		Metrics:     m,
		Now:         clk.Now,
	}, cfg.Intake.MinutesPerPatient)
	ledgerSvc := bedService.NewService(wardRepo, admissionRepo, cfg.Intake.LedgerAttempts, appLog, m, clk.Now)
	notificationSvc := notification.NewService(notificationRepo, clk.Now)
	admissionSvc := admissionService.NewService(admissionRepo, visitRepo, wardRepo, doctorRepo,
		ledgerSvc, notificationSvc, appLog, m, clk.Now)

	// Initialize handlers
	jwtSvc := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Issuer)
	r := router.NewRouter(
		middleware.NewAuthMiddleware(jwtSvc),
		health.NewHandler(healthChecks...),
		promHandler.New(metricsNamespace, reg),
		router.RouterConfig{
			Mode:             cfg.Server.Mode,
			RequestTimeout:   time.Duration(cfg.Server.TimeoutSeconds) * time.Second,
			RateLimitEnabled: cfg.RateLimit.Enabled,
			RateLimit:        rate.Limit(cfg.RateLimit.RequestsPerSecond),
			RateBurst:        cfg.RateLimit.Burst,
			AccessLog:        appLog.ZL,
		},
		intakeHandler.NewHandler(intakeSvc),
		admissionHandler.NewHandler(admissionSvc),
		wardHandler.NewHandler(ledgerSvc),
	)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           r.Setup(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		appLog.Info("starting server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLog.Fatal(err, "failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLog.Error(err, "server forced to shutdown")
	}
	appLog.Info("server exited")
}

