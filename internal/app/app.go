package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/McdWebs/WA-bot-sub000/internal/config"
	"github.com/McdWebs/WA-bot-sub000/internal/domain"
	"github.com/McdWebs/WA-bot-sub000/internal/metrics"
	"github.com/McdWebs/WA-bot-sub000/internal/reminders"
	"github.com/McdWebs/WA-bot-sub000/internal/scheduler"
	"github.com/McdWebs/WA-bot-sub000/internal/session"
	"github.com/McdWebs/WA-bot-sub000/internal/store"
	"github.com/McdWebs/WA-bot-sub000/internal/whatsapp"
	"github.com/McdWebs/WA-bot-sub000/internal/zmanim"
)

type App struct {
	cfg       config.Config
	log       *zap.Logger
	httpSrv   *http.Server
	repo      store.Repo
	rdb       *redis.Client
	scheduler *scheduler.Scheduler
}

func New(cfg config.Config, log *zap.Logger) (*App, error) {
	return &App{cfg: cfg, log: log}, nil
}

func (a *App) openRepo(ctx context.Context) (store.Repo, error) {
	switch a.cfg.DBDriver {
	case "postgres":
		return store.OpenPostgres(ctx, a.cfg.DBDSN)
	default:
		return store.OpenSQLite(ctx, a.cfg.DBPath)
	}
}

// setup opens storage and wires every component.
func (a *App) setup(ctx context.Context) error {
	repo, err := a.openRepo(ctx)
	if err != nil {
		return fmt.Errorf("open %s: %w", a.cfg.DBDriver, err)
	}
	a.repo = repo
	a.log.Info("store ready", zap.String("driver", a.cfg.DBDriver))

	if users, err := repo.ActiveUsers(ctx); err != nil {
		a.log.Warn("count active users failed", zap.Error(err))
	} else {
		a.log.Info("active users", zap.Int("count", len(users)))
	}

	var (
		sessions session.Store     = session.NewMemoryStore(a.cfg.SessionTTL)
		claimer  scheduler.Claimer = scheduler.NopClaimer{}
	)
	if a.cfg.RedisAddr != "" {
		a.rdb = redis.NewClient(&redis.Options{
			Addr:     a.cfg.RedisAddr,
			Password: a.cfg.RedisPassword,
			DB:       a.cfg.RedisDB,
		})
		if err := a.rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}
		sessions = session.NewRedisStore(a.rdb, a.cfg.SessionTTL)
		claimer = scheduler.NewRedisClaimer(a.rdb, 0)
		a.log.Info("redis ready", zap.String("addr", a.cfg.RedisAddr))
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder := metrics.NewCollector(reg)

	calendar := zmanim.NewClient(zmanim.ClientConfig{
		BaseURL:         a.cfg.ZmanimURL,
		Timeout:         a.cfg.ZmanimTimeout,
		RetryMaxElapsed: a.cfg.ZmanimRetryFor,
	}, a.log.Named("hebcal"))
	geocoder := zmanim.NewNominatim(a.cfg.GeocoderURL, a.cfg.GeocoderUserAgent, a.cfg.GeocoderRPS, a.cfg.ZmanimTimeout)
	resolver := zmanim.NewResolver(calendar, geocoder, zmanim.NewCache(a.cfg.EventCacheTTL), a.cfg.FallbackLocations, a.log.Named("resolver"))

	wa := whatsapp.NewClient(whatsapp.Config{
		AccountSID: a.cfg.TwilioAccountSID,
		AuthToken:  a.cfg.TwilioAuthToken,
		From:       a.cfg.TwilioFrom,
		BaseURL:    a.cfg.TwilioBaseURL,
		SendRPS:    a.cfg.SendRPS,
	})

	weekday, err := a.cfg.Weekday()
	if err != nil {
		return err
	}
	templates, err := a.cfg.ReminderTemplates()
	if err != nil {
		return err
	}

	svc := reminders.New(repo, sessions, a.log.Named("reminders"), reminders.Options{
		WeeklyDay:  weekday,
		WeeklyHour: a.cfg.ShabbatHour,
	})
	router := whatsapp.NewRouter(repo, svc, sessions, resolver, wa, a.log.Named("router"), whatsapp.RouterOptions{
		DefaultTZ: a.cfg.DefaultTZ,
		TestMode:  a.cfg.TestMode,
	})

	a.scheduler = scheduler.New(repo, resolver, wa, a.log.Named("scheduler"), scheduler.Options{
		Interval: a.cfg.SchedulerInterval,
		Workers:  a.cfg.SchedulerWorkers,
		Evaluator: domain.Evaluator{
			TestMode:   a.cfg.TestMode,
			TestWindow: a.cfg.TestWindowMinutes,
			WeeklyDay:  weekday,
			WeeklyHour: a.cfg.ShabbatHour,
		},
		Templates: templates,
		Claimer:   claimer,
		Metrics:   recorder,
	})

	webhook := whatsapp.NewWebhookHandler(router, a.log.Named("webhook"), a.cfg.TwilioAuthToken, a.cfg.WebhookURL)
	a.httpSrv = &http.Server{
		Addr:         a.cfg.HTTPAddr,
		Handler:      newHTTPHandler(reg, webhook),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return nil
}

func newHTTPHandler(gatherer prometheus.Gatherer, webhook http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Method(http.MethodGet, "/metrics", metrics.Handler(gatherer))
	r.Method(http.MethodPost, "/webhook/whatsapp", webhook)
	return r
}

func (a *App) Run(ctx context.Context) error {
	a.log.Info("starting wa-bot",
		zap.String("http", a.cfg.HTTPAddr),
		zap.Bool("test_mode", a.cfg.TestMode),
	)

	if err := a.setup(ctx); err != nil {
		a.log.Error("setup failed", zap.Error(err))
		a.close()
		return err
	}

	go func() {
		if err := a.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("http server error", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a.scheduler.Start(ctx)

	<-ctx.Done()
	a.log.Info("shutdown signal received")

	a.scheduler.Stop()

	shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	err := a.httpSrv.Shutdown(shCtx)
	cancel()
	if err != nil {
		a.log.Warn("http server shutdown error", zap.Error(err))
	}
	a.close()
	return nil
}

func (a *App) close() {
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
	if a.repo != nil {
		_ = a.repo.Close()
	}
}
