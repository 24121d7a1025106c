package main

import (
	"context"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/planora/event-scheduler/internal/cache"
	"github.com/planora/event-scheduler/internal/config"
	"github.com/planora/event-scheduler/internal/conflict"
	"github.com/planora/event-scheduler/internal/database"
	"github.com/planora/event-scheduler/internal/event"
	"github.com/planora/event-scheduler/internal/handler"
	"github.com/planora/event-scheduler/internal/lock"
	"github.com/planora/event-scheduler/internal/middleware"
	"github.com/planora/event-scheduler/internal/notify"
	"github.com/planora/event-scheduler/internal/queue"
	"github.com/planora/event-scheduler/internal/registration"
	"github.com/planora/event-scheduler/internal/repository"
	"github.com/planora/event-scheduler/internal/router"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer func() { _ = db.Close() }()

	// Redis backs the distributed locks, the response cache and the
	// rate limiter.  When it is unreachable the locks fall back to
	// in-process and the cache layers degrade to no-ops, so a single
	// instance still runs correctly without it.
	rdb := config.NewRedisClient()

	var locks lock.Locker
	lockCfg := lock.Config{TTL: cfg.LockTTL, Attempts: cfg.LockAttempts, RetryDelay: cfg.LockRetryDelay}
	if rdb != nil {
		locks = lock.NewRedisLocker(rdb, lockCfg)
	} else {
		log.Printf("redis unavailable, using in-process locks")
		locks = lock.NewLocalLocker(lockCfg)
	}

	eventRepo := repository.NewEventRepo(db)
	regRepo := repository.NewRegistrationRepo(db, eventRepo)
	msgRepo := repository.NewMessageRepo(db)
	programRepo := repository.NewProgramRepo(db)
	userRepo := repository.NewUserRepo(db)

	invalidator := cache.NewInvalidator(rdb)

	var push notify.PushPublisher
	if cfg.AMQPURL != "" {
		push = queue.NewPublisher(cfg.AMQPURL)
		go func() {
			if err := queue.StartNotificationConsumer(cfg.AMQPURL); err != nil {
				log.Printf("notification consumer stopped: %v", err)
			}
		}()
	}
	var mailer notify.Mailer
	if cfg.SMTPHost != "" {
		mailer = notify.NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPFrom)
	} else {
		mailer = notify.LogMailer{}
	}
	dispatcher := notify.NewDispatcher(msgRepo, push, mailer, cfg.EmailTimeout, cfg.NotifyMaxConcurrent)

	detector := conflict.NewDetector(eventRepo)
	eventSvc := event.NewService(eventRepo, programRepo, userRepo, userRepo, detector, locks, invalidator, dispatcher)
	regSvc := registration.NewService(regRepo, locks, cfg.MaxRolesPerEvent, invalidator, userRepo, dispatcher)

	if cfg.ReminderInterval > 0 {
		go func() {
			for range time.Tick(cfg.ReminderInterval) {
				n, err := eventSvc.SendReminders(context.Background(), cfg.ReminderHorizon)
				if err != nil {
					log.Printf("reminder sweep: %v", err)
					continue
				}
				if n > 0 {
					log.Printf("reminder sweep: %d event(s) notified", n)
				}
			}
		}()
	}

	authH := handler.NewAuthHandler(cfg, userRepo)
	eventH := handler.NewEventHandler(eventSvc, eventRepo, invalidator)
	regH := handler.NewRegistrationHandler(regSvc, regRepo, eventRepo)
	programH := handler.NewProgramHandler(programRepo, eventRepo)
	msgH := handler.NewMessageHandler(msgRepo)

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(echomw.Logger())
	e.Use(middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb))

	cacheMW := middleware.NewRedisCache(config.LoadCacheConfig(), rdb, invalidator.ListingVersion)

	router.RegisterHealth(e)
	router.RegisterAuth(e, authH, cfg.JWTSecret)
	router.RegisterPublic(e, eventH, programH, regH, cacheMW)
	router.RegisterEvents(e, eventH, regH, msgH, programH, cfg.JWTSecret)

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env)
	if err := e.Start(addr); err != nil {
		log.Fatal(err)
	}
}
