package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"golang.org/x/sync/errgroup"

	"github.com/quickcourt/auth/internal/cache"
	"github.com/quickcourt/auth/internal/delivery"
	"github.com/quickcourt/auth/internal/handlers"
	"github.com/quickcourt/auth/internal/repository"
	"github.com/quickcourt/auth/internal/service"
	"github.com/quickcourt/auth/pkg/config"
	"github.com/quickcourt/auth/pkg/database"
	"github.com/quickcourt/auth/pkg/events"
	"github.com/quickcourt/auth/pkg/logger"
	mw "github.com/quickcourt/auth/pkg/middleware"
)

const sweepInterval = time.Hour

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect to database
	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	// Connect to Redis
	redisClient := cache.New(cfg.Redis)
	defer redisClient.Close()
	if err := redisClient.Ping(ctx); err != nil {
		logger.Warn("Redis unreachable at startup, abuse controls will fail open", "error", err)
	}

	// Connect to event bus
	eventBus, err := events.NewNATSEventBus(cfg.NATS.URL)
	if err != nil {
		logger.Error("Failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer eventBus.Close()

	// Delivery providers, with the dev fallback only when nothing is configured
	var sms delivery.SMSSender
	if cfg.SMS.Configured() {
		sms = delivery.NewTwilioSMS(cfg.SMS)
	} else {
		logger.Warn("No SMS provider configured, codes will be logged instead of sent")
		sms = delivery.NewDevSMS()
	}

	var email delivery.EmailSender
	if cfg.Email.Configured() {
		email = delivery.NewMailerSend(cfg.Email)
	} else {
		logger.Warn("No email provider configured, email codes will be logged instead of sent")
		email = delivery.NewDevEmail()
	}
	dispatcher := delivery.NewDispatcher(sms, email)

	// Repositories and services
	otpRepo := repository.NewOTPRepository(pool)
	userRepo := repository.NewUserRepository(pool)
	otpService := service.NewOTPService(otpRepo, userRepo, dispatcher, eventBus)
	authService := service.NewAuthService(userRepo, eventBus, cfg)

	h := handlers.New(otpService, authService, redisClient, cfg)

	// Setup router
	r := chi.NewRouter()

	r.Use(mw.RequestID)
	r.Use(mw.ServiceName("auth"))
	r.Use(mw.Logging)
	r.Use(mw.Health)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Route("/auth", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(h.RateLimitByIP("otp_send", 10, time.Minute))
			r.Use(mw.Idempotency(redisClient))
			r.Post("/otp/send", h.SendOTP)
		})
		r.Group(func(r chi.Router) {
			r.Use(h.RateLimitByIP("otp_verify", 15, time.Minute))
			r.Post("/otp/verify", h.VerifyOTP)
		})
		r.Post("/phone/check", h.CheckPhone)
		r.Post("/login/password", h.PasswordLogin)
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Starting auth service", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		logger.Info("Shutting down auth service...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	// Periodic purge of long-dead OTP rows. Expiry itself is enforced lazily
	// at lookup time; this just keeps the table from growing forever.
	g.Go(func() error {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				deleted, err := otpRepo.DeleteStale(ctx)
				if err != nil {
					logger.Error("OTP cleanup sweep failed", "error", err)
					continue
				}
				if deleted > 0 {
					logger.Info("OTP cleanup sweep completed", "deleted", deleted)
				}
			}
		}
	})

	if err := g.Wait(); err != nil {
		logger.Error("Auth service error", "error", err)
		os.Exit(1)
	}
}
