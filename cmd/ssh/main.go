package main

import (
	"context"
	"fmt"
	"log"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"farewatch/internal/cache"
	"farewatch/internal/config"
	"farewatch/internal/db"
	"farewatch/internal/provider"
	"farewatch/internal/repository"
	"farewatch/internal/service"
	"farewatch/internal/tui"
	"farewatch/pkg/tracing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/ssh"
	"github.com/charmbracelet/wish"
	"github.com/charmbracelet/wish/bubbletea"
	"github.com/charmbracelet/wish/logging"
	"github.com/joho/godotenv"
	"go.opentelemetry.io/otel/trace"
	gossh "golang.org/x/crypto/ssh"
)

var (
	loadEnvFunc          = godotenv.Load
	loadConfigFunc       = config.Load
	initPostgresFunc     = db.InitPostgres
	initRedisFunc        = cache.InitRedis
	initTracerFunc       = tracing.InitTracer
	newAmadeusClientFunc = func(tracer trace.Tracer, opts provider.Options) service.QuoteProvider {
		return provider.NewAmadeusClient(tracer, opts)
	}
	newTrackerServiceFunc = service.NewTrackerService
	newWishServerFunc     = wish.NewServer
	setupSignalNotify     = ossignal.Notify
	waitForSignalFunc     = func(quit <-chan os.Signal) { <-quit }
)

func main() {
	loadEnvFunc()
	cfg := loadConfigFunc()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Init Postgres and Redis
	os.Setenv("DATABASE_URL", cfg.DatabaseURL)
	os.Setenv("REDIS_URL", cfg.RedisURL)
	initPostgresFunc(ctx)
	initRedisFunc(ctx)

	// Init tracing
	tp, tracer, err := initTracerFunc(ctx)
	if err != nil {
		log.Fatalf("failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := tp.Shutdown(ctx); err != nil {
			log.Printf("error shutting down tracer provider: %v", err)
		}
	}()

	// Repositories and services
	routeRepo := repository.NewRouteRepository(db.Pool, tracer)
	historyRepo := repository.NewHistoryRepository(db.Pool, tracer)
	alertRepo := repository.NewAlertRepository(db.Pool, tracer)
	recipientRepo := repository.NewRecipientRepository(db.Pool, tracer)

	amadeus := newAmadeusClientFunc(tracer, provider.Options{
		APIKey:          cfg.AmadeusAPIKey,
		APISecret:       cfg.AmadeusAPISecret,
		BaseURL:         cfg.AmadeusBaseURL,
		Timeout:         time.Duration(cfg.ProviderTimeoutSecs) * time.Second,
		RetryAttempts:   cfg.ProviderRetryAttempts,
		RetryBackoff:    time.Duration(cfg.ProviderRetryBackoffMillis) * time.Millisecond,
		BreakerFailures: cfg.ProviderBreakerFailures,
		BreakerCooldown: time.Duration(cfg.ProviderBreakerCooldownSecs) * time.Second,
		QuoteTTL:        time.Duration(cfg.QuoteCacheTTLSecs) * time.Second,
		TokenMargin:     time.Duration(cfg.TokenSafetyMarginSecs) * time.Second,
	})
	tracker := newTrackerServiceFunc(tracer, routeRepo, historyRepo, alertRepo, recipientRepo, amadeus, cache.Client)

	// Build Wish SSH server. The SSH username doubles as the route owner ID,
	// so sessions only see the routes tracked under that name.
	addr := fmt.Sprintf("%s:%d", cfg.SSHBind, cfg.SSHPort)

	srv, err := newWishServerFunc(
		wish.WithAddress(addr),
		wish.WithHostKeyPath(cfg.SSHHostKeyPath),
		wish.WithPublicKeyAuth(func(ctx ssh.Context, key ssh.PublicKey) bool {
			// Any key is accepted. The username scopes what the session can see,
			// so unauthenticated users only reach their own route list.
			log.Printf("SSH session for %q with key %s", ctx.User(), gossh.FingerprintSHA256(key))
			return true
		}),
		wish.WithMiddleware(
			bubbletea.Middleware(func(s ssh.Session) (tea.Model, []tea.ProgramOption) {
				username := s.User()
				model := tui.NewAppModel(tui.Services{
					Tracker:  tracker,
					UserID:   username,
					Username: username,
				})
				pty, _, _ := s.Pty()
				model.SetSize(pty.Window.Width, pty.Window.Height)

				return model, []tea.ProgramOption{tea.WithAltScreen()}
			}),
			logging.Middleware(),
		),
	)
	if err != nil {
		log.Fatalf("failed to create SSH server: %v", err)
	}

	if srv != nil {
		go func() {
			log.Printf("SSH server listening on %s", addr)
			if err := srv.ListenAndServe(); err != nil {
				log.Printf("SSH server stopped: %v", err)
			}
		}()
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	setupSignalNotify(quit, syscall.SIGINT, syscall.SIGTERM)
	waitForSignalFunc(quit)
	log.Println("Shutting down SSH server...")

	cancel()

	if srv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("SSH server shutdown error: %v", err)
		}
	}

	log.Println("SSH server exited")
}
