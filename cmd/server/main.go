package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"farewatch/internal/advisor"
	"farewatch/internal/bot"
	"farewatch/internal/cache"
	"farewatch/internal/config"
	"farewatch/internal/db"
	"farewatch/internal/handler"
	"farewatch/internal/job"
	"farewatch/internal/provider"
	"farewatch/internal/repository"
	"farewatch/internal/service"
	"farewatch/pkg/tracing"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/trace"

	_ "farewatch/docs"
)

var (
	loadEnvFunc           = godotenv.Load
	loadConfigFunc        = config.Load
	initPostgresFunc      = db.InitPostgres
	initRedisFunc         = cache.InitRedis
	initTracerFunc        = tracing.InitTracer
	newAmadeusClientFunc  = func(tracer trace.Tracer, opts provider.Options) service.QuoteProvider {
		return provider.NewAmadeusClient(tracer, opts)
	}
	newTrackerServiceFunc  = service.NewTrackerService
	newPricePollerFunc     = job.NewPricePoller
	startPollerFunc        = func(p *job.PricePoller, ctx context.Context) { go p.Start(ctx) }
	startTelegramBotFunc   = bot.StartTelegramBot
	newHandlerFunc         = handler.New
	newRouterFunc          = gin.Default
	setupSignalNotify      = signal.Notify
	waitForSignalFunc      = func(quit <-chan os.Signal) { <-quit }
	startHTTPServerFunc    = func(srv *http.Server) error { return srv.ListenAndServe() }
	shutdownHTTPServerFunc = func(srv *http.Server, ctx context.Context) error { return srv.Shutdown(ctx) }
)

// @title           Farewatch API
// @version         1.0
// @description     Flight route price tracking and alerting service.

// @host      localhost:8080
// @BasePath  /
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

	// Repositories
	routeRepo := repository.NewRouteRepository(db.Pool, tracer)
	historyRepo := repository.NewHistoryRepository(db.Pool, tracer)
	alertRepo := repository.NewAlertRepository(db.Pool, tracer)
	recipientRepo := repository.NewRecipientRepository(db.Pool, tracer)
	convRepo := repository.NewConversationRepository(db.Pool, tracer)

	// Provider client and tracker service
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

	// Start price poller (background goroutine, stopped by ctx cancel)
	poller := newPricePollerFunc(tracer, routeRepo, historyRepo, alertRepo, amadeus, cfg.PollTickSecs, cfg.PollWorkers)
	startPollerFunc(poller, ctx)

	// Fare advisor (optional)
	var advisorSvc *advisor.AdvisorService
	if cfg.OpenAIAPIKey != "" {
		llmClient := advisor.NewOpenAIClient(cfg.OpenAIAPIKey)
		advisorSvc = advisor.NewAdvisorService(tracer, llmClient, tracker, convRepo, cfg.OpenAIModel, cfg.AdvisorMaxHistory)
		log.Println("Fare advisor enabled")
	}

	// Start Telegram bot
	os.Setenv("TELEGRAM_BOT_TOKEN", cfg.TelegramBotToken)
	startTelegramBotFunc(tracker, advisorSvc)

	// Handlers and routes
	h := newHandlerFunc(tracer, tracker)

	r := newRouterFunc()
	r.Use(otelgin.Middleware("farewatch"))
	r.Use(cors.Default())
	r.Use(handler.APIKeyAuth(cfg.APIKey))

	h.RegisterRoutes(r)
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	srv := &http.Server{
		Addr:    ":8080",
		Handler: r,
	}

	go func() {
		if err := startHTTPServerFunc(srv); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	setupSignalNotify(quit, syscall.SIGINT, syscall.SIGTERM)
	waitForSignalFunc(quit)
	log.Println("Shutting down server...")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := shutdownHTTPServerFunc(srv, shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exiting")
}
