package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/LovationAdmin/finance-tracker/config"
	"github.com/LovationAdmin/finance-tracker/handlers"
	"github.com/LovationAdmin/finance-tracker/middleware"
	"github.com/LovationAdmin/finance-tracker/routes"
	"github.com/LovationAdmin/finance-tracker/services"
	"github.com/LovationAdmin/finance-tracker/store"
	"github.com/LovationAdmin/finance-tracker/utils"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		utils.Logger.Fatal().Err(err).Msg("invalid configuration")
	}

	utils.SetupLogger(cfg.LogLevel, cfg.IsProduction(), nil)
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	st, err := store.Open(cfg.DataPath)
	if err != nil {
		utils.Logger.Fatal().Err(err).Str("path", cfg.DataPath).Msg("failed to open data store")
	}
	defer st.Close()

	var cipher *utils.Cipher
	if cfg.EncryptionKey != "" {
		if cipher, err = utils.NewCipher(cfg.EncryptionKey); err != nil {
			utils.Logger.Fatal().Err(err).Msg("invalid encryption key")
		}
	} else {
		utils.SafeWarn("DATA_ENCRYPTION_KEY not set, TOTP secrets are stored in clear")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	wsHandler := handlers.NewWSHandler()
	ledger := services.NewLedgerService(st, wsHandler, cipher)
	insights := services.NewInsightsService(st)

	provider := newChatProvider(cfg)
	deps := &routes.Deps{
		Ledger:      ledger,
		Insights:    insights,
		Advisor:     services.NewAdvisorService(provider, insights),
		Categorizer: services.NewCategorizerService(st, ledger, provider),
		Tokens:      utils.NewTokenManager(cfg.JWTSecret, cfg.TokenTTL),
		WS:          wsHandler,
	}

	var db *sql.DB
	if cfg.DatabaseURL != "" {
		db = openRemote(ctx, cfg, deps)
		defer db.Close()
	} else {
		utils.SafeInfo("DATABASE_URL not set, profile and push features are disabled")
	}

	limiter := middleware.NewRateLimiter(cfg.RateLimit, cfg.RateWindow)
	limiter.StartCleanup(ctx)

	router := routes.NewRouter(deps, routes.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		RateLimiter:    limiter,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		utils.LogStartup("finance-tracker", routes.Version, cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			utils.Logger.Fatal().Err(err).Msg("server error")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGTERM, syscall.SIGINT)
	<-stop
	utils.SafeInfo("shutting down")

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := wsHandler.Close(); err != nil {
		utils.SafeWarn("closing websocket hub: %v", err)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		utils.SafeError("graceful shutdown failed: %v", err)
	}
}

func newChatProvider(cfg *config.Config) services.ChatProvider {
	if cfg.AIProvider == "openai" {
		return services.NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.OpenAIBaseURL)
	}
	return services.NewClaudeAIService(cfg.AnthropicAPIKey, cfg.AnthropicModel, "")
}

// openRemote connects PostgreSQL and enables profiles, push and reminders.
func openRemote(ctx context.Context, cfg *config.Config, deps *routes.Deps) *sql.DB {
	db, err := config.InitDB(cfg.DatabaseURL)
	if err != nil {
		utils.Logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	if err := config.RunMigrations(db); err != nil {
		utils.Logger.Fatal().Err(err).Msg("failed to run migrations")
	}

	subs := services.NewPushSubscriptionService(db)
	push := services.NewPushService(subs, services.PushConfig{
		VAPIDPublicKey:  cfg.VAPIDPublicKey,
		VAPIDPrivateKey: cfg.VAPIDPrivateKey,
		Subscriber:      cfg.VAPIDSubscriber,
		TTL:             cfg.PushTTL,
	})

	deps.Profiles = services.NewProfileService(db)
	deps.Subs = subs
	deps.Push = push

	if cfg.PushEnabled() {
		reminders := services.NewReminderService(deps.Insights, push, subs, cfg.ReminderLeadDays, cfg.ReminderInterval)
		go reminders.Run(ctx)
	} else {
		utils.SafeInfo("VAPID keys not set, payment reminders are disabled")
	}
	return db
}
