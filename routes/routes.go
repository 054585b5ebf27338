package routes

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/LovationAdmin/finance-tracker/handlers"
	"github.com/LovationAdmin/finance-tracker/middleware"
	"github.com/LovationAdmin/finance-tracker/services"
	"github.com/LovationAdmin/finance-tracker/utils"
)

const Version = "1.0.0"

// Deps carries everything the handlers need. Profiles, Push and Subs are
// nil when the remote backend is not configured.
type Deps struct {
	Ledger      *services.LedgerService
	Insights    *services.InsightsService
	Advisor     *services.AdvisorService
	Categorizer *services.CategorizerService
	Tokens      *utils.TokenManager
	WS          *handlers.WSHandler

	Profiles *services.ProfileService
	Push     *services.PushService
	Subs     services.SubscriptionStore
}

type Options struct {
	AllowedOrigins []string
	RateLimiter    *middleware.RateLimiter
}

// NewRouter builds the gin engine with CORS, request logging, rate
// limiting and every route group.
func NewRouter(d *Deps, opts Options) *gin.Engine {
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"http://localhost:3000"}
	}

	router := gin.New()
	router.Use(gin.Recovery())

	router.Use(cors.New(cors.Config{
		AllowOrigins:     opts.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	router.Use(middleware.RequestLogger())
	if opts.RateLimiter != nil {
		router.Use(opts.RateLimiter.Middleware())
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"version": Version,
			"remote":  d.Profiles != nil,
			"time":    time.Now().UTC().Format(time.RFC3339),
		})
	})

	v1 := router.Group("/api/v1")
	{
		SetupAuthRoutes(v1, d)

		protected := v1.Group("/")
		protected.Use(middleware.AuthMiddleware(d.Tokens, d.Ledger))
		{
			protected.GET("/ws", d.WS.HandleWS)
			SetupLedgerRoutes(protected, d)
			SetupInsightsRoutes(protected, d)
			SetupUserRoutes(protected, d)
			if d.Profiles != nil {
				SetupProfileRoutes(protected, d)
			}
			if d.Subs != nil && d.Push != nil {
				SetupPushRoutes(protected, d)
			}
		}
	}

	return router
}

// SetupAuthRoutes sets up public authentication routes.
func SetupAuthRoutes(rg *gin.RouterGroup, d *Deps) {
	authHandler := &handlers.AuthHandler{Ledger: d.Ledger, Tokens: d.Tokens}

	rg.POST("/auth/register", authHandler.Register)
	rg.POST("/auth/login", authHandler.Login)
}

// SetupLedgerRoutes sets up transactions, goals and settings.
func SetupLedgerRoutes(rg *gin.RouterGroup, d *Deps) {
	tx := &handlers.TransactionHandler{Ledger: d.Ledger, Categorizer: d.Categorizer}
	rg.GET("/transactions", tx.List)
	rg.POST("/transactions", tx.Create)
	rg.POST("/transactions/categorize", tx.Categorize)
	rg.GET("/transactions/:id", tx.Get)
	rg.PUT("/transactions/:id", tx.Update)
	rg.DELETE("/transactions/:id", tx.Delete)

	goals := &handlers.GoalHandler{Ledger: d.Ledger}
	rg.GET("/goals", goals.List)
	rg.POST("/goals", goals.Create)
	rg.PUT("/goals/:id", goals.Update)
	rg.DELETE("/goals/:id", goals.Delete)
	rg.POST("/goals/:id/contribute", goals.Contribute)

	settings := &handlers.SettingsHandler{Ledger: d.Ledger}
	rg.GET("/settings", settings.Get)
	rg.PUT("/settings", settings.Update)
}

// SetupInsightsRoutes sets up the aggregation and advisor routes.
func SetupInsightsRoutes(rg *gin.RouterGroup, d *Deps) {
	insights := &handlers.InsightsHandler{Insights: d.Insights}
	rg.GET("/insights/summary", insights.Summary)
	rg.GET("/insights/trend", insights.Trend)
	rg.GET("/insights/recurring", insights.Recurring)
	rg.GET("/insights/upcoming", insights.Upcoming)
	rg.GET("/insights/tips", insights.Tips)

	advisor := &handlers.AdvisorHandler{Advisor: d.Advisor}
	rg.POST("/advisor/chat", advisor.Chat)
}

// SetupUserRoutes sets up protected account routes.
func SetupUserRoutes(rg *gin.RouterGroup, d *Deps) {
	userHandler := &handlers.UserHandler{Ledger: d.Ledger, Profiles: d.Profiles}

	rg.GET("/user", userHandler.GetMe)
	rg.GET("/user/export", userHandler.ExportData)
	rg.POST("/user/password", userHandler.ChangePassword)
	rg.POST("/user/2fa/setup", userHandler.SetupTOTP)
	rg.POST("/user/2fa/verify", userHandler.VerifyTOTP)
	rg.POST("/user/2fa/disable", userHandler.DisableTOTP)
	rg.DELETE("/user/account", userHandler.DeleteAccount)
}

// SetupProfileRoutes sets up the remote profile and license routes.
func SetupProfileRoutes(rg *gin.RouterGroup, d *Deps) {
	profiles := &handlers.ProfileHandler{Profiles: d.Profiles}

	rg.GET("/profile", profiles.Get)
	rg.PUT("/profile", profiles.Update)
	rg.POST("/profile/license", profiles.ActivateLicense)
}

// SetupPushRoutes sets up Web Push subscription routes.
func SetupPushRoutes(rg *gin.RouterGroup, d *Deps) {
	push := &handlers.PushHandler{Push: d.Push, Subs: d.Subs}

	rg.GET("/push/vapid-key", push.VAPIDKey)
	rg.POST("/push/subscriptions", push.Subscribe)
	rg.DELETE("/push/subscriptions", push.Unsubscribe)
	rg.POST("/push/test", push.Test)
}
