package http

import (
	"time"

	"tree_ton/internal/config"
	"tree_ton/internal/http/handlers"
	"tree_ton/internal/http/middleware"
	"tree_ton/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	authRateLimit  = 10
	authRateWindow = time.Minute
)

// RegisterRoutes mounts the API, the state stream, health checks and metrics.
func RegisterRoutes(r *gin.Engine, h *handlers.Handler, health *handlers.HealthHandler, hub *ws.Hub, cfg *config.Config) {
	r.Use(middleware.Metrics())

	// Health checks (no rate limiting)
	r.GET("/health", health.Health)
	r.GET("/healthz", health.Liveness)
	r.GET("/readyz", health.Readiness)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/ws", ws.HandleWS(hub, h.Sessions, cfg.AllowedOrigin, tapsPerSecond(cfg)))

	v1 := r.Group("/api/v1")
	v1.Use(middleware.RequestLogger(), middleware.RedisRateLimit(cfg.APIRateLimit, cfg.APIRateWindow))
	registerAPIRoutes(v1, h, cfg)
}

func registerAPIRoutes(api *gin.RouterGroup, h *handlers.Handler, cfg *config.Config) {
	authRL := middleware.RedisRateLimit(authRateLimit, authRateWindow)
	api.POST("/auth", authRL, h.Auth)
	api.POST("/admin/auth", authRL, h.AdminAuth)

	user := api.Group("")
	user.Use(middleware.JWT())
	{
		user.GET("/me", h.Me)
		user.POST("/me/tap", middleware.UserRateLimit("tap", cfg.TapRateLimit, cfg.TapRateWindow), h.Tap)
		user.POST("/me/convert", h.Convert)
		user.POST("/me/sync", h.Sync)

		user.GET("/tasks", h.ListTasks)
		user.POST("/tasks/:id/complete", h.CompleteTask)

		user.GET("/upgrades", h.ListUpgrades)
		user.POST("/upgrades/:id", h.BuyUpgrade)

		user.POST("/wallet/connect", h.ConnectWallet)
		user.DELETE("/wallet", h.DisconnectWallet)
		user.POST("/wallet/refresh", h.RefreshWallet)

		user.GET("/withdrawals/config", h.WithdrawalConfig)
		user.POST("/withdrawals", h.RequestWithdrawal)
		user.GET("/withdrawals", h.GetWithdrawals)

		user.GET("/referral", h.GetReferral)
	}

	adm := api.Group("/admin")
	adm.Use(middleware.JWT(), middleware.AdminOnly())
	{
		adm.GET("/stats", h.AdminStats)
		adm.GET("/users", h.AdminListUsers)
		adm.GET("/users/:id", h.AdminGetUser)
		adm.GET("/users/:id/audit", h.AdminUserAudit)
		adm.PUT("/users/:id/status", h.AdminUpdateUserStatus)

		adm.GET("/withdrawals", h.AdminListWithdrawals)
		adm.POST("/withdrawals/:id/approve", h.AdminApproveWithdrawal)
		adm.POST("/withdrawals/:id/reject", h.AdminRejectWithdrawal)
		adm.POST("/withdrawals/:id/retry", h.AdminRetryWithdrawal)
		adm.POST("/withdrawals/:id/settle", h.AdminSettleWithdrawal)

		adm.POST("/broadcast", h.AdminBroadcast)
	}
}

// tapsPerSecond converts the HTTP tap limit into the websocket per-connection rate.
func tapsPerSecond(cfg *config.Config) int {
	secs := cfg.TapRateWindow.Seconds()
	if cfg.TapRateLimit <= 0 || secs <= 0 {
		return 0
	}
	return max(1, int(float64(cfg.TapRateLimit)/secs))
}
