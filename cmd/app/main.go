package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"tree_ton/internal/admin"
	"tree_ton/internal/bot"
	"tree_ton/internal/config"
	"tree_ton/internal/db"
	httpServer "tree_ton/internal/http"
	"tree_ton/internal/http/handlers"
	"tree_ton/internal/http/middleware"
	"tree_ton/internal/identity"
	"tree_ton/internal/logger"
	"tree_ton/internal/referral"
	"tree_ton/internal/repository"
	"tree_ton/internal/service"
	"tree_ton/internal/session"
	"tree_ton/internal/store"
	"tree_ton/internal/store/remote"
	"tree_ton/internal/ton"
	"tree_ton/internal/wallet"
	"tree_ton/internal/withdrawal"
	"tree_ton/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
)

var version = "dev"

// openStore picks the persistence backend. The returned sink is nil unless the
// backend can keep audit entries.
func openStore(ctx context.Context, cfg *config.Config) (store.Store, service.AuditSink, func()) {
	switch cfg.StoreBackend {
	case config.StorePostgres:
		pool := db.Connect(cfg.DatabaseURL)
		if err := db.Migrate(ctx, pool); err != nil {
			logger.Fatal("failed to apply migrations", "error", err)
		}
		repo := repository.NewStore(pool)
		return repo, repo.Audit, pool.Close
	case config.StoreRemote:
		logger.Info("using remote persistence api", "url", cfg.RemoteAPIURL)
		return remote.New(cfg.RemoteAPIURL, cfg.RemoteAPIKey), nil, func() {}
	default:
		logger.Warn("using in-memory store, data is lost on restart")
		return store.NewMemory(), nil, func() {}
	}
}

func identityProvider(cfg *config.Config) identity.Provider {
	if cfg.IdentityMode == config.IdentitySynthetic {
		logger.Warn("synthetic identity mode: init data is not verified")
		return identity.NewSynthetic()
	}
	return identity.NewTelegram(cfg.BotToken, 0, nil)
}

func main() {
	cfg := config.Load()
	logger.Init(cfg.LogLevel, cfg.LogFormat)
	service.InitJWT(cfg.JWTSecret)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, sink, closeStore := openStore(ctx, cfg)
	defer closeStore()
	audit := service.NewAuditService(sink)
	clock := clockwork.NewRealClock()

	var notifier *bot.Notifier
	if cfg.BotToken != "" {
		n, err := bot.New(cfg.BotToken, bot.Options{AdminIDs: cfg.AdminTelegramIDs, Clock: clock})
		if err != nil {
			logger.Error("telegram bot unavailable, notifications disabled", "error", err)
		} else {
			notifier = n
		}
	}

	middleware.InitRedisRateLimiter(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	defer middleware.CloseRedis()

	hub := ws.NewHub()
	sessions := session.NewManager(st, session.ManagerOptions{
		Session: session.Options{
			Clock:         clock,
			RegenInterval: cfg.EnergyRegenInterval,
			OnChange:      hub.Publish,
		},
		IdleTTL: cfg.SessionIdleTTL,
	})

	provider := ton.NewProvider(
		ton.NewClient(ton.Network(cfg.TonNetwork), cfg.TonAPIKey),
		ton.NewPayoutClient(cfg.PayoutURL, cfg.PayoutToken),
		ton.ProviderConfig{Network: ton.Network(cfg.TonNetwork), ProofDomain: cfg.TonProofDomain, Clock: clock},
	)

	h := &handlers.Handler{
		Identity:  identityProvider(cfg),
		Sessions:  sessions,
		Referrals: referral.NewService(st, sessions, notifier, audit, cfg.ReferralReward, cfg.BotUsername),
		Wallets:   wallet.NewConnector(provider, audit),
		Withdrawals: withdrawal.NewService(st, sessions, provider, notifier, audit, withdrawal.Config{
			CoinsDailyLimit: cfg.CoinsDailyLimit,
			Clock:           clock,
		}),
		Admin:       admin.NewAdminService(st, sessions, notifier, audit, clock),
		Audit:       audit,
		AdminSecret: cfg.AdminSecret,
		IsAdmin:     cfg.IsAdmin,
	}

	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())

	// CORS for the mini-app front end
	r.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin != "" && (cfg.AllowedOrigin == "" || origin == cfg.AllowedOrigin) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
			c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	})

	httpServer.RegisterRoutes(r, h, handlers.NewHealthHandler(st, sessions, version), hub, cfg)

	go sessions.Run(ctx)

	srv := &http.Server{
		Addr:    ":" + cfg.AppPort,
		Handler: r,
	}

	go func() {
		logger.Info("server started", "port", cfg.AppPort, "store", cfg.StoreBackend, "version", version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen failed", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	hub.CloseAll()
	sessions.CloseAll()
	notifier.Wait()

	logger.Info("server exited")
}
