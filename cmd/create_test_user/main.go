package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"time"

	"tree_ton/internal/db"
	"tree_ton/internal/domain"
	"tree_ton/internal/logger"
	"tree_ton/internal/repository"
	"tree_ton/internal/service"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

func main() {
	_ = godotenv.Load()
	logger.Init("info", "text")

	tgID := flag.Int64("tg", 1234567890, "telegram id")
	coins := flag.Int64("coins", 0, "starting coins")
	ton := flag.String("ton", "", "connected wallet TON balance")
	wallet := flag.String("wallet", "", "connected wallet address")
	flag.Parse()

	// expects DATABASE_URL and JWT_SECRET env vars
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		logger.Fatal("DATABASE_URL not set")
	}
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		logger.Fatal("JWT_SECRET not set")
	}
	service.InitJWT(secret)

	pool := db.Connect(dsn)
	defer pool.Close()

	repo := repository.NewUserRepository(pool)
	ctx := context.Background()

	u, err := repo.GetByTgID(ctx, *tgID)
	switch {
	case err == nil:
		logger.Info("user already exists", "id", u.ID)
	case errors.Is(err, domain.ErrNotFound):
		fresh := domain.NewUser(*tgID, "testuser", "Tester", "", time.Now())
		if err := repo.Create(ctx, &fresh); err != nil {
			logger.Fatal("create user failed", "error", err)
		}
		u = &fresh
		logger.Info("user created", "id", u.ID)
	default:
		logger.Fatal("get by tg id failed", "error", err)
	}

	if *coins > 0 || *wallet != "" {
		u.Coins += *coins
		if *wallet != "" {
			u.WalletAddress = *wallet
			u.IsWalletConnected = true
			if *ton != "" {
				u.TonBalance = decimal.RequireFromString(*ton)
			}
		}
		if err := repo.Update(ctx, *u); err != nil {
			logger.Fatal("update user failed", "error", err)
		}
	}

	u2, err := repo.GetByTgID(ctx, *tgID)
	if err != nil {
		logger.Fatal("get by tg id failed", "error", err)
	}
	logger.Info("fetched user", "id", u2.ID, "username", u2.Username, "coins", u2.Coins, "ton_balance", u2.TonBalance.String(), "joined_at", u2.JoinedAt)

	token, err := service.GenerateJWT(u2.ID, service.RoleUser)
	if err != nil {
		logger.Fatal("failed to generate token", "error", err)
	}
	logger.Info("token", "token", token)
}
