package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/credits-backend/internal/billing"
	"github.com/angelmondragon/credits-backend/internal/credits"
	"github.com/angelmondragon/credits-backend/pkg/config"
	"github.com/angelmondragon/credits-backend/pkg/db"
	"github.com/angelmondragon/credits-backend/pkg/logger"
)

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "admin"})

	_ = godotenv.Load()

	cmd := flag.String("cmd", "", "admin command: set-plan|grant-top-up|auto-top-up|summary|mint-token")
	users := flag.String("users", "", "comma separated user ids")
	plan := flag.String("plan", "", "plan for set-plan: free|trial|basic|premium")
	amount := flag.Int("amount", 0, "credits for grant-top-up")
	enabled := flag.Bool("enabled", false, "auto top-up preference for auto-top-up")

	flag.Parse()

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	logg = logger.New(logger.Options{
		ServiceName: "admin",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "cmd": *cmd})

	userIDs := splitUsers(*users)

	if *cmd == "mint-token" {
		if err := mintTokens(os.Stdout, cfg.JWT, time.Now(), userIDs); err != nil {
			fmt.Fprintf(os.Stderr, "mint-token failed: %v\n", err)
			os.Exit(1)
		}
		return
	}

	dbClient, err := db.New(ctx, cfg.DB, logg)
	requireResource(ctx, logg, "database", err)
	defer dbClient.Close()

	repo := credits.NewRepository(dbClient.DB())
	creditService, err := credits.NewService(credits.ServiceParams{
		Repo:              repo,
		TransactionRunner: dbClient,
		Economics:         credits.EconomicsFromConfig(cfg.Credits),
		Logger:            logg,
	})
	requireResource(ctx, logg, "credits service", err)

	billingService, err := billing.NewService(billing.ServiceParams{
		Repo:              repo,
		TransactionRunner: dbClient,
		Ledger:            creditService.Ledger(),
		Logger:            logg,
	})
	requireResource(ctx, logg, "billing service", err)

	err = runAdmin(ctx, os.Stdout, billingService, creditService, options{
		cmd:     *cmd,
		users:   userIDs,
		plan:    *plan,
		amount:  *amount,
		enabled: *enabled,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s failed: %v\n", *cmd, err)
		os.Exit(1)
	}
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
