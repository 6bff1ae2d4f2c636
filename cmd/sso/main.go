// The sso binary is the identity store: credential login, refresh
// session rotation, the provisioning gateway and telegram links.
package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/polytech-superapp/campus-sso/internal/audit"
	"github.com/polytech-superapp/campus-sso/internal/config"
	"github.com/polytech-superapp/campus-sso/internal/database"
	"github.com/polytech-superapp/campus-sso/internal/handler"
	"github.com/polytech-superapp/campus-sso/internal/repository"
	"github.com/polytech-superapp/campus-sso/internal/router"
)

func main() {
	_ = godotenv.Load()
	cfg := config.LoadSSO()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	accounts := repository.NewAccountRepo(db)
	sessions := repository.NewSessionRepo(db)
	links := repository.NewLinkRepo(db)
	sink := audit.New(os.Getenv("RABBITMQ_URL"))

	if err := bootstrapAdmin(accounts, cfg); err != nil {
		log.Fatalf("admin bootstrap: %v", err)
	}

	rdb := config.NewRedisClient()
	rlCfg := config.LoadRateLimitConfig()
	if rdb == nil {
		log.Println("redis unreachable, rate limiting disabled")
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	if cfg.Env != "prod" {
		e.Use(echomw.Logger())
	}

	router.RegisterSSO(e, router.SSOHandlers{
		Auth:      handler.NewAuthHandler(cfg, accounts, sessions, sink),
		Accounts:  handler.NewAccountHandler(cfg, accounts, sink),
		Provision: handler.NewProvisionHandler(cfg, accounts, sink),
		Links:     handler.NewLinkHandler(accounts, links, sink),
	}, cfg, rlCfg, rdb, sink)

	log.Fatal(e.Start(":" + cfg.Port))
}

// bootstrapAdmin creates the sso super-admin on first startup. The
// account is the root of the capability chain: without it nobody can
// administer accounts through the API.
func bootstrapAdmin(accounts *repository.AccountRepo, cfg config.Config) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := accounts.GetActiveByUsername(ctx, cfg.AdminUsername)
	if err == nil {
		return nil
	}
	if err != repository.ErrNotFound {
		return err
	}
	_, err = accounts.Create(ctx, repository.CreateParams{
		Username: cfg.AdminUsername,
		Password: cfg.AdminPassword,
		FullName: "SSO Administrator",
		App:      "sso",
		Role:     "admin",
	}, cfg.BcryptCost)
	if err == repository.ErrDuplicateUsername {
		// A parallel replica won the race; fine.
		return nil
	}
	if err == nil {
		log.Printf("created sso admin account %q", cfg.AdminUsername)
	}
	return err
}
