// The traffic binary is the attendance service: kiosk devices,
// teacher-run sessions with rotating QR proofs, student marks and
// realtime kiosk status.
package main

import (
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
	"github.com/polytech-superapp/campus-sso/internal/realtime"
	"github.com/polytech-superapp/campus-sso/internal/repository"
	"github.com/polytech-superapp/campus-sso/internal/router"
)

// offlineGrace is how long a kiosk may be disconnected before its
// status stream reports it offline. Covers SSE reconnect flaps.
const offlineGrace = 20 * time.Second

func main() {
	_ = godotenv.Load()
	cfg := config.LoadTraffic()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	kiosks := repository.NewKioskRepo(db)
	attend := repository.NewAttendRepo(db)
	hub := realtime.NewHub(offlineGrace)
	sink := audit.New(os.Getenv("RABBITMQ_URL"))

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

	router.RegisterTraffic(e, router.TrafficHandlers{
		Student:  handler.NewStudentHandler(cfg, sink),
		Kiosks:   handler.NewKioskHandler(cfg, kiosks, attend, hub, sink),
		Sessions: handler.NewSessionHandler(cfg, kiosks, attend, hub, sink),
	}, cfg, rlCfg, rdb, sink)

	log.Fatal(e.Start(":" + cfg.Port))
}
