package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"time"

	"trip-dispatch-system/api"
	"trip-dispatch-system/cache"
	"trip-dispatch-system/config"
	"trip-dispatch-system/database"
	"trip-dispatch-system/dispatch"
	"trip-dispatch-system/lifecycle"
	"trip-dispatch-system/locations"
	"trip-dispatch-system/migration"
	"trip-dispatch-system/monitor"
	"trip-dispatch-system/wallet"
)

func main() {
	migrateOnly := flag.Bool("migrate", false, "run database migrations and exit")
	flag.Parse()

	// Initialize configuration
	config.InitConfig()

	if *migrateOnly {
		if err := migration.RunMigrations(); err != nil {
			log.Fatalf("Migration error: %v", err)
		}
		return
	}

	// Initialize database
	if err := database.InitDB(); err != nil {
		log.Fatal(err)
	}

	// Initialize Redis
	if err := cache.InitRedis(); err != nil {
		log.Fatal(err)
	}

	cfg := config.Cfg

	tripStore := lifecycle.NewPostgresTripStore(database.DB)
	trips := lifecycle.NewService(tripStore, cfg.Fees.PlatformFeePercent)

	locStore := locations.NewStore(cache.Rdb, cfg.Dispatch.GeohashPrecision)
	engine := dispatch.NewEngine(locStore, tripStore,
		time.Duration(cfg.Dispatch.LookupTimeoutSec)*time.Second)

	ledger := wallet.NewLedger(wallet.NewPostgresStore(database.DB))

	// Drain the driver location feed, if one is configured.
	if cfg.AMQP.URL != "" {
		consumer := locations.NewConsumer(cfg.AMQP.URL, cfg.AMQP.LocationExchange, locStore)
		go func() {
			if err := consumer.Run(context.Background()); err != nil {
				log.Printf("location consumer stopped: %v", err)
			}
		}()
	}

	handler := &api.Handler{
		Trips:            trips,
		TripStore:        tripStore,
		Dispatch:         engine,
		Wallet:           ledger,
		Locations:        locStore,
		DefaultRadiusKm:  cfg.Dispatch.RadiusKm,
		DefaultFreshness: time.Duration(cfg.Dispatch.FreshnessMinutes) * time.Minute,
		Thresholds: monitor.Thresholds{
			OnTheWay:        time.Duration(cfg.Monitor.OnTheWayMinutes) * time.Minute,
			OnTrip:          time.Duration(cfg.Monitor.OnTripMinutes) * time.Minute,
			Unassigned:      time.Duration(cfg.Monitor.UnassignedMinutes) * time.Minute,
			CancelledRecent: time.Duration(cfg.Monitor.CancelledMinutes) * time.Minute,
		},
	}

	// Register routes and start the server
	router := api.RegisterRoutes(handler)
	log.Printf("Server started on %s", cfg.Server.Addr)
	log.Fatal(http.ListenAndServe(cfg.Server.Addr, router))
}
