// cmd/chaos/main.go
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"time"

	"bookstore/internal/chaos"
	"bookstore/internal/clients"
	"bookstore/internal/config"
	"bookstore/internal/database"
)

func main() {
	workers := flag.Int("workers", 4, "concurrent requests per drill")
	window := flag.Duration("window", 10*time.Second, "how long to observe each drill")
	pause := flag.Duration("pause", 5*time.Second, "pause between drills")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.AdminEmail == "" || cfg.AdminPassword == "" {
		log.Fatalf("ADMIN_EMAIL and ADMIN_PASSWORD are required to seed drill data")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	db, err := database.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	api := clients.NewClient(cfg.APIBaseURL)
	session, err := api.Login(ctx, cfg.AdminEmail, cfg.AdminPassword)
	if err != nil {
		log.Fatalf("Failed to log in as admin: %v", err)
	}

	engine := chaos.NewEngine(time.Second)
	engine.Register(chaos.NewDrills(db, api, api.WithToken(session.Token), *workers, *window).All()...)

	failed := 0
	for _, res := range engine.RunAll(ctx, *pause) {
		if !res.HypothesisHeld {
			failed++
		}
	}
	if failed > 0 {
		log.Printf("%d drill(s) failed", failed)
		os.Exit(1)
	}
	log.Printf("All drills held")
}
