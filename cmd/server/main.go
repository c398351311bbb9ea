package main

import (
	"context"
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/oceanguard/hazard-fusion/internal/api"
	"github.com/oceanguard/hazard-fusion/internal/broadcaster"
	"github.com/oceanguard/hazard-fusion/internal/db"
	"github.com/oceanguard/hazard-fusion/internal/pipeline"
)

func main() {
	godotenv.Load()

	log.Println("Starting OceanGuard Hazard Fusion Engine...")

	dbUrl := requireEnv("DATABASE_URL")

	dbConn, err := db.Connect(dbUrl)
	if err != nil {
		log.Printf("Warning: Failed to connect to PostgreSQL. Error: %v", err)
	} else {
		defer dbConn.Close()
		if err := dbConn.InitSchema(); err != nil {
			log.Printf("Warning: DB schema init failed: %v", err)
		}
	}

	if dbConn == nil {
		log.Fatalf("FATAL: hazard fusion engine requires a working database connection")
	}

	bc := broadcaster.New()
	hub := broadcaster.NewHub()
	go hub.Run()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	workers := 4
	pl := pipeline.New(dbConn, bc, hub, workers)
	pl.Start(ctx)

	stopKeepalive := make(chan struct{})
	defer close(stopKeepalive)
	go bc.RunKeepalive(stopKeepalive)

	r := api.SetupRouter(dbConn, pl, bc, hub)

	port := getEnvOrDefault("PORT", "8080")

	log.Printf("Hazard fusion engine listening on :%s\n", port)
	if err := r.Run(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// requireEnv reads a required environment variable and exits if it is not set.
func requireEnv(key string) string {
	val := os.Getenv(key)
	if val == "" {
		log.Fatalf("FATAL: Required environment variable %s is not set. "+
			"Set it in the environment or in a .env file in the working directory.", key)
	}
	return val
}

// getEnvOrDefault returns the env var value or a safe default for non-secret settings.
func getEnvOrDefault(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
