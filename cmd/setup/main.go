package main

import (
	"context"
	"flag"
	"log"

	"blueprint-room-pipeline/internal/config"
	"blueprint-room-pipeline/internal/infra/db/postgres"
	"blueprint-room-pipeline/internal/infra/redis"
)

// Creates the pipeline schema and, with -wipe, resets the environment to a
// clean state for manual end-to-end testing.
func main() {
	ctx := context.Background()

	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	wipe := flag.Bool("wipe", false, "truncate existing data")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, false)
	if err != nil {
		log.Fatalf("config load: %v", err)
	}

	pool, err := postgres.NewPgxPool(ctx, cfg.Database.URL, 5)
	if err != nil {
		log.Fatalf("postgres connection failed: %v", err)
	}
	defer pool.Close()

	log.Println("creating schema...")
	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS jobs (
			id               TEXT PRIMARY KEY,
			status           TEXT NOT NULL,
			stage            TEXT NOT NULL DEFAULT '',
			blueprint_key    TEXT NOT NULL,
			attempt          INT NOT NULL DEFAULT 0,
			cancel_requested BOOLEAN NOT NULL DEFAULT FALSE,
			last_error       TEXT NOT NULL DEFAULT '',
			created_at       TIMESTAMPTZ NOT NULL,
			updated_at       TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS jobs_pending_idx ON jobs (created_at) WHERE status = 'pending';

		CREATE TABLE IF NOT EXISTS stage_artifacts (
			job_id     TEXT NOT NULL,
			stage      TEXT NOT NULL,
			payload    JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (job_id, stage)
		);
	`)
	if err != nil {
		log.Fatalf("failed to create schema: %v", err)
	}

	if *wipe {
		log.Println("wiping existing data...")
		if _, err := pool.Exec(ctx, `TRUNCATE jobs, stage_artifacts;`); err != nil {
			log.Fatalf("failed to truncate tables: %v", err)
		}

		redisClient, err := redis.NewClient(ctx, &cfg.Redis)
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		defer redisClient.Close()
		log.Println("clearing cached artifacts and subscriptions...")
		// Keys are namespaced, so a targeted delete would also work; a full
		// flush keeps this tool simple for dedicated test databases.
		if err := redisClient.FlushDB(ctx); err != nil {
			log.Fatalf("failed to flush redis: %v", err)
		}
	}

	log.Println("setup complete")
}
