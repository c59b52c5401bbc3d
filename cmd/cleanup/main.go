// Command cleanup runs one data-retention pass: terminal jobs older
// than the retention window are archived to OSS (when configured),
// their cached status dropped, and the rows deleted.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"github.com/geolyze/geolyze_server/config"
	"github.com/geolyze/geolyze_server/internal/database"
	"github.com/geolyze/geolyze_server/internal/pkg/oss"
	"github.com/geolyze/geolyze_server/internal/pkg/statuscache"
	"github.com/geolyze/geolyze_server/internal/repository"
	"github.com/geolyze/geolyze_server/internal/service"
)

var (
	dryRun        = flag.Bool("dry-run", true, "Report what would be removed without deleting")
	retentionDays = flag.Int("retention-days", 0, "Override the configured retention window")
)

func main() {
	flag.Parse()

	log.Println("Starting retention cleanup...")
	log.Printf("Mode: dry-run=%v", *dryRun)

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *retentionDays > 0 {
		cfg.Retention.Days = *retentionDays
	}

	db, err := database.NewMySQL(&cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect database: %v", err)
	}

	rdb, err := database.NewRedis(&cfg.Redis)
	if err != nil {
		log.Fatalf("Failed to connect redis: %v", err)
	}

	var archiver service.Archiver
	if cfg.Retention.ArchiveToOSS && cfg.OSS.Endpoint != "" {
		ossClient, err := oss.NewClient(&cfg.OSS)
		if err != nil {
			log.Fatalf("Failed to init OSS client: %v", err)
		}
		archiver = ossClient
	}

	jobRepo := repository.NewJobRepository(db)
	cache := statuscache.NewCache(rdb)
	retention := service.NewRetentionService(jobRepo, cache, archiver, &cfg.Retention)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	total := 0
	for {
		removed, err := retention.Sweep(ctx, *dryRun)
		if err != nil {
			log.Fatalf("Sweep failed: %v", err)
		}
		total += removed
		if removed == 0 || *dryRun {
			break
		}
	}

	log.Printf("Cleanup finished, %d jobs processed", total)
}
