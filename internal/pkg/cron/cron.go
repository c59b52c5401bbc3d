package cron

import (
	"context"
	"log"
	"time"

	"github.com/geolyze/geolyze_server/internal/service"
)

// Service periodic background work for the gateway process: the
// data-retention sweep, run on a fixed interval.
type Service struct {
	retention *service.RetentionService
	interval  time.Duration
	stopChan  chan struct{}
}

func NewService(retention *service.RetentionService, intervalHours int) *Service {
	if intervalHours <= 0 {
		intervalHours = 24
	}
	return &Service{
		retention: retention,
		interval:  time.Duration(intervalHours) * time.Hour,
		stopChan:  make(chan struct{}),
	}
}

// Start launches the sweep loop.
func (s *Service) Start() {
	go s.runRetentionSweep()
	log.Println("Cron service started (retention sweep)")
}

// Stop terminates the loop.
func (s *Service) Stop() {
	close(s.stopChan)
	log.Println("Cron service stopped")
}

func (s *Service) runRetentionSweep() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
			if _, err := s.retention.Sweep(ctx, false); err != nil {
				log.Printf("Retention sweep failed: %v", err)
			}
			cancel()
		}
	}
}

// RunNow one immediate sweep (manual trigger, tests).
func (s *Service) RunNow(ctx context.Context) (int, error) {
	return s.retention.Sweep(ctx, false)
}
