package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"kestrel-dcr/config"
	"kestrel-dcr/core/utils"
)

// Sweeper runs the appeal-window sweep on a cron schedule.
type Sweeper struct {
	cron    *cron.Cron
	service *Service
	logger  *utils.Logger
}

func NewSweeper(cfg config.SweeperConfig, service *Service, logger *utils.Logger) (*Sweeper, error) {
	s := &Sweeper{
		cron:    cron.New(cron.WithLocation(time.UTC)),
		service: service,
		logger:  logger,
	}
	if _, err := s.cron.AddFunc(cfg.Schedule, s.run); err != nil {
		return nil, fmt.Errorf("sweeper schedule %q: %w", cfg.Schedule, err)
	}
	return s, nil
}

func (s *Sweeper) run() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	if _, err := s.service.SweepExpiredAppealWindows(ctx); err != nil {
		s.logger.Errorf("appeal-window sweep: %v", err)
	}
}

func (s *Sweeper) Start() {
	s.cron.Start()
	s.logger.Printf("appeal-window sweeper started")
}

// Stop halts scheduling and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}
