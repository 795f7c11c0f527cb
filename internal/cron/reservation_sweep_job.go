package cron

import (
	"context"
	"fmt"

	"github.com/hackportal/hackportal-backend/pkg/logger"
)

const reservationSweepJobName = "hardware-reservation-sweep"

type expirySweeper interface {
	SweepExpired(ctx context.Context) (int, error)
}

// ReservationSweepJobParams configure the expired reservation sweep.
type ReservationSweepJobParams struct {
	Logger  *logger.Logger
	Sweeper expirySweeper
}

type reservationSweepJob struct {
	logg    *logger.Logger
	sweeper expirySweeper
}

// NewReservationSweepJob builds the job that reclaims stock from lapsed
// reservations between user-facing reads.
func NewReservationSweepJob(params ReservationSweepJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Sweeper == nil {
		return nil, fmt.Errorf("sweeper required")
	}
	return &reservationSweepJob{
		logg:    params.Logger,
		sweeper: params.Sweeper,
	}, nil
}

func (j *reservationSweepJob) Name() string { return reservationSweepJobName }

func (j *reservationSweepJob) Run(ctx context.Context) error {
	reclaimed, err := j.sweeper.SweepExpired(ctx)
	ctx = j.logg.WithField(ctx, "reclaimed", reclaimed)
	if err != nil {
		return fmt.Errorf("sweep expired reservations: %w", err)
	}
	j.logg.Info(ctx, "reservation sweep finished")
	return nil
}
