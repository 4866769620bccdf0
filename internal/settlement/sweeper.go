package settlement

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"ms-tickethub/internal/logger"
	"ms-tickethub/internal/outcome"
)

const TaskReservationSweep = "reservation:sweep"

// Sweeper releases reservations whose window elapsed without a
// settlement decision. Runs as a periodic asynq task; every release
// still goes through the CAS path, so racing a late approval is safe.
type Sweeper struct {
	Service   *Service
	BatchSize int
	Logger    *logger.Logger
}

func NewSweeper(svc *Service, batchSize int, log *logger.Logger) *Sweeper {
	return &Sweeper{Service: svc, BatchSize: batchSize, Logger: log}
}

func (s *Sweeper) HandleSweep(ctx context.Context, _ *asynq.Task) error {
	expired, err := s.Service.DB.ListExpiredReservations(ctx, time.Now().UTC(), s.BatchSize)
	if err != nil {
		return fmt.Errorf("list expired reservations: %w", err)
	}
	if len(expired) == 0 {
		return nil
	}

	released := 0
	for i := range expired {
		t := expired[i]
		res, err := s.Service.ReleaseExpired(ctx, &t)
		if err != nil {
			s.Logger.Error("SWEEP", fmt.Sprintf("release ticket %d: %v", t.ID, err))
			continue
		}
		if res.Code == outcome.OK {
			released++
		} else {
			// Lost to a settling consumer or a replay; nothing to do.
			s.Logger.Debug("SWEEP", fmt.Sprintf("ticket %d: %s", t.ID, res))
		}
	}
	s.Logger.Info("SWEEP", fmt.Sprintf("released %d of %d expired reservations", released, len(expired)))
	return nil
}

// RunSweepLoop starts the asynq worker and scheduler for the sweep
// task and blocks until the context is cancelled.
func (s *Sweeper) RunSweepLoop(ctx context.Context, redisAddr string, interval time.Duration) error {
	opt := asynq.RedisClientOpt{Addr: redisAddr}

	srv := asynq.NewServer(opt, asynq.Config{Concurrency: 1})
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskReservationSweep, s.HandleSweep)

	scheduler := asynq.NewScheduler(opt, nil)
	spec := fmt.Sprintf("@every %s", interval)
	if _, err := scheduler.Register(spec, asynq.NewTask(TaskReservationSweep, nil)); err != nil {
		return fmt.Errorf("register sweep task: %w", err)
	}

	if err := srv.Start(mux); err != nil {
		return fmt.Errorf("start sweep worker: %w", err)
	}
	if err := scheduler.Start(); err != nil {
		srv.Shutdown()
		return fmt.Errorf("start sweep scheduler: %w", err)
	}

	<-ctx.Done()
	scheduler.Shutdown()
	srv.Shutdown()
	return nil
}
