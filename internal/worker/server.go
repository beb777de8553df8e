package worker

import (
	"fmt"

	"pontos/internal/config"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

func RedisOpt(cfg config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: cfg.Addr(), Password: cfg.Password, DB: cfg.DB}
}

// Worker owns the asynq server and the periodic scheduler.
type Worker struct {
	server    *asynq.Server
	scheduler *asynq.Scheduler
	mux       *asynq.ServeMux
	log       *zap.Logger
}

func New(redis config.RedisConfig, cfg config.WorkerConfig, handlers *Handlers, log *zap.Logger) (*Worker, error) {
	opt := RedisOpt(redis)
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 5
	}

	mux := asynq.NewServeMux()
	handlers.Register(mux)

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{QueueSweeps: 1},
		Logger:      log.Sugar(),
	})
	scheduler := asynq.NewScheduler(opt, &asynq.SchedulerOpts{Logger: log.Sugar()})

	schedule := []struct {
		spec, task string
	}{
		{cfg.LiquidationCron, TaskLiquidations},
		{cfg.StalePendingCron, TaskStalePending},
		{cfg.LedgerVerifyCron, TaskLedgerVerify},
		{cfg.SettingsRefreshCron, TaskSettingsRefresh},
	}
	for _, s := range schedule {
		if s.spec == "" {
			continue
		}
		task, err := NewSweepTask(s.task, "scheduler", 0)
		if err != nil {
			return nil, err
		}
		if _, err := scheduler.Register(s.spec, task); err != nil {
			return nil, fmt.Errorf("failed to schedule %s (%s): %w", s.task, s.spec, err)
		}
		log.Info("scheduled task", zap.String("task", s.task), zap.String("spec", s.spec))
	}

	return &Worker{server: server, scheduler: scheduler, mux: mux, log: log}, nil
}

// Start runs the server and scheduler in the background.
func (w *Worker) Start() error {
	if err := w.scheduler.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	if err := w.server.Start(w.mux); err != nil {
		w.scheduler.Shutdown()
		return fmt.Errorf("failed to start worker server: %w", err)
	}
	return nil
}

func (w *Worker) Shutdown() {
	w.scheduler.Shutdown()
	w.server.Shutdown()
}

// Enqueuer submits sweep runs requested through the admin API.
type Enqueuer struct {
	client *asynq.Client
}

func NewEnqueuer(redis config.RedisConfig) *Enqueuer {
	return &Enqueuer{client: asynq.NewClient(RedisOpt(redis))}
}

func (e *Enqueuer) Enqueue(taskType, requestedBy string) (string, error) {
	task, err := NewSweepTask(taskType, requestedBy, 0)
	if err != nil {
		return "", err
	}
	info, err := e.client.Enqueue(task)
	if err != nil {
		return "", fmt.Errorf("failed to enqueue %s: %w", taskType, err)
	}
	return info.ID, nil
}

func (e *Enqueuer) Close() error {
	return e.client.Close()
}
