package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/stagehand/internal/domain"
)

const defaultTickInterval = time.Second

// Request — запуск pipeline по расписанию.
type Request struct {
	Schedule       string
	Pipeline       string
	Branch         string
	Vars           map[string]any
	IdempotencyKey string
}

// Trigger запускает pipeline. Повторный вызов с тем же IdempotencyKey
// не должен запускать второй run: реализация возвращает ID уже
// существующего run без ошибки.
type Trigger interface {
	Trigger(ctx context.Context, req Request) (uuid.UUID, error)
}

// TriggerFunc — адаптер функции к Trigger.
type TriggerFunc func(ctx context.Context, req Request) (uuid.UUID, error)

// Trigger вызывает f.
func (f TriggerFunc) Trigger(ctx context.Context, req Request) (uuid.UUID, error) {
	return f(ctx, req)
}

// StateStore сохраняет состояние расписаний между перезапусками.
// Реализуется repo.ScheduleStateRepo.
type StateStore interface {
	Load(ctx context.Context, schedules []domain.Schedule) error
	Save(ctx context.Context, sched *domain.Schedule) error
}

// Config — конфигурация Scheduler.
type Config struct {
	// Schedules — расписания (обычно из pipelinefile.ReadSchedules).
	Schedules []domain.Schedule

	// Trigger — кто запускает pipeline.
	Trigger Trigger

	// State — хранилище состояния. Без него состояние живёт в памяти.
	State StateStore

	// TickInterval — период проверки расписаний (default: 1s).
	TickInterval time.Duration

	// Logger — логгер.
	Logger *slog.Logger
}

// Scheduler запускает pipeline по расписаниям.
//
// Каждый тик находит расписания с истекшим NextDueAt и вызывает Trigger
// с ключом идемпотентности "{name}_{next_due_unix}": для одного
// расписания и одного момента запуска создаётся не больше одного run,
// даже если тик повторится после сбоя.
// Пропущенные за время простоя запуски не догоняются: срабатывает
// один, следующий вычисляется от текущего времени.
type Scheduler struct {
	trigger  Trigger
	state    StateStore
	interval time.Duration
	logger   *slog.Logger

	mu        sync.Mutex
	schedules []domain.Schedule
}

// New проверяет расписания и создаёт Scheduler.
func New(cfg Config) (*Scheduler, error) {
	if cfg.Trigger == nil {
		panic("scheduler: nil trigger")
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = defaultTickInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	seen := make(map[string]bool, len(cfg.Schedules))
	schedules := make([]domain.Schedule, len(cfg.Schedules))
	for i := range cfg.Schedules {
		sched := cfg.Schedules[i]
		if err := Validate(&sched); err != nil {
			return nil, err
		}
		if seen[sched.Name] {
			return nil, fmt.Errorf("%w: duplicate name %s", ErrInvalidSchedule, sched.Name)
		}
		seen[sched.Name] = true
		schedules[i] = sched
	}

	return &Scheduler{
		trigger:   cfg.Trigger,
		state:     cfg.State,
		interval:  cfg.TickInterval,
		logger:    logger.With("component", "scheduler"),
		schedules: schedules,
	}, nil
}

// Restore загружает сохранённое состояние и назначает первый запуск
// расписаниям, у которых его нет.
func (s *Scheduler) Restore(ctx context.Context, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != nil {
		if err := s.state.Load(ctx, s.schedules); err != nil {
			return fmt.Errorf("load schedule state: %w", err)
		}
	}

	for i := range s.schedules {
		sched := &s.schedules[i]
		if sched.NextDueAt != nil {
			continue
		}
		next, err := CalculateNextDue(sched, now)
		if err != nil {
			return err
		}
		sched.NextDueAt = &next
		s.logger.Info("schedule armed", "schedule", sched.Name, "next_due_at", next)
	}
	return nil
}

// Run восстанавливает состояние и тикает до отмены ctx.
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.Restore(ctx, time.Now()); err != nil {
		return err
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			s.Tick(ctx, now)
		}
	}
}

// Tick запускает все расписания, время которых подошло.
// Ошибка одного расписания не блокирует остальные; расписание
// с ошибкой Trigger повторится на следующем тике.
// Возвращает количество запущенных расписаний.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	fired := 0
	for i := range s.schedules {
		sched := &s.schedules[i]
		if !sched.IsDue(now) {
			continue
		}
		if err := s.fire(ctx, sched, now); err != nil {
			s.logger.Error("failed to fire schedule", "schedule", sched.Name, "error", err)
			continue
		}
		fired++
	}

	if fired > 0 {
		s.logger.Debug("scheduler tick completed", "fired", fired)
	}
	return fired
}

// fire запускает одно расписание и сдвигает NextDueAt.
func (s *Scheduler) fire(ctx context.Context, sched *domain.Schedule, now time.Time) error {
	key := IdempotencyKey(sched.Name, *sched.NextDueAt)

	runID, err := s.trigger.Trigger(ctx, Request{
		Schedule:       sched.Name,
		Pipeline:       sched.Pipeline,
		Branch:         sched.Branch,
		Vars:           sched.Vars,
		IdempotencyKey: key,
	})
	if err != nil {
		return fmt.Errorf("trigger: %w", err)
	}

	next, err := CalculateNextDue(sched, now)
	if err != nil {
		return err
	}
	sched.RecordRun(runID, next)

	s.logger.Info("schedule fired",
		"schedule", sched.Name,
		"run_id", runID,
		"idempotency_key", key,
		"next_due_at", next,
	)

	if s.state != nil {
		if err := s.state.Save(ctx, sched); err != nil {
			// Run уже запущен; при рестарте ключ идемпотентности
			// не даст запустить его второй раз.
			s.logger.Warn("failed to save schedule state", "schedule", sched.Name, "error", err)
		}
	}
	return nil
}

// Schedules возвращает копию текущего состояния расписаний.
func (s *Scheduler) Schedules() []domain.Schedule {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.Schedule, len(s.schedules))
	copy(out, s.schedules)
	return out
}

// IdempotencyKey возвращает ключ запуска расписания name в момент due.
func IdempotencyKey(name string, due time.Time) string {
	return fmt.Sprintf("%s_%d", name, due.Unix())
}
