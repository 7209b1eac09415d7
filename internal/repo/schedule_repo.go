package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/stagehand/internal/domain"
)

// ScheduleStateRepo хранит состояние расписаний между перезапусками:
// время следующего запуска и последний run. Сами расписания
// описываются в файле; в БД только то, что меняется при работе.
type ScheduleStateRepo struct {
	pool *pgxpool.Pool
}

// NewScheduleStateRepo создаёт новый ScheduleStateRepo.
func NewScheduleStateRepo(pool *pgxpool.Pool) *ScheduleStateRepo {
	return &ScheduleStateRepo{pool: pool}
}

// Load заполняет NextDueAt, LastRunAt и LastRunID из сохранённого состояния.
// Расписания без сохранённого состояния не меняются.
func (r *ScheduleStateRepo) Load(ctx context.Context, schedules []domain.Schedule) error {
	names := make([]string, len(schedules))
	for i := range schedules {
		names[i] = schedules[i].Name
	}

	rows, err := r.pool.Query(ctx, `
		SELECT name, next_due_at, last_run_at, last_run_id
		FROM schedule_state
		WHERE name = ANY($1)
	`, names)
	if err != nil {
		return fmt.Errorf("load schedule state: %w", err)
	}
	defer rows.Close()

	index := make(map[string]*domain.Schedule, len(schedules))
	for i := range schedules {
		index[schedules[i].Name] = &schedules[i]
	}

	for rows.Next() {
		var (
			name      string
			nextDue   *time.Time
			lastRunAt *time.Time
			lastRunID *uuid.UUID
		)
		if err := rows.Scan(&name, &nextDue, &lastRunAt, &lastRunID); err != nil {
			return fmt.Errorf("scan schedule state: %w", err)
		}
		if s, ok := index[name]; ok {
			s.NextDueAt = nextDue
			s.LastRunAt = lastRunAt
			s.LastRunID = lastRunID
		}
	}
	return rows.Err()
}

// Save сохраняет состояние расписания (upsert по имени).
func (r *ScheduleStateRepo) Save(ctx context.Context, s *domain.Schedule) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO schedule_state (name, next_due_at, last_run_at, last_run_id, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (name) DO UPDATE
		SET next_due_at = EXCLUDED.next_due_at,
		    last_run_at = EXCLUDED.last_run_at,
		    last_run_id = EXCLUDED.last_run_id,
		    updated_at  = NOW()
	`, s.Name, s.NextDueAt, s.LastRunAt, s.LastRunID)
	if err != nil {
		return fmt.Errorf("save schedule state %s: %w", s.Name, err)
	}
	return nil
}
