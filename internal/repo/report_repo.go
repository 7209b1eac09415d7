package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/stagehand/internal/domain"
)

// Лимиты выборки List.
const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

// ReportRepo — хранилище финальных отчётов run.
//
// Реализует report.Notifier: подключается к Aggregator и сохраняет
// каждый отчёт вместе с исходами стадий.
type ReportRepo struct {
	pool *pgxpool.Pool
}

// NewReportRepo создаёт новый ReportRepo.
func NewReportRepo(pool *pgxpool.Pool) *ReportRepo {
	return &ReportRepo{pool: pool}
}

// Name возвращает имя получателя.
func (r *ReportRepo) Name() string {
	return "postgres"
}

// Notify сохраняет отчёт.
func (r *ReportRepo) Notify(ctx context.Context, report *domain.RunReport) error {
	return r.Save(ctx, report)
}

// Save сохраняет отчёт и исходы стадий в одной транзакции.
// Повторный ключ идемпотентности для того же pipeline — ErrAlreadyExists.
func (r *ReportRepo) Save(ctx context.Context, report *domain.RunReport) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO run_reports (run_id, pipeline, fingerprint, branch, status,
		                         started_at, finished_at, idempotency_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		report.RunID,
		report.Pipeline,
		report.Fingerprint,
		nullString(report.Branch),
		report.Status.String(),
		report.StartedAt,
		report.FinishedAt,
		nullString(report.IdempotencyKey),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("report %s: %w", report.RunID, ErrAlreadyExists)
	}
	if err != nil {
		return fmt.Errorf("insert report: %w", err)
	}

	batch := &pgx.Batch{}
	for i, s := range report.Stages {
		output, err := marshalOutput(s.Output)
		if err != nil {
			return fmt.Errorf("stage %s: %w", s.StageID, err)
		}
		batch.Queue(`
			INSERT INTO stage_outcomes (run_id, position, stage_id, parent_id, step, status,
			                            attempts, started_at, finished_at, error, output)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		`,
			report.RunID,
			i,
			s.StageID,
			nullString(s.ParentID),
			nullString(s.Step),
			s.Status.String(),
			s.Attempts,
			nullTime(s.StartedAt),
			nullTime(s.FinishedAt),
			nullString(s.Error),
			output,
		)
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert stage outcomes: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

const reportColumns = `run_id, pipeline, fingerprint, branch, status,
	started_at, finished_at, idempotency_key`

// GetByID возвращает отчёт со стадиями.
func (r *ReportRepo) GetByID(ctx context.Context, runID uuid.UUID) (*domain.RunReport, error) {
	report, err := scanReport(r.pool.QueryRow(ctx,
		`SELECT `+reportColumns+` FROM run_reports WHERE run_id = $1`, runID))
	if err != nil {
		return nil, err
	}

	if report.Stages, err = r.stages(ctx, runID); err != nil {
		return nil, err
	}
	return report, nil
}

// GetByIdempotencyKey возвращает отчёт по ключу идемпотентности (без стадий).
func (r *ReportRepo) GetByIdempotencyKey(ctx context.Context, pipeline, key string) (*domain.RunReport, error) {
	return scanReport(r.pool.QueryRow(ctx,
		`SELECT `+reportColumns+` FROM run_reports WHERE pipeline = $1 AND idempotency_key = $2`,
		pipeline, key))
}

// ReportFilter — параметры фильтрации отчётов.
type ReportFilter struct {
	Pipeline string
	Status   domain.Status
	Limit    int
	Offset   int
}

// normalize ограничивает Limit и Offset.
func (f ReportFilter) normalize() ReportFilter {
	if f.Limit <= 0 {
		f.Limit = DefaultListLimit
	}
	if f.Limit > MaxListLimit {
		f.Limit = MaxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

// List возвращает отчёты без стадий, новые первыми.
func (r *ReportRepo) List(ctx context.Context, filter ReportFilter) ([]domain.RunReport, error) {
	filter = filter.normalize()

	rows, err := r.pool.Query(ctx, `
		SELECT `+reportColumns+`
		FROM run_reports
		WHERE ($1::text IS NULL OR pipeline = $1)
		  AND ($2::text IS NULL OR status = $2)
		ORDER BY started_at DESC
		LIMIT $3 OFFSET $4
	`,
		nullString(filter.Pipeline),
		nullString(string(filter.Status)),
		filter.Limit,
		filter.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	reports := make([]domain.RunReport, 0)
	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		reports = append(reports, *report)
	}
	return reports, rows.Err()
}

// stages возвращает исходы стадий в порядке отчёта.
func (r *ReportRepo) stages(ctx context.Context, runID uuid.UUID) ([]domain.StageOutcome, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT stage_id, parent_id, step, status, attempts, started_at, finished_at, error, output
		FROM stage_outcomes
		WHERE run_id = $1
		ORDER BY position
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("list stage outcomes: %w", err)
	}
	defer rows.Close()

	var stages []domain.StageOutcome
	for rows.Next() {
		var (
			s                     domain.StageOutcome
			parentID, step, errS  *string
			status                string
			startedAt, finishedAt *time.Time
			output                []byte
		)
		if err := rows.Scan(&s.StageID, &parentID, &step, &status, &s.Attempts,
			&startedAt, &finishedAt, &errS, &output); err != nil {
			return nil, fmt.Errorf("scan stage outcome: %w", err)
		}

		s.ParentID = deref(parentID)
		s.Step = deref(step)
		s.Error = deref(errS)
		s.Status = domain.ParseStatus(status)
		if startedAt != nil {
			s.StartedAt = *startedAt
		}
		if finishedAt != nil {
			s.FinishedAt = *finishedAt
		}
		if output != nil {
			if err := json.Unmarshal(output, &s.Output); err != nil {
				return nil, fmt.Errorf("unmarshal output of %s: %w", s.StageID, err)
			}
		}
		stages = append(stages, s)
	}
	return stages, rows.Err()
}

// scanReport сканирует строку run_reports.
func scanReport(row pgx.Row) (*domain.RunReport, error) {
	var (
		report       domain.RunReport
		branch, idem *string
		status       string
	)

	err := row.Scan(
		&report.RunID,
		&report.Pipeline,
		&report.Fingerprint,
		&branch,
		&status,
		&report.StartedAt,
		&report.FinishedAt,
		&idem,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan report: %w", err)
	}

	report.Branch = deref(branch)
	report.IdempotencyKey = deref(idem)
	report.Status = domain.ParseStatus(status)
	return &report, nil
}

// marshalOutput сериализует output стадии; пустой output — NULL.
func marshalOutput(output map[string]any) ([]byte, error) {
	if len(output) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(output)
	if err != nil {
		return nil, fmt.Errorf("marshal output: %w", err)
	}
	return data, nil
}

// --- Helpers ---

// nullString возвращает nil для пустой строки (для NULL в БД).
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// nullTime возвращает nil для нулевого времени.
func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
