package scheduler

import (
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/shaiso/stagehand/internal/domain"
)

// ErrInvalidSchedule — расписание не задаёт ни cron, ни интервал,
// либо содержит некорректные значения.
var ErrInvalidSchedule = errors.New("invalid schedule")

// cronParser — парсер cron-выражений (5 полей).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// CalculateNextDue вычисляет следующее время запуска после from.
// Cron вычисляется в часовом поясе расписания, результат — в UTC.
func CalculateNextDue(sched *domain.Schedule, from time.Time) (time.Time, error) {
	loc, err := location(sched.Timezone)
	if err != nil {
		return time.Time{}, err
	}
	from = from.In(loc)

	switch {
	case sched.IsCron():
		spec, err := cronParser.Parse(sched.CronExpr)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: cron %q: %v", ErrInvalidSchedule, sched.CronExpr, err)
		}
		return spec.Next(from).UTC(), nil

	case sched.IsInterval():
		return from.Add(time.Duration(sched.IntervalSec) * time.Second).UTC(), nil

	default:
		return time.Time{}, fmt.Errorf("%w: %s has neither cron nor interval_sec", ErrInvalidSchedule, sched.Name)
	}
}

// ValidateCronExpr проверяет cron-выражение.
func ValidateCronExpr(cronExpr string) error {
	if _, err := cronParser.Parse(cronExpr); err != nil {
		return fmt.Errorf("%w: cron %q: %v", ErrInvalidSchedule, cronExpr, err)
	}
	return nil
}

// Validate проверяет расписание целиком.
func Validate(sched *domain.Schedule) error {
	if sched.Name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidSchedule)
	}
	if sched.Pipeline == "" {
		return fmt.Errorf("%w: %s has no pipeline", ErrInvalidSchedule, sched.Name)
	}
	if sched.IntervalSec < 0 {
		return fmt.Errorf("%w: %s has negative interval_sec", ErrInvalidSchedule, sched.Name)
	}
	if _, err := location(sched.Timezone); err != nil {
		return err
	}
	if sched.IsCron() {
		return ValidateCronExpr(sched.CronExpr)
	}
	if !sched.IsInterval() {
		return fmt.Errorf("%w: %s has neither cron nor interval_sec", ErrInvalidSchedule, sched.Name)
	}
	return nil
}

// location загружает часовой пояс; пустой — UTC.
func location(tz string) (*time.Location, error) {
	if tz == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("%w: timezone %q: %v", ErrInvalidSchedule, tz, err)
	}
	return loc, nil
}
