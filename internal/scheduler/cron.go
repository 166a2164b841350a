package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/shaiso/Recital/internal/domain"
)

// Пять полей: минута, час, день месяца, месяц, день недели.
// Дескрипторы вроде @daily тоже принимаются.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// CalculateNextDue вычисляет первое время запуска строго после from.
//
// Cron считается в часовом поясе schedule, интервал отсчитывается от from.
// Результат в UTC, как он хранится в БД.
func CalculateNextDue(sched *domain.Schedule, from time.Time) (time.Time, error) {
	loc := time.UTC
	if sched.Timezone != "" {
		l, err := time.LoadLocation(sched.Timezone)
		if err != nil {
			return time.Time{}, fmt.Errorf("load timezone %q: %w", sched.Timezone, err)
		}
		loc = l
	}

	switch {
	case sched.IsCron():
		spec, err := cronParser.Parse(sched.CronExpr)
		if err != nil {
			return time.Time{}, fmt.Errorf("parse cron expression %q: %w", sched.CronExpr, err)
		}
		return spec.Next(from.In(loc)).UTC(), nil

	case sched.IsInterval():
		return from.Add(time.Duration(sched.IntervalSec) * time.Second).UTC(), nil
	}

	return time.Time{}, ErrNoTiming
}

// ValidateCronExpr проверяет валидность cron-выражения.
func ValidateCronExpr(cronExpr string) error {
	if _, err := cronParser.Parse(cronExpr); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", cronExpr, err)
	}
	return nil
}

// CalculateInitialNextDue вычисляет первый запуск нового или
// заново включённого schedule.
func CalculateInitialNextDue(sched *domain.Schedule) (time.Time, error) {
	return CalculateNextDue(sched, time.Now())
}

// Describe возвращает расписание в читаемом виде: "cron 0 3 * * * (Europe/Moscow)"
// или "every 1h30m0s".
func Describe(sched *domain.Schedule) string {
	switch {
	case sched.IsCron():
		tz := sched.Timezone
		if tz == "" {
			tz = "UTC"
		}
		return fmt.Sprintf("cron %s (%s)", sched.CronExpr, tz)
	case sched.IsInterval():
		return "every " + (time.Duration(sched.IntervalSec) * time.Second).String()
	}
	return "-"
}
