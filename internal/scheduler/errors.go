package scheduler

import "errors"

// ErrNoTiming — у schedule нет ни cron_expr, ни interval_sec.
var ErrNoTiming = errors.New("schedule has neither cron_expr nor interval_sec")
