package orchestrator

import (
	"time"

	"github.com/shaiso/Recital/internal/domain"
)

// RunInfo описывает запущенный run.
type RunInfo struct {
	Total    int
	Strategy Strategy
	Workers  int
	Started  time.Time
}

// Observer получает события выполнения run.
//
// Каждый item получает ровно одну пару OnItemStart/OnItemDone.
// Реализация должна быть потокобезопасной: события приходят из воркеров.
type Observer interface {
	OnRunStart(info RunInfo)
	OnItemStart(id string)
	OnItemDone(res domain.ProcessingResult)
	OnBatch(size int, dur time.Duration, err error)
	OnRunDone(summary domain.Summary, dur time.Duration)
}

// NopObserver игнорирует все события.
type NopObserver struct{}

func (NopObserver) OnRunStart(RunInfo)                      {}
func (NopObserver) OnItemStart(string)                      {}
func (NopObserver) OnItemDone(domain.ProcessingResult)      {}
func (NopObserver) OnBatch(int, time.Duration, error)       {}
func (NopObserver) OnRunDone(domain.Summary, time.Duration) {}

// Observers рассылает события всем наблюдателям по порядку.
type Observers []Observer

func (obs Observers) OnRunStart(info RunInfo) {
	for _, o := range obs {
		o.OnRunStart(info)
	}
}

func (obs Observers) OnItemStart(id string) {
	for _, o := range obs {
		o.OnItemStart(id)
	}
}

func (obs Observers) OnItemDone(res domain.ProcessingResult) {
	for _, o := range obs {
		o.OnItemDone(res)
	}
}

func (obs Observers) OnBatch(size int, dur time.Duration, err error) {
	for _, o := range obs {
		o.OnBatch(size, dur, err)
	}
}

func (obs Observers) OnRunDone(summary domain.Summary, dur time.Duration) {
	for _, o := range obs {
		o.OnRunDone(summary, dur)
	}
}
