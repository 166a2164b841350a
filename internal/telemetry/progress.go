package telemetry

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/shaiso/Recital/internal/domain"
	"github.com/shaiso/Recital/internal/orchestrator"
)

// Progress печатает по строке на каждый готовый item:
//
//	[3/120] apple    ok      snd/apple.mp3
//	[4/120] pear     FAILED  encode: ffmpeg exited with status 1
type Progress struct {
	orchestrator.NopObserver

	mu    sync.Mutex
	w     io.Writer
	total int
	done  int
}

// NewProgress создаёт Progress с выводом в w.
func NewProgress(w io.Writer) *Progress {
	return &Progress{w: w}
}

func (p *Progress) OnRunStart(info orchestrator.RunInfo) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.total = info.Total
	p.done = 0
	fmt.Fprintf(p.w, "Processing %d items with %s (%d workers)\n", info.Total, info.Strategy, info.Workers)
}

func (p *Progress) OnItemDone(res domain.ProcessingResult) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.done++
	if res.IsSuccess() {
		fmt.Fprintf(p.w, "[%d/%d] %-16s ok      %s\n", p.done, p.total, res.ID, res.ArtifactPath)
		return
	}
	fmt.Fprintf(p.w, "[%d/%d] %-16s FAILED  %s: %s\n", p.done, p.total, res.ID, res.Stage, res.Reason)
}

func (p *Progress) OnRunDone(s domain.Summary, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, "Done in %s: %d succeeded, %d failed\n", dur.Round(time.Millisecond), s.Succeeded, s.Failed)
}
