package research

import (
	"sync/atomic"

	"webresearch/internal/logging"
)

// progress delivers steps to an observer from a single goroutine so a slow
// observer never stalls the pipeline. When the buffer is full the step is
// dropped and counted.
type progress struct {
	ch      chan Step
	done    chan struct{}
	dropped atomic.Int64
}

func newProgress(fn func(Step), buffer int) *progress {
	if fn == nil {
		return nil
	}
	if buffer < 1 {
		buffer = 1
	}
	p := &progress{
		ch:   make(chan Step, buffer),
		done: make(chan struct{}),
	}
	go func() {
		defer close(p.done)
		for s := range p.ch {
			deliver(fn, s)
		}
	}()
	return p
}

func deliver(fn func(Step), s Step) {
	defer func() {
		if r := recover(); r != nil {
			logging.PipelineWarn("progress observer panicked on %s: %v", s.Name, r)
		}
	}()
	fn(s)
}

// emit queues a copy of s. Safe on a nil receiver.
func (p *progress) emit(s Step) {
	if p == nil {
		return
	}
	select {
	case p.ch <- s:
	default:
		n := p.dropped.Add(1)
		logging.PipelineDebug("progress buffer full, dropped %s/%s (%d dropped)", s.Name, s.Status, n)
	}
}

// close stops accepting steps, waits for queued ones to be delivered and
// returns how many were dropped.
func (p *progress) close() int {
	if p == nil {
		return 0
	}
	close(p.ch)
	<-p.done
	return int(p.dropped.Load())
}
