package wallet

import (
	"sync"
)

// Stage of a bundle's life counted by the manager
type Stage int

const (
	StagePreAttach Stage = iota
	StageAtAttach
	StagePending
	// pseudo stage: 1 while a refund is requested
	StageRefund
)

func (s Stage) String() string {
	switch s {
	case StagePreAttach:
		return "preAttach"
	case StageAtAttach:
		return "atAttach"
	case StagePending:
		return "pending"
	case StageRefund:
		return "refund"
	}
	return "unknown"
}

type StageEvent struct {
	Stage Stage
	Old   int
	New   int
}

// stageCounter never goes below zero. Every change is emitted synchronously after the counter is unlocked
type stageCounter struct {
	mu    sync.Mutex
	stage Stage
	value int
	emit  func(StageEvent)
	// called on attempt to go below zero
	underflow func(Stage)
}

func newStageCounter(stage Stage, emit func(StageEvent), underflow func(Stage)) *stageCounter {
	return &stageCounter{
		stage:     stage,
		emit:      emit,
		underflow: underflow,
	}
}

func (c *stageCounter) inc() {
	c.add(1)
}

func (c *stageCounter) dec() {
	c.add(-1)
}

func (c *stageCounter) add(delta int) {
	c.mu.Lock()
	old := c.value
	c.value += delta
	clamped := c.value < 0
	if clamped {
		c.value = 0
	}
	nv := c.value
	c.mu.Unlock()

	if clamped && c.underflow != nil {
		c.underflow(c.stage)
	}
	if nv != old && c.emit != nil {
		c.emit(StageEvent{Stage: c.stage, Old: old, New: nv})
	}
}

func (c *stageCounter) get() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}
