package monitor

import (
	"sync"
	"time"
)

// Collector receives operation observations.
type Collector interface {
	Record(obs Observation)
	Snapshot() Snapshot
}

// InMemoryCollector keeps running totals per operation name.
type InMemoryCollector struct {
	mu        sync.RWMutex
	ops       map[string]OperationMetrics
	startTime time.Time
	now       func() time.Time
}

func NewInMemoryCollector() *InMemoryCollector {
	return &InMemoryCollector{
		ops:       make(map[string]OperationMetrics),
		startTime: time.Now(),
		now:       time.Now,
	}
}

func (c *InMemoryCollector) Record(obs Observation) {
	c.mu.Lock()
	defer c.mu.Unlock()

	m := c.ops[obs.Op]
	m.Op = obs.Op
	m.Count++
	m.TotalTokens += int64(obs.Tokens)
	m.TotalChunks += int64(obs.Chunks)
	m.TotalDuration += obs.Duration
	m.LastSeen = c.now()
	if !obs.Success {
		m.Failures++
		m.LastError = obs.Error
	}
	c.ops[obs.Op] = m
}

func (c *InMemoryCollector) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ops := make(map[string]OperationMetrics, len(c.ops))
	for k, v := range c.ops {
		ops[k] = v
	}
	return Snapshot{
		Since:      c.startTime,
		Taken:      c.now(),
		Operations: ops,
	}
}

func (c *InMemoryCollector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ops = make(map[string]OperationMetrics)
	c.startTime = c.now()
}

// Track starts timing op and returns a function that records the outcome.
//
//	done := monitor.Track(c, "search")
//	defer func() { done(err, 0, 0) }()
func Track(c Collector, op string) func(err error, chunks, tokens int) {
	start := time.Now()
	return func(err error, chunks, tokens int) {
		obs := Observation{
			Op:       op,
			Chunks:   chunks,
			Tokens:   tokens,
			Duration: time.Since(start),
			Success:  err == nil,
		}
		if err != nil {
			obs.Error = err.Error()
		}
		c.Record(obs)
	}
}

type NoOpCollector struct{}

func NewNoOpCollector() *NoOpCollector {
	return &NoOpCollector{}
}

func (c *NoOpCollector) Record(obs Observation) {}

func (c *NoOpCollector) Snapshot() Snapshot {
	return Snapshot{Operations: map[string]OperationMetrics{}}
}
