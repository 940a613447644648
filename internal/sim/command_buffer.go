package sim

import "sync"

const (
	commandBufferOccupancyMetricKey = "sim_command_buffer_occupancy"
	commandBufferHighWaterMetricKey = "sim_command_buffer_high_water"
	commandBufferOverflowMetricKey  = "sim_command_buffer_overflow_total"
)

// CommandBuffer stages commands between network intake and the tick in a
// fixed-size ring. Producers may push concurrently; one consumer drains.
type CommandBuffer struct {
	mu        sync.Mutex
	ring      []Command
	head      int
	size      int
	highWater int
	metrics   telemetryMetrics
}

type telemetryMetrics interface {
	Add(string, uint64)
	Store(string, uint64)
}

// NewCommandBuffer constructs a ring holding at most capacity commands.
func NewCommandBuffer(capacity int, metrics telemetryMetrics) *CommandBuffer {
	return &CommandBuffer{
		ring:    make([]Command, max(capacity, 1)),
		metrics: metrics,
	}
}

// Capacity reports the maximum number of staged commands.
func (b *CommandBuffer) Capacity() int {
	if b == nil {
		return 0
	}
	return len(b.ring)
}

// Push stages cmd. Unlike the input queues, a full command buffer refuses
// the newcomer so that already accepted intents are never lost.
func (b *CommandBuffer) Push(cmd Command) bool {
	if b == nil {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.size == len(b.ring) {
		b.add(commandBufferOverflowMetricKey, 1)
		return false
	}
	b.ring[(b.head+b.size)%len(b.ring)] = cmd
	b.size++
	if b.size > b.highWater {
		b.highWater = b.size
		b.store(commandBufferHighWaterMetricKey, uint64(b.highWater))
	}
	b.store(commandBufferOccupancyMetricKey, uint64(b.size))
	return true
}

// DrainInto appends every staged command to dst in FIFO order, empties the
// ring and returns the extended slice. Passing a reused slice keeps the tick
// allocation free.
func (b *CommandBuffer) DrainInto(dst []Command) []Command {
	if b == nil {
		return dst
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for b.size > 0 {
		dst = append(dst, b.ring[b.head])
		b.ring[b.head] = Command{}
		b.head = (b.head + 1) % len(b.ring)
		b.size--
	}
	b.head = 0
	b.store(commandBufferOccupancyMetricKey, 0)
	return dst
}

// Drain returns the staged commands in FIFO order, or nil when empty.
func (b *CommandBuffer) Drain() []Command {
	drained := b.DrainInto(nil)
	if len(drained) == 0 {
		return nil
	}
	return drained
}

// Len reports the number of staged commands.
func (b *CommandBuffer) Len() int {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

func (b *CommandBuffer) add(key string, delta uint64) {
	if b.metrics != nil {
		b.metrics.Add(key, delta)
	}
}

func (b *CommandBuffer) store(key string, value uint64) {
	if b.metrics != nil {
		b.metrics.Store(key, value)
	}
}
