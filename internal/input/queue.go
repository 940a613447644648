package input

// queue is a fixed-capacity FIFO ring. Pushing into a full queue overwrites
// the oldest entry.
type queue struct {
	data  []BufferedInput
	head  int
	count int
}

func newQueue(capacity int) queue {
	if capacity < 1 {
		capacity = 1
	}
	return queue{data: make([]BufferedInput, capacity)}
}

// push appends in and reports the entry evicted to make room, if any.
func (q *queue) push(in BufferedInput) (BufferedInput, bool) {
	var evicted BufferedInput
	full := q.count == len(q.data)
	if full {
		evicted = q.data[q.head]
		q.head = (q.head + 1) % len(q.data)
		q.count--
	}
	q.data[(q.head+q.count)%len(q.data)] = in
	q.count++
	return evicted, full
}

func (q *queue) front() (BufferedInput, bool) {
	if q.count == 0 {
		return BufferedInput{}, false
	}
	return q.data[q.head], true
}

func (q *queue) pop() (BufferedInput, bool) {
	in, ok := q.front()
	if !ok {
		return in, false
	}
	q.data[q.head] = BufferedInput{}
	q.head = (q.head + 1) % len(q.data)
	q.count--
	return in, true
}

func (q *queue) len() int {
	return q.count
}

// items copies the queue contents oldest first.
func (q *queue) items() []BufferedInput {
	out := make([]BufferedInput, q.count)
	for i := range out {
		out[i] = q.data[(q.head+i)%len(q.data)]
	}
	return out
}
