package core

// Subscription is a handle to a connected signal handler. Closing it detaches
// the handler; after Close returns the handler will not be invoked again.
// Close is idempotent.
type Subscription interface {
	Close()
}

type handlerEntry[E any] struct {
	fn    func(E)
	after bool
}

// Signal is an in-process event stream. Handlers connected with Connect run
// before handlers connected with ConnectAfter, which lets a consumer observe
// an event only after the emitting object's own handlers have completed.
//
// Signals are not safe for concurrent use; the whole engine runs on a single
// cooperative task queue.
type Signal[E any] struct {
	seq      int
	handlers map[int]*handlerEntry[E]
	order    []int
}

func NewSignal[E any]() *Signal[E] {
	return &Signal[E]{handlers: make(map[int]*handlerEntry[E])}
}

func (s *Signal[E]) connect(fn func(E), after bool) Subscription {
	s.seq++
	id := s.seq
	s.handlers[id] = &handlerEntry[E]{fn: fn, after: after}
	s.order = append(s.order, id)
	return &signalSub[E]{signal: s, id: id}
}

// Connect attaches fn with default ordering.
func (s *Signal[E]) Connect(fn func(E)) Subscription {
	return s.connect(fn, false)
}

// ConnectAfter attaches fn so that it runs after all default handlers.
func (s *Signal[E]) ConnectAfter(fn func(E)) Subscription {
	return s.connect(fn, true)
}

// Emit delivers e to all handlers, default handlers first.
func (s *Signal[E]) Emit(e E) {
	// Snapshot, so handlers may connect or disconnect while we deliver.
	ids := make([]int, len(s.order))
	copy(ids, s.order)
	for pass := 0; pass < 2; pass++ {
		after := pass == 1
		for _, id := range ids {
			if h, ok := s.handlers[id]; ok && h.after == after {
				h.fn(e)
			}
		}
	}
}

type signalSub[E any] struct {
	signal *Signal[E]
	id     int
}

func (c *signalSub[E]) Close() {
	s := c.signal
	if s == nil {
		return
	}
	c.signal = nil
	delete(s.handlers, c.id)
	for i, id := range s.order {
		if id == c.id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}
