package events

import (
	"sort"
	"sync"
	"time"
)

// Handler consumes records. Handlers run synchronously on the emitting
// goroutine, in subscription order, and must not emit on the same bus.
type Handler func(Record)

// Bus stamps events with a monotonically increasing sequence number and fans
// them out to every subscribed handler.
type Bus struct {
	mu       sync.Mutex
	seq      uint64
	nextID   uint64
	handlers map[uint64]Handler
}

// NewBus creates a bus whose first record will carry sequence startSeq+1.
func NewBus(startSeq uint64) *Bus {
	return &Bus{
		seq:      startSeq,
		handlers: make(map[uint64]Handler),
	}
}

// Subscribe registers h and returns a function that removes it.
func (b *Bus) Subscribe(h Handler) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	b.handlers[id] = h
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.handlers, id)
	}
}

// Emit stamps ev and delivers it to every handler before returning.
// Emission is serialized so handlers observe records in sequence order.
func (b *Bus) Emit(ev Event) Record {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.seq++
	rec := Record{
		Seq:       b.seq,
		Timestamp: time.Now().UnixNano(),
		Event:     ev,
	}

	ids := make([]uint64, 0, len(b.handlers))
	for id := range b.handlers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		b.handlers[id](rec)
	}
	return rec
}

// Seq returns the sequence number of the last emitted record.
func (b *Bus) Seq() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.seq
}

// Recorder is a Handler that keeps every record it sees. Useful in tests and
// for short-lived tools.
type Recorder struct {
	mu      sync.Mutex
	records []Record
}

// Handle implements Handler.
func (r *Recorder) Handle(rec Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
}

// Records returns a copy of the recorded records.
func (r *Recorder) Records() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Record, len(r.records))
	copy(out, r.records)
	return out
}

// Events returns the recorded payloads, in order.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.records))
	for i, rec := range r.records {
		out[i] = rec.Event
	}
	return out
}

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// LogHandler returns a Handler that logs every record at info level.
func LogHandler(logger Logger) Handler {
	return func(rec Record) {
		logger.Info("event", "seq", rec.Seq, "kind", rec.Event.Kind(), "event", rec.Event)
	}
}
