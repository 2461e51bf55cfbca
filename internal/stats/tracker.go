package stats

import (
	"NetSpectraIDS/internal/model"
	"sync"
	"time"
)

// Event is published to subscribers whenever the statistics change.
type Event struct {
	Time       time.Time               `json:"time"`
	Statistics model.SessionStatistics `json:"statistics"`
}

// Tracker owns the running statistics of a capture session. Counters are
// only mutated through Record, RecordDrop and Reset.
type Tracker struct {
	mu          sync.Mutex
	stats       model.SessionStatistics
	subscribers map[int]chan Event
	nextID      int
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{subscribers: make(map[int]chan Event)}
}

// Record counts one classified packet. A label matching "attack" in any case
// counts as an attack; every other label, including error predictions,
// counts as normal.
func (t *Tracker) Record(p model.Prediction) model.SessionStatistics {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stats.TotalCaptured++
	if p.IsAttack() {
		t.stats.AttackCount++
	} else {
		t.stats.NormalCount++
	}
	if !p.Succeeded() {
		t.stats.ErrorCount++
	}
	t.publishLocked()
	return t.stats
}

// RecordDrop counts a packet lost to a full worker queue.
func (t *Tracker) RecordDrop() {
	t.mu.Lock()
	t.stats.Dropped++
	t.mu.Unlock()
}

// Snapshot returns a copy of the current counters.
func (t *Tracker) Snapshot() model.SessionStatistics {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats
}

// Reset zeroes the counters for a new session.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stats = model.SessionStatistics{}
	t.publishLocked()
}

// Subscribe registers an observer. Events are delivered on a channel with
// the given buffer; when it is full the event is skipped for that observer,
// so a slow observer never stalls the workers. The returned function
// unsubscribes and closes the channel.
func (t *Tracker) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 1
	}
	ch := make(chan Event, buffer)

	t.mu.Lock()
	id := t.nextID
	t.nextID++
	t.subscribers[id] = ch
	t.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			t.mu.Lock()
			delete(t.subscribers, id)
			t.mu.Unlock()
			close(ch)
		})
	}
}

func (t *Tracker) publishLocked() {
	ev := Event{Time: time.Now(), Statistics: t.stats}
	for _, ch := range t.subscribers {
		select {
		case ch <- ev:
		default:
		}
	}
}
