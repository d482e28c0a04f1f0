package daemon

import (
	"log"
	"sync"
	"time"

	"github.com/ProjectMoon/reed/internal/keys"
)

// EventKind identifies a domain event.
type EventKind int

const (
	// EventReady fires once the initial pass completed and queued calls were replayed.
	EventReady EventKind = iota
	// EventAdd fires when an item was indexed for the first time.
	EventAdd
	// EventUpdate fires when a modified file replaced its index entry.
	EventUpdate
	// EventRemove fires when a file's entry was removed from the index.
	EventRemove
	// EventError carries an asynchronous failure.
	EventError
)

// String returns a human-readable representation of the event kind.
func (k EventKind) String() string {
	switch k {
	case EventReady:
		return "ready"
	case EventAdd:
		return "add"
	case EventUpdate:
		return "update"
	case EventRemove:
		return "remove"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is a domain event. Add and Update carry Title, Remove carries Path
// and Error carries Err.
type Event struct {
	Kind    EventKind
	Content keys.Kind
	Title   string
	Path    string
	Err     error
	Time    time.Time
}

// broadcaster fans events out to subscribers. A subscriber whose buffer is
// full misses the event.
type broadcaster struct {
	mu     sync.Mutex
	subs   map[int]chan Event
	nextID int
	logger *log.Logger
}

func newBroadcaster(logger *log.Logger) *broadcaster {
	return &broadcaster{
		subs:   make(map[int]chan Event),
		logger: logger,
	}
}

func (b *broadcaster) subscribe(buffer int) (<-chan Event, func()) {
	if buffer < 0 {
		buffer = 0
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

func (b *broadcaster) publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for id, ch := range b.subs {
		select {
		case ch <- e:
		default:
			b.logger.Printf("Subscriber %d too slow, dropped %s event", id, e.Kind)
		}
	}
}
