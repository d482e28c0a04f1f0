package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/ProjectMoon/reed/internal/daemon"
)

// ItemData describes an item change or a daemon failure.
type ItemData struct {
	Content string `json:"content"`
	Action  string `json:"action"` // add, update, remove, ready, error
	Title   string `json:"title,omitempty"`
	Path    string `json:"path,omitempty"`
	Error   string `json:"error,omitempty"`
}

// KindStats counts the events seen for one content kind.
type KindStats struct {
	Ready   bool `json:"ready"`
	Added   int  `json:"added"`
	Updated int  `json:"updated"`
	Removed int  `json:"removed"`
	Errors  int  `json:"errors"`
}

// StatsData contains per-kind event counters keyed by content kind.
type StatsData struct {
	Kinds map[string]KindStats `json:"kinds"`
}

// MessageFromEvent formats a daemon event as a dashboard message.
func MessageFromEvent(ev daemon.Event) (Message, error) {
	data := ItemData{
		Content: ev.Content.String(),
		Action:  ev.Kind.String(),
		Title:   ev.Title,
		Path:    ev.Path,
	}
	if ev.Err != nil {
		data.Error = ev.Err.Error()
	}

	var typ MessageType
	switch ev.Kind {
	case daemon.EventReady:
		typ = MessageTypeReady
	case daemon.EventAdd, daemon.EventUpdate, daemon.EventRemove:
		typ = MessageTypeItem
	case daemon.EventError:
		typ = MessageTypeError
	default:
		return Message{}, fmt.Errorf("unknown event kind %d", ev.Kind)
	}

	dataJSON, err := json.Marshal(data)
	if err != nil {
		return Message{}, fmt.Errorf("failed to marshal event data: %w", err)
	}

	ts := ev.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	return Message{Type: typ, Content: data.Content, Timestamp: ts, Data: dataJSON}, nil
}

// Handler turns daemon events into dashboard messages and keeps counters.
type Handler struct {
	server *Server
	logger *log.Logger

	mu    sync.Mutex
	stats StatsData
}

// NewHandler creates a new event handler connected to a dashboard server.
// New clients are greeted with the current counters.
func NewHandler(server *Server, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Default()
	}

	h := &Handler{
		server: server,
		logger: logger,
		stats:  StatsData{Kinds: make(map[string]KindStats)},
	}
	server.SetWelcome(h.statsMessage)
	return h
}

// OnEvent broadcasts ev followed by the updated counters.
func (h *Handler) OnEvent(ev daemon.Event) {
	msg, err := MessageFromEvent(ev)
	if err != nil {
		h.logger.Printf("Skipping event: %v", err)
		return
	}

	h.mu.Lock()
	kind := ev.Content.String()
	ks := h.stats.Kinds[kind]
	switch ev.Kind {
	case daemon.EventReady:
		ks.Ready = true
	case daemon.EventAdd:
		ks.Added++
	case daemon.EventUpdate:
		ks.Updated++
	case daemon.EventRemove:
		ks.Removed++
	case daemon.EventError:
		ks.Errors++
	}
	h.stats.Kinds[kind] = ks
	h.mu.Unlock()

	h.server.Broadcast(msg)
	h.server.Broadcast(h.statsMessage())
}

// Forward relays events until the channel closes or ctx ends.
func (h *Handler) Forward(ctx context.Context, events <-chan daemon.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			h.OnEvent(ev)
		}
	}
}

// GetStats returns a copy of the current counters.
func (h *Handler) GetStats() StatsData {
	h.mu.Lock()
	defer h.mu.Unlock()

	kinds := make(map[string]KindStats, len(h.stats.Kinds))
	for k, v := range h.stats.Kinds {
		kinds[k] = v
	}
	return StatsData{Kinds: kinds}
}

func (h *Handler) statsMessage() Message {
	dataJSON, err := json.Marshal(h.GetStats())
	if err != nil {
		h.logger.Printf("Failed to marshal stats: %v", err)
		return Message{Type: MessageTypeStats, Timestamp: time.Now()}
	}
	return Message{Type: MessageTypeStats, Timestamp: time.Now(), Data: dataJSON}
}
