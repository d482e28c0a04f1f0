// Package dashboard streams index events to WebSocket clients.
//
// Every add, update, remove, ready and error event of the running daemons is
// broadcast as a JSON message on /ws, followed by refreshed counters, so a
// browser or a script can follow a sync as it happens.
package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/ProjectMoon/reed/internal/keys"
)

// MessageType defines the type of dashboard message
type MessageType string

const (
	// MessageTypeItem indicates an item was added, updated or removed
	MessageTypeItem MessageType = "item"

	// MessageTypeReady indicates a daemon finished its initial pass
	MessageTypeReady MessageType = "ready"

	// MessageTypeError carries an asynchronous daemon failure
	MessageTypeError MessageType = "error"

	// MessageTypeStats carries updated event counters
	MessageTypeStats MessageType = "stats"
)

// Message represents a dashboard broadcast message. Content names the
// content kind it concerns; messages without one go to every client.
type Message struct {
	Type      MessageType     `json:"type"`
	Content   string          `json:"content,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// clientBuffer bounds the messages queued for one client. A client that
// falls this far behind is disconnected.
const clientBuffer = 32

// client is one WebSocket connection, optionally following a single content
// kind.
type client struct {
	conn    *websocket.Conn
	content string
	send    chan []byte
	ctx     context.Context
	cancel  context.CancelFunc
}

func (c *client) wants(msg Message) bool {
	return c.content == "" || msg.Content == "" || msg.Content == c.content
}

// Server manages WebSocket connections and broadcasts dashboard messages
type Server struct {
	addr     string
	listener net.Listener
	server   *http.Server

	clients   map[*client]struct{}
	clientsMu sync.RWMutex

	broadcast chan Message

	// welcome builds the first message a new client receives; nil sends an
	// empty stats message.
	welcome func() Message

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger *log.Logger
}

// Config holds server configuration
type Config struct {
	// Host to bind (default: all interfaces)
	Host string

	// Port to listen on; 0 picks a free port
	Port int

	// Logger for server activity (default: stderr logger)
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Port:   8080,
		Logger: log.Default(),
	}
}

// NewServer creates a new dashboard WebSocket server
func NewServer(config *Config) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	logger := config.Logger
	if logger == nil {
		logger = log.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Server{
		addr:      net.JoinHostPort(config.Host, fmt.Sprint(config.Port)),
		clients:   make(map[*client]struct{}),
		broadcast: make(chan Message, 100),
		ctx:       ctx,
		cancel:    cancel,
		logger:    logger,
	}
}

// SetWelcome sets the message sent to every client right after it connects.
// Call it before Start.
func (s *Server) SetWelcome(fn func() Message) {
	s.welcome = fn
}

// Start begins the HTTP server and WebSocket handler
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = ln

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/", s.handleRoot)

	s.server = &http.Server{
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	s.wg.Add(1)
	go s.broadcastLoop()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Printf("Dashboard server listening on %s", ln.Addr())
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Printf("Server error: %v", err)
		}
	}()

	return nil
}

// Stop gracefully shuts down the server
func (s *Server) Stop() error {
	s.logger.Println("Stopping dashboard server")

	s.cancel()

	s.clientsMu.Lock()
	for c := range s.clients {
		c.cancel()
		_ = c.conn.Close(websocket.StatusGoingAway, "Server shutting down")
		delete(s.clients, c)
	}
	s.clientsMu.Unlock()

	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := s.server.Shutdown(ctx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
	}

	s.wg.Wait()

	s.logger.Println("Dashboard server stopped")
	return nil
}

// Broadcast sends a message to all connected clients. It never blocks; when
// the outgoing buffer is full the message is dropped.
func (s *Server) Broadcast(msg Message) {
	select {
	case s.broadcast <- msg:
	case <-s.ctx.Done():
		return
	default:
		s.logger.Println("Warning: broadcast channel full, dropping message")
	}
}

// broadcastLoop encodes each message once and queues it for every client
// that follows its content kind.
func (s *Server) broadcastLoop() {
	defer s.wg.Done()

	for {
		var msg Message
		select {
		case <-s.ctx.Done():
			return
		case msg = <-s.broadcast:
		}

		data, err := encode(msg)
		if err != nil {
			s.logger.Printf("Failed to marshal %s message: %v", msg.Type, err)
			continue
		}

		var slow []*client
		s.clientsMu.RLock()
		for c := range s.clients {
			if !c.wants(msg) {
				continue
			}
			select {
			case c.send <- data:
			default:
				slow = append(slow, c)
			}
		}
		s.clientsMu.RUnlock()

		for _, c := range slow {
			s.logger.Printf("Client %s fell behind; disconnecting", c.label())
			s.removeClient(c, websocket.StatusPolicyViolation, "too slow")
		}
	}
}

func encode(msg Message) ([]byte, error) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	return json.Marshal(msg)
}

// handleWebSocket registers a client. The optional content query parameter
// restricts it to one content kind.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	content := r.URL.Query().Get("content")
	if content != "" && content != keys.Posts.String() && content != keys.Pages.String() {
		http.Error(w, fmt.Sprintf("unknown content kind %q", content), http.StatusBadRequest)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.logger.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	welcome := Message{Type: MessageTypeStats}
	if s.welcome != nil {
		welcome = s.welcome()
	}
	welcomeData, err := encode(welcome)
	if err != nil {
		s.logger.Printf("Failed to marshal welcome: %v", err)
		_ = conn.Close(websocket.StatusInternalError, "")
		return
	}

	ctx, cancel := context.WithCancel(s.ctx)
	c := &client{
		conn:    conn,
		content: content,
		send:    make(chan []byte, clientBuffer),
		ctx:     ctx,
		cancel:  cancel,
	}

	// The welcome is queued under the lock so it precedes every broadcast
	// the client can see.
	s.clientsMu.Lock()
	s.clients[c] = struct{}{}
	c.send <- welcomeData
	clientCount := len(s.clients)
	s.clientsMu.Unlock()

	s.logger.Printf("Client %s connected (total: %d)", c.label(), clientCount)

	s.wg.Add(2)
	go s.writeLoop(c)
	go s.readLoop(c)
}

// writeLoop delivers queued messages to one client.
func (s *Server) writeLoop(c *client) {
	defer s.wg.Done()

	for {
		select {
		case <-c.ctx.Done():
			return
		case data := <-c.send:
			ctx, cancel := context.WithTimeout(c.ctx, 5*time.Second)
			err := c.conn.Write(ctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				if c.ctx.Err() == nil {
					s.logger.Printf("Failed to send to client %s: %v", c.label(), err)
				}
				s.removeClient(c, websocket.StatusInternalError, "write failed")
				return
			}
		}
	}
}

// readLoop keeps the connection alive until the client goes away. Client
// messages are ignored.
func (s *Server) readLoop(c *client) {
	defer s.wg.Done()

	for {
		if _, _, err := c.conn.Read(c.ctx); err != nil {
			s.removeClient(c, websocket.StatusNormalClosure, "")
			return
		}
	}
}

// removeClient unregisters c and closes its connection. Later calls for the
// same client do nothing.
func (s *Server) removeClient(c *client, code websocket.StatusCode, reason string) {
	s.clientsMu.Lock()
	_, exists := s.clients[c]
	delete(s.clients, c)
	clientCount := len(s.clients)
	s.clientsMu.Unlock()

	if !exists {
		return
	}
	c.cancel()
	_ = c.conn.Close(code, reason)
	s.logger.Printf("Client %s disconnected (total: %d)", c.label(), clientCount)
}

func (c *client) label() string {
	if c.content == "" {
		return "all"
	}
	return c.content
}

// handleHealth reports the number of clients per followed content kind.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	following := make(map[string]int)
	s.clientsMu.RLock()
	total := len(s.clients)
	for c := range s.clients {
		following[c.label()]++
	}
	s.clientsMu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":    "ok",
		"clients":   total,
		"following": following,
	})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	_, _ = fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head>
    <title>reed</title>
</head>
<body>
    <h1>reed</h1>
    <p>WebSocket endpoint: <code>ws://%s/ws</code> (add <code>?content=posts</code> or <code>?content=pages</code> to follow one kind)</p>
    <p>Health check: <a href="/health">/health</a></p>
    <p>Connect a WebSocket client to follow index updates.</p>
</body>
</html>`, r.Host)
}

// GetAddr returns the server's listening address
func (s *Server) GetAddr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// ClientCount returns the current number of connected clients
func (s *Server) ClientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}
