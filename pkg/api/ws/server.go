// Package ws implements the progress-stream WebSocket server (C11): a
// one-directional broadcaster of device operation progress events to
// connected clients. Unlike the teacher's bidirectional command-routing
// WebSocket, this domain has no caller-to-device direction over this
// channel — operations are issued through the REST API or the CLI.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Server is the progress-stream WebSocket server. It implements
// device.ProgressReporter.
type Server struct {
	mu       sync.RWMutex
	config   ServerConfig
	upgrader websocket.Upgrader
	clients  map[*client]bool
	running  bool
	server   *http.Server
	log      *slog.Logger
}

// ServerConfig holds WebSocket server configuration.
type ServerConfig struct {
	Port            int           `yaml:"port" json:"port"`
	Path            string        `yaml:"path" json:"path"`
	PingInterval    time.Duration `yaml:"ping_interval" json:"ping_interval"`
	WriteTimeout    time.Duration `yaml:"write_timeout" json:"write_timeout"`
	ReadBufferSize  int           `yaml:"read_buffer_size" json:"read_buffer_size"`
	WriteBufferSize int           `yaml:"write_buffer_size" json:"write_buffer_size"`
	AllowedOrigins  []string      `yaml:"allowed_origins" json:"allowed_origins"`
}

// DefaultServerConfig returns default configuration.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Port:            8081,
		Path:            "/ws",
		PingInterval:    30 * time.Second,
		WriteTimeout:    10 * time.Second,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		AllowedOrigins:  []string{"*"},
	}
}

// client is one connected WebSocket subscriber. It never reads
// application messages from the client beyond control frames; this
// channel is broadcast-only.
type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Values of ProgressEvent.Type, mirroring a file transfer's lifecycle.
const (
	EventStarted  = "started"
	EventProgress = "progress"
	EventFinished = "finished"
)

// ProgressEvent is one broadcast message.
type ProgressEvent struct {
	Type      string `json:"type"`
	Operation string `json:"operation"`
	Filename  string `json:"filename"`
	Done      int    `json:"done"`
	Total     int    `json:"total"`
}

// NewServer creates a new WebSocket server.
func NewServer(config ServerConfig, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{
		config:  config,
		clients: make(map[*client]bool),
		log:     log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin: func(r *http.Request) bool {
				if len(config.AllowedOrigins) == 0 {
					return true
				}
				origin := r.Header.Get("Origin")
				for _, allowed := range config.AllowedOrigins {
					if allowed == "*" || allowed == origin {
						return true
					}
				}
				return false
			},
		},
	}
	return s
}

// Start starts the WebSocket server.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	mux := http.NewServeMux()
	mux.HandleFunc(s.config.Path, s.handleWebSocket)

	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.config.Port),
		Handler: mux,
	}

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error("progress stream server error", "error", err)
		}
	}()

	s.running = true
	return nil
}

// Stop stops the WebSocket server and closes all client connections.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	for c := range s.clients {
		c.conn.Close()
	}

	if err := s.server.Shutdown(ctx); err != nil {
		return err
	}

	s.running = false
	return nil
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	c := &client{
		conn: conn,
		send: make(chan []byte, 256),
	}

	s.mu.Lock()
	s.clients[c] = true
	s.mu.Unlock()

	go s.writePump(c)
	go s.readPump(c)
}

// Progress implements device.ProgressReporter: it is called by a device
// session as a file transfer completes and broadcasts a "finished"
// event (XOSS control reporting offers no mid-transfer byte count, so
// every call currently has done == total).
func (s *Server) Progress(operation, filename string, done, total int) {
	eventType := EventProgress
	switch {
	case done >= total && total > 0:
		eventType = EventFinished
	case done == 0:
		eventType = EventStarted
	}

	s.broadcast(ProgressEvent{
		Type:      eventType,
		Operation: operation,
		Filename:  filename,
		Done:      done,
		Total:     total,
	})
}

func (s *Server) broadcast(event ProgressEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		s.log.Warn("progress stream: failed to marshal event", "error", err)
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for c := range s.clients {
		select {
		case c.send <- data:
		default:
			s.log.Warn("progress stream: client buffer full, dropping event")
		}
	}
}

func (s *Server) removeClient(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.clients[c]; ok {
		delete(s.clients, c)
		close(c.send)
	}
}

// readPump drains and discards client frames purely to detect
// disconnects and respond to control frames (ping/close); this server
// accepts no application-level messages from clients.
func (s *Server) readPump(c *client) {
	defer func() {
		s.removeClient(c)
		c.conn.Close()
	}()

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
}

func (s *Server) writePump(c *client) {
	ticker := time.NewTicker(s.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
