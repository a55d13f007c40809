// Package executor is the remote side of the command protocol: it accepts
// action requests over a persistent WebSocket connection, performs the
// concrete OS action, and answers with a result echoing the request id.
//
// Each connection's requests are processed strictly in order. Workers are
// isolated through per-worker working directories, never through locks on
// shared state.
package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hochfrequenz/worksim/internal/protocol"
)

// writeWait is time allowed to write a frame back to a dispatcher.
const writeWait = 10 * time.Second

// Config configures the executor server.
type Config struct {
	Port      int
	WorkDir   string // root under which per-worker directories are created
	AllowExec bool   // permit real process launches for launch_app
}

// Server accepts dispatcher connections and executes their actions.
type Server struct {
	cfg      Config
	actions  *Runner
	upgrader websocket.Upgrader

	server *http.Server
	mu     sync.Mutex
}

// NewServer creates a server.
func NewServer(cfg Config) *Server {
	return &Server{
		cfg:     cfg,
		actions: NewRunner(cfg),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Start runs the server until it is stopped.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)

	addr := fmt.Sprintf(":%d", s.cfg.Port)
	s.mu.Lock()
	s.server = &http.Server{Addr: addr, Handler: mux}
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	log.Printf("executor listening on %s (workdir %s)", addr, s.cfg.WorkDir)
	err := s.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop closes the server.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server != nil {
		return s.server.Close()
	}
	return nil
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("upgrade failed: %v", err)
		return
	}
	go s.handleConnection(conn)
}

// handleConnection serves one dispatcher. Requests are executed inline in
// the read loop, which enforces the one-outstanding-request discipline.
func (s *Server) handleConnection(conn *websocket.Conn) {
	workerID := "default"
	defer func() {
		conn.Close()
		log.Printf("worker %s disconnected", workerID)
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("read error: %v", err)
			}
			return
		}

		var env protocol.EnvelopeRaw
		if err := json.Unmarshal(message, &env); err != nil {
			log.Printf("invalid message: %v", err)
			continue
		}

		switch env.Type {
		case protocol.TypeHello:
			var hello protocol.HelloMessage
			if err := json.Unmarshal(env.Payload, &hello); err != nil {
				log.Printf("invalid hello: %v", err)
				continue
			}
			if hello.WorkerID != "" {
				workerID = hello.WorkerID
			}
			log.Printf("worker %s registered", workerID)

		case protocol.TypeAction:
			var action protocol.ActionMessage
			if err := json.Unmarshal(env.Payload, &action); err != nil {
				log.Printf("invalid action: %v", err)
				continue
			}
			result := s.actions.Run(workerID, action)
			if err := s.send(conn, protocol.TypeResult, result); err != nil {
				log.Printf("write result for %s failed: %v", action.ID, err)
				return
			}

		case protocol.TypePing:
			s.send(conn, protocol.TypePong, nil)
		}
	}
}

func (s *Server) send(conn *websocket.Conn, msgType string, payload interface{}) error {
	data, err := protocol.MarshalEnvelope(msgType, payload)
	if err != nil {
		return err
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, data)
}

// ExecuteOnce runs a single JSON-encoded action and returns the JSON result.
// This is the one-shot entry point used by the remote-shell fallback
// transport, one process per request.
func ExecuteOnce(cfg Config, payload []byte) ([]byte, error) {
	var action protocol.ActionMessage
	if err := json.Unmarshal(payload, &action); err != nil {
		return nil, fmt.Errorf("invalid action payload: %w", err)
	}
	result := NewRunner(cfg).Run("default", action)
	return json.Marshal(result)
}
