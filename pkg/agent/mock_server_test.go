package agent

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/livekit/protocol/auth"
	"github.com/livekit/protocol/livekit"
	"google.golang.org/protobuf/proto"
)

// mockAgentServer simulates the agent endpoint of a LiveKit server for testing
type mockAgentServer struct {
	*httptest.Server
	upgrader     websocket.Upgrader
	mu           sync.Mutex
	connections  []*websocket.Conn
	receivedMsgs [][]byte
	workerID     string

	rejectAuth           bool
	suppressRegistration bool
	suppressPong         bool
}

func newMockAgentServer() *mockAgentServer {
	m := &mockAgentServer{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		connections:  make([]*websocket.Conn, 0),
		receivedMsgs: make([][]byte, 0),
		workerID:     "TW_test123",
	}

	m.Server = httptest.NewServer(http.HandlerFunc(m.handleAgent))
	return m
}

func (m *mockAgentServer) handleAgent(w http.ResponseWriter, r *http.Request) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		http.Error(w, "Missing auth token", http.StatusUnauthorized)
		return
	}

	token := strings.TrimPrefix(authHeader, "Bearer ")
	if _, err := auth.ParseAPIToken(token); err != nil {
		http.Error(w, "Invalid auth token", http.StatusUnauthorized)
		return
	}

	if r.URL.Query().Get("protocol") != "1" {
		http.Error(w, "Unsupported protocol version", http.StatusBadRequest)
		return
	}

	m.mu.Lock()
	rejectAuth := m.rejectAuth
	m.mu.Unlock()
	if rejectAuth {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	m.mu.Lock()
	m.connections = append(m.connections, conn)
	m.mu.Unlock()

	go m.handleConnection(conn)
}

func (m *mockAgentServer) handleConnection(conn *websocket.Conn) {
	defer func() {
		m.mu.Lock()
		for i, c := range m.connections {
			if c == conn {
				m.connections = append(m.connections[:i], m.connections[i+1:]...)
				break
			}
		}
		m.mu.Unlock()
		_ = conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		m.mu.Lock()
		m.receivedMsgs = append(m.receivedMsgs, data)
		m.mu.Unlock()

		var msg livekit.WorkerMessage
		if err := proto.Unmarshal(data, &msg); err != nil {
			continue
		}

		switch msg.Message.(type) {
		case *livekit.WorkerMessage_Register:
			m.mu.Lock()
			suppress := m.suppressRegistration
			workerID := m.workerID
			m.mu.Unlock()
			if suppress {
				continue
			}
			resp := &livekit.ServerMessage{
				Message: &livekit.ServerMessage_Register{
					Register: &livekit.RegisterWorkerResponse{
						WorkerId: workerID,
						ServerInfo: &livekit.ServerInfo{
							Version: "1.0.0",
						},
					},
				},
			}
			_ = m.writeMessage(conn, resp)

		case *livekit.WorkerMessage_Ping:
			m.mu.Lock()
			suppress := m.suppressPong
			m.mu.Unlock()
			if suppress {
				continue
			}
			ping := msg.GetPing()
			resp := &livekit.ServerMessage{
				Message: &livekit.ServerMessage_Pong{
					Pong: &livekit.WorkerPong{
						LastTimestamp: ping.Timestamp,
					},
				},
			}
			_ = m.writeMessage(conn, resp)
		}
	}
}

func (m *mockAgentServer) writeMessage(conn *websocket.Conn, msg *livekit.ServerMessage) error {
	data, err := proto.Marshal(msg)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.BinaryMessage, data)
}

// Send delivers a server message to the most recent worker connection,
// waiting briefly for a connection to exist.
func (m *mockAgentServer) Send(msg *livekit.ServerMessage) error {
	deadline := time.Now().Add(2 * time.Second)
	for {
		m.mu.Lock()
		var conn *websocket.Conn
		if len(m.connections) > 0 {
			conn = m.connections[len(m.connections)-1]
		}
		m.mu.Unlock()

		if conn != nil {
			return m.writeMessage(conn, msg)
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("no worker connection")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func (m *mockAgentServer) SendAvailabilityRequest(job *livekit.Job) error {
	return m.Send(&livekit.ServerMessage{
		Message: &livekit.ServerMessage_Availability{
			Availability: &livekit.AvailabilityRequest{
				Job: job,
			},
		},
	})
}

func (m *mockAgentServer) SendJobTermination(jobID string) error {
	return m.Send(&livekit.ServerMessage{
		Message: &livekit.ServerMessage_Termination{
			Termination: &livekit.JobTermination{
				JobId: jobID,
			},
		},
	})
}

func (m *mockAgentServer) GetReceivedMessages() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]byte{}, m.receivedMsgs...)
}

// WaitForMessage polls received messages until one of the given type arrives
// or the timeout expires. Known types: register, update, ping, availability,
// updateJob.
func (m *mockAgentServer) WaitForMessage(msgType string, timeout time.Duration) (*livekit.WorkerMessage, error) {
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		msgs := m.GetReceivedMessages()
		for i := len(msgs) - 1; i >= 0; i-- {
			var msg livekit.WorkerMessage
			if err := proto.Unmarshal(msgs[i], &msg); err != nil {
				continue
			}

			switch msgType {
			case "register":
				if msg.GetRegister() != nil {
					return &msg, nil
				}
			case "update":
				if msg.GetUpdateWorker() != nil {
					return &msg, nil
				}
			case "ping":
				if msg.GetPing() != nil {
					return &msg, nil
				}
			case "availability":
				if msg.GetAvailability() != nil {
					return &msg, nil
				}
			case "updateJob":
				if msg.GetUpdateJob() != nil {
					return &msg, nil
				}
			}
		}
		time.Sleep(10 * time.Millisecond)
	}

	return nil, fmt.Errorf("timeout waiting for %s message", msgType)
}

func (m *mockAgentServer) Close() {
	m.mu.Lock()
	for _, conn := range m.connections {
		_ = conn.Close()
	}
	m.mu.Unlock()
	m.Server.Close()
}

func (m *mockAgentServer) URL() string {
	return strings.Replace(m.Server.URL, "http://", "ws://", 1)
}
