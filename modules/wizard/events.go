package wizard

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// 세션 이벤트 타입
const (
	EventStepChanged      = "step_changed"
	EventClothesGenerated = "clothes_generated"
	EventClothesFailed    = "clothes_failed"
	EventResultLoading    = "result_loading"
	EventResultReady      = "result_ready"
	EventResultFailed     = "result_failed"
)

// Event - 웹소켓으로 전달되는 세션 이벤트
type Event struct {
	Type      string      `json:"type"`
	SessionID string      `json:"sessionId"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// Publisher - 세션 이벤트 수신자 (Hub)
type Publisher interface {
	Publish(event Event)
}

type notifyFunc func(eventType string, data interface{})

func (f notifyFunc) emit(eventType string, data interface{}) {
	if f != nil {
		f(eventType, data)
	}
}

// WebSocket upgrader
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// 인증이 없는 서버라 모든 origin 허용
		return true
	},
}

// 연결된 클라이언트 정보
type Client struct {
	conn      *websocket.Conn
	sessionID string
	send      chan []byte
}

// Hub - 세션별 웹소켓 구독자 관리
type Hub struct {
	clients map[string]map[*Client]struct{}
	mutex   sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]map[*Client]struct{}),
	}
}

// Serve - 업그레이드 후 세션 이벤트 구독 시작
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, sessionID string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("❌ [Events] WebSocket upgrade failed: %v", err)
		return
	}

	client := &Client{
		conn:      conn,
		sessionID: sessionID,
		send:      make(chan []byte, 256),
	}
	h.addClient(client)

	go client.writePump()
	go client.readPump(h)
}

func (h *Hub) addClient(client *Client) {
	h.mutex.Lock()
	subs, ok := h.clients[client.sessionID]
	if !ok {
		subs = make(map[*Client]struct{})
		h.clients[client.sessionID] = subs
	}
	subs[client] = struct{}{}
	count := len(subs)
	h.mutex.Unlock()

	log.Printf("👤 [Events] Client subscribed to session %s (Clients: %d)", client.sessionID, count)
}

func (h *Hub) removeClient(client *Client) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	subs, ok := h.clients[client.sessionID]
	if !ok {
		return
	}
	if _, exists := subs[client]; !exists {
		return
	}
	close(client.send)
	delete(subs, client)
	if len(subs) == 0 {
		delete(h.clients, client.sessionID)
	}
	log.Printf("👋 [Events] Client left session %s (Remaining: %d)", client.sessionID, len(subs))
}

// Publish - 세션 구독자 전원에게 이벤트 전송. 버퍼가 찬 클라이언트는 끊는다
func (h *Hub) Publish(event Event) {
	if event.Timestamp == 0 {
		event.Timestamp = time.Now().UnixMilli()
	}
	messageBytes, err := json.Marshal(event)
	if err != nil {
		log.Printf("❌ [Events] Error marshaling event: %v", err)
		return
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()

	subs := h.clients[event.SessionID]
	for client := range subs {
		select {
		case client.send <- messageBytes:
		default:
			close(client.send)
			delete(subs, client)
		}
	}
	if len(subs) > 0 {
		log.Printf("📢 [Events] Sent '%s' to %d client(s) in session %s", event.Type, len(subs), event.SessionID)
	}
}

// CloseSession - 세션 만료 시 구독자 연결 종료
func (h *Hub) CloseSession(sessionID string) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	for client := range h.clients[sessionID] {
		close(client.send)
		log.Printf("🔌 [Events] Disconnecting client from expired session %s", sessionID)
	}
	delete(h.clients, sessionID)
}

// ClientCount - 세션 구독자 수
func (h *Hub) ClientCount(sessionID string) int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients[sessionID])
}

// 클라이언트 메시지는 사용하지 않고 연결 종료만 감지
func (c *Client) readPump(h *Hub) {
	defer func() {
		h.removeClient(c)
		c.conn.Close()
	}()

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("❌ [Events] WebSocket error: %v", err)
			}
			return
		}
	}
}

// 클라이언트로 메시지 쓰기
func (c *Client) writePump() {
	defer c.conn.Close()

	for message := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			log.Printf("❌ [Events] WebSocket write error: %v", err)
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}
