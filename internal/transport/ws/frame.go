package ws

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// ExceptionEvent 错误帧的事件名
const ExceptionEvent = "exception"

// Frame 收发的消息帧 {"event": "...", "data": ...}
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Message 交给事件处理器的输入
type Message struct {
	Event  string
	Data   json.RawMessage
	Client *Client
}

// Decode 把 data 解析到 v
func (m *Message) Decode(v any) error {
	if len(m.Data) == 0 {
		return nil
	}
	return json.Unmarshal(m.Data, v)
}

// Client 一个 WebSocket 连接
type Client struct {
	ID   string
	conn *websocket.Conn
	// 同一连接可能被处理器与广播同时写，需要加锁
	writeMu sync.Mutex
}

func newClient(conn *websocket.Conn) *Client {
	return &Client{ID: uuid.NewString(), conn: conn}
}

// Send 向客户端发送一帧（线程安全）
func (c *Client) Send(event string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	b, err := json.Marshal(Frame{Event: event, Data: raw})
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, b)
}

func (c *Client) close(code int, reason string) {
	c.writeMu.Lock()
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason))
	c.writeMu.Unlock()
	_ = c.conn.Close()
}
