package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"racearena/config"
)

// ClientConn 负责发送（写）数据到客户端的轻量包装
type ClientConn struct {
	id   SessionID
	ws   *websocket.Conn
	cfg  config.ServerConfig
	mu   sync.Mutex
	send chan []byte
	shut bool
}

func NewClientConn(id SessionID, ws *websocket.Conn, cfg config.ServerConfig) *ClientConn {
	return &ClientConn{
		id:   id,
		ws:   ws,
		cfg:  cfg,
		send: make(chan []byte, cfg.SendBuffer),
	}
}

func (c *ClientConn) ID() SessionID { return c.id }

// Enqueue 将要发送的消息压入队列（非阻塞，满则丢弃；下一次广播会带上最新状态）
func (c *ClientConn) Enqueue(b []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.shut {
		return ErrConnClosed
	}
	select {
	case c.send <- b:
		return nil
	default:
		return ErrSendQueueFull
	}
}

// Close 关闭发送队列，写协程发送 close 帧后关闭底层连接
func (c *ClientConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.shut {
		c.shut = true
		close(c.send)
	}
	return nil
}

// writePump 独立协程，负责从 send 队列写出到 WS，并定期发送 ping
func (c *ClientConn) writePump() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				Log.Warnf("write to session=%s failed: %v", c.id, err)
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				Log.Debugf("ping session=%s failed: %v", c.id, err)
				return
			}
		}
	}
}

// readPump 读取客户端消息，转换为命令投递给协调器
func (c *ClientConn) readPump(g *Gateway) {
	// 读泵退出时：先注销连接，再请求协调器在事件循环中移除玩家
	defer func() {
		g.hub.Remove(c.id)
		g.coord.RequestLeave(c.id)
		_ = c.Close()
		Log.Infof("session disconnected: %s connections=%d", c.id, g.hub.Len())
	}()
	c.ws.SetReadLimit(c.cfg.MaxMessageBytes)
	_ = c.ws.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
	})

	for {
		_, payload, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				Log.Debugf("read session=%s: %v", c.id, err)
			}
			return
		}
		cmd, err := ParseInput(c.id, payload)
		if err != nil {
			Log.Debugf("bad frame from session=%s: %v", c.id, err)
			continue
		}
		if cmd == nil {
			continue
		}
		g.coord.OnInput(cmd)
	}
}

// Gateway WebSocket 接入：分配会话、握手、启动读写协程
type Gateway struct {
	coord    *Coordinator
	hub      *Hub
	cfg      config.ServerConfig
	upgrader websocket.Upgrader
}

func NewGateway(coord *Coordinator, hub *Hub, cfg config.ServerConfig) *Gateway {
	return &Gateway{
		coord: coord,
		hub:   hub,
		cfg:   cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(cfg.AllowedOrigins),
		},
	}
}

// HandleWS GET /ws
func (g *Gateway) HandleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		Log.Warnf("upgrade error: %v", err)
		return
	}

	id := SessionID(uuid.NewString())
	client := NewClientConn(id, ws, g.cfg)

	// 先握手再注册，保证握手是该连接收到的第一条消息
	hello, err := Encode(MsgConnected, Handshake{ServerID: g.coord.InstanceID(), SessionID: id})
	if err == nil {
		_ = client.Enqueue(hello)
	}
	g.hub.Add(client)
	Log.Infof("session connected: %s remote=%s connections=%d", id, r.RemoteAddr, g.hub.Len())

	go client.writePump()
	go client.readPump(g)
}

// originChecker 包含 "*" 时允许所有来源
func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || set[origin]
	}
}
