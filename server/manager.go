package server

import (
	"errors"
	"sync"
)

var (
	// ErrSendQueueFull 连接的发送队列已满，本条消息被丢弃
	ErrSendQueueFull = errors.New("send queue full")
	// ErrConnClosed 连接已关闭
	ErrConnClosed = errors.New("connection closed")
)

// Conn 下行发送端（WebSocket 连接或测试替身）
type Conn interface {
	ID() SessionID
	Enqueue(b []byte) error
	Close() error
}

// Hub 管理当前所有在线连接，提供广播与单播。
// 只持有连接，不持有玩家状态；玩家表归 Coordinator 所有。
type Hub struct {
	mu      sync.RWMutex
	conns   map[SessionID]Conn
	metrics *Metrics
}

func NewHub(m *Metrics) *Hub {
	if m == nil {
		m = &Metrics{}
	}
	return &Hub{conns: make(map[SessionID]Conn), metrics: m}
}

// Add 注册连接
func (h *Hub) Add(c Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[c.ID()] = c
}

// Remove 注销连接（不关闭）
func (h *Hub) Remove(id SessionID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns, id)
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Broadcast 发送给所有连接。单个连接失败只记录，不影响其他连接。
func (h *Hub) Broadcast(msg []byte) {
	h.mu.RLock()
	targets := make([]Conn, 0, len(h.conns))
	for _, c := range h.conns {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if err := c.Enqueue(msg); err != nil {
			h.metrics.IncSendFailures()
			Log.Warnf("broadcast to session=%s failed: %v", c.ID(), err)
		}
	}
}

// Send 单播
func (h *Hub) Send(id SessionID, msg []byte) error {
	h.mu.RLock()
	c, ok := h.conns[id]
	h.mu.RUnlock()
	if !ok {
		return ErrConnClosed
	}
	if err := c.Enqueue(msg); err != nil {
		h.metrics.IncSendFailures()
		Log.Warnf("send to session=%s failed: %v", id, err)
		return err
	}
	return nil
}
