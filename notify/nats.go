// Package notify 将对局生命周期事件推送到 NATS，供外部房间目录服务感知房间状态。
package notify

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"racearena/server"
)

// conn 是 Publisher 用到的 *nats.Conn 子集
type conn interface {
	Publish(subj string, data []byte) error
	Drain() error
}

// Publisher 实现 server.Notifier；发布是异步缓冲的，不阻塞协调器事件循环
type Publisher struct {
	nc      conn
	subject string
}

// Connect 连接 NATS。断线后无限重连，期间的发布由客户端缓冲。
func Connect(url, subject, instanceID string) (*Publisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("racearena-"+instanceID),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				server.Log.Warnf("nats disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			server.Log.Infof("nats reconnected: %s", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}
	return &Publisher{nc: nc, subject: subject}, nil
}

// Subject 事件发布的完整主题：<subject>.<instanceId>
func (p *Publisher) Subject(instanceID string) string {
	return p.subject + "." + instanceID
}

// Publish 失败只记录，不重试
func (p *Publisher) Publish(ev server.MatchEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		server.Log.Errorf("marshal match event: %v", err)
		return
	}
	if err := p.nc.Publish(p.Subject(ev.InstanceID), data); err != nil {
		server.Log.Warnf("publish %s event failed: %v", ev.Kind, err)
	}
}

// Close 刷出缓冲后断开
func (p *Publisher) Close() error {
	return p.nc.Drain()
}
