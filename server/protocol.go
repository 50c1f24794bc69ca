package server

import (
	"encoding/json"
	"errors"
	"fmt"
)

// 消息类型（与客户端事件名一致）
const (
	// 下行
	MsgConnected    = "connected"
	MsgPlayersState = "players_state"
	MsgCountdown    = "countdown"
	MsgMatchStart   = "match_start"
	MsgMatchTime    = "match_time"
	MsgMatchOver    = "match_over"
	MsgMatchReset   = "match_reset"

	// 上行
	MsgPlayerJoin     = "player_join"
	MsgPlayerMove     = "player_move"
	MsgPlayerGameOver = "player_game_over"
)

// Envelope 所有 WebSocket 文本消息的外层结构
// 示例：{"type":"player_move","data":{"x":10,"y":20,"score":300}}
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Handshake 连接建立后立即下发，serverID 仅用于客户端诊断
type Handshake struct {
	ServerID  string    `json:"serverID"`
	SessionID SessionID `json:"sessionId"`
}

var errEmptyFrame = errors.New("empty frame")

// Encode 编码为一条完整的下行消息；payload 为 nil 时发送空对象
func Encode(t string, payload any) ([]byte, error) {
	if t == "" {
		return nil, fmt.Errorf("encode: empty message type")
	}
	if payload == nil {
		payload = struct{}{}
	}
	pb, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", t, err)
	}
	return json.Marshal(Envelope{Type: t, Data: pb})
}

// DecodeEnvelope 解析外层结构
func DecodeEnvelope(b []byte) (Envelope, error) {
	if len(b) == 0 {
		return Envelope{}, errEmptyFrame
	}
	var e Envelope
	if err := json.Unmarshal(b, &e); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if e.Type == "" {
		return Envelope{}, fmt.Errorf("decode envelope: missing type")
	}
	return e, nil
}

// DecodePayload 解析 data 字段；缺省 data 时返回零值
func DecodePayload[T any](env Envelope) (T, error) {
	var out T
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return out, nil
	}
	if err := json.Unmarshal(env.Data, &out); err != nil {
		return out, fmt.Errorf("decode %s payload: %w", env.Type, err)
	}
	return out, nil
}
