package server

import "racearena/config"

// SessionID 一条连接的唯一标识（连接生命周期内有效，重连不复用）
type SessionID string

// Character 玩家所选角色
type Character string

const (
	CharBlacky     Character = "blacky"
	CharPinky      Character = "pinky"
	CharAlterEgo   Character = "alterEgo"
	CharGreenThumb Character = "greenThumb"
)

// ParseCharacter 非法或缺省时回落到默认角色
func ParseCharacter(s string, def Character) Character {
	if config.IsCharacter(s) {
		return Character(s)
	}
	return def
}

// PlayerState 广播给客户端的玩家状态。位置与分数由客户端上报，服务端不做校验。
type PlayerState struct {
	ID        SessionID `json:"id"`
	Name      string    `json:"username"`
	Character Character `json:"character"`
	X         float64   `json:"x"`
	Y         float64   `json:"y"`
	Score     int64     `json:"score"`
	Dead      bool      `json:"dead"`
}

// MatchResult 一局结束时的胜者公告，仅用于广播
type MatchResult struct {
	WinnerName      string    `json:"winnerName"`
	WinnerCharacter Character `json:"winnerCharacter"`
	WinnerScore     int64     `json:"winnerScore"`
}
