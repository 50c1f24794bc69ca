package server

import "math"

// JoinMessage 入站：加入对局
// 示例：{"type":"player_join","data":{"username":"alice","character":"pinky","x":100,"y":200}}
type JoinMessage struct {
	Username  string  `json:"username"`
	Character string  `json:"character"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
}

// MoveMessage 入站：位置与分数（客户端约 20Hz 上报）
type MoveMessage struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Score float64 `json:"score"`
}

// 投递给 Coordinator 事件循环的命令
type (
	joinCmd struct {
		ID  SessionID
		Msg JoinMessage
	}
	moveCmd struct {
		ID    SessionID
		X, Y  float64
		Score int64
	}
	diedCmd struct {
		ID SessionID
	}
	leaveCmd struct {
		ID SessionID
	}
	statusCmd struct {
		Reply chan<- Status
	}
	configCmd struct {
		Patch RulesPatch
		Reply chan<- configReply
	}
	configReply struct {
		Queued bool
		Err    error
	}
)

// ParseInput 将一条入站帧转换为命令；未知类型返回 nil, nil
func ParseInput(id SessionID, frame []byte) (any, error) {
	env, err := DecodeEnvelope(frame)
	if err != nil {
		return nil, err
	}
	switch env.Type {
	case MsgPlayerJoin:
		m, err := DecodePayload[JoinMessage](env)
		if err != nil {
			return nil, err
		}
		return joinCmd{ID: id, Msg: m}, nil
	case MsgPlayerMove:
		m, err := DecodePayload[MoveMessage](env)
		if err != nil {
			return nil, err
		}
		return moveCmd{ID: id, X: m.X, Y: m.Y, Score: clampScore(m.Score)}, nil
	case MsgPlayerGameOver:
		return diedCmd{ID: id}, nil
	default:
		return nil, nil
	}
}

// clampScore 截断小数；超出 int64 范围时取边界值，避免溢出后变成负分
func clampScore(f float64) int64 {
	switch {
	case math.IsNaN(f):
		return 0
	case f >= math.MaxInt64:
		return math.MaxInt64
	case f <= math.MinInt64:
		return math.MinInt64
	default:
		return int64(f)
	}
}
