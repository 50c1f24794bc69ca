package server

import "github.com/samber/lo"

// Registry 玩家表：SessionID → PlayerState。
// 只允许 Coordinator 在自己的事件循环内修改；order 记录首次加入顺序，用于平分时先到者胜。
type Registry struct {
	players map[SessionID]*PlayerState
	order   []SessionID
}

func NewRegistry() *Registry {
	return &Registry{players: make(map[SessionID]*PlayerState)}
}

// Join 插入或覆盖玩家；覆盖时分数与死亡标记清零，但保留原加入顺序
func (r *Registry) Join(id SessionID, name string, ch Character, x, y float64) PlayerState {
	if _, ok := r.players[id]; !ok {
		r.order = append(r.order, id)
	}
	p := &PlayerState{ID: id, Name: name, Character: ch, X: x, Y: y}
	r.players[id] = p
	return *p
}

// UpdatePosition 更新位置与分数；玩家不存在时返回 false
func (r *Registry) UpdatePosition(id SessionID, x, y float64, score int64) (PlayerState, bool) {
	p, ok := r.players[id]
	if !ok {
		return PlayerState{}, false
	}
	p.X, p.Y, p.Score = x, y, score
	return *p, true
}

// MarkDead 设置死亡标记（单向）；玩家不存在时返回 false
func (r *Registry) MarkDead(id SessionID) bool {
	p, ok := r.players[id]
	if !ok {
		return false
	}
	p.Dead = true
	return true
}

// Remove 删除玩家；不存在时返回 false
func (r *Registry) Remove(id SessionID) bool {
	if _, ok := r.players[id]; !ok {
		return false
	}
	delete(r.players, id)
	r.order = lo.Without(r.order, id)
	return true
}

func (r *Registry) Get(id SessionID) (PlayerState, bool) {
	p, ok := r.players[id]
	if !ok {
		return PlayerState{}, false
	}
	return *p, true
}

func (r *Registry) Len() int { return len(r.players) }

// Clear 清空所有玩家
func (r *Registry) Clear() {
	r.players = make(map[SessionID]*PlayerState)
	r.order = nil
}

// Snapshot 返回值拷贝，调用方持有期间不会看到后续修改
func (r *Registry) Snapshot() map[SessionID]PlayerState {
	out := make(map[SessionID]PlayerState, len(r.players))
	for id, p := range r.players {
		out[id] = *p
	}
	return out
}

// Ordered 按加入顺序返回值拷贝
func (r *Registry) Ordered() []PlayerState {
	return lo.Map(r.order, func(id SessionID, _ int) PlayerState {
		return *r.players[id]
	})
}

// AllDead 至少一名玩家且全部已死亡
func (r *Registry) AllDead() bool {
	if len(r.players) == 0 {
		return false
	}
	return lo.EveryBy(r.order, func(id SessionID) bool {
		return r.players[id].Dead
	})
}

// Winner 计算本局结果。
// forced 非空且仍在表中时直接判其获胜；否则取分数严格最高者，平分时先加入者胜；
// 表为空时返回占位结果（名字、默认角色、分数 -1）。
func (r *Registry) Winner(forced SessionID, unknownName string, defChar Character) MatchResult {
	if forced != "" {
		if p, ok := r.players[forced]; ok {
			return MatchResult{WinnerName: p.Name, WinnerCharacter: p.Character, WinnerScore: p.Score}
		}
	}
	if len(r.players) == 0 {
		return MatchResult{WinnerName: unknownName, WinnerCharacter: defChar, WinnerScore: -1}
	}
	best := lo.MaxBy(r.Ordered(), func(a, b PlayerState) bool {
		return a.Score > b.Score
	})
	return MatchResult{WinnerName: best.Name, WinnerCharacter: best.Character, WinnerScore: best.Score}
}
