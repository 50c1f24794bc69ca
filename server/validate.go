package server

// Validator 在上报的位置/分数写入玩家表之前做检查。
// 默认信任客户端；需要服务端校验（速度上限、分数增量等）时替换实现即可，状态机不变。
type Validator interface {
	Accept(prev PlayerState, x, y float64, score int64) bool
}

// ValidatorFunc 函数适配
type ValidatorFunc func(prev PlayerState, x, y float64, score int64) bool

func (f ValidatorFunc) Accept(prev PlayerState, x, y float64, score int64) bool {
	return f(prev, x, y, score)
}

// AcceptAll 接受所有上报
var AcceptAll Validator = ValidatorFunc(func(PlayerState, float64, float64, int64) bool { return true })
