package server

import (
	"sync/atomic"
)

// Metrics 记录协调器运行期的关键指标（用于监控与调试）
type Metrics struct {
	JoinsAccepted     int64 // 被接受的加入
	JoinsIgnored      int64 // 结算阶段被忽略的加入
	MovesAccepted     int64 // 写入玩家表的位置上报
	MovesIgnored      int64 // 未加入会话的位置上报
	MovesRejected     int64 // 被 Validator 拒绝的位置上报
	Deaths            int64 // 死亡事件
	ChanFullDiscarded int64 // 因事件通道满被丢弃的位置上报
	SendFailures      int64 // 下行发送失败（队列满或连接已关闭）
	MatchesStarted    int64
	MatchesFinished   int64
	Resets            int64
	BroadcastCount    int64 // 高频快照广播次数
	TotalBroadcastNs  int64 // 快照广播累计耗时（纳秒）
}

func (m *Metrics) IncJoinsAccepted()     { atomic.AddInt64(&m.JoinsAccepted, 1) }
func (m *Metrics) IncJoinsIgnored()      { atomic.AddInt64(&m.JoinsIgnored, 1) }
func (m *Metrics) IncMovesAccepted()     { atomic.AddInt64(&m.MovesAccepted, 1) }
func (m *Metrics) IncMovesIgnored()      { atomic.AddInt64(&m.MovesIgnored, 1) }
func (m *Metrics) IncMovesRejected()     { atomic.AddInt64(&m.MovesRejected, 1) }
func (m *Metrics) IncDeaths()            { atomic.AddInt64(&m.Deaths, 1) }
func (m *Metrics) IncChanFullDiscarded() { atomic.AddInt64(&m.ChanFullDiscarded, 1) }
func (m *Metrics) IncSendFailures()      { atomic.AddInt64(&m.SendFailures, 1) }
func (m *Metrics) IncMatchesStarted()    { atomic.AddInt64(&m.MatchesStarted, 1) }
func (m *Metrics) IncMatchesFinished()   { atomic.AddInt64(&m.MatchesFinished, 1) }
func (m *Metrics) IncResets()            { atomic.AddInt64(&m.Resets, 1) }
func (m *Metrics) AddBroadcast(ns int64) {
	atomic.AddInt64(&m.BroadcastCount, 1)
	atomic.AddInt64(&m.TotalBroadcastNs, ns)
}

// Snapshot 返回只读副本，便于 HTTP 输出
func (m *Metrics) Snapshot() map[string]any {
	count := atomic.LoadInt64(&m.BroadcastCount)
	total := atomic.LoadInt64(&m.TotalBroadcastNs)
	var avgMs float64
	if count > 0 {
		avgMs = float64(total) / float64(count) / 1e6
	}
	return map[string]any{
		"joins_accepted":      atomic.LoadInt64(&m.JoinsAccepted),
		"joins_ignored":       atomic.LoadInt64(&m.JoinsIgnored),
		"moves_accepted":      atomic.LoadInt64(&m.MovesAccepted),
		"moves_ignored":       atomic.LoadInt64(&m.MovesIgnored),
		"moves_rejected":      atomic.LoadInt64(&m.MovesRejected),
		"deaths":              atomic.LoadInt64(&m.Deaths),
		"chan_full_discarded": atomic.LoadInt64(&m.ChanFullDiscarded),
		"send_failures":       atomic.LoadInt64(&m.SendFailures),
		"matches_started":     atomic.LoadInt64(&m.MatchesStarted),
		"matches_finished":    atomic.LoadInt64(&m.MatchesFinished),
		"resets":              atomic.LoadInt64(&m.Resets),
		"broadcast_count":     count,
		"avg_broadcast_ms":    avgMs,
	}
}
