package server

import "time"

// 对局生命周期事件类型
const (
	EventCountdownStarted = "countdown_started"
	EventMatchStarted     = "match_started"
	EventMatchOver        = "match_over"
	EventMatchReset       = "match_reset"
)

// MatchEvent 推送给外部房间目录服务的生命周期事件
type MatchEvent struct {
	InstanceID string       `json:"instanceId"`
	Kind       string       `json:"kind"`
	Phase      Phase        `json:"phase"`
	Players    int          `json:"players"`
	Countdown  int          `json:"countdown,omitempty"`
	Result     *MatchResult `json:"result,omitempty"`
	At         time.Time    `json:"at"`
}

// Notifier 生命周期事件出口。Publish 在事件循环中调用，实现不得阻塞。
type Notifier interface {
	Publish(ev MatchEvent)
}

func (c *Coordinator) notify(kind string, res *MatchResult) {
	if c.notifier == nil {
		return
	}
	ev := MatchEvent{
		InstanceID: c.instanceID,
		Kind:       kind,
		Phase:      c.phase,
		Players:    c.players.Len(),
		Result:     res,
		At:         c.clock.Now().UTC(),
	}
	if c.phase == PhaseCountdown {
		ev.Countdown = c.countdown
	}
	c.notifier.Publish(ev)
}
