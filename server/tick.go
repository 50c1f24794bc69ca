package server

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
)

// Run 启动协调器的事件循环（单协程推进全部状态），ctx 取消后退出。
// 入站命令、各阶段计时器与高频快照广播都在这里串行处理。
func (c *Coordinator) Run(ctx context.Context) {
	defer close(c.done)

	c.broadcastTicker = c.clock.NewTicker(c.rules.BroadcastInterval())
	defer func() {
		stopTicker(&c.broadcastTicker)
		stopTicker(&c.countdownTicker)
		stopTicker(&c.matchTicker)
		stopTimer(&c.resetTimer)
	}()

	for {
		select {
		case <-ctx.Done():
			Log.Info("coordinator stopping")
			return
		case cmd := <-c.inbox:
			c.handle(cmd)
		case <-tickerChan(c.countdownTicker):
			c.onCountdownTick()
		case <-tickerChan(c.matchTicker):
			c.onMatchTick()
		case <-timerChan(c.resetTimer):
			c.resetTimer = nil
			c.reset("result shown")
		case <-tickerChan(c.broadcastTicker):
			c.onBroadcastTick()
		}
	}
}

// onBroadcastTick 仅在倒计时与对局中推送玩家表（约 20Hz），与每秒的阶段广播互不影响
func (c *Coordinator) onBroadcastTick() {
	if c.phase != PhasePlaying && c.phase != PhaseCountdown {
		return
	}
	start := time.Now()
	c.broadcastPlayers()
	c.metrics.AddBroadcast(time.Since(start).Nanoseconds())
}

// tickerChan 句柄为 nil 时返回 nil 通道，select 中永远不会命中
func tickerChan(t clockwork.Ticker) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.Chan()
}

func timerChan(t clockwork.Timer) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.Chan()
}

// stopTicker 停止并清空句柄。已缓冲的 tick 不会再被读取，因为通道引用随句柄一起丢弃。
func stopTicker(t *clockwork.Ticker) {
	if *t != nil {
		(*t).Stop()
		*t = nil
	}
}

func stopTimer(t *clockwork.Timer) {
	if *t != nil {
		(*t).Stop()
		*t = nil
	}
}
