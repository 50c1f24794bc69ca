package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"

	"racearena/config"
)

// Phase 对局阶段。只能单向推进，唯一的回退是 Finished → Waiting（重置）。
type Phase int

const (
	PhaseWaiting Phase = iota
	PhaseCountdown
	PhasePlaying
	PhaseFinished
)

func (p Phase) String() string {
	switch p {
	case PhaseWaiting:
		return "waiting"
	case PhaseCountdown:
		return "countdown"
	case PhasePlaying:
		return "playing"
	case PhaseFinished:
		return "finished"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

func (p Phase) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// 空玩家表结算时的占位胜者
const unknownWinner = "Unknown"

// ErrStopped 协调器事件循环已退出
var ErrStopped = errors.New("coordinator stopped")

// Broadcaster 下行广播原语（由连接中心实现）
type Broadcaster interface {
	Broadcast(msg []byte)
}

// Options 协调器依赖；零值字段使用默认实现
type Options struct {
	InstanceID string
	Rules      config.MatchConfig
	Clock      clockwork.Clock
	Validator  Validator
	Notifier   Notifier
	Metrics    *Metrics
	InboxSize  int
}

// Status 对局当前状态（只读副本）
type Status struct {
	InstanceID   string              `json:"instanceId"`
	Phase        Phase               `json:"phase"`
	Countdown    int                 `json:"countdown"`
	TimeLeft     int                 `json:"timeLeft"`
	Players      []PlayerState       `json:"players"`
	Rules        config.MatchConfig  `json:"rules"`
	PendingRules *config.MatchConfig `json:"pendingRules,omitempty"`
}

// Coordinator 一个实例只承载一局对局：阶段、玩家表与全部计时器。
// 所有修改都在 Run 的单协程事件循环内完成，外部只能通过命令投递。
type Coordinator struct {
	instanceID string
	out        Broadcaster
	clock      clockwork.Clock
	validator  Validator
	notifier   Notifier
	metrics    *Metrics

	inbox chan any
	done  chan struct{}

	rules   config.MatchConfig
	pending *config.MatchConfig // 下一次重置时生效

	phase     Phase
	players   *Registry
	countdown int
	timeLeft  int

	// 每个阶段自己的计时器句柄；为 nil 时对应 case 永不触发
	countdownTicker clockwork.Ticker
	matchTicker     clockwork.Ticker
	resetTimer      clockwork.Timer
	broadcastTicker clockwork.Ticker
}

// NewCoordinator 创建协调器，需调用 Run 启动事件循环
func NewCoordinator(out Broadcaster, opts Options) *Coordinator {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Validator == nil {
		opts.Validator = AcceptAll
	}
	if opts.Metrics == nil {
		opts.Metrics = &Metrics{}
	}
	if opts.InboxSize <= 0 {
		opts.InboxSize = 256 // 足够缓冲，避免网络读阻塞影响事件循环
	}
	c := &Coordinator{
		instanceID: opts.InstanceID,
		out:        out,
		clock:      opts.Clock,
		validator:  opts.Validator,
		notifier:   opts.Notifier,
		metrics:    opts.Metrics,
		inbox:      make(chan any, opts.InboxSize),
		done:       make(chan struct{}),
		rules:      opts.Rules,
		players:    NewRegistry(),
	}
	c.phase = PhaseWaiting
	c.countdown = c.rules.CountdownSeconds
	c.timeLeft = c.rules.MatchSeconds
	return c
}

func (c *Coordinator) InstanceID() string { return c.instanceID }

func (c *Coordinator) Metrics() *Metrics { return c.metrics }

// Done 事件循环退出后关闭
func (c *Coordinator) Done() <-chan struct{} { return c.done }

// Join 投递加入请求
func (c *Coordinator) Join(id SessionID, msg JoinMessage) {
	c.enqueue(joinCmd{ID: id, Msg: msg})
}

// Move 投递位置上报（通道满时丢弃，下一次上报会覆盖）
func (c *Coordinator) Move(id SessionID, x, y float64, score int64) {
	c.OnInput(moveCmd{ID: id, X: x, Y: y, Score: score})
}

// Died 投递死亡事件
func (c *Coordinator) Died(id SessionID) {
	c.enqueue(diedCmd{ID: id})
}

// RequestLeave 请求在事件循环中移除玩家，避免并发改动玩家表
func (c *Coordinator) RequestLeave(id SessionID) {
	c.enqueue(leaveCmd{ID: id})
}

// OnInput 投递 ParseInput 产生的命令。高频的位置上报不阻塞，其他命令必须送达。
func (c *Coordinator) OnInput(cmd any) {
	if _, ok := cmd.(moveCmd); ok {
		select {
		case c.inbox <- cmd:
		case <-c.done:
		default:
			// 为了实时性，丢弃本次上报
			c.metrics.IncChanFullDiscarded()
		}
		return
	}
	c.enqueue(cmd)
}

func (c *Coordinator) enqueue(cmd any) bool {
	select {
	case c.inbox <- cmd:
		return true
	case <-c.done:
		return false
	}
}

// Status 在事件循环中读取当前状态
func (c *Coordinator) Status(ctx context.Context) (Status, error) {
	reply := make(chan Status, 1)
	select {
	case c.inbox <- statusCmd{Reply: reply}:
	case <-c.done:
		return Status{}, ErrStopped
	case <-ctx.Done():
		return Status{}, ctx.Err()
	}
	select {
	case st := <-reply:
		return st, nil
	case <-c.done:
		return Status{}, ErrStopped
	case <-ctx.Done():
		return Status{}, ctx.Err()
	}
}

// RulesPatch 对局规则的部分更新；nil 字段保持不变。
// 广播间隔在进程生命周期内固定，不在此列。
type RulesPatch struct {
	MatchSeconds      *int    `json:"matchSeconds,omitempty"`
	CountdownSeconds  *int    `json:"countdownSeconds,omitempty"`
	ResetDelaySeconds *int    `json:"resetDelaySeconds,omitempty"`
	FinishScore       *int64  `json:"finishScore,omitempty"`
	DefaultCharacter  *string `json:"defaultCharacter,omitempty"`
	DefaultName       *string `json:"defaultName,omitempty"`
}

// UpdateRules 热更新对局规则：等待阶段立即生效，否则在下一次重置时生效。
// 合并在事件循环中进行；queued 表示规则已排队等待重置。
func (c *Coordinator) UpdateRules(ctx context.Context, patch RulesPatch) (queued bool, err error) {
	reply := make(chan configReply, 1)
	select {
	case c.inbox <- configCmd{Patch: patch, Reply: reply}:
	case <-c.done:
		return false, ErrStopped
	case <-ctx.Done():
		return false, ctx.Err()
	}
	select {
	case r := <-reply:
		return r.Queued, r.Err
	case <-c.done:
		return false, ErrStopped
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// handle 分发一条命令（仅在事件循环中调用）
func (c *Coordinator) handle(cmd any) {
	switch m := cmd.(type) {
	case joinCmd:
		c.handleJoin(m)
	case moveCmd:
		c.handleMove(m)
	case diedCmd:
		c.handleDied(m.ID)
	case leaveCmd:
		c.handleLeave(m.ID)
	case statusCmd:
		m.Reply <- c.status()
	case configCmd:
		queued, err := c.applyRules(m.Patch)
		m.Reply <- configReply{Queued: queued, Err: err}
	default:
		Log.Debugf("unknown command %T", cmd)
	}
}

func (c *Coordinator) handleJoin(m joinCmd) {
	if c.phase == PhaseFinished {
		c.metrics.IncJoinsIgnored()
		Log.Debugf("join ignored while finished: session=%s", m.ID)
		return
	}
	name := m.Msg.Username
	if name == "" {
		name = c.rules.DefaultName
	}
	ch := ParseCharacter(m.Msg.Character, Character(c.rules.DefaultCharacter))
	c.players.Join(m.ID, name, ch, m.Msg.X, m.Msg.Y)
	c.metrics.IncJoinsAccepted()
	Log.Infof("player joined: session=%s name=%s character=%s players=%d phase=%s",
		m.ID, name, ch, c.players.Len(), c.phase)

	c.broadcastPlayers()

	if c.phase == PhaseWaiting && c.players.Len() >= 1 {
		c.startCountdown()
	}
}

func (c *Coordinator) handleMove(m moveCmd) {
	prev, ok := c.players.Get(m.ID)
	if !ok {
		c.metrics.IncMovesIgnored()
		return
	}
	if !c.validator.Accept(prev, m.X, m.Y, m.Score) {
		c.metrics.IncMovesRejected()
		Log.Debugf("move rejected: session=%s score=%d", m.ID, m.Score)
		return
	}
	c.players.UpdatePosition(m.ID, m.X, m.Y, m.Score)
	c.metrics.IncMovesAccepted()

	if c.phase == PhasePlaying && m.Score >= c.rules.FinishScore {
		Log.Infof("finish score reached: session=%s score=%d", m.ID, m.Score)
		c.finish(m.ID)
	}
}

func (c *Coordinator) handleDied(id SessionID) {
	if c.players.MarkDead(id) {
		c.metrics.IncDeaths()
		Log.Infof("player game over: session=%s", id)
	} else {
		Log.Debugf("death for unknown session=%s", id)
	}
	if c.phase == PhasePlaying && c.players.AllDead() {
		Log.Infof("all players dead, finishing early")
		c.finish("")
	}
}

func (c *Coordinator) handleLeave(id SessionID) {
	if !c.players.Remove(id) {
		Log.Debugf("leave for session without player: session=%s", id)
		return
	}
	Log.Infof("player left: session=%s players=%d phase=%s", id, c.players.Len(), c.phase)
	c.broadcastPlayers()
	if c.players.Len() == 0 {
		c.reset("last player left")
	}
}

// startCountdown Waiting → Countdown
func (c *Coordinator) startCountdown() {
	c.phase = PhaseCountdown
	c.countdown = c.rules.CountdownSeconds
	c.countdownTicker = c.clock.NewTicker(time.Second)
	Log.Infof("countdown started: %ds", c.countdown)
	c.notify(EventCountdownStarted, nil)
}

// onCountdownTick 先广播当前值再递减，首个广播即为起始值
func (c *Coordinator) onCountdownTick() {
	c.broadcast(MsgCountdown, c.countdown)
	c.countdown--
	if c.countdown <= 0 {
		c.startMatch()
	}
}

// startMatch Countdown → Playing；先停掉倒计时再装上对局计时器
func (c *Coordinator) startMatch() {
	stopTicker(&c.countdownTicker)
	c.phase = PhasePlaying
	c.timeLeft = c.rules.MatchSeconds
	c.broadcast(MsgMatchStart, nil)
	c.matchTicker = c.clock.NewTicker(time.Second)
	c.metrics.IncMatchesStarted()
	Log.Infof("match started: %ds players=%d", c.timeLeft, c.players.Len())
	c.notify(EventMatchStarted, nil)
}

func (c *Coordinator) onMatchTick() {
	c.broadcast(MsgMatchTime, c.timeLeft)
	c.timeLeft--
	if c.timeLeft <= 0 {
		Log.Infof("match time expired")
		c.finish("")
	}
}

// finish Playing → Finished：停表、结算、广播结果并安排延迟重置
func (c *Coordinator) finish(forced SessionID) {
	stopTicker(&c.matchTicker)
	c.phase = PhaseFinished

	res := c.players.Winner(forced, unknownWinner, Character(c.rules.DefaultCharacter))
	c.broadcast(MsgMatchOver, res)
	c.metrics.IncMatchesFinished()
	Log.Infof("match over: winner=%s character=%s score=%d forced=%t",
		res.WinnerName, res.WinnerCharacter, res.WinnerScore, forced != "")
	c.notify(EventMatchOver, &res)

	stopTimer(&c.resetTimer)
	c.resetTimer = c.clock.NewTimer(c.rules.ResetDelay())
}

// reset 完整重置：停掉全部阶段计时器、清空玩家表、恢复计数器并通知所有连接。
// 连接本身不关闭，玩家可直接加入下一局。
func (c *Coordinator) reset(reason string) {
	stopTicker(&c.countdownTicker)
	stopTicker(&c.matchTicker)
	stopTimer(&c.resetTimer)

	c.players.Clear()
	if c.pending != nil {
		c.rules = *c.pending
		c.pending = nil
	}
	c.phase = PhaseWaiting
	c.countdown = c.rules.CountdownSeconds
	c.timeLeft = c.rules.MatchSeconds

	c.broadcast(MsgMatchReset, nil)
	c.metrics.IncResets()
	Log.Infof("match reset: %s", reason)
	c.notify(EventMatchReset, nil)
}

// applyRules 以最近一次提交的规则（排队中的优先）为基准合并补丁
func (c *Coordinator) applyRules(patch RulesPatch) (bool, error) {
	next := c.rules
	if c.pending != nil {
		next = *c.pending
	}
	setIf(patch.MatchSeconds, &next.MatchSeconds)
	setIf(patch.CountdownSeconds, &next.CountdownSeconds)
	setIf(patch.ResetDelaySeconds, &next.ResetDelaySeconds)
	setIf(patch.FinishScore, &next.FinishScore)
	setIf(patch.DefaultCharacter, &next.DefaultCharacter)
	setIf(patch.DefaultName, &next.DefaultName)
	next.BroadcastIntervalMs = c.rules.BroadcastIntervalMs
	if err := next.Validate(); err != nil {
		return false, err
	}

	if c.phase != PhaseWaiting {
		c.pending = &next
		Log.Infof("match rules queued until next reset (phase=%s)", c.phase)
		return true, nil
	}
	c.pending = nil
	c.rules = next
	c.countdown = c.rules.CountdownSeconds
	c.timeLeft = c.rules.MatchSeconds
	Log.Infof("match rules updated: %+v", c.rules)
	return false, nil
}

func setIf[T any](src *T, dst *T) {
	if src != nil {
		*dst = *src
	}
}

func (c *Coordinator) status() Status {
	st := Status{
		InstanceID: c.instanceID,
		Phase:      c.phase,
		Countdown:  c.countdown,
		TimeLeft:   c.timeLeft,
		Players:    c.players.Ordered(),
		Rules:      c.rules,
	}
	if c.pending != nil {
		p := *c.pending
		st.PendingRules = &p
	}
	return st
}

// broadcastPlayers 推送完整玩家表快照
func (c *Coordinator) broadcastPlayers() {
	c.broadcast(MsgPlayersState, c.players.Snapshot())
}

func (c *Coordinator) broadcast(t string, payload any) {
	b, err := Encode(t, payload)
	if err != nil {
		Log.Errorf("encode %s: %v", t, err)
		return
	}
	c.out.Broadcast(b)
}
