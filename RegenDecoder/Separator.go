package RegenDecoder

// SeparatorState is the hysteresis state of one separator channel.
type SeparatorState int

const (
	SeparatorIdle     SeparatorState = iota // 低于阈值
	SeparatorCounting                       // 高于阈值，运行长度还没超过门限
	SeparatorFired                          // 本次运行已经触发过一次
)

func (s SeparatorState) String() string {
	switch s {
	case SeparatorCounting:
		return "counting"
	case SeparatorFired:
		return "fired"
	default:
		return "idle"
	}
}

// separatorChannel 施密特式去重: 一段连续的高电平最多触发一次
//
//	Idle     --(>=thr)-------------------> Counting
//	Counting --(>=thr, run > limit)------> Fired   (event)
//	Fired    --(>=thr)-------------------> Fired   (no event)
//	any      --(<thr)--------------------> Idle    (run reset)
type separatorChannel struct {
	run   int
	state SeparatorState
}

// observe advances the channel by one tick and reports whether the boundary
// event fires on this tick. limit is re-read every tick so a dit_len change
// applies to a run already in progress.
func (c *separatorChannel) observe(active bool, limit float64) bool {
	if !active {
		c.run = 0
		c.state = SeparatorIdle
		return false
	}
	c.run++
	if c.state == SeparatorIdle {
		c.state = SeparatorCounting
	}
	if c.state == SeparatorCounting && float64(c.run) > limit {
		c.state = SeparatorFired
		return true
	}
	return false
}
