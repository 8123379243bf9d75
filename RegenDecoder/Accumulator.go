package RegenDecoder

// accumulator integrates per-slot "on" evidence over one character period.
type accumulator struct {
	durations []float64 // 概率质量累加，不是计数
	starts    []int     // 最近一次高于阈值的 tick
	ticks     int       // samples_in_char
}

func newAccumulator(slots int) accumulator {
	return accumulator{
		durations: make([]float64, slots),
		starts:    make([]int, slots),
	}
}

func (a *accumulator) tick() {
	a.ticks++
}

// add integrates v into slot. on marks the current tick as the slot's anchor.
func (a *accumulator) add(slot int, v float64, on bool) {
	if on {
		a.starts[slot] = a.ticks
	}
	a.durations[slot] += v
}

// suppress zeroes a slot's duration. Used for slot 0 while the word separator is high.
func (a *accumulator) suppress(slot int) {
	a.durations[slot] = 0
}

func (a *accumulator) reset() {
	for i := range a.durations {
		a.durations[i] = 0
		a.starts[i] = 0
	}
	a.ticks = 0
}
