package RegenDecoder

import "fmt"

// Element 单个槽位的分类结果
type Element int

const (
	ElementNone Element = iota // 时长不落在任何区间，丢弃
	ElementDit
	ElementDah
)

func (e Element) String() string {
	switch e {
	case ElementDit:
		return "dit"
	case ElementDah:
		return "dah"
	default:
		return "none"
	}
}

// Symbol is the element's contribution to a sequence: ".", "-" or "".
func (e Element) Symbol() string {
	switch e {
	case ElementDit:
		return "."
	case ElementDah:
		return "-"
	default:
		return ""
	}
}

// Thresholds are duration bounds expressed in multiples of dit_len.
//
//	DitLow <= d < DitHigh  -> dit
//	d >= DahLow            -> dah
//	anything else          -> none
type Thresholds struct {
	DitLow  float64
	DitHigh float64
	DahLow  float64
}

// DefaultThresholds 对应 dit_len=8 时的 11 / 23 / 25
func DefaultThresholds() Thresholds {
	return Thresholds{DitLow: 1.375, DitHigh: 2.875, DahLow: 3.125}
}

func (th Thresholds) validate() error {
	if !(th.DitLow > 0 && th.DitLow < th.DitHigh && th.DitHigh <= th.DahLow) {
		return fmt.Errorf("%w: need 0 < dit_low < dit_high <= dah_low, got %.3f/%.3f/%.3f",
			ErrInvalidThresholds, th.DitLow, th.DitHigh, th.DahLow)
	}
	return nil
}

// Classify maps an accumulated slot duration to an element at the given dit length.
func (th Thresholds) Classify(duration, ditLen float64) Element {
	switch {
	case duration >= th.DitLow*ditLen && duration < th.DitHigh*ditLen:
		return ElementDit
	case duration >= th.DahLow*ditLen:
		return ElementDah
	default:
		return ElementNone
	}
}

// Pulse is one "on" run of the reconstructed envelope, in ticks from the start
// of the character period. Start may be negative; the envelope clips it.
type Pulse struct {
	Start  int
	Length int
}

// pulseFor places the envelope run for a classified slot. start is the last
// tick at which the slot was above threshold.
func pulseFor(el Element, start int, duration float64) (Pulse, bool) {
	switch el {
	case ElementDit:
		return Pulse{Start: start, Length: int(duration * 0.5)}, true
	case ElementDah:
		// 划的锚点在尾部，往回退 0.55*d
		return Pulse{Start: start - int(duration*0.55), Length: int(duration * 0.75)}, true
	default:
		return Pulse{}, false
	}
}

// Classification is the per-character outcome of the element classifier.
type Classification struct {
	Elements []Element
	Pulses   []Pulse
	Sequence string
}

// classifySlots evaluates every slot in order. None slots are skipped but do
// not stop later slots from contributing.
func classifySlots(th Thresholds, ditLen float64, durations []float64, starts []int) Classification {
	res := Classification{Elements: make([]Element, len(durations))}
	seq := make([]byte, 0, len(durations))
	for i, d := range durations {
		el := th.Classify(d, ditLen)
		res.Elements[i] = el
		if el == ElementNone {
			continue
		}
		seq = append(seq, el.Symbol()[0])
		if p, ok := pulseFor(el, starts[i], d); ok {
			res.Pulses = append(res.Pulses, p)
		}
	}
	res.Sequence = string(seq)
	return res
}
