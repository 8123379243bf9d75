package RegenDecoder

import "fmt"

// reconstructEnvelope renders pulses into an off/on trace of the given length.
// Runs falling outside [0, length) are clipped.
func reconstructEnvelope(length int, pulses []Pulse) []float64 {
	env := make([]float64, length)
	for _, p := range pulses {
		lo, hi := p.Start, p.Start+p.Length
		if lo < 0 {
			lo = 0
		}
		if hi > length {
			hi = length
		}
		for i := lo; i < hi; i++ {
			env[i] = 1
		}
	}
	return env
}

// HistoryRing 保存最近若干个字符的原始槽位时长，用于画时长直方图和重新标定 dit_len。
// 每个字符左移 stride 个位置并在尾部写入新快照，缓冲区创建后不再重新分配。
type HistoryRing struct {
	buf    []float64
	stride int
}

// NewHistoryRing allocates a ring of length values written in blocks of stride.
func NewHistoryRing(length, stride int) (*HistoryRing, error) {
	if stride < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidMaxElements, stride)
	}
	if length <= 0 || length%stride != 0 {
		return nil, fmt.Errorf("%w: %d is not a positive multiple of %d", ErrInvalidHistoryLen, length, stride)
	}
	return &HistoryRing{buf: make([]float64, length), stride: stride}, nil
}

// Push shifts the ring left by one block and appends snapshot (len == stride).
func (h *HistoryRing) Push(snapshot []float64) {
	n := len(h.buf)
	copy(h.buf, h.buf[h.stride:])
	copy(h.buf[n-h.stride:], snapshot)
}

// Reset zeroes every entry in place.
func (h *HistoryRing) Reset() {
	for i := range h.buf {
		h.buf[i] = 0
	}
}

// Snapshot returns a copy of the ring, oldest first.
func (h *HistoryRing) Snapshot() []float64 {
	out := make([]float64, len(h.buf))
	copy(out, h.buf)
	return out
}
