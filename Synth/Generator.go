package Synth

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"strings"

	"cwregen/RegenDecoder"

	"github.com/mjibson/go-dsp/dsputils"
	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"
)

/*
合成概率流

按训练标签的方式把文本展开成逐 tick 的概率向量 [c, w, e0..e(n-1)]:
  - 元素槽位 i 从元素开始起保持高电平 "元素 + 1 个单位间隔"，点 2 个单位，划 4 个单位
  - 字符结束后 char-sep 高电平 2 个单位 (加上前面的 1 个单位，共 3 个单位字符间隔)
  - 单词之间 word-sep 再高电平 4 个单位 (共 7 个单位)
可选: 单位长度抖动、Hann 窗模糊 (模拟网络输出的软边沿)、均匀噪声。
*/

var (
	ErrInvalidOptions = errors.New("invalid synth options")
	ErrUnencodable    = errors.New("symbol has no morse encoding")
	ErrTooLong        = errors.New("symbol needs more element slots than configured")
)

// Options 生成参数
type Options struct {
	Table       *RegenDecoder.CodeTable // nil 时使用默认码表
	DitLen      int                     // 一个单位的 tick 数
	MaxElements int
	Jitter      float64 // 单位长度的相对标准差
	Blur        int     // Hann 窗长度，0 关闭，否则 3..DitLen
	Noise       float64 // 均匀噪声幅度
	Seed        int64
}

func DefaultOptions() Options {
	return Options{DitLen: 8, MaxElements: 5}
}

// Generator turns text into a synthetic tick stream.
type Generator struct {
	opts   Options
	table  *RegenDecoder.CodeTable
	rng    *rand.Rand
	kernel []float64
}

func NewGenerator(opts Options) (*Generator, error) {
	if opts.DitLen < 1 {
		return nil, fmt.Errorf("%w: dit length %d", ErrInvalidOptions, opts.DitLen)
	}
	if opts.MaxElements < 1 {
		return nil, fmt.Errorf("%w: max elements %d", ErrInvalidOptions, opts.MaxElements)
	}
	if opts.Jitter < 0 || opts.Noise < 0 {
		return nil, fmt.Errorf("%w: jitter and noise must be non-negative", ErrInvalidOptions)
	}
	if opts.Blur != 0 && (opts.Blur < 3 || opts.Blur > opts.DitLen) {
		return nil, fmt.Errorf("%w: blur %d outside 3..%d", ErrInvalidOptions, opts.Blur, opts.DitLen)
	}
	table := opts.Table
	if table == nil {
		table = RegenDecoder.DefaultCodeTable()
	}
	g := &Generator{
		opts:  opts,
		table: table,
		rng:   rand.New(rand.NewSource(opts.Seed)),
	}
	if opts.Blur > 0 {
		g.kernel = window.Hann(opts.Blur)
		sum := 0.0
		for _, v := range g.kernel {
			sum += v
		}
		for i := range g.kernel {
			g.kernel[i] /= sum
		}
	}
	return g, nil
}

// SampleLen 每个 tick 向量的长度
func (g *Generator) SampleLen() int {
	return g.opts.MaxElements + 2
}

// Generate 生成完整流。流的首尾各有 DitLen 个全零 tick。
// 连续空白折叠为一个单词间隔。
func (g *Generator) Generate(text string) ([][]float64, error) {
	words := strings.Fields(text)
	codes := make([][]string, len(words))
	for wi, word := range words {
		for _, r := range word {
			code, ok := g.table.Encode(r)
			if !ok {
				return nil, fmt.Errorf("%w: %q", ErrUnencodable, r)
			}
			if len(code) > g.opts.MaxElements {
				return nil, fmt.Errorf("%w: %q is %s", ErrTooLong, r, code)
			}
			codes[wi] = append(codes[wi], code)
		}
	}

	var frames [][]float64
	emit := func(channel, n int) {
		for i := 0; i < n; i++ {
			f := make([]float64, g.SampleLen())
			if channel >= 0 {
				f[channel] = 1
			}
			frames = append(frames, f)
		}
	}

	emit(-1, g.opts.DitLen)
	for wi, word := range codes {
		if wi > 0 {
			emit(RegenDecoder.ChanWordSep, g.units(4))
		}
		for _, code := range word {
			for i, el := range code {
				n := 2
				if el == '-' {
					n = 4
				}
				emit(RegenDecoder.ChanElement+i, g.units(n))
			}
			emit(RegenDecoder.ChanCharSep, g.units(2))
		}
	}
	emit(-1, g.opts.DitLen)

	if g.kernel != nil {
		g.blur(frames)
	}
	if g.opts.Noise > 0 {
		for _, f := range frames {
			for i := range f {
				f[i] = clamp01(f[i] + g.opts.Noise*(g.rng.Float64()*2-1))
			}
		}
	}
	return frames, nil
}

// units 返回 n 个单位对应的 tick 数，带抖动，至少 1
func (g *Generator) units(n int) int {
	ticks := float64(n * g.opts.DitLen)
	if g.opts.Jitter > 0 {
		ticks *= 1 + g.opts.Jitter*g.rng.NormFloat64()
	}
	if t := int(math.Round(ticks)); t > 1 {
		return t
	}
	return 1
}

// blur 对每个通道做线性卷积 (补零后用 FFT 卷积)，取与输入等长的中心部分
func (g *Generator) blur(frames [][]float64) {
	n := len(frames)
	l := len(g.kernel)
	size := n + l - 1
	kernel := dsputils.ZeroPad(dsputils.ToComplex(g.kernel), size)
	column := make([]float64, n)
	for ch := 0; ch < g.SampleLen(); ch++ {
		for i, f := range frames {
			column[i] = f[ch]
		}
		y := fft.Convolve(dsputils.ZeroPad(dsputils.ToComplex(column), size), kernel)
		for i, f := range frames {
			f[ch] = clamp01(real(y[i+l/2]))
		}
	}
}

func clamp01(v float64) float64 {
	if v < 1e-12 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
