package RegenDecoder

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidDitLen indicates dit_len must be positive
	ErrInvalidDitLen = errors.New("dit length must be positive")
	// ErrInvalidThreshold indicates the activation threshold must lie in (0,1)
	ErrInvalidThreshold = errors.New("threshold must be in (0,1)")
	// ErrInvalidMaxElements indicates at least one element slot is required
	ErrInvalidMaxElements = errors.New("max elements must be at least 1")
	// ErrInvalidHistoryLen indicates history_len must be a positive multiple of max_ele
	ErrInvalidHistoryLen = errors.New("invalid history length")
	// ErrInvalidThresholds indicates misordered duration bounds
	ErrInvalidThresholds = errors.New("invalid duration thresholds")
	// ErrInvalidSepRatio indicates a separator run ratio must be positive
	ErrInvalidSepRatio = errors.New("separator ratio must be positive")
	// ErrInvalidAlphabet indicates a malformed code table
	ErrInvalidAlphabet = errors.New("invalid alphabet")
	// ErrInvalidSampleShape indicates a sample whose length is not 2+max_ele
	ErrInvalidSampleShape = errors.New("invalid sample shape")
)

// Sample channel layout: [c, w, e_0 ... e_{max_ele-1}]
const (
	ChanCharSep = 0
	ChanWordSep = 1
	ChanElement = 2
)

// Config 解码器构造参数
type Config struct {
	Table        *CodeTable // nil 使用 DefaultCodeTable
	DitLen       float64    // 一个点的 tick 数
	MaxElements  int        // 每个字符最多的点划槽位
	Threshold    float64    // 所有通道共用的激活阈值
	HistoryLen   int        // max_ele 的整数倍
	Thresholds   Thresholds // 点划时长区间 (dit_len 的倍数)
	CharSepRatio float64    // 字符分隔: run > ratio*dit_len
	WordSepRatio float64    // 单词分隔: run > ratio*dit_len
}

// DefaultConfig returns the settings the upstream model was trained for.
func DefaultConfig() Config {
	return Config{
		DitLen:       8,
		MaxElements:  5,
		Threshold:    0.9,
		HistoryLen:   400,
		Thresholds:   DefaultThresholds(),
		CharSepRatio: 0.8,
		WordSepRatio: 1.2,
	}
}

// Validate checks every construction invariant without modifying cfg.
func (c Config) Validate() error {
	if err := validDitLen(c.DitLen); err != nil {
		return err
	}
	if err := validThreshold(c.Threshold); err != nil {
		return err
	}
	if c.MaxElements < 1 {
		return fmt.Errorf("%w: %d", ErrInvalidMaxElements, c.MaxElements)
	}
	if c.HistoryLen <= 0 || c.HistoryLen%c.MaxElements != 0 {
		return fmt.Errorf("%w: %d is not a positive multiple of %d", ErrInvalidHistoryLen, c.HistoryLen, c.MaxElements)
	}
	if err := c.Thresholds.validate(); err != nil {
		return err
	}
	if !(c.CharSepRatio > 0) || !(c.WordSepRatio > 0) {
		return fmt.Errorf("%w: char %.3f word %.3f", ErrInvalidSepRatio, c.CharSepRatio, c.WordSepRatio)
	}
	return nil
}

func validDitLen(v float64) error {
	if !(v > 0) {
		return fmt.Errorf("%w: %v", ErrInvalidDitLen, v)
	}
	return nil
}

func validThreshold(v float64) error {
	if !(v > 0 && v < 1) {
		return fmt.Errorf("%w: %v", ErrInvalidThreshold, v)
	}
	return nil
}

// Decoder turns a stream of per-tick soft scores into Morse characters.
//
// It is a plain state machine: NewSample must be called from one goroutine
// at a time, in arrival order. Nothing inside blocks or allocates per tick
// except on character boundaries.
type Decoder struct {
	table      *CodeTable
	thresholds Thresholds
	charRatio  float64
	wordRatio  float64
	maxEle     int

	ditLen    float64
	threshold float64

	charSep separatorChannel
	wordSep separatorChannel
	acc     accumulator
	history *HistoryRing

	text     strings.Builder
	lastChar rune
	lastSeq  string
	envelope []float64
	ticks    int64
}

// NewDecoder validates cfg and returns a decoder with empty text and zeroed history.
func NewDecoder(cfg Config) (*Decoder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	table := cfg.Table
	if table == nil {
		table = DefaultCodeTable()
	}
	history, err := NewHistoryRing(cfg.HistoryLen, cfg.MaxElements)
	if err != nil {
		return nil, err
	}
	return &Decoder{
		table:      table,
		thresholds: cfg.Thresholds,
		charRatio:  cfg.CharSepRatio,
		wordRatio:  cfg.WordSepRatio,
		maxEle:     cfg.MaxElements,
		ditLen:     cfg.DitLen,
		threshold:  cfg.Threshold,
		acc:        newAccumulator(cfg.MaxElements),
		history:    history,
		lastChar:   ' ',
	}, nil
}

// SetDitLen changes the timing scale for subsequent ticks. Already decoded
// text is not touched. On error the current value is kept.
func (d *Decoder) SetDitLen(v float64) error {
	if err := validDitLen(v); err != nil {
		return err
	}
	d.ditLen = v
	return nil
}

func (d *Decoder) DitLen() float64 {
	return d.ditLen
}

// SetThreshold changes the activation threshold of every channel.
func (d *Decoder) SetThreshold(v float64) error {
	if err := validThreshold(v); err != nil {
		return err
	}
	d.threshold = v
	return nil
}

func (d *Decoder) Threshold() float64 {
	return d.threshold
}

// ResetHistory zeroes the history ring only.
func (d *Decoder) ResetHistory() {
	d.history.Reset()
}

// SampleLen is the required length of every sample, 2+max_ele.
func (d *Decoder) SampleLen() int {
	return ChanElement + d.maxEle
}

func (d *Decoder) MaxElements() int {
	return d.maxEle
}

// NewSample advances the decoder by one tick.
//
// charReady is true when a character or a space was appended to the text on
// this tick; envReady is true when a new reconstructed envelope is available
// (character boundaries only). A sample of the wrong length is rejected with
// ErrInvalidSampleShape and leaves the decoder untouched.
func (d *Decoder) NewSample(sample []float64) (charReady, envReady bool, err error) {
	if len(sample) != d.SampleLen() {
		return false, false, fmt.Errorf("%w: got %d values, want %d", ErrInvalidSampleShape, len(sample), d.SampleLen())
	}
	d.ticks++
	d.acc.tick()

	// 1. 字符分隔
	if d.charSep.observe(sample[ChanCharSep] >= d.threshold, d.charRatio*d.ditLen) {
		d.closeCharacter()
		charReady = true
		envReady = true
	}

	// 2. 单词分隔 (高电平时同时清掉 0 号槽位)
	wordActive := sample[ChanWordSep] >= d.threshold
	if wordActive {
		d.acc.suppress(0)
	}
	if d.wordSep.observe(wordActive, d.wordRatio*d.ditLen) {
		d.emit(' ')
		charReady = true
	}

	// 3. 点划槽位
	for i, v := range sample[ChanElement:] {
		d.acc.add(i, v, v >= d.threshold)
	}
	return charReady, envReady, nil
}

// closeCharacter classifies the period that just ended, records diagnostics
// and starts a new period.
func (d *Decoder) closeCharacter() {
	d.history.Push(d.acc.durations)
	res := classifySlots(d.thresholds, d.ditLen, d.acc.durations, d.acc.starts)
	d.envelope = reconstructEnvelope(d.acc.ticks, res.Pulses)
	d.lastSeq = res.Sequence
	d.emit(d.table.Lookup(res.Sequence))
	d.acc.reset()
}

func (d *Decoder) emit(r rune) {
	d.text.WriteRune(r)
	d.lastChar = r
}

// Text is everything decoded so far.
func (d *Decoder) Text() string {
	return d.text.String()
}

// LastChar is the most recent symbol appended: a character, a space or UnknownChar.
func (d *Decoder) LastChar() rune {
	return d.lastChar
}

// LastSequence is the dot/dash sequence of the most recent character boundary.
func (d *Decoder) LastSequence() string {
	return d.lastSeq
}

// Envelope returns a copy of the most recent reconstructed envelope, or nil
// before the first character boundary.
func (d *Decoder) Envelope() []float64 {
	if d.envelope == nil {
		return nil
	}
	out := make([]float64, len(d.envelope))
	copy(out, d.envelope)
	return out
}

// History returns a copy of the duration history ring, oldest first.
func (d *Decoder) History() []float64 {
	return d.history.Snapshot()
}

// Ticks is the number of accepted samples.
func (d *Decoder) Ticks() int64 {
	return d.ticks
}

// SeparatorStates reports the hysteresis state of the char and word channels.
func (d *Decoder) SeparatorStates() (char, word SeparatorState) {
	return d.charSep.state, d.wordSep.state
}
