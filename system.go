package cwregen

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"

	"cwregen/Calibration"
	"cwregen/RegenDecoder"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
)

var ErrStopped = errors.New("system stopped")

// WordSink 接收解出的文本片段 (MQTTPublisher 实现了它)
type WordSink interface {
	Feed(text string, ditLen float64)
	Flush(ditLen float64)
}

// RegenSystem 管理解码流水线的生命周期:
// 生产者 (Run) 把样本放进有界队列，唯一的 worker 按到达顺序喂给解码器。
// 控制台命令与 worker 通过互斥锁串行访问解码器。
type RegenSystem struct {
	cfg *Config

	mu       sync.Mutex
	decoder  *RegenDecoder.Decoder
	emitted  int // 已经回调过的文本长度 (字节)
	wpm      float64
	charsCal int // 上次校准后解出的字符数
	rejected int64

	metrics   *Metrics
	debugger  SignalDebugger
	sink      WordSink
	calConfig Calibration.Config

	queue   chan []float64
	pushMu  sync.RWMutex // Push 读锁，Stop 写锁
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	// 回调，在 worker goroutine 中调用，不持有锁
	OnText     func(text string)
	OnEnvelope func(envelope []float64)
	OnHistory  func(history []float64)

	// 控制台输出
	Output io.Writer
}

// NewRegenSystem 创建系统实例
func NewRegenSystem(cfg *Config) (*RegenSystem, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	dcfg, err := cfg.DecoderConfig()
	if err != nil {
		return nil, err
	}
	dec, err := RegenDecoder.NewDecoder(dcfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}
	s := &RegenSystem{
		cfg:       cfg,
		decoder:   dec,
		wpm:       cfg.Timing.WPM,
		metrics:   NewMetrics(prometheus.NewRegistry()),
		debugger:  &NoOpDebugger{},
		calConfig: cfg.CalibrationConfig(),
		queue:     make(chan []float64, cfg.Source.QueueSize),
		Output:    os.Stdout,
	}
	s.metrics.ditLen.Set(dec.DitLen())
	s.metrics.threshold.Set(dec.Threshold())
	return s, nil
}

// SetMetrics 替换指标集合，需在 Start 之前调用
func (s *RegenSystem) SetMetrics(m *Metrics) {
	s.metrics = m
	s.metrics.ditLen.Set(s.decoder.DitLen())
	s.metrics.threshold.Set(s.decoder.Threshold())
}

// SetDebugger 需在 Start 之前调用
func (s *RegenSystem) SetDebugger(d SignalDebugger) {
	s.debugger = d
}

// SetWordSink 需在 Start 之前调用
func (s *RegenSystem) SetWordSink(w WordSink) {
	s.sink = w
}

// Start 启动解码 worker
func (s *RegenSystem) Start(ctx context.Context) {
	s.pushMu.Lock()
	defer s.pushMu.Unlock()
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.running = true
	s.wg.Add(1)
	go s.worker()
	log.Printf("[SYSTEM] Decoder started: dit_len %.2f, threshold %.2f, %d element slots",
		s.decoder.DitLen(), s.decoder.Threshold(), s.decoder.MaxElements())
}

// Stop 停止 worker。已经被 Push 接受的样本都会先处理完，之后 Push 返回 ErrStopped
func (s *RegenSystem) Stop() {
	// 写锁等待正在进行的 Push 结束，之后不会再有样本进入队列
	s.pushMu.Lock()
	if !s.running {
		s.pushMu.Unlock()
		return
	}
	s.running = false
	close(s.queue)
	s.pushMu.Unlock()

	s.wg.Wait()
	s.cancel()

	s.mu.Lock()
	dit := s.decoder.DitLen()
	s.mu.Unlock()
	if s.sink != nil {
		s.sink.Flush(dit)
	}
	s.debugger.Close()
}

// Push 把一个样本放入队列，队列满时阻塞。返回 nil 表示样本一定会被处理
func (s *RegenSystem) Push(ctx context.Context, sample []float64) error {
	s.pushMu.RLock()
	defer s.pushMu.RUnlock()
	if !s.running {
		return ErrStopped
	}
	select {
	case s.queue <- sample:
		s.metrics.queueDepth.Set(float64(len(s.queue)))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.ctx.Done():
		return ErrStopped
	}
}

// Run 从 src 读取样本直到 EOF，返回 nil 表示正常读完。
// 无法解析的行计入 rejected 后跳过，只有读错误才会结束
func (s *RegenSystem) Run(ctx context.Context, src SampleSource) error {
	for {
		sample, err := src.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			if errors.Is(err, ErrMalformedSample) {
				s.reject("[SOURCE] Skipped row", err)
				continue
			}
			return err
		}
		if err := s.Push(ctx, sample); err != nil {
			return err
		}
	}
}

// reject 统计被丢弃的输入，日志只打印第一次和每第 1000 次
func (s *RegenSystem) reject(what string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejected++
	s.metrics.rejected.Inc()
	if s.rejected == 1 || s.rejected%1000 == 0 {
		log.Printf("%s (%d rejected so far): %v", what, s.rejected, err)
	}
}

func (s *RegenSystem) worker() {
	defer s.wg.Done()
	// 队列只在 Stop 中关闭，range 会先处理完剩余样本
	for sample := range s.queue {
		s.process(sample)
	}
}

// process 处理单个样本
func (s *RegenSystem) process(sample []float64) {
	s.mu.Lock()
	s.metrics.queueDepth.Set(float64(len(s.queue)))
	charReady, envReady, err := s.decoder.NewSample(sample)
	if err != nil {
		s.mu.Unlock()
		s.reject("[DECODER] Rejected sample", err)
		return
	}
	s.metrics.samples.Inc()
	s.debugger.Record(s.decoder.Ticks(), sample, charReady, envReady, s.decoder.LastChar())

	var text string
	var envelope, history []float64
	if charReady {
		all := s.decoder.Text()
		text = all[s.emitted:]
		s.emitted = len(all)
		for _, r := range text {
			switch r {
			case ' ':
				s.metrics.words.Inc()
			case RegenDecoder.UnknownChar:
				s.metrics.unknown.Inc()
				s.metrics.characters.Inc()
			default:
				s.metrics.characters.Inc()
			}
		}
	}
	if envReady {
		envelope = s.decoder.Envelope()
		history = s.decoder.History()
		s.charsCal++
		if s.cfg.Calibration.Enabled && s.charsCal >= s.cfg.Calibration.EveryChars {
			s.charsCal = 0
			s.calibrateLocked(history, s.cfg.Calibration.Apply, s.cfg.Calibration.MinConfidence)
		}
	}
	dit := s.decoder.DitLen()
	s.mu.Unlock()

	if text != "" {
		if s.OnText != nil {
			s.OnText(text)
		}
		if s.sink != nil {
			s.sink.Feed(text, dit)
		}
	}
	if envelope != nil && s.OnEnvelope != nil {
		s.OnEnvelope(envelope)
	}
	if history != nil && s.OnHistory != nil {
		s.OnHistory(history)
	}
}

// calibrateLocked 分析历史并按需调整 dit_len，调用方持有锁
func (s *RegenSystem) calibrateLocked(history []float64, apply bool, minConfidence float64) Calibration.Result {
	res := Calibration.Analyze(history, s.decoder.DitLen(), s.calConfig)
	if !res.Valid {
		s.metrics.calibration.WithLabelValues("invalid").Inc()
		return res
	}
	s.metrics.suggested.Set(res.SuggestedDitLen)
	if apply && res.Confidence >= minConfidence {
		if err := s.decoder.SetDitLen(res.SuggestedDitLen); err != nil {
			log.Printf("[CALIB] Cannot apply dit_len %.2f: %v", res.SuggestedDitLen, err)
			s.metrics.calibration.WithLabelValues("invalid").Inc()
			return res
		}
		s.metrics.ditLen.Set(res.SuggestedDitLen)
		s.metrics.calibration.WithLabelValues("applied").Inc()
		log.Printf("[CALIB] dit_len -> %.2f (confidence %.2f)", res.SuggestedDitLen, res.Confidence)
		return res
	}
	s.metrics.calibration.WithLabelValues("suggested").Inc()
	log.Printf("[CALIB] Suggested dit_len %.2f (confidence %.2f), current %.2f",
		res.SuggestedDitLen, res.Confidence, s.decoder.DitLen())
	return res
}

// HandleInput 处理控制台命令
func (s *RegenSystem) HandleInput(text string) {
	fields := strings.Fields(strings.ToLower(text))
	if len(fields) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	arg := func() (float64, bool) {
		if len(fields) != 2 {
			fmt.Fprintf(s.Output, "Usage: %s <value>\n", fields[0])
			return 0, false
		}
		v, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			fmt.Fprintf(s.Output, "Error: invalid value %q\n", fields[1])
			return 0, false
		}
		return v, true
	}

	switch fields[0] {
	case "wpm":
		v, ok := arg()
		if !ok {
			return
		}
		p, err := SpectrogramFor(s.cfg.Timing.AudioRate, v, s.cfg.Timing.Decimation)
		if err != nil {
			fmt.Fprintf(s.Output, "Error: %v\n", err)
			return
		}
		dit, err := DitLenFromWPM(p.TickRate(s.cfg.Timing.AudioRate), v)
		if err == nil {
			err = s.decoder.SetDitLen(dit)
		}
		if err != nil {
			fmt.Fprintf(s.Output, "Error: %v\n", err)
			return
		}
		s.wpm = v
		s.metrics.ditLen.Set(dit)
		fmt.Fprintf(s.Output, "WPM %.0f: nfft %d, noverlap %d, dit_len %.2f\n", v, p.NFFT, p.NOverlap, dit)
	case "dit":
		v, ok := arg()
		if !ok {
			return
		}
		if err := s.decoder.SetDitLen(v); err != nil {
			fmt.Fprintf(s.Output, "Error: %v\n", err)
			return
		}
		s.metrics.ditLen.Set(v)
		fmt.Fprintf(s.Output, "dit_len %.2f\n", v)
	case "thr":
		v, ok := arg()
		if !ok {
			return
		}
		if err := s.decoder.SetThreshold(v); err != nil {
			fmt.Fprintf(s.Output, "Error: %v\n", err)
			return
		}
		s.metrics.threshold.Set(v)
		fmt.Fprintf(s.Output, "threshold %.2f\n", v)
	case "reset":
		s.decoder.ResetHistory()
		s.charsCal = 0
		fmt.Fprintln(s.Output, "History cleared.")
	case "calib":
		res := s.calibrateLocked(s.decoder.History(), true, 0)
		if !res.Valid {
			fmt.Fprintf(s.Output, "Calibration: %s\n", res.Reason)
			return
		}
		fmt.Fprintf(s.Output, "Calibration: dit_len %.2f (dits %d, dahs %d, confidence %.2f)\n",
			res.SuggestedDitLen, res.Dits.Count, res.Dahs.Count, res.Confidence)
	case "hist":
		s.printHistogramLocked()
	case "status":
		c, w := s.decoder.SeparatorStates()
		fmt.Fprintf(s.Output, "ticks %s, chars %s, rejected %s, dit_len %.2f, wpm %.1f, threshold %.2f, sep %s/%s\n",
			humanize.Comma(s.decoder.Ticks()), humanize.Comma(int64(utf8.RuneCountInString(s.decoder.Text()))),
			humanize.Comma(s.rejected), s.decoder.DitLen(), s.currentWPMLocked(), s.decoder.Threshold(), c, w)
	default:
		fmt.Fprintln(s.Output, "Commands: wpm <n>, dit <ticks>, thr <0..1>, reset, calib, hist, status, exit")
	}
}

// currentWPMLocked 按当前频谱帧率和 dit_len 反算码速，失败时返回 0
func (s *RegenSystem) currentWPMLocked() float64 {
	p, err := SpectrogramFor(s.cfg.Timing.AudioRate, s.wpm, s.cfg.Timing.Decimation)
	if err != nil {
		return 0
	}
	wpm, err := WPMFromDitLen(p.TickRate(s.cfg.Timing.AudioRate), s.decoder.DitLen())
	if err != nil {
		return 0
	}
	return wpm
}

// printHistogramLocked 打印历史时长直方图 (宽度 1 tick)，并标出按当前 dit_len 缩放的
// 点/划边界和两堆的中心
func (s *RegenSystem) printHistogramLocked() {
	dividers, counts := Calibration.Histogram(s.decoder.History(), 1)
	if counts == nil {
		fmt.Fprintln(s.Output, "Histogram: history is empty")
		return
	}
	dit := s.decoder.DitLen()
	marks := []struct {
		name string
		at   float64
	}{
		{"dit_low", s.cfg.Decoder.DitLow * dit},
		{"dit", s.calConfig.DitCenter * dit},
		{"dit_high", s.cfg.Decoder.DitHigh * dit},
		{"dah_low", s.cfg.Decoder.DahLow * dit},
		{"dah", s.calConfig.DahCenter * dit},
	}
	fmt.Fprintf(s.Output, "Histogram (dit_len %.2f): dit [%.1f, %.1f), dah >= %.1f\n",
		dit, marks[0].at, marks[2].at, marks[3].at)
	for i, c := range counts {
		lo, hi := dividers[i], dividers[i+1]
		var tags []string
		for _, m := range marks {
			if m.at >= lo && m.at < hi {
				tags = append(tags, m.name)
			}
		}
		if c == 0 && len(tags) == 0 {
			continue
		}
		line := fmt.Sprintf("[%3.0f, %3.0f) %4d %s", lo, hi, int(c), strings.Repeat("#", int(c)))
		if len(tags) > 0 {
			line += " <" + strings.Join(tags, ",")
		}
		fmt.Fprintln(s.Output, line)
	}
}

// Text 返回目前解出的全部文本
func (s *RegenSystem) Text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.decoder.Text()
}

func (s *RegenSystem) DitLen() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.decoder.DitLen()
}

func (s *RegenSystem) Threshold() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.decoder.Threshold()
}

// History 历史环快照
func (s *RegenSystem) History() []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.decoder.History()
}

// Ticks 已处理的样本数
func (s *RegenSystem) Ticks() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.decoder.Ticks()
}

// Summary 停止时打印的统计
func (s *RegenSystem) Summary() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fmt.Sprintf("%s samples, %s rejected, %s characters decoded",
		humanize.Comma(s.decoder.Ticks()), humanize.Comma(s.rejected),
		humanize.Comma(int64(utf8.RuneCountInString(s.decoder.Text()))))
}
