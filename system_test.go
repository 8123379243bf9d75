package cwregen

import (
	"bytes"
	"context"
	"errors"
	"runtime"
	"strings"
	"sync"
	"testing"

	"cwregen/Synth"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func synthFrames(t *testing.T, text string, ditLen int) [][]float64 {
	t.Helper()
	opts := Synth.DefaultOptions()
	opts.DitLen = ditLen
	g, err := Synth.NewGenerator(opts)
	if err != nil {
		t.Fatal(err)
	}
	frames, err := g.Generate(text)
	if err != nil {
		t.Fatal(err)
	}
	return frames
}

func synthSource(t *testing.T, text string, ditLen int) SampleSource {
	t.Helper()
	var buf bytes.Buffer
	if err := WriteSamples(&buf, synthFrames(t, text, ditLen)); err != nil {
		t.Fatal(err)
	}
	return NewCSVSource(&buf)
}

func newTestSystem(t *testing.T, cfg *Config) (*RegenSystem, *Metrics) {
	t.Helper()
	s, err := NewRegenSystem(cfg)
	if err != nil {
		t.Fatalf("NewRegenSystem failed: %v", err)
	}
	m := NewMetrics(prometheus.NewRegistry())
	s.SetMetrics(m)
	s.Output = &bytes.Buffer{}
	return s, m
}

type recordingSink struct {
	mu    sync.Mutex
	fed   strings.Builder
	flush int
}

func (r *recordingSink) Feed(text string, ditLen float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fed.WriteString(text)
}

func (r *recordingSink) Flush(ditLen float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flush++
}

func TestSystemDecodesStream(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Calibration.Enabled = false
	s, m := newTestSystem(t, cfg)

	var mu sync.Mutex
	var got strings.Builder
	envelopes := 0
	var lastHistory []float64
	s.OnHistory = func(h []float64) {
		mu.Lock()
		defer mu.Unlock()
		lastHistory = h
	}
	s.OnText = func(text string) {
		mu.Lock()
		defer mu.Unlock()
		got.WriteString(text)
	}
	s.OnEnvelope = func(env []float64) {
		mu.Lock()
		defer mu.Unlock()
		envelopes++
	}
	sink := &recordingSink{}
	s.SetWordSink(sink)

	s.Start(context.Background())
	if err := s.Run(context.Background(), synthSource(t, "CQ TEST", 8)); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	s.Stop()

	if s.Text() != "CQ TEST" {
		t.Fatalf("expected %q, got %q", "CQ TEST", s.Text())
	}
	if got.String() != "CQ TEST" {
		t.Errorf("callbacks delivered %q", got.String())
	}
	if envelopes != 6 {
		t.Errorf("expected 6 envelopes, got %d", envelopes)
	}
	if len(lastHistory) != 400 || lastHistory[395] == 0 {
		t.Errorf("expected history snapshots with the last character at the tail")
	}
	if sink.fed.String() != "CQ TEST" || sink.flush != 1 {
		t.Errorf("sink got %q with %d flushes", sink.fed.String(), sink.flush)
	}
	if v := testutil.ToFloat64(m.characters); v != 6 {
		t.Errorf("characters metric = %v", v)
	}
	if v := testutil.ToFloat64(m.words); v != 1 {
		t.Errorf("words metric = %v", v)
	}
	if v := testutil.ToFloat64(m.samples); v != float64(s.Ticks()) {
		t.Errorf("samples metric = %v, ticks %d", v, s.Ticks())
	}
}

func TestSystemRejectsBadSamples(t *testing.T) {
	s, m := newTestSystem(t, DefaultConfig())
	s.Start(context.Background())
	ctx := context.Background()
	if err := s.Push(ctx, []float64{0, 0, 1}); err != nil {
		t.Fatal(err)
	}
	if err := s.Push(ctx, make([]float64, 7)); err != nil {
		t.Fatal(err)
	}
	s.Stop()

	if v := testutil.ToFloat64(m.rejected); v != 1 {
		t.Errorf("rejected metric = %v", v)
	}
	if s.Ticks() != 1 {
		t.Errorf("expected 1 accepted tick, got %d", s.Ticks())
	}
	if err := s.Push(ctx, make([]float64, 7)); !errors.Is(err, ErrStopped) {
		t.Errorf("expected ErrStopped after Stop, got %v", err)
	}
}

func TestSystemPushBeforeStart(t *testing.T) {
	s, _ := newTestSystem(t, DefaultConfig())
	if err := s.Push(context.Background(), make([]float64, 7)); !errors.Is(err, ErrStopped) {
		t.Fatalf("expected ErrStopped, got %v", err)
	}
}

func TestSystemCalibratesSlowerStream(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Calibration.Enabled = true
	cfg.Calibration.Apply = true
	cfg.Calibration.EveryChars = 5
	s, m := newTestSystem(t, cfg)

	s.Start(context.Background())
	// 点长 10 的流，解码器从 8 开始
	if err := s.Run(context.Background(), synthSource(t, "PARIS PARIS PARIS PARIS", 10)); err != nil {
		t.Fatal(err)
	}
	s.Stop()

	if s.Text() != "PARIS PARIS PARIS PARIS" {
		t.Fatalf("unexpected text %q", s.Text())
	}
	// 点 20/2.125 与划 40/4 按数量加权
	if d := s.DitLen(); d < 9.4 || d > 9.8 {
		t.Errorf("expected calibrated dit length near 9.58, got %v", d)
	}
	if v := testutil.ToFloat64(m.calibration.WithLabelValues("applied")); v != 4 {
		t.Errorf("expected 4 applied calibrations, got %v", v)
	}
	if v := testutil.ToFloat64(m.ditLen); v != s.DitLen() {
		t.Errorf("dit length gauge %v, decoder %v", v, s.DitLen())
	}
}

func TestHandleInput(t *testing.T) {
	s, m := newTestSystem(t, DefaultConfig())
	out := s.Output.(*bytes.Buffer)

	s.HandleInput("dit 12")
	if s.DitLen() != 12 || testutil.ToFloat64(m.ditLen) != 12 {
		t.Errorf("dit command not applied: %v", s.DitLen())
	}

	out.Reset()
	s.HandleInput("dit -1")
	if s.DitLen() != 12 || !strings.Contains(out.String(), "Error") {
		t.Errorf("invalid dit must be rejected, got %v / %q", s.DitLen(), out.String())
	}

	s.HandleInput("THR 0.5")
	if s.Threshold() != 0.5 {
		t.Errorf("threshold command not applied: %v", s.Threshold())
	}
	out.Reset()
	s.HandleInput("thr 1.2")
	if s.Threshold() != 0.5 || !strings.Contains(out.String(), "Error") {
		t.Errorf("invalid threshold must be rejected")
	}

	out.Reset()
	s.HandleInput("wpm 17")
	if d := s.DitLen(); d < 7.7 || d > 7.8 {
		t.Errorf("wpm 17 should give dit length near 7.74, got %v", d)
	}
	if !strings.Contains(out.String(), "nfft 256, noverlap 183") {
		t.Errorf("unexpected wpm output %q", out.String())
	}

	out.Reset()
	s.HandleInput("wpm abc")
	if !strings.Contains(out.String(), "invalid value") {
		t.Errorf("unexpected output %q", out.String())
	}

	out.Reset()
	s.HandleInput("calib")
	if !strings.Contains(out.String(), "not enough samples") {
		t.Errorf("unexpected calib output %q", out.String())
	}

	out.Reset()
	s.HandleInput("status")
	if !strings.Contains(out.String(), "ticks 0") || !strings.Contains(out.String(), "wpm 17") {
		t.Errorf("unexpected status %q", out.String())
	}

	out.Reset()
	s.HandleInput("reset")
	if !strings.Contains(out.String(), "History cleared") {
		t.Errorf("unexpected reset output %q", out.String())
	}

	out.Reset()
	s.HandleInput("help")
	if !strings.Contains(out.String(), "Commands:") {
		t.Errorf("expected usage, got %q", out.String())
	}
}

func TestHandleInputCalibNow(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Calibration.Enabled = false
	s, _ := newTestSystem(t, cfg)
	s.Start(context.Background())
	if err := s.Run(context.Background(), synthSource(t, "PARIS PARIS", 10)); err != nil {
		t.Fatal(err)
	}
	s.Stop()
	if s.DitLen() != 8 {
		t.Fatalf("calibration disabled, dit length changed to %v", s.DitLen())
	}

	s.HandleInput("calib")
	if d := s.DitLen(); d < 9.4 || d > 9.8 {
		t.Errorf("expected calib command to apply about 9.58, got %v", d)
	}
	if !strings.Contains(s.Output.(*bytes.Buffer).String(), "dits 20, dahs 8") {
		t.Errorf("unexpected calib output %q", s.Output.(*bytes.Buffer).String())
	}
}

func TestStopProcessesEveryAcceptedSample(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Calibration.Enabled = false
	cfg.Source.QueueSize = 4
	for i := 0; i < 100; i++ {
		s, _ := newTestSystem(t, cfg)
		s.Start(context.Background())

		accepted := make(chan int64)
		go func() {
			var n int64
			for {
				if err := s.Push(context.Background(), make([]float64, 7)); err != nil {
					if !errors.Is(err, ErrStopped) {
						t.Errorf("unexpected Push error %v", err)
					}
					accepted <- n
					return
				}
				n++
			}
		}()
		for s.Ticks() < int64(i%5) {
			runtime.Gosched()
		}
		s.Stop()

		n := <-accepted
		if got := s.Ticks(); got != n {
			t.Fatalf("iteration %d: %d samples accepted, %d processed", i, n, got)
		}
	}
}

func TestStatusFollowsDitLength(t *testing.T) {
	s, _ := newTestSystem(t, DefaultConfig())
	out := s.Output.(*bytes.Buffer)

	// 8000 Hz、17 WPM 帧率下 tick 速率 8000/73，dit 16 对应约 8.2 WPM
	s.HandleInput("dit 16")
	out.Reset()
	s.HandleInput("status")
	if !strings.Contains(out.String(), "wpm 8.2") {
		t.Errorf("expected derived speed 8.2 wpm, got %q", out.String())
	}

	s.HandleInput("wpm 20")
	out.Reset()
	s.HandleInput("status")
	if !strings.Contains(out.String(), "wpm 20.0") {
		t.Errorf("expected 20 wpm after wpm command, got %q", out.String())
	}
}

func TestHandleInputHistogram(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Calibration.Enabled = false
	s, _ := newTestSystem(t, cfg)
	out := s.Output.(*bytes.Buffer)

	s.HandleInput("hist")
	if !strings.Contains(out.String(), "history is empty") {
		t.Errorf("unexpected output for empty history %q", out.String())
	}

	s.Start(context.Background())
	if err := s.Run(context.Background(), synthSource(t, "PARIS PARIS", 8)); err != nil {
		t.Fatal(err)
	}
	s.Stop()

	out.Reset()
	s.HandleInput("hist")
	got := out.String()
	for _, want := range []string{
		"dit [11.0, 23.0), dah >= 25.0",
		"[ 11,  12)    0  <dit_low",
		"[ 16,  17)   20 ####################",
		"[ 17,  18)    0  <dit",
		"[ 25,  26)    0  <dah_low",
		"[ 32,  33)    8 ######## <dah",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("histogram missing %q in\n%s", want, got)
		}
	}
}
