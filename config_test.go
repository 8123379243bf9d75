package cwregen

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"cwregen/RegenDecoder"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cwregen.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	d, err := cfg.DecoderConfig()
	if err != nil {
		t.Fatal(err)
	}
	if d.DitLen != 8 || d.MaxElements != 5 || d.Threshold != 0.9 || d.HistoryLen != 400 {
		t.Errorf("unexpected decoder config %+v", d)
	}
}

func TestLoadConfigOverlaysDefaults(t *testing.T) {
	path := writeConfig(t, `
decoder:
  threshold: 0.8
timing:
  wpm: 20
source:
  file: stream.csv.zst
calibration:
  apply: true
mqtt:
  broker: tcp://localhost:1883
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Decoder.Threshold != 0.8 {
		t.Errorf("threshold not loaded: %v", cfg.Decoder.Threshold)
	}
	if cfg.Decoder.MaxElements != 5 || cfg.Decoder.HistoryLen != 400 {
		t.Errorf("defaults lost: %+v", cfg.Decoder)
	}
	if cfg.Timing.WPM != 20 || cfg.Timing.AudioRate != 8000 {
		t.Errorf("unexpected timing %+v", cfg.Timing)
	}
	if cfg.Source.File != "stream.csv.zst" || cfg.Source.QueueSize != 64 {
		t.Errorf("unexpected source %+v", cfg.Source)
	}
	if !cfg.Calibration.Apply || cfg.Calibration.EveryChars != 20 {
		t.Errorf("unexpected calibration %+v", cfg.Calibration)
	}
	if cfg.MQTT.Topic != "cwregen/text" {
		t.Errorf("expected default topic, got %q", cfg.MQTT.Topic)
	}
}

func TestDitLenDerivedFromWPM(t *testing.T) {
	path := writeConfig(t, "decoder:\n  dit_len: 0\ntiming:\n  wpm: 17\n")
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	d, err := cfg.DecoderConfig()
	if err != nil {
		t.Fatal(err)
	}
	// 8000 Hz, hop 73: 1.2 * 109.59 / 17
	if d.DitLen < 7.7 || d.DitLen > 7.8 {
		t.Errorf("expected derived dit length near 7.74, got %v", d.DitLen)
	}
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		want error
	}{
		{"threshold", "decoder:\n  threshold: 1.5\n", RegenDecoder.ErrInvalidThreshold},
		{"history", "decoder:\n  history_len: 401\n", RegenDecoder.ErrInvalidHistoryLen},
		{"dit", "decoder:\n  dit_len: -2\n", RegenDecoder.ErrInvalidDitLen},
		{"wpm", "decoder:\n  dit_len: 0\ntiming:\n  wpm: 0\n", ErrInvalidConfig},
		{"queue", "source:\n  queue_size: 0\n", ErrInvalidConfig},
		{"calibration", "calibration:\n  every_chars: 0\n", ErrInvalidConfig},
		{"mqtt", "mqtt:\n  broker: tcp://x:1883\n  topic: \"\"\n", ErrInvalidConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.body))
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestLoadConfigErrors(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
	if _, err := LoadConfig(writeConfig(t, "decoder: [1, 2\n")); err == nil {
		t.Error("expected error for malformed YAML")
	}
}
