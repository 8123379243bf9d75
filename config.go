package cwregen

import (
	"errors"
	"fmt"
	"os"

	"cwregen/Calibration"
	"cwregen/RegenDecoder"

	"gopkg.in/yaml.v3"
)

var ErrInvalidConfig = errors.New("invalid config")

// Config 结构体用于集中管理解码系统的所有可调参数
type Config struct {
	// --- 解码器 (RegenDecoder) ---
	Decoder struct {
		DitLen       float64 `yaml:"dit_len"`        // 一个点的 tick 数，0 表示按 Timing 从 WPM 推算
		MaxElements  int     `yaml:"max_elements"`   // 每个字符最多几个元素槽位 (决定样本长度 2+max_elements)
		Threshold    float64 `yaml:"threshold"`      // 所有通道的激活阈值 (0, 1)
		HistoryLen   int     `yaml:"history_len"`    // 历史环长度，必须是 max_elements 的整数倍
		DitLow       float64 `yaml:"dit_low"`        // 点的下限 (dit_len 倍数)
		DitHigh      float64 `yaml:"dit_high"`       // 点的上限 (不含)
		DahLow       float64 `yaml:"dah_low"`        // 划的下限
		CharSepRatio float64 `yaml:"char_sep_ratio"` // 字符分隔触发: 连续高电平 > ratio*dit_len
		WordSepRatio float64 `yaml:"word_sep_ratio"` // 单词分隔触发
	} `yaml:"decoder"`

	// --- 时序 ---
	// 上游频谱图的参数，用于从 WPM 推算 dit_len
	Timing struct {
		AudioRate  int     `yaml:"audio_rate"` // 上游音频采样率 (Hz)
		WPM        float64 `yaml:"wpm"`
		Decimation float64 `yaml:"decimation"` // 每个点对应的频谱帧数
	} `yaml:"timing"`

	// --- 样本来源 ---
	Source struct {
		File       string `yaml:"file"`        // CSV 文件路径 ("-" 为 stdin，*.zst 自动解压)
		SerialPort string `yaml:"serial_port"` // 串口，File 为空时使用
		BaudRate   int    `yaml:"baud_rate"`
		QueueSize  int    `yaml:"queue_size"` // 生产者与解码 worker 之间的队列长度
	} `yaml:"source"`

	// --- 自动校准 ---
	Calibration struct {
		Enabled       bool    `yaml:"enabled"`
		EveryChars    int     `yaml:"every_chars"` // 每解出多少个字符分析一次历史
		MinSamples    int     `yaml:"min_samples"`
		Apply         bool    `yaml:"apply"` // false 时只打印建议值
		MinConfidence float64 `yaml:"min_confidence"`
	} `yaml:"calibration"`

	Debug struct {
		CsvFile string `yaml:"csv_file"`
	} `yaml:"debug"`

	Metrics struct {
		Listen string `yaml:"listen"` // 例如 ":9108"，为空不启动
	} `yaml:"metrics"`

	MQTT struct {
		Broker   string `yaml:"broker"` // 例如 tcp://localhost:1883，为空不启用
		Topic    string `yaml:"topic"`
		Username string `yaml:"username"`
		Password string `yaml:"password"`
		ClientID string `yaml:"client_id"`
	} `yaml:"mqtt"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	cfg := &Config{}

	d := RegenDecoder.DefaultConfig()
	cfg.Decoder.DitLen = d.DitLen
	cfg.Decoder.MaxElements = d.MaxElements
	cfg.Decoder.Threshold = d.Threshold
	cfg.Decoder.HistoryLen = d.HistoryLen
	cfg.Decoder.DitLow = d.Thresholds.DitLow
	cfg.Decoder.DitHigh = d.Thresholds.DitHigh
	cfg.Decoder.DahLow = d.Thresholds.DahLow
	cfg.Decoder.CharSepRatio = d.CharSepRatio
	cfg.Decoder.WordSepRatio = d.WordSepRatio

	cfg.Timing.AudioRate = 8000
	cfg.Timing.WPM = 17
	cfg.Timing.Decimation = 7.69

	cfg.Source.File = "-"
	cfg.Source.BaudRate = 115200
	cfg.Source.QueueSize = 64

	cfg.Calibration.Enabled = true
	cfg.Calibration.EveryChars = 20
	cfg.Calibration.MinSamples = 10
	cfg.Calibration.Apply = false
	cfg.Calibration.MinConfidence = 0.6

	cfg.MQTT.Topic = "cwregen/text"

	return cfg
}

// LoadConfig 读取 YAML 文件，未出现的字段保持默认值
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 检查配置，不做任何截断
func (c *Config) Validate() error {
	if _, err := c.DecoderConfig(); err != nil {
		return err
	}
	if c.Source.QueueSize < 1 {
		return fmt.Errorf("%w: source.queue_size must be at least 1", ErrInvalidConfig)
	}
	if c.Source.SerialPort != "" && c.Source.BaudRate <= 0 {
		return fmt.Errorf("%w: source.baud_rate must be positive", ErrInvalidConfig)
	}
	if c.Calibration.Enabled {
		if c.Calibration.EveryChars < 1 {
			return fmt.Errorf("%w: calibration.every_chars must be at least 1", ErrInvalidConfig)
		}
		if c.Calibration.MinConfidence < 0 || c.Calibration.MinConfidence > 1 {
			return fmt.Errorf("%w: calibration.min_confidence must be in [0, 1]", ErrInvalidConfig)
		}
	}
	if c.MQTT.Broker != "" && c.MQTT.Topic == "" {
		return fmt.Errorf("%w: mqtt.topic is required when mqtt.broker is set", ErrInvalidConfig)
	}
	return nil
}

// TickRate 上游每秒产生的样本数
func (c *Config) TickRate() (float64, error) {
	p, err := SpectrogramFor(c.Timing.AudioRate, c.Timing.WPM, c.Timing.Decimation)
	if err != nil {
		return 0, err
	}
	return p.TickRate(c.Timing.AudioRate), nil
}

// DecoderConfig 转换为 RegenDecoder.Config 并校验
func (c *Config) DecoderConfig() (RegenDecoder.Config, error) {
	d := RegenDecoder.DefaultConfig()
	d.DitLen = c.Decoder.DitLen
	if d.DitLen == 0 {
		rate, err := c.TickRate()
		if err != nil {
			return d, fmt.Errorf("%w: cannot derive dit_len: %v", ErrInvalidConfig, err)
		}
		if d.DitLen, err = DitLenFromWPM(rate, c.Timing.WPM); err != nil {
			return d, fmt.Errorf("%w: cannot derive dit_len: %v", ErrInvalidConfig, err)
		}
	}
	d.MaxElements = c.Decoder.MaxElements
	d.Threshold = c.Decoder.Threshold
	d.HistoryLen = c.Decoder.HistoryLen
	d.Thresholds = RegenDecoder.Thresholds{
		DitLow:  c.Decoder.DitLow,
		DitHigh: c.Decoder.DitHigh,
		DahLow:  c.Decoder.DahLow,
	}
	d.CharSepRatio = c.Decoder.CharSepRatio
	d.WordSepRatio = c.Decoder.WordSepRatio
	if err := d.Validate(); err != nil {
		return d, err
	}
	return d, nil
}

// CalibrationConfig 转换为 Calibration.Config
func (c *Config) CalibrationConfig() Calibration.Config {
	cc := Calibration.DefaultConfig()
	cc.MinSamples = c.Calibration.MinSamples
	cc.FloorRatio = c.Decoder.DitLow / 2
	return cc
}
