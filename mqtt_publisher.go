package cwregen

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"cwregen/RegenDecoder"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// WordPayload is published once per decoded word.
type WordPayload struct {
	Timestamp int64   `json:"timestamp"`
	Word      string  `json:"word"`
	Unknown   int     `json:"unknown"` // 其中无法识别的字符数
	DitLen    float64 `json:"dit_len"`
}

// 首次连接的等待时间，超时后在后台继续重连
var mqttConnectWait = 10 * time.Second

// publisher 是 mqtt.Client 中用到的部分，方便测试
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTTPublisher 把解出的文本按单词发布到 broker
type MQTTPublisher struct {
	client publisher
	conn   mqtt.Client
	topic  string

	mu   sync.Mutex
	word strings.Builder
}

func generateClientID() string {
	b := make([]byte, 8)
	rand.Read(b)
	return "cwregen_" + hex.EncodeToString(b)
}

// NewMQTTPublisher 连接 broker
func NewMQTTPublisher(cfg *Config) (*MQTTPublisher, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.MQTT.Broker)
	id := cfg.MQTT.ClientID
	if id == "" {
		id = generateClientID()
	}
	opts.SetClientID(id)
	if cfg.MQTT.Username != "" {
		opts.SetUsername(cfg.MQTT.Username)
	}
	if cfg.MQTT.Password != "" {
		opts.SetPassword(cfg.MQTT.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(10 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		log.Printf("[MQTT] Connection lost: %v", err)
	})

	opts.SetOnConnectHandler(func(client mqtt.Client) {
		log.Printf("[MQTT] Connected to %s, topic %s", cfg.MQTT.Broker, cfg.MQTT.Topic)
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(mqttConnectWait) {
		// SetConnectRetry: 客户端在后台继续重连，期间的发布会排队
		log.Printf("[MQTT] Still connecting to %s, retrying every 10s", cfg.MQTT.Broker)
	} else if token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}
	return &MQTTPublisher{client: client, conn: client, topic: cfg.MQTT.Topic}, nil
}

// Feed 逐个接收解出的字符，遇到空格时发布当前单词
func (p *MQTTPublisher) Feed(text string, ditLen float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, r := range text {
		if r == ' ' {
			p.flushLocked(ditLen)
			continue
		}
		p.word.WriteRune(r)
	}
}

// Flush 发布尚未结束的单词
func (p *MQTTPublisher) Flush(ditLen float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.flushLocked(ditLen)
}

func (p *MQTTPublisher) flushLocked(ditLen float64) {
	if p.word.Len() == 0 {
		return
	}
	word := p.word.String()
	p.word.Reset()

	payload, err := json.Marshal(WordPayload{
		Timestamp: time.Now().Unix(),
		Word:      word,
		Unknown:   strings.Count(word, string(RegenDecoder.UnknownChar)),
		DitLen:    ditLen,
	})
	if err != nil {
		log.Printf("[MQTT] Failed to marshal word: %v", err)
		return
	}
	token := p.client.Publish(p.topic, 0, false, payload)
	go func() {
		if token.WaitTimeout(5*time.Second) && token.Error() != nil {
			log.Printf("[MQTT] Publish failed: %v", token.Error())
		}
	}()
}

// Close 断开连接
func (p *MQTTPublisher) Close() {
	if p.conn != nil {
		p.conn.Disconnect(250)
	}
}
