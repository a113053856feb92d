package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/tvlink-server/tvlink-server/internal/config"
	"github.com/tvlink-server/tvlink-server/internal/models"
)

// ForwarderService 把电视状态事件转发到外部系统
type ForwarderService struct {
	nc  *nats.Conn
	cfg config.IntegrationConfig

	// MQTT 客户端,懒连接
	mqttClient mqtt.Client
	mqttMu     sync.Mutex

	// HTTP 客户端
	httpClient *http.Client
}

// NewForwarderService 创建转发服务
func NewForwarderService(nc *nats.Conn, cfg config.IntegrationConfig) *ForwarderService {
	timeout := cfg.HTTP.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &ForwarderService{
		nc:  nc,
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Start 启动转发服务,阻塞直到ctx取消
func (s *ForwarderService) Start(ctx context.Context) error {
	sub, err := s.nc.Subscribe("tv.*.event.*", s.handleEvent)
	if err != nil {
		return fmt.Errorf("subscribe to tv events: %w", err)
	}

	if s.cfg.MQTT.Enabled {
		if _, err := s.getMQTTClient(); err != nil {
			log.Error().Err(err).Msg("Failed to connect MQTT client")
		}
	}

	log.Info().Msg("Integration forwarder service started")

	<-ctx.Done()

	sub.Unsubscribe()
	s.closeMQTT()

	return nil
}

// handleEvent 处理一条电视事件
func (s *ForwarderService) handleEvent(msg *nats.Msg) {
	// 主题格式: tv.<address>.event.<kind>
	parts := strings.Split(msg.Subject, ".")
	if len(parts) != 4 {
		return
	}

	var event models.TVEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		log.Error().Err(err).Str("subject", msg.Subject).Msg("Failed to parse TV event")
		return
	}
	if event.Kind == "" {
		event.Kind = models.EventKind(parts[3])
	}

	if s.cfg.HTTP.Enabled {
		go s.forwardToHTTP(event)
	}

	if s.cfg.MQTT.Enabled {
		go s.forwardToMQTT(event)
	}
}

// forwardToHTTP 转发事件到 webhook
func (s *ForwarderService) forwardToHTTP(event models.TVEvent) {
	jsonData, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal forward data")
		return
	}

	req, err := http.NewRequest("POST", s.cfg.HTTP.Endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		log.Error().Err(err).Msg("Failed to create HTTP request")
		return
	}

	req.Header.Set("Content-Type", "application/json")
	for k, v := range s.cfg.HTTP.Headers {
		req.Header.Set(k, v)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		log.Error().
			Err(err).
			Str("endpoint", s.cfg.HTTP.Endpoint).
			Msg("Failed to forward event to HTTP")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		log.Error().
			Int("status", resp.StatusCode).
			Str("endpoint", s.cfg.HTTP.Endpoint).
			Msg("HTTP forward failed")
	} else {
		log.Debug().
			Str("address", event.Address).
			Str("kind", string(event.Kind)).
			Msg("Event forwarded to HTTP successfully")
	}
}

// forwardToMQTT 转发事件到 MQTT
func (s *ForwarderService) forwardToMQTT(event models.TVEvent) {
	client, err := s.getMQTTClient()
	if err != nil {
		log.Error().Err(err).Msg("MQTT client unavailable")
		return
	}

	topic := s.cfg.MQTT.TopicPattern
	topic = strings.ReplaceAll(topic, "{address}", event.Address)
	topic = strings.ReplaceAll(topic, "{event}", string(event.Kind))

	jsonData, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal MQTT data")
		return
	}

	token := client.Publish(topic, s.cfg.MQTT.QoS, false, jsonData)
	if token.WaitTimeout(5 * time.Second) {
		if err := token.Error(); err != nil {
			log.Error().
				Err(err).
				Str("topic", topic).
				Msg("Failed to publish to MQTT")
		} else {
			log.Debug().
				Str("address", event.Address).
				Str("topic", topic).
				Msg("Event forwarded to MQTT successfully")
		}
	} else {
		log.Error().
			Str("topic", topic).
			Msg("MQTT publish timeout")
	}
}

// getMQTTClient 获取或创建 MQTT 客户端
func (s *ForwarderService) getMQTTClient() (mqtt.Client, error) {
	s.mqttMu.Lock()
	defer s.mqttMu.Unlock()

	if s.mqttClient != nil && s.mqttClient.IsConnected() {
		return s.mqttClient, nil
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(s.cfg.MQTT.BrokerURL)
	opts.SetClientID("tvlink-forwarder")

	if s.cfg.MQTT.Username != "" {
		opts.SetUsername(s.cfg.MQTT.Username)
		opts.SetPassword(s.cfg.MQTT.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectTimeout(10 * time.Second)
	opts.SetKeepAlive(30 * time.Second)

	opts.SetOnConnectHandler(func(client mqtt.Client) {
		log.Info().Str("broker", s.cfg.MQTT.BrokerURL).Msg("MQTT client connected")
	})

	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		log.Error().Err(err).Msg("MQTT connection lost")
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()

	if token.WaitTimeout(10*time.Second) && token.Error() == nil {
		s.mqttClient = client
		return client, nil
	}

	if err := token.Error(); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("mqtt connect timeout")
}

// closeMQTT 关闭 MQTT 连接
func (s *ForwarderService) closeMQTT() {
	s.mqttMu.Lock()
	defer s.mqttMu.Unlock()

	if s.mqttClient != nil && s.mqttClient.IsConnected() {
		s.mqttClient.Disconnect(250)
		log.Info().Msg("MQTT client disconnected")
	}
	s.mqttClient = nil
}
