package publish

import (
	"fmt"
	"log"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"gpsclock/internal/gps"
)

const (
	defaultMQTTTopic = "gpsclock/position"
	mqttTimeout      = 5 * time.Second
)

func mqttOptions(cfg MQTTConfig, suffix string) (*mqtt.ClientOptions, string) {
	broker := cfg.Broker
	if broker == "" {
		broker = "tcp://localhost:1883"
	}
	topic := cfg.Topic
	if topic == "" {
		topic = defaultMQTTTopic
	}
	id := cfg.ClientID
	if id == "" {
		id = "gpsclock"
	}
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(id + suffix).
		SetAutoReconnect(true).
		SetConnectTimeout(mqttTimeout)
	return opts, topic
}

func connectMQTT(opts *mqtt.ClientOptions) (mqtt.Client, error) {
	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(mqttTimeout) {
		return nil, fmt.Errorf("mqtt connect timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}
	return client, nil
}

type mqttPublisher struct {
	client mqtt.Client
	topic  string
}

func openMQTT(cfg MQTTConfig) (Publisher, error) {
	opts, topic := mqttOptions(cfg, "-pub")
	client, err := connectMQTT(opts)
	if err != nil {
		return nil, err
	}
	log.Printf("publish mqtt broker=%v topic=%s", opts.Servers, topic)
	return &mqttPublisher{client: client, topic: topic}, nil
}

// Update publishes a retained message so late subscribers get the last fix.
func (p *mqttPublisher) Update(pos gps.Position) error {
	payload, err := encode(pos)
	if err != nil {
		return err
	}
	token := p.client.Publish(p.topic, 0, true, payload)
	if !token.WaitTimeout(mqttTimeout) {
		return fmt.Errorf("%w: mqtt publish timeout", ErrChannel)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: mqtt publish: %v", ErrChannel, err)
	}
	return nil
}

func (p *mqttPublisher) Close() error {
	p.client.Disconnect(250)
	return nil
}

type mqttSubscriber struct {
	client mqtt.Client

	mu   sync.Mutex
	last gps.Position
	have bool
}

func subscribeMQTT(cfg MQTTConfig) (Subscriber, error) {
	opts, topic := mqttOptions(cfg, fmt.Sprintf("-sub-%d", time.Now().UnixNano()))
	client, err := connectMQTT(opts)
	if err != nil {
		return nil, err
	}
	s := &mqttSubscriber{client: client}
	token := client.Subscribe(topic, 0, func(_ mqtt.Client, msg mqtt.Message) {
		s.handle(msg.Payload())
	})
	if token.Wait() && token.Error() != nil {
		client.Disconnect(250)
		return nil, fmt.Errorf("mqtt subscribe %s: %w", topic, token.Error())
	}
	return s, nil
}

func (s *mqttSubscriber) handle(payload []byte) {
	pos, err := decode(payload)
	if err != nil {
		log.Printf("publish mqtt: drop message: %v", err)
		return
	}
	s.mu.Lock()
	s.last, s.have = pos, true
	s.mu.Unlock()
}

func (s *mqttSubscriber) Current() (gps.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.have {
		return gps.Position{}, ErrNoData
	}
	return s.last, nil
}

func (s *mqttSubscriber) Close() error {
	if s.client != nil {
		s.client.Disconnect(250)
	}
	return nil
}
