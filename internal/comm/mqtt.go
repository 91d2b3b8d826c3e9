package comm

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/san-kum/cosim/internal/protocol"
)

const DefaultBrokerURL = "tcp://localhost:1883"

// BrokerURL returns the MQTT broker URL from env or default.
func BrokerURL() string {
	if url := os.Getenv("COSIM_MQTT_URL"); url != "" {
		return url
	}
	return DefaultBrokerURL
}

// MQTTClient is the part of paho.Client the transport uses.
type MQTTClient interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
	Unsubscribe(topics ...string) paho.Token
	Disconnect(quiesce uint)
}

type MQTTConfig struct {
	URL      string
	ClientID string
	TopicIn  string
	TopicOut string
	Timeout  time.Duration
}

func (c MQTTConfig) timeout() time.Duration {
	if c.Timeout <= 0 {
		return 10 * time.Second
	}
	return c.Timeout
}

// TimeoutError indicates a broker operation did not complete in time.
type TimeoutError struct {
	Op    string
	Topic string
}

func (e *TimeoutError) Error() string {
	if e.Topic == "" {
		return "mqtt " + e.Op + " timeout"
	}
	return "mqtt " + e.Op + " timeout: " + e.Topic
}

// MQTT is a Communicator over a pair of MQTT topics. Messages are
// published with QoS 1, so the inbound side may see duplicates and
// reordering; a Sequencer removes both.
type MQTT struct {
	client MQTTClient
	cfg    MQTTConfig

	mu      sync.Mutex
	stamper stamper
	closed  bool
	done    chan struct{}

	inMu     sync.Mutex
	seq      *Sequencer
	inbox    chan protocol.Message
	peerGone bool
}

// DialMQTT connects to the broker and subscribes to the inbound topic.
func DialMQTT(cfg MQTTConfig) (*MQTT, error) {
	if cfg.URL == "" {
		cfg.URL = BrokerURL()
	}
	opts := paho.NewClientOptions().
		AddBroker(cfg.URL).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetryInterval(5 * time.Second).
		SetKeepAlive(30 * time.Second).
		SetOrderMatters(true)

	client := paho.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(cfg.timeout()) {
		return nil, &TimeoutError{Op: "connect"}
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", cfg.URL, err)
	}
	log.Printf("mqtt: connected to %s as %q", cfg.URL, cfg.ClientID)

	return NewMQTT(client, cfg)
}

// NewMQTT wraps an already connected client.
func NewMQTT(client MQTTClient, cfg MQTTConfig) (*MQTT, error) {
	m := &MQTT{
		client: client,
		cfg:    cfg,
		seq:    NewSequencer(),
		inbox:  make(chan protocol.Message, 64),
		done:   make(chan struct{}),
	}

	token := client.Subscribe(cfg.TopicIn, 1, m.handle)
	if !token.WaitTimeout(cfg.timeout()) {
		return nil, &TimeoutError{Op: "subscribe", Topic: cfg.TopicIn}
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt subscribe %s: %w", cfg.TopicIn, err)
	}
	return m, nil
}

func (m *MQTT) handle(_ paho.Client, msg paho.Message) {
	env, err := Decode(msg.Payload())
	if err != nil {
		log.Printf("mqtt: dropping message on %s: %v", msg.Topic(), err)
		return
	}

	m.inMu.Lock()
	defer m.inMu.Unlock()

	if m.peerGone {
		return
	}
	for _, e := range m.seq.Push(env) {
		if e.Closed {
			m.peerGone = true
			close(m.inbox)
			return
		}
		// A full inbox must not keep Close waiting on inMu.
		select {
		case m.inbox <- e.Message:
		case <-m.done:
			return
		}
	}
}

func (m *MQTT) Receive(ctx context.Context) (protocol.Message, error) {
	select {
	case msg, ok := <-m.inbox:
		if !ok {
			return protocol.Message{}, ErrClosed
		}
		return msg, nil
	case <-ctx.Done():
		return protocol.Message{}, ctx.Err()
	}
}

func (m *MQTT) Send(ctx context.Context, msg protocol.Message) error {
	_, err := m.SendStamped(ctx, msg)
	return err
}

// SendStamped implements StampingSender.
func (m *MQTT) SendStamped(ctx context.Context, msg protocol.Message) (protocol.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return protocol.Message{}, ErrClosed
	}
	msg = m.stamper.stamp(msg)
	if err := m.publish(ctx, Envelope{Message: msg}); err != nil {
		return protocol.Message{}, err
	}
	return msg, nil
}

func (m *MQTT) publish(ctx context.Context, env Envelope) error {
	payload, err := Encode(env)
	if err != nil {
		return err
	}

	token := m.client.Publish(m.cfg.TopicOut, 1, false, payload)
	timer := time.NewTimer(m.cfg.timeout())
	defer timer.Stop()

	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return &TimeoutError{Op: "publish", Topic: m.cfg.TopicOut}
	}
}

// Close publishes the close marker, then leaves the broker.
func (m *MQTT) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	close(m.done)

	marker := m.stamper.stamp(protocol.Message{})
	err := m.publish(context.Background(), Envelope{Message: marker, Closed: true})

	m.client.Unsubscribe(m.cfg.TopicIn).WaitTimeout(m.cfg.timeout())
	m.client.Disconnect(250)

	m.inMu.Lock()
	if !m.peerGone {
		m.peerGone = true
		close(m.inbox)
	}
	m.inMu.Unlock()
	return err
}
