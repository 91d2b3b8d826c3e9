package comm

import (
	"context"
	"errors"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/cosim/internal/dynamo"
	"github.com/san-kum/cosim/internal/protocol"
)

// fakeBroker routes publishes to subscribers synchronously.
type fakeBroker struct {
	mu     sync.Mutex
	subs   map[string]paho.MessageHandler
	sent   map[string][][]byte
	tamper func(topic string, payload []byte) [][]byte
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{
		subs: make(map[string]paho.MessageHandler),
		sent: make(map[string][][]byte),
	}
}

type fakeClient struct {
	broker       *fakeBroker
	failPublish  error
	disconnected bool
}

func (c *fakeClient) Publish(topic string, _ byte, _ bool, payload interface{}) paho.Token {
	if c.failPublish != nil {
		return &mockToken{err: c.failPublish}
	}
	data := payload.([]byte)

	b := c.broker
	b.mu.Lock()
	b.sent[topic] = append(b.sent[topic], data)
	handler := b.subs[topic]
	deliveries := [][]byte{data}
	if b.tamper != nil {
		deliveries = b.tamper(topic, data)
	}
	b.mu.Unlock()

	if handler != nil {
		for _, d := range deliveries {
			handler(nil, &mockMessage{topic: topic, payload: d})
		}
	}
	return &mockToken{}
}

func (c *fakeClient) Subscribe(topic string, _ byte, cb paho.MessageHandler) paho.Token {
	c.broker.mu.Lock()
	c.broker.subs[topic] = cb
	c.broker.mu.Unlock()
	return &mockToken{}
}

func (c *fakeClient) Unsubscribe(topics ...string) paho.Token {
	c.broker.mu.Lock()
	for _, t := range topics {
		delete(c.broker.subs, t)
	}
	c.broker.mu.Unlock()
	return &mockToken{}
}

func (c *fakeClient) Disconnect(uint) { c.disconnected = true }

type mockMessage struct {
	topic   string
	payload []byte
}

func (m *mockMessage) Duplicate() bool   { return false }
func (m *mockMessage) Qos() byte         { return 1 }
func (m *mockMessage) Retained() bool    { return false }
func (m *mockMessage) Topic() string     { return m.topic }
func (m *mockMessage) MessageID() uint16 { return 0 }
func (m *mockMessage) Payload() []byte   { return m.payload }
func (m *mockMessage) Ack()              {}

type mockToken struct{ err error }

func (t *mockToken) Wait() bool                       { return true }
func (t *mockToken) WaitTimeout(_ time.Duration) bool { return true }
func (t *mockToken) Done() <-chan struct{}            { ch := make(chan struct{}); close(ch); return ch }
func (t *mockToken) Error() error                     { return t.err }

var _ = Describe("MQTT", func() {
	var (
		ctx          context.Context
		broker       *fakeBroker
		ctrl, driver *MQTT
		driverClient *fakeClient
	)

	BeforeEach(func() {
		var err error
		ctx = context.Background()
		broker = newFakeBroker()

		ctrl, err = NewMQTT(&fakeClient{broker: broker}, MQTTConfig{TopicIn: "cosim/in", TopicOut: "cosim/out"})
		Expect(err).NotTo(HaveOccurred())

		driverClient = &fakeClient{broker: broker}
		driver, err = NewMQTT(driverClient, MQTTConfig{TopicIn: "cosim/out", TopicOut: "cosim/in"})
		Expect(err).NotTo(HaveOccurred())
	})

	It("should carry messages both ways", func() {
		Expect(driver.Send(ctx, protocol.Message{Flag: protocol.FlagNone, Time: 2})).To(Succeed())
		m, err := ctrl.Receive(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(m.Time).To(Equal(2.0))
		Expect(m.Seq).To(Equal(uint64(1)))

		reply := protocol.Message{
			Flag:   protocol.FlagConverged,
			Time:   3,
			Result: &protocol.Result{Value: dynamo.Value{{0.5}}, Iterations: 2},
		}
		Expect(ctrl.Send(ctx, reply)).To(Succeed())
		m, err = driver.Receive(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(m.Flag).To(Equal(protocol.FlagConverged))
		Expect(m.Result.Value).To(Equal(dynamo.Value{{0.5}}))
		Expect(m.Result.Iterations).To(Equal(2))
	})

	It("should drop redelivered messages", func() {
		broker.tamper = func(_ string, payload []byte) [][]byte {
			return [][]byte{payload, payload}
		}

		Expect(driver.Send(ctx, protocol.Message{Time: 1})).To(Succeed())
		Expect(driver.Send(ctx, protocol.Message{Time: 2})).To(Succeed())

		m1, _ := ctrl.Receive(ctx)
		m2, _ := ctrl.Receive(ctx)
		Expect([]float64{m1.Time, m2.Time}).To(Equal([]float64{1, 2}))

		cctx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
		defer cancel()
		_, err := ctrl.Receive(cctx)
		Expect(err).To(MatchError(context.DeadlineExceeded))
	})

	It("should report close after the peer leaves", func() {
		Expect(driver.Send(ctx, protocol.Message{Time: 1})).To(Succeed())
		Expect(driver.Close()).To(Succeed())
		Expect(driverClient.disconnected).To(BeTrue())

		_, err := ctrl.Receive(ctx)
		Expect(err).NotTo(HaveOccurred())
		_, err = ctrl.Receive(ctx)
		Expect(err).To(MatchError(ErrClosed))

		Expect(driver.Send(ctx, protocol.Message{})).To(MatchError(ErrClosed))
	})

	It("should close while the inbox is full", func() {
		sending := make(chan struct{})
		go func() {
			defer close(sending)
			for i := 1; i <= cap(ctrl.inbox)+1; i++ {
				driver.Send(ctx, protocol.Message{Time: float64(i)})
			}
		}()
		Eventually(func() int { return len(ctrl.inbox) }).Should(Equal(cap(ctrl.inbox)))

		closed := make(chan error, 1)
		go func() { closed <- ctrl.Close() }()
		Eventually(closed).Should(Receive(BeNil()))
		Eventually(sending).Should(BeClosed())

		m, err := ctrl.Receive(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(m.Time).To(Equal(1.0))
	})

	It("should return publish errors", func() {
		boom := errors.New("broker gone")
		driverClient.failPublish = boom
		Expect(driver.Send(ctx, protocol.Message{})).To(MatchError(boom))
	})

	It("should ignore undecodable payloads", func() {
		broker.mu.Lock()
		handler := broker.subs["cosim/in"]
		broker.mu.Unlock()
		handler(nil, &mockMessage{topic: "cosim/in", payload: []byte("{not json")})

		Expect(driver.Send(ctx, protocol.Message{Time: 4})).To(Succeed())
		m, err := ctrl.Receive(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(m.Time).To(Equal(4.0))
	})
})

var _ = Describe("Codec", func() {
	It("should round-trip the close marker", func() {
		data, err := Encode(Envelope{Message: protocol.Message{Seq: 9}, Closed: true})
		Expect(err).NotTo(HaveOccurred())

		env, err := Decode(data)
		Expect(err).NotTo(HaveOccurred())
		Expect(env.Closed).To(BeTrue())
		Expect(env.Message.Seq).To(Equal(uint64(9)))
	})

	It("should reject unknown flags", func() {
		_, err := Decode([]byte(`{"message":{"flag":"paused","time":0}}`))
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("BrokerURL", func() {
	It("should prefer the environment", func() {
		GinkgoT().Setenv("COSIM_MQTT_URL", "tcp://broker:1883")
		Expect(BrokerURL()).To(Equal("tcp://broker:1883"))
	})
})
