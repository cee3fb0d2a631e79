package telemetry

import (
	"errors"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// fakeToken is a completed mqtt.Token: Wait and WaitTimeout return
// immediately since the fake broker below never actually goes over the
// wire.
type fakeToken struct {
	err  error
	done chan struct{}
}

func newFakeToken(err error) *fakeToken {
	done := make(chan struct{})
	close(done)
	return &fakeToken{err: err, done: done}
}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{}          { return t.done }
func (t *fakeToken) Error() error                   { return t.err }

var _ mqtt.Token = (*fakeToken)(nil)

// fakeBroker is a mqttClient that records published messages instead of
// sending them anywhere, standing in for a real broker in tests.
type fakeBroker struct {
	connectErr   error
	publishErr   error
	published    []publishedMessage
	disconnected bool
}

type publishedMessage struct {
	topic   string
	qos     byte
	payload []byte
}

func (b *fakeBroker) Connect() mqtt.Token { return newFakeToken(b.connectErr) }

func (b *fakeBroker) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	var data []byte
	switch v := payload.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	}
	b.published = append(b.published, publishedMessage{topic: topic, qos: qos, payload: data})
	return newFakeToken(b.publishErr)
}

func (b *fakeBroker) Disconnect(quiesce uint) { b.disconnected = true }

func TestPublisher_Publish(t *testing.T) {
	b := &fakeBroker{}
	cfg := DefaultConfig()
	p := newPublisher(b, cfg)

	if err := p.Publish("xoss/device-1/operations", []byte(`{"operation":"memory-capacity"}`)); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	if len(b.published) != 1 {
		t.Fatalf("got %d published messages, want 1", len(b.published))
	}
	msg := b.published[0]
	if msg.topic != "xoss/device-1/operations" {
		t.Errorf("topic = %q, want xoss/device-1/operations", msg.topic)
	}
	if string(msg.payload) != `{"operation":"memory-capacity"}` {
		t.Errorf("payload = %q", msg.payload)
	}
	if msg.qos != cfg.QOS {
		t.Errorf("qos = %d, want %d", msg.qos, cfg.QOS)
	}
}

func TestPublisher_PublishPropagatesBrokerError(t *testing.T) {
	wantErr := errors.New("not connected to broker")
	b := &fakeBroker{publishErr: wantErr}
	p := newPublisher(b, DefaultConfig())

	err := p.Publish("xoss/device-1/operations", []byte("x"))
	if !errors.Is(err, wantErr) {
		t.Fatalf("Publish error = %v, want %v", err, wantErr)
	}
}

func TestPublisher_Close(t *testing.T) {
	b := &fakeBroker{}
	p := newPublisher(b, DefaultConfig())

	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !b.disconnected {
		t.Error("Close did not disconnect the underlying client")
	}
}
