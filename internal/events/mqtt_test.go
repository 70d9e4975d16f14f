package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubToken struct {
	done bool
	err  error
}

var closedCh = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

func (t *stubToken) Wait() bool                     { return t.done }
func (t *stubToken) WaitTimeout(time.Duration) bool { return t.done }
func (t *stubToken) Done() <-chan struct{}          { return closedCh }
func (t *stubToken) Error() error                   { return t.err }

type published struct {
	topic   string
	qos     byte
	payload []byte
}

type stubClient struct {
	mqtt.Client
	connected    bool
	token        *stubToken
	messages     []published
	disconnected bool
}

func (c *stubClient) IsConnected() bool { return c.connected }

func (c *stubClient) Publish(topic string, qos byte, _ bool, payload interface{}) mqtt.Token {
	c.messages = append(c.messages, published{topic: topic, qos: qos, payload: payload.([]byte)})
	return c.token
}

func (c *stubClient) Disconnect(uint) { c.disconnected = true }

func TestPublishScanRecorded(t *testing.T) {
	client := &stubClient{connected: true, token: &stubToken{done: true}}
	pub := newMQTTPublisher(client, "", 0, zap.NewNop())

	ric := 1
	evt := ScanRecorded{
		ScanID:        "scan-1",
		LocationKey:   "12 main st",
		MaterialType:  "plastic",
		RICCode:       &ric,
		Confidence:    85,
		Recyclable:    true,
		PointsAwarded: 10,
		NewTotal:      10,
		RecordedAt:    time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	require.NoError(t, pub.PublishScanRecorded(context.Background(), evt))

	require.Len(t, client.messages, 1)
	msg := client.messages[0]
	assert.Equal(t, DefaultTopic, msg.topic)
	assert.Equal(t, byte(1), msg.qos)

	var decoded ScanRecorded
	require.NoError(t, json.Unmarshal(msg.payload, &decoded))
	assert.Equal(t, evt, decoded)

	pub.Close()
	assert.True(t, client.disconnected)
}

func TestPublishScanRecordedFailures(t *testing.T) {
	t.Run("not connected", func(t *testing.T) {
		pub := newMQTTPublisher(&stubClient{}, "t", 0, zap.NewNop())
		assert.Error(t, pub.PublishScanRecorded(context.Background(), ScanRecorded{}))
	})

	t.Run("timeout", func(t *testing.T) {
		client := &stubClient{connected: true, token: &stubToken{done: false}}
		pub := newMQTTPublisher(client, "t", time.Millisecond, zap.NewNop())
		err := pub.PublishScanRecorded(context.Background(), ScanRecorded{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "timeout")
	})

	t.Run("broker error", func(t *testing.T) {
		brokerErr := errors.New("not authorized")
		client := &stubClient{connected: true, token: &stubToken{done: true, err: brokerErr}}
		pub := newMQTTPublisher(client, "t", 0, zap.NewNop())
		assert.ErrorIs(t, pub.PublishScanRecorded(context.Background(), ScanRecorded{}), brokerErr)
	})
}

func TestNewMQTTPublisherRequiresBroker(t *testing.T) {
	_, err := NewMQTTPublisher(MQTTConfig{}, zap.NewNop())
	assert.Error(t, err)
}

func TestNopPublisher(t *testing.T) {
	var p Publisher = Nop{}
	assert.NoError(t, p.PublishScanRecorded(context.Background(), ScanRecorded{}))
	p.Close()
}
