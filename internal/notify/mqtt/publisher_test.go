package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/require"

	"github.com/oshokin/tone-alert/internal/config"
	"github.com/oshokin/tone-alert/internal/domain/tone"
)

// fakeToken completes immediately with err, or never when pending is set.
type fakeToken struct {
	err     error
	pending bool
	done    chan struct{}
}

func newToken(err error) *fakeToken {
	t := &fakeToken{err: err, done: make(chan struct{})}
	close(t.done)

	return t
}

func (t *fakeToken) Wait() bool {
	<-t.done

	return true
}

func (t *fakeToken) WaitTimeout(time.Duration) bool { return !t.pending }

func (t *fakeToken) Done() <-chan struct{} { return t.done }

func (t *fakeToken) Error() error { return t.err }

// fakeClient records publishes. Unused methods panic through the nil embed.
type fakeClient struct {
	paho.Client

	token        *fakeToken
	topic        string
	qos          byte
	payload      []byte
	disconnected bool
}

func (c *fakeClient) Publish(topic string, qos byte, _ bool, payload any) paho.Token {
	c.topic = topic
	c.qos = qos
	c.payload, _ = payload.([]byte)

	return c.token
}

func (c *fakeClient) Disconnect(uint) {
	c.disconnected = true
}

// TestPublishPair sends the pair as JSON and waits for the ack.
func TestPublishPair(t *testing.T) {
	t.Parallel()

	client := &fakeClient{token: newToken(nil)}
	publisher := newPublisher(client, "")

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ev := tone.Event{Kind: tone.PairDetected, FrequencyA: 349, FrequencyB: 433.7, At: at}

	require.NoError(t, publisher.PublishPair(t.Context(), ev, "Engine 7"))
	require.Equal(t, config.DefaultMQTTTopic, client.topic)
	require.Equal(t, byte(1), client.qos)
	require.JSONEq(t,
		`{"timestamp":"2026-03-01T12:00:00Z","frequencyA":349,"frequencyB":433.7,"alias":"Engine 7"}`,
		string(client.payload))

	var decoded PairMessage
	require.NoError(t, json.Unmarshal(client.payload, &decoded))
	require.True(t, at.Equal(decoded.Timestamp))

	publisher.Close()
	require.True(t, client.disconnected)
}

// TestPublishPair_Unmatched omits an empty alias.
func TestPublishPair_Unmatched(t *testing.T) {
	t.Parallel()

	client := &fakeClient{token: newToken(nil)}
	publisher := newPublisher(client, "dispatch/pairs")

	require.NoError(t, publisher.PublishPair(t.Context(), tone.Event{FrequencyA: 1, FrequencyB: 2}, ""))
	require.Equal(t, "dispatch/pairs", client.topic)
	require.NotContains(t, string(client.payload), "alias")
}

// TestPublishPair_Errors surfaces broker failures and cancellation.
func TestPublishPair_Errors(t *testing.T) {
	t.Parallel()

	brokerErr := errors.New("not authorized")

	client := &fakeClient{token: newToken(brokerErr)}
	err := newPublisher(client, "").PublishPair(t.Context(), tone.Event{}, "")
	require.ErrorIs(t, err, brokerErr)

	pending := &fakeToken{pending: true, done: make(chan struct{})}
	client = &fakeClient{token: pending}

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	err = newPublisher(client, "").PublishPair(ctx, tone.Event{}, "")
	require.ErrorIs(t, err, context.Canceled)
}

// TestConnect_Fails reports an unreachable broker.
func TestConnect_Fails(t *testing.T) {
	t.Parallel()

	_, err := Connect(t.Context(), config.MQTT{})
	require.ErrorIs(t, err, ErrNoBroker)

	_, err = Connect(t.Context(), config.MQTT{Broker: "tcp://127.0.0.1:1"})
	require.Error(t, err)
}

// TestClose_Nil is safe on a disabled publisher.
func TestClose_Nil(t *testing.T) {
	t.Parallel()

	var publisher *Publisher

	require.NotPanics(t, publisher.Close)
}
