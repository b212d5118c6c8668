package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/oshokin/tone-alert/internal/config"
	"github.com/oshokin/tone-alert/internal/domain/tone"
	"github.com/oshokin/tone-alert/internal/logger"
)

const (
	// connectTimeout bounds the initial broker handshake.
	connectTimeout = 10 * time.Second
	// publishTimeout bounds one acknowledged publish.
	publishTimeout = 5 * time.Second
	// disconnectQuiesce is how long Close lets in-flight work finish, in ms.
	disconnectQuiesce = 250
	// qos is at-least-once, so a pair is not lost on a reconnect.
	qos = 1
)

var (
	// ErrNoBroker is returned when the broker address is empty.
	ErrNoBroker = errors.New("mqtt broker is not configured")
	// ErrTimeout is returned when the broker does not acknowledge in time.
	ErrTimeout = errors.New("mqtt operation timed out")
)

// PairMessage is the JSON payload published for every tone pair.
type PairMessage struct {
	Timestamp  time.Time `json:"timestamp"`
	FrequencyA float64   `json:"frequencyA"`
	FrequencyB float64   `json:"frequencyB"`
	Alias      string    `json:"alias,omitempty"`
}

// Publisher sends tone pairs to one topic.
type Publisher struct {
	client paho.Client
	topic  string
}

// Connect dials the broker described by cfg.
func Connect(ctx context.Context, cfg config.MQTT) (*Publisher, error) {
	if cfg.Broker == "" {
		return nil, ErrNoBroker
	}

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "tone-alert-" + uuid.NewString()
	}

	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(clientID).
		SetConnectTimeout(connectTimeout).
		SetAutoReconnect(true).
		SetKeepAlive(time.Minute).
		SetPingTimeout(10 * time.Second)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}

	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}

	opts.SetOnConnectHandler(func(paho.Client) {
		logger.InfoKV(ctx, "MQTT connected", "broker", cfg.Broker)
	})
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		logger.WarnKV(ctx, "MQTT connection lost", "broker", cfg.Broker, "error", err)
	})

	client := paho.NewClient(opts)

	if err := wait(ctx, client.Connect(), connectTimeout); err != nil {
		return nil, fmt.Errorf("connect to %s: %w", cfg.Broker, err)
	}

	return newPublisher(client, cfg.Topic), nil
}

func newPublisher(client paho.Client, topic string) *Publisher {
	if topic == "" {
		topic = config.DefaultMQTTTopic
	}

	return &Publisher{
		client: client,
		topic:  topic,
	}
}

// Topic returns the destination topic.
func (p *Publisher) Topic() string {
	return p.topic
}

// PublishPair publishes a PairDetected event, tagged with the matched alias
// when there is one, and waits for the broker acknowledgement.
func (p *Publisher) PublishPair(ctx context.Context, ev tone.Event, alias string) error {
	payload, err := json.Marshal(PairMessage{
		Timestamp:  ev.At.UTC(),
		FrequencyA: ev.FrequencyA,
		FrequencyB: ev.FrequencyB,
		Alias:      alias,
	})
	if err != nil {
		return fmt.Errorf("encode pair: %w", err)
	}

	if err := wait(ctx, p.client.Publish(p.topic, qos, false, payload), publishTimeout); err != nil {
		return fmt.Errorf("publish to %s: %w", p.topic, err)
	}

	return nil
}

// Close disconnects from the broker.
func (p *Publisher) Close() {
	if p == nil || p.client == nil {
		return
	}

	p.client.Disconnect(disconnectQuiesce)
}

// wait blocks until token completes, ctx ends or timeout passes.
func wait(ctx context.Context, token paho.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return ErrTimeout
	}
}
