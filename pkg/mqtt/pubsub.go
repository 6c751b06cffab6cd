package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Scheduler topics, relative to Config.BaseTopic.
const (
	RoundsCompletedTopic = "fl/rounds/completed"
	RunCompletedTopic    = "fl/runs/completed"
	ControlTopic         = "fl/control"
	StatusTopic          = "fl/status"
)

const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

const (
	connTimeout    = 10 * time.Second
	reconnTimeout  = time.Minute
	disconnTimeout = 250
)

var (
	errPublishTimeout     = errors.New("failed to publish due to timeout reached")
	errSubscribeTimeout   = errors.New("failed to subscribe due to timeout reached")
	errUnsubscribeTimeout = errors.New("failed to unsubscribe due to timeout reached")
	errEmptyTopic         = errors.New("empty topic")
	errEmptyID            = errors.New("empty ID")
)

type Config struct {
	Address   string
	QoS       byte
	Timeout   time.Duration
	ClientID  string
	Username  string
	Password  string
	BaseTopic string
}

// Message is a decoded scheduler message. Topic is relative to the base topic.
type Message struct {
	Topic   string
	Payload map[string]any
}

type Handler func(msg Message) error

// Status is retained on the status topic: online once connected and offline
// on disconnect or, through the last will, when the connection drops.
type Status struct {
	Status   string    `json:"status"`
	ClientID string    `json:"client_id"`
	Time     time.Time `json:"time"`
}

// PubSub exchanges JSON messages on topics below a base topic.
type PubSub interface {
	Publish(ctx context.Context, topic string, msg any) error
	Subscribe(ctx context.Context, topic string, handler Handler) error
	Unsubscribe(ctx context.Context, topic string) error
	Disconnect(ctx context.Context) error
}

type pubsub struct {
	client mqtt.Client
	cfg    Config
	logger *slog.Logger
}

func NewPubSub(cfg Config, logger *slog.Logger) (PubSub, error) {
	if cfg.ClientID == "" {
		return nil, errEmptyID
	}

	ps := &pubsub{
		cfg:    cfg,
		logger: logger,
	}
	client, err := ps.connect()
	if err != nil {
		return nil, err
	}
	ps.client = client

	return ps, nil
}

func (ps *pubsub) Publish(ctx context.Context, topic string, msg any) error {
	if topic == "" {
		return errEmptyTopic
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	return ps.wait(ctx, ps.client.Publish(ps.topic(topic), ps.cfg.QoS, false, data), errPublishTimeout)
}

func (ps *pubsub) Subscribe(ctx context.Context, topic string, handler Handler) error {
	if topic == "" {
		return errEmptyTopic
	}

	return ps.wait(ctx, ps.client.Subscribe(ps.topic(topic), ps.cfg.QoS, ps.mqttHandler(handler)), errSubscribeTimeout)
}

func (ps *pubsub) Unsubscribe(ctx context.Context, topic string) error {
	if topic == "" {
		return errEmptyTopic
	}

	return ps.wait(ctx, ps.client.Unsubscribe(ps.topic(topic)), errUnsubscribeTimeout)
}

// Disconnect retains an offline status before closing the connection.
func (ps *pubsub) Disconnect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	token := ps.client.Publish(ps.topic(StatusTopic), ps.cfg.QoS, true, statusPayload(StatusOffline, ps.cfg.ClientID))
	if err := ps.wait(ctx, token, errPublishTimeout); err != nil {
		ps.logger.Warn("failed to publish offline status", slog.Any("error", err))
	}
	ps.client.Disconnect(disconnTimeout)

	return nil
}

func (ps *pubsub) wait(ctx context.Context, token mqtt.Token, timeoutErr error) error {
	if err := token.Error(); err != nil {
		return err
	}

	timer := time.NewTimer(ps.cfg.Timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return timeoutErr
	}
}

func (ps *pubsub) topic(relative string) string {
	return joinTopic(ps.cfg.BaseTopic, relative)
}

func (ps *pubsub) connect() (mqtt.Client, error) {
	statusTopic := ps.topic(StatusTopic)
	opts := mqtt.NewClientOptions().
		AddBroker(ps.cfg.Address).
		SetClientID(ps.cfg.ClientID).
		SetUsername(ps.cfg.Username).
		SetPassword(ps.cfg.Password).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectTimeout(connTimeout).
		SetMaxReconnectInterval(reconnTimeout).
		SetBinaryWill(statusTopic, statusPayload(StatusOffline, ps.cfg.ClientID), ps.cfg.QoS, true)

	opts.SetOnConnectHandler(func(c mqtt.Client) {
		ps.logger.Info("MQTT connection established", slog.String("status_topic", statusTopic))
		// Runs on every reconnect so the retained status recovers from the will.
		c.Publish(statusTopic, ps.cfg.QoS, true, statusPayload(StatusOnline, ps.cfg.ClientID))
	})

	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		ps.logger.Warn("MQTT connection lost", slog.Any("error", err))
	})

	opts.SetReconnectingHandler(func(_ mqtt.Client, options *mqtt.ClientOptions) {
		ps.logger.Info("MQTT reconnecting", slog.String("client_id", options.ClientID))
	})

	client := mqtt.NewClient(opts)

	token := client.Connect()
	if token.Error() != nil {
		return nil, errors.Join(errors.New("failed to connect to MQTT broker"), token.Error())
	}

	if ok := token.WaitTimeout(ps.cfg.Timeout); !ok {
		return nil, errors.New("timeout reached while connecting to MQTT broker")
	}
	if err := token.Error(); err != nil {
		return nil, errors.Join(errors.New("failed to connect to MQTT broker"), err)
	}

	return client, nil
}

func (ps *pubsub) mqttHandler(h Handler) mqtt.MessageHandler {
	return func(_ mqtt.Client, m mqtt.Message) {
		msg, err := decode(ps.cfg.BaseTopic, m.Topic(), m.Payload())
		if err != nil {
			ps.logger.Warn(fmt.Sprintf("Failed to decode message on %s: %s", m.Topic(), err))

			return
		}

		if err := h(msg); err != nil {
			ps.logger.Warn(fmt.Sprintf("Failed to handle message on %s: %s", msg.Topic, err))
		}

		m.Ack()
	}
}

func joinTopic(base, relative string) string {
	if base == "" {
		return relative
	}

	return path.Join(base, relative)
}

func decode(base, topic string, payload []byte) (Message, error) {
	msg := Message{Topic: topic}
	if base != "" {
		msg.Topic = strings.TrimPrefix(topic, strings.TrimSuffix(base, "/")+"/")
	}
	if err := json.Unmarshal(payload, &msg.Payload); err != nil {
		return Message{}, err
	}

	return msg, nil
}

func statusPayload(status, clientID string) []byte {
	data, _ := json.Marshal(Status{
		Status:   status,
		ClientID: clientID,
		Time:     time.Now().UTC(),
	})

	return data
}
