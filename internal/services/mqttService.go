package services

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"
	nanoid "github.com/matoous/go-nanoid/v2"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/amine-amaach/simulators/mtConnectOPCUA/internal/addressspace"
	"github.com/amine-amaach/simulators/mtConnectOPCUA/internal/config"
	"github.com/amine-amaach/simulators/mtConnectOPCUA/internal/log"
	"github.com/amine-amaach/simulators/mtConnectOPCUA/internal/model"
)

const (
	queueSize = 1024
	// drainTimeout bounds the publishing of queued messages once Run is cancelled.
	drainTimeout = 5 * time.Second
)

var mqttMessages = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "mtua",
	Name:      "mqtt_messages_total",
	Help:      "Change notifications handled by the MQTT service, by outcome.",
}, []string{"outcome"})

// Publisher is the part of the connection manager the service publishes through.
type Publisher interface {
	Publish(ctx context.Context, p *paho.Publish) (*paho.PublishResponse, error)
}

// MqttService publishes a JSON message for every change notification it observes.
type MqttService struct {
	cfg    config.MQTT
	logger *zap.SugaredLogger
	queue  chan model.Message
}

func NewMqttService(cfg config.MQTT, logger *zap.SugaredLogger) *MqttService {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if cfg.ClientID == "" {
		if id, err := nanoid.New(); err == nil {
			cfg.ClientID = "mtconnectua-" + id
		}
	}
	return &MqttService{cfg: cfg, logger: logger, queue: make(chan model.Message, queueSize)}
}

// Connect creates the MQTT client and waits for the first connection.
func (svc *MqttService) Connect(ctx context.Context) (*autopaho.ConnectionManager, context.CancelFunc, error) {
	serverURL, err := url.Parse(svc.cfg.URL)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "Server name not valid ❌ %s", svc.cfg.URL)
	}
	logger := svc.logger

	cliCfg := autopaho.ClientConfig{
		BrokerUrls:        []*url.URL{serverURL},
		KeepAlive:         svc.cfg.KeepAlive,
		ConnectRetryDelay: svc.cfg.RetryDelay,
		OnConnectionUp: func(cm *autopaho.ConnectionManager, connAck *paho.Connack) {
			logger.Info(log.Colorize("MQTT Connection up ✅", log.Green))
		},
		OnConnectError: func(err error) {
			logger.Errorf("Error whilst attempting connection ❌ %s", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID:      svc.cfg.ClientID,
			OnClientError: func(err error) { logger.Errorf("Server requested disconnect ✖️ %s", err) },
			OnServerDisconnect: func(d *paho.Disconnect) {
				if d.Properties != nil {
					logger.Warnf("Server requested disconnect ✖️ %s", d.Properties.ReasonString)
				} else {
					logger.Warnf("Server requested disconnect ✖️ reason code: %d", d.ReasonCode)
				}
			},
		},
	}
	cliCfg.SetUsernamePassword(svc.cfg.User, []byte(svc.cfg.Password))

	ctx, cancel := context.WithCancel(ctx)
	cm, err := autopaho.NewConnection(ctx, cliCfg)
	if err != nil {
		cancel()
		return nil, nil, errors.Wrapf(err, "initial MQTT connection to %s", serverURL)
	}
	// AwaitConnection returns immediately when the connection is up.
	if err := cm.AwaitConnection(ctx); err != nil {
		cancel()
		return nil, nil, err
	}
	return cm, cancel, nil
}

// Close cancels the connection made by Connect.
func (svc *MqttService) Close(cancel context.CancelFunc) {
	svc.logger.Info(log.Colorize("MQTT Connection Closed ✖️", log.Magenta))
	if cancel != nil {
		cancel()
	}
}

// OnNodeChanged implements addressspace.Observer. It queues the message and drops it
// when the queue is full.
func (svc *MqttService) OnNodeChanged(_ *addressspace.Context, n *addressspace.Node, mask addressspace.ChangeMask) {
	msg := model.NewMessage(svc.cfg.TopicPrefix, n, mask)
	select {
	case svc.queue <- msg:
	default:
		mqttMessages.WithLabelValues("dropped").Inc()
		svc.logger.Warnw("MQTT queue full, message dropped", "topic", msg.ItemTopic)
	}
}

// Run publishes queued messages through pub until ctx is done, then publishes what is
// still queued.
func (svc *MqttService) Run(ctx context.Context, pub Publisher) error {
	for {
		select {
		case <-ctx.Done():
			svc.drain(pub)
			return ctx.Err()
		case msg := <-svc.queue:
			if err := svc.Publish(ctx, pub, msg); err != nil {
				svc.logger.Errorf("MQTT publish error ❌ [%s]", err)
			}
		}
	}
}

func (svc *MqttService) drain(pub Publisher) {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	for ctx.Err() == nil {
		select {
		case msg := <-svc.queue:
			if err := svc.Publish(ctx, pub, msg); err != nil {
				svc.logger.Errorf("MQTT publish error ❌ [%s]", err)
			}
		default:
			return
		}
	}
	if n := len(svc.queue); n > 0 {
		mqttMessages.WithLabelValues("dropped").Add(float64(n))
		svc.logger.Warnw("MQTT queue not drained", "messages", n)
	}
}

// Publish sends one message to its topic.
func (svc *MqttService) Publish(ctx context.Context, pub Publisher, msg model.Message) error {
	payload, err := msg.Payload()
	if err != nil {
		mqttMessages.WithLabelValues("failed").Inc()
		return errors.Wrapf(err, "encode %s", msg.ItemTopic)
	}
	svc.logger.Debugw(log.Colorize(fmt.Sprintf("Sending Message Payload for : [%s] ⌛", msg.ItemTopic), log.Yellow))
	pubResp, err := pub.Publish(ctx, &paho.Publish{
		QoS:     svc.cfg.QoS,
		Topic:   msg.ItemTopic,
		Retain:  svc.cfg.Retain,
		Payload: payload,
	})
	if err != nil {
		mqttMessages.WithLabelValues("failed").Inc()
		return errors.Wrapf(err, "publish %s [%+v]", msg.ItemTopic, pubResp)
	}
	mqttMessages.WithLabelValues("published").Inc()
	svc.logger.Debugw(log.Colorize(fmt.Sprintf("Message Payload Published to : [%s] ✅", msg.ItemTopic), log.Green),
		"ItemName", msg.ItemName, "ItemValue", msg.ItemValue, "ChangeMask", msg.ChangeMask)
	return nil
}
