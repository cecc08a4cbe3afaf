package bridge

import (
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/dutlab/portspawn/internal/config"
	"github.com/dutlab/portspawn/internal/naming"
)

// publishWait bounds how long the sender waits for broker confirmation
// of one message.
const publishWait = 5 * time.Second

// newMQTTClient is replaced in tests to avoid a real broker.
var newMQTTClient = func(opts *mqtt.ClientOptions) mqtt.Client {
	return mqtt.NewClient(opts)
}

// MQTTBridge publishes raw port output to <topic_prefix>/<port name>.
// Subscribers see exactly the bytes the port produced.
type MQTTBridge struct {
	logger *slog.Logger
	client mqtt.Client
	prefix string
	qos    byte
	disp   *dispatch
	done   chan struct{}
}

// NewMQTTBridge connects to the broker and starts the publish
// goroutine. The connection auto-reconnects; publishes during an
// outage are dropped with a warning.
func NewMQTTBridge(cfg config.MQTTConfig, logger *slog.Logger) (*MQTTBridge, error) {
	if logger == nil {
		logger = slog.Default()
	}

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "portmon-" + naming.RunID()[:8]
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(clientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetConnectTimeout(10 * time.Second)
	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(5 * time.Second)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(time.Minute)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn("mqtt connection lost", "broker", cfg.Broker, "error", err)
	})
	opts.SetOnConnectHandler(func(mqtt.Client) {
		logger.Info("mqtt connected", "broker", cfg.Broker, "client_id", clientID)
	})

	client := newMQTTClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connect mqtt broker %s: %w", cfg.Broker, token.Error())
	}

	b := &MQTTBridge{
		logger: logger,
		client: client,
		prefix: cfg.TopicPrefix,
		qos:    byte(cfg.QoS),
		disp:   newDispatch(),
		done:   make(chan struct{}),
	}
	go b.run()
	return b, nil
}

// Publish queues one chunk of port output for the broker. Never
// blocks.
func (b *MQTTBridge) Publish(port string, data []byte) {
	b.disp.enqueue(Message{Port: port, Data: string(data), Time: time.Now()})
}

func (b *MQTTBridge) run() {
	defer close(b.done)
	for {
		select {
		case msg := <-b.disp.ch:
			b.send(msg)
		case <-b.disp.stopCh:
			// deliver what was queued before the stop, then exit
			for {
				select {
				case msg := <-b.disp.ch:
					b.send(msg)
				default:
					return
				}
			}
		}
	}
}

func (b *MQTTBridge) send(msg Message) {
	topic := b.prefix + "/" + msg.Port
	token := b.client.Publish(topic, b.qos, false, []byte(msg.Data))
	if !token.WaitTimeout(publishWait) {
		b.logger.Warn("mqtt publish timed out", "topic", topic)
		return
	}
	if err := token.Error(); err != nil {
		b.logger.Warn("mqtt publish failed", "topic", topic, "error", err)
	}
}

// Dropped reports how many messages were discarded because the publish
// queue was full.
func (b *MQTTBridge) Dropped() uint64 {
	return b.disp.droppedCount()
}

// Close drains the sender and disconnects from the broker.
func (b *MQTTBridge) Close() error {
	b.disp.stop()
	<-b.done
	b.client.Disconnect(250)
	return nil
}
