package mqtt

import (
	"fmt"
	"log"
	"sync"
	"time"

	mqttlib "github.com/eclipse/paho.mqtt.golang"
	"github.com/virtbus/vswitch2mqtt/internal/configuration"
	"github.com/virtbus/vswitch2mqtt/internal/logger"
)

type MqttClient interface {
	Dispose()
	// Subscribe registers interest in a topic. The subscription is issued
	// on the broker once connected and re-issued after every reconnect.
	Subscribe(topic string)
	// Publish is best effort: it returns ErrNotConnected while the broker
	// is unreachable and never blocks on delivery.
	Publish(topic string, payload []byte, retained bool) error
	SetMessageCallback(callback func(topic string, message []byte))
	IsConnected() bool
}

// NewClient connects to the broker described by config. Connection
// failures are retried by the underlying paho transport, initial connect
// included, so the returned client is usable immediately.
func NewClient(config configuration.MqttConfiguration, clientID string, logLevel int) (MqttClient, func()) {
	retClient := defaultMqttClient{
		logger: logger.GetLogger("[MQTT Client]", logLevel),
		topics: make(map[string]struct{}),
	}

	mqttlib.ERROR = log.New(retClient.logger.GetWriter(), "[MQTT Client]", 0)

	opts := mqttlib.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", config.BrokerAddress, config.Port))
	opts.SetClientID(clientID)
	if config.Username != "" {
		opts.SetUsername(config.Username)
		opts.SetPassword(config.Password)
	}
	opts.AutoReconnect = true
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(1 * time.Second)
	opts.OnConnect = func(client mqttlib.Client) {
		retClient.logger.Info("Connected to MQTT on '%v:%v'", config.BrokerAddress, config.Port)
		retClient.resubscribe()
	}
	opts.OnConnectionLost = func(client mqttlib.Client, err error) {
		retClient.logger.Warn("Connection lost: %v", err)
	}

	retClient.innerClient = mqttlib.NewClient(opts)

	token := retClient.innerClient.Connect()
	go func() {
		if token.Wait() && token.Error() != nil {
			retClient.logger.Error("MQTT connect error: %v", token.Error())
		}
	}()

	return &retClient, func() { retClient.Dispose() }
}

type defaultMqttClient struct {
	innerClient     mqttlib.Client
	logger          logger.Logger
	messageCallback func(topic string, message []byte)
	topics          map[string]struct{}
	mu              sync.Mutex
}

func (cl *defaultMqttClient) Dispose() {
	cl.logger.Debug("Disposing MQTT client")
	cl.innerClient.Disconnect(250)
}

func (cl *defaultMqttClient) Subscribe(topic string) {
	cl.mu.Lock()
	cl.topics[topic] = struct{}{}
	cl.mu.Unlock()

	if cl.innerClient.IsConnected() {
		cl.innerClient.Subscribe(topic, 0, cl.onMessageReceived)
	}
}

func (cl *defaultMqttClient) Publish(topic string, payload []byte, retained bool) error {
	if !cl.innerClient.IsConnected() {
		return ErrNotConnected
	}

	cl.innerClient.Publish(topic, 0, retained, payload)

	return nil
}

func (cl *defaultMqttClient) SetMessageCallback(callback func(topic string, message []byte)) {
	cl.mu.Lock()
	cl.messageCallback = callback
	cl.mu.Unlock()
}

func (cl *defaultMqttClient) IsConnected() bool {
	return cl.innerClient.IsConnected()
}

// resubscribe re-issues every tracked subscription. It runs from the
// OnConnect handler, covering both the initial connect and reconnects.
func (cl *defaultMqttClient) resubscribe() {
	cl.mu.Lock()
	topics := make([]string, 0, len(cl.topics))
	for topic := range cl.topics {
		topics = append(topics, topic)
	}
	cl.mu.Unlock()

	for _, topic := range topics {
		cl.logger.Debug("Subscribing to topic '%v'", topic)
		cl.innerClient.Subscribe(topic, 0, cl.onMessageReceived)
	}
}

func (cl *defaultMqttClient) onMessageReceived(client mqttlib.Client, msg mqttlib.Message) {
	cl.mu.Lock()
	callback := cl.messageCallback
	cl.mu.Unlock()

	if callback != nil {
		callback(msg.Topic(), msg.Payload())
	}
}
