package mqttbridge

import (
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// client is the subset of an MQTT client the bridge depends on. Production
// code uses pahoClient (backed by eclipse/paho.mqtt.golang); tests use an
// in-memory fake so the bridge's routing/debounce/discovery logic can run
// without a broker.
type client interface {
	Connect() error
	Disconnect()
	IsConnected() bool
	Publish(topic string, retained bool, payload []byte) error
	Subscribe(topic string, handler func(topic string, payload []byte)) error
}

// pahoClient adapts eclipse/paho.mqtt.golang's mqtt.Client to client. The
// connection-lifecycle callbacks (OnConnect/OnConnectionLost) are wired by
// NewPahoClient so the bridge's onConnect hook fires on every (re)connect,
// matching spec.md §4.6's "on connect, re-subscribe... and re-publish every
// retained entry" rule — the underlying library owns reconnection itself.
type pahoClient struct {
	inner        mqtt.Client
	onConnect    func()
	onDisconnect func()
}

// NewPahoClient dials brokerURL with the given MQTT client id and wires
// onConnect to fire on every successful (re)connection, and onDisconnect
// when the connection drops. close/offline/reconnect/error are observed
// only through these two hooks and logging — the library owns reconnection
// itself (spec.md §4.6 "Connection lifecycle").
func NewPahoClient(brokerURL, clientID string, onConnect, onDisconnect func()) client {
	pc := &pahoClient{onConnect: onConnect, onDisconnect: onDisconnect}

	opts := mqtt.NewClientOptions().
		AddBroker(brokerURL).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOnConnectHandler(func(mqtt.Client) {
			log.Printf("📶 mqttbridge: connected to %s", brokerURL)
			if pc.onConnect != nil {
				pc.onConnect()
			}
		}).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.Printf("📶 mqttbridge: connection lost to %s: %v", brokerURL, err)
			if pc.onDisconnect != nil {
				pc.onDisconnect()
			}
		})

	pc.inner = mqtt.NewClient(opts)
	return pc
}

func (c *pahoClient) Connect() error {
	token := c.inner.Connect()
	token.Wait()
	return token.Error()
}

func (c *pahoClient) Disconnect() {
	c.inner.Disconnect(250)
}

func (c *pahoClient) IsConnected() bool {
	return c.inner.IsConnected()
}

// Publish drops the message silently if the client is disconnected, per
// spec.md §4.6: "Sends on a disconnected client are dropped silently."
func (c *pahoClient) Publish(topic string, retained bool, payload []byte) error {
	if !c.inner.IsConnected() {
		return nil
	}
	token := c.inner.Publish(topic, 0, retained, payload)
	token.Wait()
	return token.Error()
}

func (c *pahoClient) Subscribe(topic string, handler func(topic string, payload []byte)) error {
	token := c.inner.Subscribe(topic, 0, func(_ mqtt.Client, msg mqtt.Message) {
		handler(msg.Topic(), msg.Payload())
	})
	token.Wait()
	return token.Error()
}
