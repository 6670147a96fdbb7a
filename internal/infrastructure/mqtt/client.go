package mqtt

import (
	"context"
	"fmt"
	"sync"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/neurite-core/internal/infrastructure/config"
)

// Client wraps paho.mqtt.golang as the device's broker session.
//
// Every broker operation is fire-and-forget: Connect, Publish and Subscribe
// return as soon as the request is queued with paho, and outcomes arrive via
// the registered callbacks. Input validation errors are returned immediately.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - Subscriptions are automatically restored on reconnection.
type Client struct {
	client   pahomqtt.Client
	options  *pahomqtt.ClientOptions
	cfg      config.MQTTConfig
	clientID string
	topics   Topics

	// subscriptions tracks active subscriptions for re-subscription on reconnect.
	subscriptions map[string]subscription
	subMu         sync.RWMutex

	// connected tracks current connection state.
	connected  bool
	connecting bool
	connMu     sync.RWMutex

	onConnect    func()
	onDisconnect func(err error)
	onPublished  func(topic string)
	callbackMu   sync.RWMutex

	logger   Logger
	loggerMu sync.RWMutex
}

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// subscription holds subscription details for re-subscription on reconnect.
type subscription struct {
	topic   string
	qos     byte
	handler MessageHandler
}

// MessageHandler is the callback signature for received messages.
//
// Handlers are invoked on paho's goroutines. The payload slice is only valid
// for the duration of the call and must not be retained.
//
// Returns:
//   - error: Logged but does not affect message acknowledgment
type MessageHandler func(topic string, payload []byte) error

// New prepares a broker session without connecting.
//
// It performs the three initialisation steps of the session:
//  1. Connection: broker URL from host, port and TLS mode
//  2. Client: client ID, credentials, keepalive and clean session
//  3. Last will: offline payload on the will topic, retained
//
// Parameters:
//   - cfg: MQTT configuration from config.yaml
//   - deviceID: Device identity substituted into the client ID and topics
//
// Returns:
//   - *Client: Session ready for Connect
func New(cfg config.MQTTConfig, deviceID string) *Client {
	c := &Client{
		cfg:           cfg,
		clientID:      config.Expand(cfg.Broker.ClientID, deviceID),
		topics:        NewTopics(cfg.Topics, deviceID),
		subscriptions: make(map[string]subscription),
	}

	opts := buildClientOptions(cfg, c.clientID)
	configureLWT(opts, c.topics.Will, cfg.WillPayload)

	opts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		c.handleConnect()
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.handleDisconnect(err)
	})

	c.options = opts
	c.client = pahomqtt.NewClient(opts)
	return c
}

// newWithClient builds a session around an existing paho client.
func newWithClient(cfg config.MQTTConfig, deviceID string, pc pahomqtt.Client) *Client {
	return &Client{
		client:        pc,
		cfg:           cfg,
		clientID:      config.Expand(cfg.Broker.ClientID, deviceID),
		topics:        NewTopics(cfg.Topics, deviceID),
		subscriptions: make(map[string]subscription),
	}
}

// Connect requests the broker connection and returns immediately.
//
// paho keeps retrying in the background; the OnConnect callback fires once
// the session is established. Calling Connect while a request is already
// outstanding is a no-op. If the session is already up the OnConnect
// callback is invoked again so the caller learns it is connected.
func (c *Client) Connect() error {
	c.connMu.Lock()
	if c.connected {
		c.connMu.Unlock()
		c.notifyConnected()
		return nil
	}
	if c.connecting {
		c.connMu.Unlock()
		return nil
	}
	c.connecting = true
	c.connMu.Unlock()

	// paho reports true while it is reconnecting on its own.
	if c.client.IsConnected() {
		c.connMu.Lock()
		c.connecting = false
		c.connMu.Unlock()
		return nil
	}

	token := c.client.Connect()
	go c.await(token, func(err error) {
		c.connMu.Lock()
		c.connecting = false
		c.connMu.Unlock()
		if err != nil {
			c.logError("MQTT connect failed", "broker", c.brokerAddress(), "error", err)
		}
	})

	return nil
}

// handleConnect is called when the connection is established.
func (c *Client) handleConnect() {
	c.connMu.Lock()
	c.connected = true
	c.connecting = false
	c.connMu.Unlock()

	c.restoreSubscriptions()
	c.publishOnlineStatus()
	c.notifyConnected()
}

func (c *Client) notifyConnected() {
	c.callbackMu.RLock()
	callback := c.onConnect
	c.callbackMu.RUnlock()
	if callback != nil {
		callback()
	}
}

// handleDisconnect is called when the connection is lost.
func (c *Client) handleDisconnect(err error) {
	c.connMu.Lock()
	c.connected = false
	c.connMu.Unlock()

	c.callbackMu.RLock()
	callback := c.onDisconnect
	c.callbackMu.RUnlock()
	if callback != nil {
		callback(err)
	}
}

// restoreSubscriptions re-subscribes to all tracked topics after reconnect.
func (c *Client) restoreSubscriptions() {
	c.subMu.RLock()
	defer c.subMu.RUnlock()

	for _, sub := range c.subscriptions {
		c.client.Subscribe(sub.topic, sub.qos, c.wrapHandler(sub.handler))
	}
}

// publishOnlineStatus overwrites the retained last will with the online payload.
func (c *Client) publishOnlineStatus() {
	if c.topics.Will == "" {
		return
	}
	c.client.Publish(c.topics.Will, 0, true, onlinePayload)
}

// Close gracefully disconnects from the MQTT broker.
//
// It publishes the graceful offline payload (same topic as the last will),
// waits briefly for it, then disconnects with a quiesce period.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}

	if c.IsConnected() && c.topics.Will != "" {
		token := c.client.Publish(c.topics.Will, 0, true, c.cfg.WillPayload)
		token.WaitTimeout(defaultPublishTimeout)
	}

	c.client.Disconnect(defaultDisconnectQuiesce)

	c.connMu.Lock()
	c.connected = false
	c.connecting = false
	c.connMu.Unlock()

	return nil
}

// HealthCheck verifies the MQTT connection is alive.
func (c *Client) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("mqtt health check: %w", ctx.Err())
	default:
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}

	return nil
}

// IsConnected returns the current connection state.
func (c *Client) IsConnected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.connected && c.client.IsConnected()
}

// ClientID returns the expanded client identifier.
func (c *Client) ClientID() string {
	return c.clientID
}

// Topics returns the expanded topic set for this device.
func (c *Client) Topics() Topics {
	return c.topics
}

// SetOnConnect sets a callback to be invoked when connection is established.
// This is called on initial connect and on every reconnect.
func (c *Client) SetOnConnect(callback func()) {
	c.callbackMu.Lock()
	c.onConnect = callback
	c.callbackMu.Unlock()
}

// SetOnDisconnect sets a callback to be invoked when connection is lost.
func (c *Client) SetOnDisconnect(callback func(err error)) {
	c.callbackMu.Lock()
	c.onDisconnect = callback
	c.callbackMu.Unlock()
}

// SetOnPublished sets a callback invoked after the broker accepted a publish.
// For QoS 0 this fires once the message has been written to the network.
func (c *Client) SetOnPublished(callback func(topic string)) {
	c.callbackMu.Lock()
	c.onPublished = callback
	c.callbackMu.Unlock()
}

// SetLogger sets a logger for error and panic logging.
// If not set, errors in handlers are silently ignored.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

func (c *Client) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}

func (c *Client) logError(msg string, args ...any) {
	if logger := c.getLogger(); logger != nil {
		logger.Error(msg, args...)
	}
}

func (c *Client) brokerAddress() string {
	return fmt.Sprintf("%s:%d", c.cfg.Broker.Host, c.cfg.Broker.Port)
}

// await blocks on a paho token and hands its outcome to done.
// It always runs on its own goroutine so callers never wait on the network.
func (c *Client) await(token pahomqtt.Token, done func(err error)) {
	<-token.Done()
	done(token.Error())
}

// wrapHandler wraps a MessageHandler with panic recovery and optional logging.
func (c *Client) wrapHandler(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				c.logError("MQTT handler panic recovered",
					"topic", msg.Topic(),
					"panic", r,
				)
			}
		}()

		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			if logger := c.getLogger(); logger != nil {
				logger.Warn("MQTT handler returned error",
					"topic", msg.Topic(),
					"error", err,
				)
			}
		}
	}
}
