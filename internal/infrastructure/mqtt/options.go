package mqtt

import (
	"crypto/tls"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// Connection constants.
const (
	// defaultConnectTimeout is the maximum time to wait for a connection attempt.
	defaultConnectTimeout = 10 * time.Second

	// defaultPublishTimeout is the maximum time to wait for publish acknowledgment.
	defaultPublishTimeout = 5 * time.Second

	// defaultDisconnectQuiesce is the time to wait for pending operations on disconnect.
	defaultDisconnectQuiesce = 250 // milliseconds

	// forceDisconnectGrace is how long a forced disconnect lets in-flight work finish.
	forceDisconnectGrace = 1000 // milliseconds

	// defaultKeepAlive is the keepalive interval for the connection.
	defaultKeepAlive = 60 * time.Second

	// defaultQueueCapacity bounds the offline publish queue.
	defaultQueueCapacity = 256

	// maxQoS is the maximum QoS level supported.
	maxQoS = 2

	// requestQoS is used for request topic subscriptions and health messages.
	requestQoS = 0
)

// Config describes one broker session.
type Config struct {
	Endpoint     string
	Port         int
	ClientID     string
	Retain       bool
	CleanSession bool

	// TLS enables mutual TLS. Nil connects over plain TCP (local testing only).
	TLS *tls.Config

	Topics     TopicSet
	OriginName string

	QueueCapacity  int
	KeepAlive      time.Duration
	ConnectTimeout time.Duration
	ReconnectMax   time.Duration
}

func (c Config) withDefaults() Config {
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = defaultQueueCapacity
	}
	if c.KeepAlive <= 0 {
		c.KeepAlive = defaultKeepAlive
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = defaultConnectTimeout
	}
	if c.ReconnectMax <= 0 {
		c.ReconnectMax = time.Minute
	}
	return c
}

// brokerURL returns the broker address with a scheme matching the TLS setting.
func (c Config) brokerURL() string {
	scheme := "tcp"
	if c.TLS != nil {
		scheme = "ssl"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, c.Endpoint, c.Port)
}

// buildClientOptions creates paho MQTT options for a session.
//
// This configures:
//   - Broker URL (tcp:// or ssl:// based on TLS)
//   - Client ID issued at registration
//   - Mutual TLS with ALPN when TLS is set
//   - Last will (alive=false on the health topic)
//   - Auto-reconnect after an established connection is lost
//
// The first connection is not retried by paho. A failed attempt is reported
// to the caller, which decides when to try again.
func buildClientOptions(cfg Config) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()

	opts.AddBroker(cfg.brokerURL())
	opts.SetClientID(cfg.ClientID)
	opts.SetCleanSession(cfg.CleanSession)

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(false)
	opts.SetMaxReconnectInterval(cfg.ReconnectMax)

	opts.SetConnectTimeout(cfg.ConnectTimeout)
	opts.SetKeepAlive(cfg.KeepAlive)

	// Request handlers wait on the printer; run them concurrently so the
	// network loop keeps servicing pings.
	opts.SetOrderMatters(false)

	if cfg.TLS != nil {
		opts.SetTLSConfig(cfg.TLS)
	}

	if cfg.Topics.HealthTopic != "" {
		opts.SetBinaryWill(cfg.Topics.HealthTopic, aliveMessage(cfg.OriginName, false), requestQoS, cfg.Retain)
	}

	return opts
}
