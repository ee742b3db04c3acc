package registration

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/nerrad567/canvas-link/internal/hubdata"
	"github.com/nerrad567/canvas-link/internal/infrastructure/config"
	"github.com/nerrad567/canvas-link/internal/infrastructure/mqtt"
)

// TopicsFromDocument returns the provisioned topics stored in doc.
func TopicsFromDocument(doc hubdata.Document) mqtt.TopicSet {
	req := doc.MQTT.Topics.Requests
	bc := doc.MQTT.Topics.Broadcasts
	return mqtt.TopicSet{
		AllDevices:               req.AllDevices,
		AllCanvasHubs:            req.AllCanvasHubs,
		DeviceTopicPrefix:        req.DeviceTopicPrefix,
		DeviceRequestTopicPrefix: req.DeviceRequestTopicPrefix,
		HealthTopic:              bc.HealthTopic,
		StateTopic:               bc.StateTopic,
	}
}

// storeTopics replaces the whole topic section of doc with t.
func storeTopics(doc *hubdata.Document, t mqtt.TopicSet) {
	doc.MQTT.Topics = hubdata.TopicsSection{
		Requests: hubdata.RequestTopics{
			AllDevices:               t.AllDevices,
			AllCanvasHubs:            t.AllCanvasHubs,
			DeviceTopicPrefix:        t.DeviceTopicPrefix,
			DeviceRequestTopicPrefix: t.DeviceRequestTopicPrefix,
		},
		Broadcasts: hubdata.BroadcastTopics{
			HealthTopic: t.HealthTopic,
			StateTopic:  t.StateTopic,
		},
	}
}

// SessionConfig builds the broker session settings for a registered
// document. Broker fields missing from the document fall back to mqttCfg.
func SessionConfig(doc hubdata.Document, tlsCfg *tls.Config, mqttCfg config.MQTTConfig) mqtt.Config {
	broker := doc.MQTT.Broker
	endpoint := broker.Endpoint
	if endpoint == "" {
		endpoint = mqttCfg.Broker.Endpoint
	}
	port := broker.Port
	if port == 0 {
		port = mqttCfg.Broker.Port
	}
	origin := doc.MQTT.Publish.OriginName
	if origin == "" {
		origin = mqttCfg.OriginName
	}

	return mqtt.Config{
		Endpoint:      endpoint,
		Port:          port,
		ClientID:      doc.Hub.ClientID,
		Retain:        broker.Retain,
		CleanSession:  broker.CleanSession,
		TLS:           tlsCfg,
		Topics:        TopicsFromDocument(doc),
		OriginName:    origin,
		QueueCapacity: mqttCfg.QueueCapacity,
		KeepAlive:     time.Duration(mqttCfg.KeepAlive) * time.Second,
		ReconnectMax:  time.Duration(mqttCfg.Reconnect.MaxDelay) * time.Second,
	}
}

// ConnectSession configures the session from the current document and
// connects it. It is a no-op unless the session is disconnected.
func (w *Workflow) ConnectSession() error {
	if w.session == nil || w.session.State() != mqtt.StateDisconnected {
		return nil
	}
	doc := w.store.Snapshot()
	if !doc.Registered() {
		return ErrNotRegistered
	}

	protocol := doc.MQTT.Broker.Protocol
	if protocol == "" {
		protocol = w.mqttCfg.Broker.Protocol
	}
	tlsCfg, err := w.creds.TLSConfig(protocol)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrNoTLSMaterial, err)
	}

	if err := w.session.Reconfigure(SessionConfig(doc, tlsCfg, w.mqttCfg)); err != nil {
		return fmt.Errorf("reconfiguring session: %w", err)
	}
	return w.session.Connect()
}

// KeepSession retries the broker connection every interval while the
// device is registered and the session is down. Paho reconnects an
// established session on its own; the first connect is not retried by it.
func (w *Workflow) KeepSession(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if !w.Registered() {
				continue
			}
			if err := w.ConnectSession(); err != nil {
				w.logger.Warn("broker connect failed", "error", err)
			}
		}
	}
}
