// Package mqtt provides the hub's broker session.
//
// This package manages:
//   - One mutual-TLS session to the cloud broker (ALPN protocol negotiation)
//   - Last will (alive=false) and the alive=true health message on connect
//   - A bounded offline publish queue, drained in order on (re)connect
//   - One batched subscribe of the provisioned request topics
//   - Fan-out of inbound messages to a dispatcher and to wildcard handlers
//   - Topic derivation for a registered device
//
// # Architecture
//
// The hub is a device on the cloud broker. Requests arrive on the device's
// request topic, responses and state broadcasts go back out on topics
// derived from the same prefix:
//
//	cloud app ↔ broker ↔ Session ↔ router / state broadcaster
//
// # Security Considerations
//
//   - The session authenticates with the device certificate issued at
//     registration; there is no password authentication
//   - The broker certificate is verified against the pinned root CA
//   - A nil TLS config (plain TCP) is for local integration tests only
//
// # Usage
//
//	s := mqtt.NewSession(mqtt.Config{
//	    Endpoint: doc.MQTT.Broker.Endpoint,
//	    Port:     doc.MQTT.Broker.Port,
//	    ClientID: doc.Hub.ClientID,
//	    TLS:      tlsCfg,
//	    Topics:   topics,
//	}, logger)
//	s.SetDispatcher(router)
//	if err := s.Connect(); err != nil {
//	    // retry later
//	}
//	defer s.Disconnect(true)
//
//	s.Publish(topics.StateTopic, envelope, 0, true)
package mqtt
