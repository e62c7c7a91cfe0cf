// Package mqtt provides the MQTT client dashauth uses to publish auth events.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Publishing with QoS acknowledgement and a payload size limit
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// Topics live under a configurable prefix:
//
//	<prefix>/auth/event/<type>   non-retained auth events
//	<prefix>/system/status       retained online/offline status
//
// # Security Considerations
//
//   - Use TLS (cfg.Broker.TLS=true) outside local development
//   - Event payloads never contain passwords or tokens
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.PublishEvent(client.Topics().AuthEvent("login"), payload)
package mqtt
