// Package events delivers auth events to external sinks.
//
// Three auth.EventRecorder implementations are provided:
//   - MQTTPublisher publishes JSON on <prefix>/auth/event/<type> from a
//     buffered channel drained by a single goroutine
//   - InfluxRecorder writes one auth_events point per event
//   - Fanout forwards each event to several recorders
//
// Recorders never block the request path. When the MQTT buffer is full the
// event is dropped and a warning is logged.
package events
