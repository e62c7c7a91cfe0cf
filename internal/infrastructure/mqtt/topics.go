package mqtt

import "strings"

// DefaultTopicPrefix is used when no prefix is configured.
const DefaultTopicPrefix = "dashauth"

// Topics builds dashauth MQTT topics under a common prefix.
//
//	topics := mqtt.Topics{Prefix: "dashauth"}
//	topics.AuthEvent("login")
//	// Returns: "dashauth/auth/event/login"
type Topics struct {
	Prefix string
}

func (t Topics) join(parts ...string) string {
	prefix := strings.TrimSuffix(t.Prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return prefix + "/" + strings.Join(parts, "/")
}

// AuthEvent returns the topic for one auth event type.
//
// Example: dashauth/auth/event/login_failed
func (t Topics) AuthEvent(eventType string) string {
	return t.join("auth", "event", eventType)
}

// SystemStatus carries the retained online/offline status (and LWT).
//
// Example: dashauth/system/status
func (t Topics) SystemStatus() string {
	return t.join("system", "status")
}
