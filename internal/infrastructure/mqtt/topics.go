package mqtt

import "fmt"

// DefaultTopicPrefix is used when no prefix is configured.
const DefaultTopicPrefix = "graymidi"

// Topics provides builders for Gray Logic MIDI topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
// Every MIDI port has its own subtree:
//
//	{prefix}/port/{name}/in      messages produced by the port (raw MIDI bytes)
//	{prefix}/port/{name}/out     messages sent to the port (raw MIDI bytes)
//	{prefix}/port/{name}/status  retained open/closed state of the port
//
// Example:
//
//	topics := mqtt.Topics{Prefix: "studio"}
//	in := topics.PortIn("keys")
//	// Returns: "studio/port/keys/in"
type Topics struct {
	Prefix string
}

func (t Topics) prefix() string {
	if t.Prefix == "" {
		return DefaultTopicPrefix
	}
	return t.Prefix
}

// =============================================================================
// Port Topics
// =============================================================================

// PortIn returns the topic a port's external side publishes its output on.
// The device transmits what arrives here.
//
// Example: graymidi/port/keys/in
func (t Topics) PortIn(port string) string {
	return fmt.Sprintf("%s/port/%s/in", t.prefix(), port)
}

// PortOut returns the topic messages sent to a port are published on.
//
// Example: graymidi/port/keys/out
func (t Topics) PortOut(port string) string {
	return fmt.Sprintf("%s/port/%s/out", t.prefix(), port)
}

// PortStatus returns the retained status topic of a port.
//
// Example: graymidi/port/keys/status
func (t Topics) PortStatus(port string) string {
	return fmt.Sprintf("%s/port/%s/status", t.prefix(), port)
}

// =============================================================================
// System Topics
// =============================================================================

// SystemStatus returns the service status topic.
//
// Example: graymidi/system/status
func (t Topics) SystemStatus() string {
	return fmt.Sprintf("%s/system/status", t.prefix())
}

// =============================================================================
// Wildcard Patterns for Subscriptions
// =============================================================================

// AllPortInputs returns a pattern matching the input of every port.
//
// Pattern: graymidi/port/+/in
func (t Topics) AllPortInputs() string {
	return fmt.Sprintf("%s/port/+/in", t.prefix())
}

// AllPortStatus returns a pattern matching the status of every port.
//
// Pattern: graymidi/port/+/status
func (t Topics) AllPortStatus() string {
	return fmt.Sprintf("%s/port/+/status", t.prefix())
}

// AllTopics returns a pattern matching every topic under the prefix.
// Use with caution - this receives ALL traffic.
//
// Pattern: graymidi/#
func (t Topics) AllTopics() string {
	return t.prefix() + "/#"
}
