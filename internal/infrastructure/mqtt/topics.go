package mqtt

import (
	"fmt"
	"strings"
)

// HubDeviceType is the device type segment shared by all hubs.
const HubDeviceType = "canvas-hub"

// TopicSet is the set of topics a registered hub listens and publishes on.
//
// It is derived once at registration from the topic prefix, the device id
// and the origin name, persisted, and never edited field by field.
type TopicSet struct {
	AllDevices               string
	AllCanvasHubs            string
	DeviceTopicPrefix        string
	DeviceRequestTopicPrefix string
	HealthTopic              string
	StateTopic               string
}

// DeriveTopics builds the TopicSet for a device.
//
// Example, prefix "canvas", device "d1", origin "simcoe":
//
//	AllDevices               canvas/devices
//	AllCanvasHubs            canvas/devices/canvas-hub
//	DeviceTopicPrefix        canvas/devices/d1
//	DeviceRequestTopicPrefix canvas/devices/d1/simcoe/request/#
//	HealthTopic              canvas/devices/d1/simcoe/broadcast/health
//	StateTopic               canvas/devices/d1/simcoe/broadcast/state
func DeriveTopics(prefix, deviceID, originName string) TopicSet {
	devices := prefix + "/devices"
	device := devices + "/" + deviceID
	origin := device + "/" + originName
	return TopicSet{
		AllDevices:               devices,
		AllCanvasHubs:            devices + "/" + HubDeviceType,
		DeviceTopicPrefix:        device,
		DeviceRequestTopicPrefix: origin + "/request/#",
		HealthTopic:              origin + "/broadcast/health",
		StateTopic:               origin + "/broadcast/state",
	}
}

// Empty reports whether no topics have been provisioned.
func (t TopicSet) Empty() bool {
	return t.DeviceTopicPrefix == "" && t.DeviceRequestTopicPrefix == ""
}

// RequestFilters returns the distinct non-empty request topics, in a stable order.
func (t TopicSet) RequestFilters() []string {
	candidates := []string{t.AllDevices, t.AllCanvasHubs, t.DeviceTopicPrefix, t.DeviceRequestTopicPrefix}
	seen := make(map[string]bool, len(candidates))
	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

// RequestPrefix returns the request topic without its trailing wildcard.
// Stripping it from an inbound topic yields the command path ("/printer/move").
func (t TopicSet) RequestPrefix() string {
	return strings.TrimSuffix(t.DeviceRequestTopicPrefix, "/#")
}

// ResponseTopic returns the topic a response to originID is published on.
//
// Example: canvas/devices/d1/web-app/response/printer/move
func ResponseTopic(prefix, deviceID, originID, path string) string {
	return fmt.Sprintf("%s/devices/%s/%s/response%s", prefix, deviceID, originID, path)
}

// Match reports whether topic matches the subscription pattern.
//
// "+" matches exactly one level and "#" matches the remaining levels,
// including none ("a/#" matches "a").
func Match(pattern, topic string) bool {
	if pattern == topic {
		return true
	}
	pp := strings.Split(pattern, "/")
	tp := strings.Split(topic, "/")

	for i, p := range pp {
		if p == "#" {
			return i == len(pp)-1
		}
		if i >= len(tp) {
			return false
		}
		if p != "+" && p != tp[i] {
			return false
		}
	}
	return len(pp) == len(tp)
}
