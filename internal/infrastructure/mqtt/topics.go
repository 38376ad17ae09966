package mqtt

import "strings"

// Topic prefixes for the SciReCount topic tree.
//
//	scirecount/sensors/{deviceId}/reading   sensors → core
//	scirecount/core/devices                 core → dashboards (retained snapshot)
//	scirecount/system/status                core online/offline (retained, LWT)
const (
	// TopicPrefix is the root of every SciReCount topic.
	TopicPrefix = "scirecount"

	// TopicPrefixSensors is the base for sensor-originated topics.
	TopicPrefixSensors = TopicPrefix + "/sensors"

	// TopicPrefixCore is the base for topics published by the core.
	TopicPrefixCore = TopicPrefix + "/core"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = TopicPrefix + "/system"
)

// Topics provides builders for SciReCount MQTT topics.
//
//	topic := mqtt.Topics{}.SensorReading("TD2000-0042")
//	// Returns: "scirecount/sensors/TD2000-0042/reading"
type Topics struct{}

// SensorReading returns the topic a sensor publishes its readings to.
func (Topics) SensorReading(deviceID string) string {
	return TopicPrefixSensors + "/" + deviceID + "/reading"
}

// AllSensorReadings returns the wildcard matching every sensor's readings.
func (Topics) AllSensorReadings() string {
	return TopicPrefixSensors + "/+/reading"
}

// CoreDevices returns the topic carrying the retained device snapshot.
func (Topics) CoreDevices() string {
	return TopicPrefixCore + "/devices"
}

// SystemStatus returns the topic for core online/offline status.
func (Topics) SystemStatus() string {
	return TopicPrefixSystem + "/status"
}

// SensorIDFromTopic extracts {deviceId} from a sensor reading topic.
// It returns false for any other topic shape.
func SensorIDFromTopic(topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, TopicPrefixSensors+"/")
	if !ok {
		return "", false
	}
	id, ok := strings.CutSuffix(rest, "/reading")
	if !ok || id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}
