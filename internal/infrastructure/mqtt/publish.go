package mqtt

import (
	"fmt"
)

// maxPayloadSize bounds outgoing payloads. A full device snapshot for a
// large estate stays well under it.
const maxPayloadSize = 1 << 20

// Publish sends payload on topic and waits for the broker to acknowledge
// it (QoS 1 and 2) or for the write to complete (QoS 0).
//
// The core retains only the device snapshot and its own status.
//
//	err := client.Publish(mqtt.Topics{}.CoreDevices(), snapshotJSON, 1, true)
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPublishFailed, len(payload), maxPayloadSize)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return waitToken(c.client.Publish(topic, qos, retained, payload), ErrPublishFailed)
}
