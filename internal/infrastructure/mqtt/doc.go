// Package mqtt connects SciReCount Core to an MQTT broker.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Publishing and wildcard subscriptions with QoS
//   - Last Will and Testament on scirecount/system/status
//   - The Bridge between sensor topics and the ingestion engine
//
// # Topics
//
//	scirecount/sensors/{deviceId}/reading   sensor payloads, ingested with {deviceId} as hint
//	scirecount/core/devices                 retained device snapshot after every change
//	scirecount/system/status                core online/offline (retained)
//
// Sensors that cannot speak HTTP publish their TD2000 payloads here. The
// payload format is the same as POST /api/sensors/td2000.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	bridge := mqtt.NewBridge(client, engine, byte(cfg.MQTT.QoS))
//	if err := bridge.Start(ctx, broadcaster); err != nil {
//	    return err
//	}
//	defer bridge.Stop()
package mqtt
