// Package mqtt provides the broker connection used by the MIoT bridge.
//
// Devices push raw property updates to graylogic/state/miot/{device_id};
// the bridge subscribes there and publishes the resulting entity state,
// retained, to graylogic/core/entity/{unique_id}/state. A retained
// status message with a matching Last Will marks the bridge online or
// offline.
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.AllDeviceStates(), 1, handler)
//
// Auto-reconnect uses exponential backoff between the configured initial
// and maximum delays; subscriptions are re-established on every reconnect.
package mqtt
