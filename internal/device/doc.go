// Package device provides the live device model and the Device Registry
// for the Gray Logic MIoT bridge.
//
// A Device pairs a spec tree with a hardware identity and a listener set.
// Protocol bridges push keyed data updates into the Registry; the Registry
// hands them to the owning Device, which fans them out to its listeners
// (normally one entity adapter per converter).
//
// # Architecture
//
//	┌──────────────┐  Dispatch(id, data)  ┌──────────────┐  OnDeviceUpdate  ┌──────────────┐
//	│ MQTT bridge  │─────────────────────▶│   Registry   │─────────────────▶│   entities   │
//	│ (bridge pkg) │                      │ (registry.go)│  per device, in  │ (entity pkg) │
//	└──────────────┘                      └──────────────┘  listener order  └──────────────┘
//	                                             ▲
//	                                             │ Register
//	                                      ┌──────────────┐
//	                                      │ devices.yaml │
//	                                      │ (config.go)  │
//	                                      └──────────────┘
//
// # Usage
//
//	file, err := device.LoadConfig("configs/devices.yaml")
//	if err != nil {
//	    return err
//	}
//	devices, err := file.Build()
//	if err != nil {
//	    return err
//	}
//
//	registry := device.NewRegistry()
//	registry.SetLogger(log)
//	for _, d := range devices {
//	    if err := registry.Register(d); err != nil {
//	        return err
//	    }
//	}
//
//	// From a protocol bridge
//	registry.Dispatch("miot.12345", map[string]any{"fan:speed": 3})
//
// # Thread Safety
//
// The Registry and Device are safe for concurrent use. Deliveries to one
// device are serialised; deliveries to different devices are independent.
package device
