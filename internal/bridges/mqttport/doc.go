// Package mqttport exposes a pair of MQTT topics as a MIDI port.
//
// A Port is a device.Adapter. While the device is open the port is
// subscribed to {prefix}/port/{name}/in; each payload there is one MIDI
// message (raw bytes) and is dispatched to the device's transmitters.
// Receivers created on the device publish what they are sent to
// {prefix}/port/{name}/out. The retained {prefix}/port/{name}/status topic
// carries the open or closed state as JSON.
//
// Usage:
//
//	port, err := mqttport.New(mqttport.Options{
//	    Info:   device.Info{Name: "keys"},
//	    Client: client,
//	    Topics: client.Topics(),
//	})
//	if err != nil {
//	    return err
//	}
//	dev := device.New(port)
//	port.Attach(dev)
package mqttport
