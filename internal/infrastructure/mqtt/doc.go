// Package mqtt connects Gray Logic MIDI to an MQTT broker.
//
// Remote MIDI ports are reached over MQTT: every port owns a topic subtree
// and one MIDI message travels per publish, as raw bytes.
//
//	controller ──▶ {prefix}/port/{name}/in  ──▶ device transmitters
//	receivers  ──▶ {prefix}/port/{name}/out ──▶ synthesiser
//
// The client delivers incoming messages in arrival order, restores its
// subscriptions after a reconnect and keeps a retained ServiceStatus on
// {prefix}/system/status (online, offline on shutdown, offline through the
// will when the connection is lost).
//
// Use TLS (mqtt.broker.tls) whenever the broker is not on the local host.
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(client.Topics().PortIn("keys"), 0,
//	    func(topic string, payload []byte) error {
//	        dev.DispatchRaw(payload, -1)
//	        return nil
//	    })
package mqtt
