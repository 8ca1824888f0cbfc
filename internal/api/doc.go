// Package api implements the HTTP REST API and WebSocket server for Gray Logic MIDI.
//
// This package provides:
//   - REST endpoints for device status, explicit open/close and endpoint listing
//   - Lifecycle journal queries
//   - A WebSocket hub streaming device output and lifecycle events
//   - Prometheus exposition via promhttp
//   - Middleware stack (request ID, logging, recovery, CORS)
//
// # Routes
//
//	GET    /api/v1/health
//	GET    /api/v1/system
//	GET    /api/v1/device/
//	POST   /api/v1/device/open
//	POST   /api/v1/device/close
//	POST   /api/v1/device/send            {"data":"90 3C 64","timestamp_us":-1}
//	GET    /api/v1/device/endpoints/
//	DELETE /api/v1/device/endpoints/{id}
//	GET    /api/v1/journal/?device=&kind=&limit=
//	GET    /api/v1/journal/drops
//	GET    /api/v1/ws
//	GET    /metrics
//
// # WebSocket
//
// Each client is a device.Receiver. Subscribing to the "midi" channel binds
// a reference-counted transmitter to the client, so the device stays open
// while anyone listens. A "send" message goes through a reference-counted
// receiver held until the client disconnects. The "lifecycle" channel is
// fed by the Hub acting as the device observer.
//
// The dispatcher holds the device's registry lock while delivering, so
// WSClient.Send only queues and never calls back into the device.
package api
