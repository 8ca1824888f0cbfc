// Package device manages the lifecycle of a single MIDI port and fans
// messages out to the endpoints attached to it.
//
// A Device is opened either explicitly by the application (Open) or
// implicitly as a side effect of acquiring an endpoint through one of the
// reference-counted constructors. The two interact asymmetrically: an
// explicit open pins the device until Close, and implicit closes are ignored
// while it is active.
//
// # Architecture
//
//	┌──────────────────────────────────────────────────────────────────────┐
//	│                               Device                                 │
//	│                                                                      │
//	│  ┌─────────────────┐   ┌─────────────────┐   ┌──────────────────┐    │
//	│  │   Lifecycle     │   │   Registries    │   │    Dispatcher    │    │
//	│  │ (lifecycle.go)  │◀──│  (registry.go)  │──▶│  (dispatch.go)   │    │
//	│  │                 │   │                 │   │                  │    │
//	│  │ • open flag     │   │ • receivers     │   │ • transmitters   │    │
//	│  │ • ref count     │   │ • snapshots     │   │ • fast path      │    │
//	│  │ • openers       │   │                 │   │ • fan-out        │    │
//	│  └────────┬────────┘   └─────────────────┘   └──────────────────┘    │
//	└───────────│──────────────────────────────────────────────────────────┘
//	            ▼
//	┌──────────────────────┐
//	│  Adapter (physical   │
//	│  open/close, sinks)  │
//	└──────────────────────┘
//
// # Locking
//
// Two lock domains exist. The lifecycle lock guards the open flag, the
// reference count and the implicit opener set. The registry lock guards both
// registries, transmitter bindings and the dispatch cache, and is held while
// messages are delivered. When both are needed the registry lock is taken
// first.
//
// Sinks run while the registry lock of the dispatching device is held. A sink
// must not close endpoints of, or rebind transmitters on, that same device.
//
// # Usage
//
//	dev := device.New(adapter)
//	dev.SetLogger(log)
//
//	rx, err := dev.NewReceiverRefCounted() // opens the device
//	if rx != nil {
//	    defer rx.Close() // closes the device when it was the last opener
//	}
//	if err != nil {
//	    return err
//	}
//
// A reference-counted constructor whose open fails still returns the handle
// with the error. The handle keeps its count until it is closed.
//
// Handles are never closed by the garbage collector; every acquisition must
// be paired with Close.
package device
