// Package metrics exports device diagnostics to Prometheus.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nerrad567/gray-logic-midi/internal/device"
)

// DefaultNamespace prefixes every metric when none is configured.
const DefaultNamespace = "graymidi"

// Observer is a device.Observer maintaining Prometheus metrics. One Observer
// can serve several devices; every series carries a device label.
type Observer struct {
	deviceOpen       *prometheus.GaugeVec
	refCount         *prometheus.GaugeVec
	endpoints        *prometheus.GaugeVec
	lifecycleEvents  *prometheus.CounterVec
	dispatches       *prometheus.CounterVec
	deliveries       *prometheus.CounterVec
	dropped          *prometheus.CounterVec
	deliveryFailures *prometheus.CounterVec
}

// New creates the metrics and registers them with reg.
//
// Parameters:
//   - namespace: Metric name prefix; DefaultNamespace if empty
//   - reg: Registry to register with
//
// Returns:
//   - *Observer: Observer to attach to devices
//   - error: If a metric cannot be registered (e.g. registered twice)
func New(namespace string, reg prometheus.Registerer) (*Observer, error) {
	if namespace == "" {
		namespace = DefaultNamespace
	}

	o := &Observer{
		deviceOpen: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "device",
			Name:      "open",
			Help:      "Whether the device is physically open (1) or closed (0).",
		}, []string{"device"}),
		refCount: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "device",
			Name:      "ref_count",
			Help:      "Implicit openers of the device, -1 while explicitly open.",
		}, []string{"device"}),
		endpoints: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "device",
			Name:      "endpoints",
			Help:      "Open endpoint handles by kind.",
		}, []string{"device", "kind"}),
		lifecycleEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "device",
			Name:      "lifecycle_events_total",
			Help:      "Lifecycle events by kind.",
		}, []string{"device", "event"}),
		dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "messages_total",
			Help:      "Dispatched messages by form and delivery path.",
		}, []string{"device", "form", "path"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "deliveries_total",
			Help:      "Successful deliveries to receivers.",
		}, []string{"device"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "dropped_total",
			Help:      "Malformed messages discarded, by form.",
		}, []string{"device", "form"}),
		deliveryFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "delivery_failures_total",
			Help:      "Deliveries rejected by a receiver.",
		}, []string{"device"}),
	}

	for _, c := range []prometheus.Collector{
		o.deviceOpen, o.refCount, o.endpoints, o.lifecycleEvents,
		o.dispatches, o.deliveries, o.dropped, o.deliveryFailures,
	} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("registering device metrics: %w", err)
		}
	}
	return o, nil
}

// LifecycleChanged updates the open state, reference count and endpoint
// gauges.
func (o *Observer) LifecycleChanged(ev device.Event) {
	o.lifecycleEvents.WithLabelValues(ev.Device, string(ev.Kind)).Inc()

	switch ev.Kind {
	case device.EventOpened:
		o.deviceOpen.WithLabelValues(ev.Device).Set(1)
		o.refCount.WithLabelValues(ev.Device).Set(float64(ev.RefCount))
	case device.EventClosed:
		o.deviceOpen.WithLabelValues(ev.Device).Set(0)
		o.refCount.WithLabelValues(ev.Device).Set(0)
	case device.EventRefCount:
		o.refCount.WithLabelValues(ev.Device).Set(float64(ev.RefCount))
	case device.EventAcquired:
		o.endpoints.WithLabelValues(ev.Device, string(ev.EndpointKind)).Inc()
		o.refCount.WithLabelValues(ev.Device).Set(float64(ev.RefCount))
	case device.EventReleased:
		o.endpoints.WithLabelValues(ev.Device, string(ev.EndpointKind)).Dec()
		o.refCount.WithLabelValues(ev.Device).Set(float64(ev.RefCount))
	}
}

// Dispatched counts the message and its successful deliveries.
func (o *Observer) Dispatched(deviceName string, form device.Form, path device.Path, deliveries int) {
	o.dispatches.WithLabelValues(deviceName, string(form), string(path)).Inc()
	o.deliveries.WithLabelValues(deviceName).Add(float64(deliveries))
}

// Dropped counts discarded input.
func (o *Observer) Dropped(deviceName string, form device.Form, _ error) {
	o.dropped.WithLabelValues(deviceName, string(form)).Inc()
}

// DeliveryFailed counts a rejected delivery.
func (o *Observer) DeliveryFailed(deviceName string, _ error) {
	o.deliveryFailures.WithLabelValues(deviceName).Inc()
}
