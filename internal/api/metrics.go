package api

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/AaronLay10/NarrativeEngine/internal/version"
)

func boolGauge(b bool) int {
	if b {
		return 1
	}
	return 0
}

// metricsHandler returns Prometheus-compatible metrics in text format.
func (s *Server) metricsHandler(w http.ResponseWriter, r *http.Request) {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "unknown"
	}

	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	writeMetric := func(name, mtype, help string, value interface{}, labels string) {
		fmt.Fprintf(w, "# HELP %s %s\n", name, help)
		fmt.Fprintf(w, "# TYPE %s %s\n", name, mtype)
		fmt.Fprintf(w, "%s{%s} %v\n", name, labels, value)
	}

	labels := fmt.Sprintf(`engine="%s",instance="%s",version="%s"`, s.name, hostname, version.Version)

	writeMetric("narrative_uptime_seconds", "gauge",
		"Number of seconds since the engine started", time.Since(s.started).Seconds(), labels)
	writeMetric("narrative_traversal_active", "gauge",
		"Whether a traversal is running (1) or not (0)", boolGauge(s.engine.Active()), labels)
	writeMetric("narrative_sequence_entries", "gauge",
		"Entries in the in-memory sequence record", s.engine.Record().Len(), labels)
	writeMetric("narrative_events_total", "counter",
		"Total number of events emitted since startup", s.bus.Total(), labels)
	writeMetric("narrative_events_buffered", "gauge",
		"Events held in the recent event buffer", s.bus.Buffered(), labels)
	writeMetric("narrative_events_evicted_total", "counter",
		"Buffered events overwritten by newer ones", s.bus.Evicted(), labels)
	writeMetric("narrative_ws_clients", "gauge",
		"Number of active WebSocket client connections", s.bus.SubscriberCount(), labels)
	if s.mqttConnected != nil {
		writeMetric("narrative_mqtt_connected", "gauge",
			"Whether the MQTT broker is connected (1) or not (0)", boolGauge(s.mqttConnected()), labels)
	}
	writeMetric("narrative_history_enabled", "gauge",
		"Whether durable sequence history is configured (1) or not (0)", boolGauge(s.history != nil), labels)
}
