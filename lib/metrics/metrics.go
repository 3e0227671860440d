// Package metrics exposes the portal's Prometheus collectors. Everything is
// registered on the default registerer under the mudportal_ prefix and
// served from the same HTTP mux as the WebSocket endpoint.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// SessionsActive tracks currently connected browser sessions.
	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mudportal_sessions_active",
		Help: "Currently connected browser sessions.",
	})

	// SessionsTotal counts sessions accepted since start.
	SessionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mudportal_sessions_total",
		Help: "Browser sessions accepted since start.",
	})

	// BytesToUpstream counts bytes written to MUD servers, negotiation
	// replies included.
	BytesToUpstream = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mudportal_upstream_bytes_total",
		Help: "Bytes written to MUD servers.",
	})

	// BytesToClient counts raw bytes framed toward browsers, before
	// base64 expansion.
	BytesToClient = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mudportal_client_bytes_total",
		Help: "Bytes framed toward browsers before encoding.",
	})

	// ChatPosts counts chat messages appended to the shared history.
	ChatPosts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mudportal_chat_posts_total",
		Help: "Chat messages appended to the shared history.",
	})

	// DialFailures counts upstream dials that did not produce a
	// connection, negative-cache suppressions included.
	DialFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mudportal_dial_failures_total",
		Help: "Upstream dials that failed.",
	})
)

// Handler returns the scrape endpoint handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
