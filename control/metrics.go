// control/metrics.go
// Author: momentics <momentics@gmail.com>
//
// NI-domain Prometheus counters (spec §8's testable properties: drop
// counts, match outcomes, auto-unlinks, triggered-op firings). Package-
// level vars registered once via promauto, the idiom the rest of the
// ecosystem uses for a process-wide metrics surface rather than
// threading a registry handle through every state machine's
// constructor.

package control

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RecvDrops counts inbound frames the progress engine never handed
	// to a target.XT: malformed headers and unknown portal indices
	// (spec §7).
	RecvDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "portals4ni",
		Name:      "recv_drops_total",
		Help:      "Inbound frames dropped before reaching a target descriptor.",
	}, []string{"reason"})

	// TargetDrops counts target.XT DROP terminations by ni_fail reason
	// (spec §4.5 DROP).
	TargetDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "portals4ni",
		Name:      "target_drops_total",
		Help:      "Target descriptors that terminated in DROP, by failure reason.",
	}, []string{"reason"})

	// Matches counts inbound requests matched to an LE/ME, split by
	// priority vs overflow list (spec §4.4).
	Matches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "portals4ni",
		Name:      "matches_total",
		Help:      "Inbound requests matched to an LE/ME, split by priority vs overflow list.",
	}, []string{"list"})

	// AutoUnlinks counts ME/LE auto-unlink events fired on USE_ONCE or
	// min_free crossing (spec §4.4 step 5).
	AutoUnlinks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "portals4ni",
		Name:      "auto_unlinks_total",
		Help:      "List entries auto-unlinked after a completed operation.",
	})

	// TriggeredFired counts triggered operations released by a CT
	// crossing their threshold (spec §4.7).
	TriggeredFired = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "portals4ni",
		Name:      "triggered_fired_total",
		Help:      "Triggered operations released by a CT threshold crossing.",
	})

	// EQDepth reports an event queue's most recently sampled backlog,
	// gauged per PT index by whatever periodically calls Set (cmd/'s
	// sampling loop, directly from ni.NI.SampleEQDepths).
	EQDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "portals4ni",
		Name:      "eq_depth",
		Help:      "Most recently sampled depth of a portal table's event queue.",
	}, []string{"pt_index"})
)

// Handler exposes the default registry's scrape endpoint, for cmd/'s
// debug HTTP server to mount alongside DebugProbes.
func Handler() http.Handler {
	return promhttp.Handler()
}
