package rendezvous

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	connectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sotto_rendezvous_connections_total",
		Help: "Total websocket connections accepted",
	})

	connectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sotto_rendezvous_connections_active",
		Help: "Currently connected websocket clients",
	})

	envelopesPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sotto_rendezvous_envelopes_published_total",
		Help: "Envelopes published through the hub",
	}, []string{"type"})

	envelopesDelivered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sotto_rendezvous_envelopes_delivered_total",
		Help: "Envelope copies fanned out to subscribers",
	})

	envelopesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sotto_rendezvous_envelopes_dropped_total",
		Help: "Envelope copies dropped on slow subscribers",
	})

	bundlesRegistered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sotto_rendezvous_bundles_registered_total",
		Help: "Prekey bundles registered",
	})

	bundlesFetched = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sotto_rendezvous_bundles_fetched_total",
		Help: "Prekey bundles served",
	})
)
